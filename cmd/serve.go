package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camden-git/eventfaces/handlers"
	"github.com/camden-git/eventfaces/realtime"
	"github.com/camden-git/eventfaces/workers"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the face tagging HTTP API. Tagging can run synchronously per
request or through the background queue, whose progress is pushed over
the /api/ws websocket and, when MQTT_BROKER is set, over MQTT.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := realtime.NewHub()
	go hub.Run(hubCtx)

	notifiers := []realtime.Notifier{hub}
	if a.cfg.MQTTBroker != "" {
		publisher, err := realtime.NewMQTTPublisher(a.cfg.MQTTBroker, a.cfg.MQTTClientID, a.cfg.MQTTTopic)
		if err != nil {
			log.Printf("Warning: MQTT publishing disabled: %v", err)
		} else {
			defer publisher.Close()
			notifiers = append(notifiers, publisher)
		}
	}
	notifier := a.notifier(notifiers...)

	tagger := a.taggingService(a.cfg.TaggingWorkers, notifier)
	queue := workers.NewTaggingQueue(tagger.ProcessJob, a.cfg.TaggingQueueSize, a.cfg.TaggingWorkers)
	defer queue.Stop()

	router := handlers.NewRouter(handlers.RouterConfig{
		AllowedOrigins: a.cfg.AllowedOrigin,
		PhotoFaces: &handlers.PhotoFaceHandler{
			Tagger:   tagger,
			Queue:    queue,
			Events:   a.events,
			Photos:   a.photos,
			Access:   a.access,
			Notifier: notifier,
		},
		Profile:   &handlers.ProfileHandler{Registrar: a.registrationService(notifier)},
		WebSocket: hub.ServeWS,
	})

	serverAddr := ":" + a.cfg.Port
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	fmt.Printf("Server starting on http://localhost:%s\n", a.cfg.Port)
	log.Printf("Server listening on %s", serverAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
