package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/camden-git/eventfaces/permissions"
	"github.com/camden-git/eventfaces/realtime"
	"github.com/camden-git/eventfaces/services"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var tagCmd = &cobra.Command{
	Use:   "tag [photo-id...]",
	Short: "Detect and match faces in photos",
	Long: `Run face tagging for the given photo ids, or for every photo of an
event with --event. Runs with system access, so event membership is not
checked. Faces that are already recorded are left untouched.`,
	RunE: runTag,
}

func init() {
	rootCmd.AddCommand(tagCmd)

	tagCmd.Flags().Uint("event", 0, "Tag the photos of this event id")
	tagCmd.Flags().Bool("untagged", false, "With --event, only photos without face records")
	tagCmd.Flags().Int("workers", 0, "Photos tagged in parallel (defaults to TAGGING_WORKERS)")
}

// progressNotifier advances a progress bar once per finished photo
type progressNotifier struct {
	bar *progressbar.ProgressBar
}

func (p progressNotifier) Broadcast(event realtime.Event) {
	if event.Type == realtime.EventPhotoTagged || event.Type == realtime.EventPhotoSkipped {
		_ = p.bar.Add(1)
	}
}

// tagTargets merges explicit ids with the event's photo ids so the progress
// bar is sized by the photos actually tagged
func tagTargets(ids, eventIDs []uint) []uint {
	all := make([]uint, 0, len(ids)+len(eventIDs))
	all = append(all, ids...)
	return services.UniqueIDs(append(all, eventIDs...))
}

func runTag(cmd *cobra.Command, args []string) error {
	eventID := mustGetUint(cmd, "event")
	untagged := mustGetBool(cmd, "untagged")

	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	if len(ids) == 0 && eventID == 0 {
		return errors.New("pass photo ids or --event")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var eventIDs []uint
	if eventID != 0 {
		eventIDs, err = a.photos.ListIDsByEvent(eventID, untagged)
		if err != nil {
			return fmt.Errorf("failed to list photos of event %d: %w", eventID, err)
		}
	}
	ids = tagTargets(ids, eventIDs)
	if len(ids) == 0 {
		fmt.Println("No photos to tag")
		return nil
	}

	workers := mustGetInt(cmd, "workers")
	if workers <= 0 {
		workers = a.cfg.TaggingWorkers
	}

	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetDescription("Tagging photos"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tagger := a.taggingService(workers, a.notifier(progressNotifier{bar: bar}))
	result, err := tagger.ProcessPhotos(ctx, permissions.SystemCaller(), ids)
	_ = bar.Finish()
	fmt.Println()

	fmt.Printf("Processed %d photos, detected %d faces, matched %d faces to users\n",
		result.ProcessedPhotos, result.TotalFacesDetected, result.TotalFacesMatched)
	if result.SkippedPhotos > 0 || result.FailedPhotos > 0 {
		fmt.Printf("Skipped %d, failed %d\n", result.SkippedPhotos, result.FailedPhotos)
	}
	if err != nil {
		return fmt.Errorf("tagging interrupted: %w", err)
	}
	return nil
}
