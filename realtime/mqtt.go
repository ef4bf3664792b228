package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTPublisher forwards progress events to an MQTT broker under
// <topic>/<event type>.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

// NewMQTTPublisher connects to broker. An empty clientID gets a random one.
func NewMQTTPublisher(broker, clientID, topic string) (*MQTTPublisher, error) {
	if clientID == "" {
		clientID = "eventfaces-" + uuid.New().String()
	}
	log.Println("realtime: connecting to MQTT", broker, "with client ID:", clientID)

	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetConnectTimeout(30 * time.Second)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(c mqtt.Client) {
		log.Println("realtime: connected to MQTT")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Printf("realtime: MQTT connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}
	return &MQTTPublisher{client: client, topic: strings.TrimSuffix(topic, "/")}, nil
}

// Topic returns the topic an event is published to
func (p *MQTTPublisher) Topic(event Event) string {
	return p.topic + "/" + event.Type
}

// Broadcast publishes without waiting for the broker acknowledgement
func (p *MQTTPublisher) Broadcast(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("realtime: failed to marshal event: %v", err)
		return
	}
	token := p.client.Publish(p.Topic(event), 0, false, payload)
	go func() {
		if token.WaitTimeout(10*time.Second) && token.Error() != nil {
			log.Printf("realtime: MQTT publish to %s failed: %v", p.Topic(event), token.Error())
		}
	}()
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

var _ Notifier = (*MQTTPublisher)(nil)
