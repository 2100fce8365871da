package bomimport

import (
	"context"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/AnimaI/SMD-Manager/config"
)

// ImportEvent is published once per finished import job.
type ImportEvent struct {
	TrackingID      string    `json:"tracking_id"`
	Device          string    `json:"device"`
	Status          Status    `json:"status"`
	Message         string    `json:"message"`
	SuccessfulParts int       `json:"successful"`
	FailedParts     int       `json:"failed"`
	NewParts        int       `json:"new_parts"`
	CorrelationId   string    `json:"correlation_id,omitempty"`
	FinishedAt      time.Time `json:"finished_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event ImportEvent) error
}

type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher resolves (or creates) the topic once up front.
func NewPubSubPublisher(ctx context.Context, client *pubsub.Client, topicName string) (*PubSubPublisher, error) {
	topic, err := config.CreateTopicIfNotExists(ctx, client, topicName)
	if err != nil {
		return nil, err
	}
	return &PubSubPublisher{topic: topic}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, event ImportEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := config.PublishJSON(ctx, p.topic, event, map[string]string{
		"device": event.Device,
		"status": string(event.Status),
	})
	return err
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}
