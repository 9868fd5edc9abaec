package kinesis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"marketplace-service/internal/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
)

// Job lifecycle event types
const (
	EventCreated       = "created"
	EventMatched       = "matched"
	EventStatusChanged = "status_changed"
	EventCompleted     = "completed"
)

// KinesisAPI interface for mocking
type KinesisAPI interface {
	PutRecord(ctx context.Context, params *kinesis.PutRecordInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error)
}

type Streamer struct {
	client     KinesisAPI
	streamName string
}

type JobEvent struct {
	JobID          string    `json:"job_id"`
	EventType      string    `json:"event_type"`
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status"`
	PlumberID      *string   `json:"plumber_id,omitempty"`
	CustomerID     string    `json:"customer_id"`
	JobType        string    `json:"job_type"`
	UrgencyLevel   string    `json:"urgency_level"`
	Neighborhood   string    `json:"neighborhood"`
	EstimatedPrice float64   `json:"estimated_price"`
	FinalPrice     *float64  `json:"final_price,omitempty"`
}

func NewStreamer(client KinesisAPI, streamName string) *Streamer {
	return &Streamer{
		client:     client,
		streamName: streamName,
	}
}

// PublishJobEvent writes one event partitioned by job id. Failures are logged
// and swallowed; the event stream never blocks the job pipeline.
func (s *Streamer) PublishJobEvent(ctx context.Context, eventType string, job *storage.Job) {
	if s == nil || s.client == nil {
		return // Kinesis not enabled
	}

	event := JobEvent{
		JobID:          job.ID,
		EventType:      eventType,
		Timestamp:      time.Now().UTC(),
		Status:         job.Status,
		PlumberID:      job.PlumberID,
		CustomerID:     job.CustomerID,
		JobType:        job.JobType,
		UrgencyLevel:   job.UrgencyLevel,
		Neighborhood:   job.Neighborhood,
		EstimatedPrice: job.EstimatedPrice,
		FinalPrice:     job.FinalPrice,
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal job event", "job_id", job.ID, "error", err)
		return
	}

	_, err = s.client.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(s.streamName),
		Data:         data,
		PartitionKey: aws.String(job.ID),
	})

	if err != nil {
		slog.Error("Failed to stream job event", "job_id", job.ID, "event_type", eventType, "error", err)
	} else {
		slog.Debug("Streamed job event", "job_id", job.ID, "event_type", eventType)
	}
}
