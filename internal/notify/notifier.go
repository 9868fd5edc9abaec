// Package notify tells plumbers and customers about job changes.
package notify

import (
	"context"
	"log/slog"

	"marketplace-service/internal/storage"
)

// Notifier delivers job notifications
type Notifier interface {
	PlumberMatched(ctx context.Context, plumber *storage.Plumber, job *storage.Job)
	CustomerUpdated(ctx context.Context, job *storage.Job)
}

// LogNotifier records notifications as log lines instead of sending SMS
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) PlumberMatched(ctx context.Context, plumber *storage.Plumber, job *storage.Job) {
	n.logger.InfoContext(ctx, "Notify plumber of new job",
		"plumber_id", plumber.ID,
		"plumber_phone", plumber.Phone,
		"job_id", job.ID,
		"urgency_level", job.UrgencyLevel,
		"estimated_price", job.EstimatedPrice,
	)
}

func (n *LogNotifier) CustomerUpdated(ctx context.Context, job *storage.Job) {
	n.logger.InfoContext(ctx, "Notify customer of job update",
		"customer_id", job.CustomerID,
		"job_id", job.ID,
		"status", job.Status,
	)
}
