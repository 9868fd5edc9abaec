package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/storage"
)

func TestLogNotifier_PlumberMatched(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	n.PlumberMatched(context.Background(),
		&storage.Plumber{ID: "p1", Phone: "+17135550199"},
		&storage.Job{ID: "job-1", UrgencyLevel: "CRITICAL", EstimatedPrice: 299.99},
	)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "p1", line["plumber_id"])
	assert.Equal(t, "job-1", line["job_id"])
	assert.Equal(t, "CRITICAL", line["urgency_level"])
}

func TestLogNotifier_CustomerUpdated(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	n.CustomerUpdated(context.Background(), &storage.Job{ID: "job-1", CustomerID: "c1", Status: "accepted"})

	assert.Contains(t, buf.String(), `"status":"accepted"`)
	assert.Contains(t, buf.String(), `"customer_id":"c1"`)
}
