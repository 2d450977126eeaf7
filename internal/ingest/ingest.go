package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"neurogut/internal/model"
)

// SendNonBlocking queues rec for the engine, dropping it when the channel is
// full. Recordings without an ID get one here so callers can refer to them.
func SendNonBlocking(ctx context.Context, out chan<- model.Recording, rec model.Recording, logger *slog.Logger) bool {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	select {
	case out <- rec:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("recording channel full, dropping recording", "recording_id", rec.ID, "device_id", rec.DeviceID, "source", rec.Source)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
