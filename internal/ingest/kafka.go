package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"neurogut/internal/config"
	"neurogut/internal/model"
)

// StartKafka consumes JSON recordings. The message key names the device
// when the payload does not.
func StartKafka(ctx context.Context, cfg *config.Manager, out chan<- model.Recording, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: int(cfg.Get().Ingest.MaxBodyBytes),
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			rec, err := messageRecording(m)
			if err != nil {
				if logger != nil {
					logger.Warn("kafka decode error", "err", err, "offset", m.Offset, "partition", m.Partition)
				}
				continue
			}
			SendNonBlocking(ctx, out, rec, logger)
		}
	}()
}

func messageRecording(m kafka.Message) (model.Recording, error) {
	rec, err := DecodeRecording(m.Value)
	if err != nil {
		return model.Recording{}, err
	}
	if rec.DeviceID == "" {
		rec.DeviceID = string(m.Key)
	}
	if rec.ReceivedAt.IsZero() && !m.Time.IsZero() {
		rec.ReceivedAt = m.Time.UTC()
	}
	rec.Source = "kafka"
	return rec, nil
}
