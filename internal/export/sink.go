package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

// CheckpointSink overwrites a checkpoint workbook in a blob store.
type CheckpointSink struct {
	store crawler.BlobStore
	name  string
}

// NewCheckpointSink writes checkpoints to name in store.
func NewCheckpointSink(store crawler.BlobStore, name string) (*CheckpointSink, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if name == "" {
		name = DefaultNames().Workbook
	}
	return &CheckpointSink{store: store, name: name}, nil
}

// WriteCheckpoint implements crawler.ResultSink.
func (s *CheckpointSink) WriteCheckpoint(ctx context.Context, records []crawler.CitationRecord) error {
	data, err := CheckpointWorkbook(records)
	if err != nil {
		return err
	}
	if _, err := s.store.PutObject(ctx, s.name, ContentTypeXLSX, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", s.name, err)
	}
	return nil
}

// Fanout writes every checkpoint to all sinks and joins their failures.
type Fanout []crawler.ResultSink

// WriteCheckpoint implements crawler.ResultSink.
func (f Fanout) WriteCheckpoint(ctx context.Context, records []crawler.CitationRecord) error {
	var errs []error
	for _, sink := range f {
		if err := sink.WriteCheckpoint(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckpointEvent is published after each successful checkpoint.
type CheckpointEvent struct {
	RunID     string    `json:"run_id"`
	Completed int       `json:"completed"`
	Citers    int       `json:"citers"`
	WrittenAt time.Time `json:"written_at"`
}

// NotifyingSink publishes a CheckpointEvent once the wrapped sink succeeds.
// Publish failures are logged and never fail the checkpoint.
type NotifyingSink struct {
	next      crawler.ResultSink
	publisher crawler.Publisher
	topic     string
	runID     string
	clock     crawler.Clock
	logger    *zap.Logger
}

// NewNotifyingSink wraps next.
func NewNotifyingSink(next crawler.ResultSink, publisher crawler.Publisher, topic, runID string, clock crawler.Clock, logger *zap.Logger) *NotifyingSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifyingSink{
		next:      next,
		publisher: publisher,
		topic:     topic,
		runID:     runID,
		clock:     clock,
		logger:    logger.Named("notify"),
	}
}

// WriteCheckpoint implements crawler.ResultSink.
func (s *NotifyingSink) WriteCheckpoint(ctx context.Context, records []crawler.CitationRecord) error {
	if err := s.next.WriteCheckpoint(ctx, records); err != nil {
		return err
	}
	event := CheckpointEvent{
		RunID:     s.runID,
		Completed: len(records),
		WrittenAt: s.clock.Now(),
	}
	for _, r := range records {
		event.Citers += len(r.Citers)
	}
	id, err := s.publisher.Publish(ctx, s.topic, event)
	if err != nil {
		s.logger.Warn("checkpoint notification failed", zap.Error(err), zap.Int("completed", event.Completed))
		return nil
	}
	s.logger.Debug("checkpoint notification sent", zap.String("message_id", id), zap.Int("completed", event.Completed))
	return nil
}
