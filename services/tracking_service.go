package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	aws_pkg "github.com/NoaSkape/firefly-estimator-sub005/pkg/aws"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventQueue accepts tracking events for asynchronous processing.
// aws.SQSQueue satisfies it.
type EventQueue interface {
	SendMessage(ctx context.Context, body string) error
}

// Poller drains a queue into a handler until ctx is cancelled.
type Poller interface {
	StartPolling(ctx context.Context, handler aws_pkg.MessageHandler) error
}

// TrackingService records storefront analytics events.
type TrackingService interface {
	Track(ctx context.Context, ev *models.TrackEvent) *apperrors.Error
	// HandleMessage stores one queued event. It is the SQS message handler.
	HandleMessage(ctx context.Context, body string) error
}

type trackingServiceImpl struct {
	repo    repository.TrackingRepository
	queue   EventQueue
	metrics Metrics
	logger  *zap.Logger
}

// NewTrackingService creates a TrackingService. With a nil queue events are
// written synchronously.
func NewTrackingService(repo repository.TrackingRepository, queue EventQueue, metrics Metrics, logger *zap.Logger) TrackingService {
	return &trackingServiceImpl{repo: repo, queue: queue, metrics: metricsOrNoop(metrics), logger: logger}
}

func (s *trackingServiceImpl) Track(ctx context.Context, ev *models.TrackEvent) *apperrors.Error {
	if !ev.Event.Valid() {
		return apperrors.BadRequest("Unknown event type")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	if s.queue != nil {
		body, err := json.Marshal(ev)
		if err != nil {
			return apperrors.Internal("Failed to encode event", err)
		}
		err = s.queue.SendMessage(ctx, string(body))
		if err == nil {
			s.count(aws_pkg.MetricTrackingEvents, ev.Event)
			return nil
		}
		s.logger.Warn("Failed to enqueue tracking event, writing directly", zap.Error(err))
	}

	if err := s.record(ctx, ev); err != nil {
		s.logger.Error("Failed to record tracking event", zap.String("session_id", ev.SessionID), zap.Error(err))
		return apperrors.Internal("Failed to record event", err)
	}
	s.count(aws_pkg.MetricTrackingEvents, ev.Event)
	return nil
}

func (s *trackingServiceImpl) HandleMessage(ctx context.Context, body string) error {
	var ev models.TrackEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		// Undecodable messages would be redelivered forever; drop them.
		s.logger.Warn("Invalid tracking event JSON", zap.Error(err))
		return nil
	}
	if ev.ID == "" || !ev.Event.Valid() {
		s.logger.Warn("Dropping malformed tracking event", zap.String("id", ev.ID), zap.String("event", string(ev.Event)))
		return nil
	}
	if err := s.record(ctx, &ev); err != nil {
		return err
	}
	s.count(aws_pkg.MetricSQSMessagesProcessed, ev.Event)
	return nil
}

func (s *trackingServiceImpl) record(ctx context.Context, ev *models.TrackEvent) error {
	pv := &models.PageView{
		ID:         ev.ID,
		SessionID:  ev.SessionID,
		VisitorID:  ev.VisitorID,
		UserID:     ev.UserID,
		Event:      ev.Event,
		Path:       ev.Path,
		Referrer:   ev.Referrer,
		ModelSlug:  ev.ModelSlug,
		Step:       ev.Step,
		OccurredAt: ev.OccurredAt,
	}
	return s.repo.Record(ctx, pv, ev)
}

func (s *trackingServiceImpl) count(metric string, event models.TrackEventType) {
	emit(s.logger, func(ctx context.Context) error {
		return s.metrics.RecordCount(ctx, metric, map[string]string{"event": string(event)})
	})
}

// TrackingWorker drains the analytics queue in the background.
type TrackingWorker struct {
	poller  Poller
	service TrackingService
	logger  *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTrackingWorker(poller Poller, service TrackingService, logger *zap.Logger) *TrackingWorker {
	return &TrackingWorker{poller: poller, service: service, logger: logger}
}

// Start begins polling. Stop must be called to release the goroutine.
func (w *TrackingWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.logger.Info("Starting tracking worker")
		if err := w.poller.StartPolling(ctx, w.service.HandleMessage); err != nil && ctx.Err() == nil {
			w.logger.Error("Tracking worker stopped", zap.Error(err))
		}
	}()
}

// Stop cancels polling and waits for the in-flight batch to finish.
func (w *TrackingWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
