package service

import (
	"context"
	"sync"
	"time"

	"download-gate-service/domain"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
)

const (
	defaultRecorderQueueSize = 1024
	recorderDrainTimeout     = 2 * time.Second
)

type AdmissionObserver interface {
	ObserveAdmission(event domain.AdmissionEvent)
}

type AdmissionStatsRepo interface {
	Record(ctx context.Context, event domain.AdmissionEvent) error
}

// AdmissionRecorder publishes every admission decision to metrics synchronously
// and to the stats repository from a background worker. A full queue drops events.
// Close flushes what is still queued, bounded by recorderDrainTimeout.
type AdmissionRecorder struct {
	observer AdmissionObserver
	repo     AdmissionStatsRepo
	logger   log.Logger
	events   chan domain.AdmissionEvent
	stop     chan struct{}
	once     *sync.Once
	worker   *sync.Mutex
}

func NewAdmissionRecorder(observer AdmissionObserver, repo AdmissionStatsRepo, logger log.Logger) AdmissionRecorder {
	return AdmissionRecorder{
		observer: observer,
		repo:     repo,
		logger:   logger,
		events:   make(chan domain.AdmissionEvent, defaultRecorderQueueSize),
		stop:     make(chan struct{}),
		once:     &sync.Once{},
		worker:   &sync.Mutex{},
	}
}

func (r AdmissionRecorder) Record(ctx context.Context, event domain.AdmissionEvent) {
	if r.observer != nil {
		r.observer.ObserveAdmission(event)
	}
	if r.repo == nil {
		return
	}
	select {
	case r.events <- event:
	default:
		r.logger.Debug(ctx, "admission stats queue is full, event dropped")
	}
}

func (r AdmissionRecorder) Run(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	r.worker.Lock()
	defer r.worker.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stop:
			return nil
		case event := <-r.events:
			err := r.repo.Record(ctx, event)
			if err != nil {
				r.logger.Warn(ctx, errors.WithMessage(err, "record admission stats"))
			}
		}
	}
}

// Close stops the worker, waits for it to exit and persists the remaining queue.
func (r AdmissionRecorder) Close() error {
	r.once.Do(func() {
		close(r.stop)
		if r.repo == nil {
			return
		}
		r.worker.Lock()
		defer r.worker.Unlock()
		r.drain()
	})
	return nil
}

func (r AdmissionRecorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), recorderDrainTimeout)
	defer cancel()

	flushed := 0
	for {
		if ctx.Err() != nil {
			r.logger.Warn(ctx, "admission stats drain timed out, events dropped",
				log.Int("flushed", flushed),
				log.Int("dropped", len(r.events)),
			)
			return
		}
		select {
		case event := <-r.events:
			err := r.repo.Record(ctx, event)
			if err != nil {
				r.logger.Warn(ctx, errors.WithMessage(err, "record admission stats"))
				continue
			}
			flushed++
		default:
			if flushed > 0 {
				r.logger.Debug(ctx, "admission stats queue flushed", log.Int("flushed", flushed))
			}
			return
		}
	}
}
