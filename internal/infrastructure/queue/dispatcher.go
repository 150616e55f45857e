package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/geotask/task-service/internal/api/metrics"
	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// ErrQueueFull is returned when the worker owning a user has no room left.
var ErrQueueFull = errors.New("location queue full")

// Dispatcher routes location samples to a fixed set of workers using
// consistent hashing on the user id, guaranteeing per-user ordering.
type Dispatcher struct {
	workers []chan domain.LocationSample
	service ports.LocationService
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, service ports.LocationService, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan domain.LocationSample, numWorkers),
		service: service,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.LocationSample, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands a sample to the worker responsible for its user. It never
// blocks: a full worker channel yields ErrQueueFull.
func (d *Dispatcher) Enqueue(sample domain.LocationSample) error {
	idx := d.shardIndex(sample.UserID)
	select {
	case d.workers[idx] <- sample:
		metrics.LocationQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		return nil
	default:
		metrics.LocationsErrorsTotal.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
}

// EnqueueBatch enqueues samples in order and reports how many were accepted.
// It stops at the first full worker.
func (d *Dispatcher) EnqueueBatch(samples []domain.LocationSample) (int, error) {
	for i, s := range samples {
		if err := d.Enqueue(s); err != nil {
			return i, err
		}
	}
	return len(samples), nil
}

// shardIndex maps a user id deterministically to a worker index.
func (d *Dispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.LocationSample) {
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-ch:
			if !ok {
				return
			}
			metrics.LocationQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			d.process(ctx, id, sample)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, worker int, sample domain.LocationSample) {
	start := time.Now()
	err := d.service.Process(ctx, sample)

	result := "ok"
	switch {
	case err == nil:
		metrics.LocationsProcessedTotal.WithLabelValues(sample.Source).Inc()
	case errors.Is(err, domain.ErrStaleSample):
		result = "stale"
		d.log.Debug().Str("user_id", sample.UserID).Int("worker_id", worker).Msg("stale location skipped")
	case errors.Is(err, domain.ErrInvalidCoordinate):
		result = "invalid"
		d.log.Warn().Str("user_id", sample.UserID).Int("worker_id", worker).Msg("invalid location skipped")
	default:
		result = "failed"
		d.log.Error().Err(err).
			Str("user_id", sample.UserID).
			Int("worker_id", worker).
			Msg("location processing failed")
	}
	if result != "ok" {
		metrics.LocationsErrorsTotal.WithLabelValues(result).Inc()
	}
	metrics.LocationProcessingDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
