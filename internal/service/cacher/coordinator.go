package cacher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/domain/event"
	"github.com/vertextoedge/media-cache/internal/domain/service"
	"github.com/vertextoedge/media-cache/internal/metrics"
	"github.com/vertextoedge/media-cache/internal/port"
)

// probeLength is the size of the fetch used to learn the total length of a resource
const probeLength = 2

// State is the state of a coordinator invocation
type State int

const (
	StateIdle State = iota
	StatePlanning
	StateExecuting
	StateCompleted
	StateFailed
	StateCancelled
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsTerminal returns true for states that end an invocation
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// DeliverFunc receives the bytes of a request in order. data is only valid
// during the call. Returning an error aborts the request with that error.
type DeliverFunc func(data []byte, source domain.SourceKind) error

// CoordinatorConfig contains coordinator configuration
type CoordinatorConfig struct {
	ChunkSize      uint64
	ReadBufferSize int
	NotifyInterval time.Duration
}

// DefaultCoordinatorConfig returns default coordinator configuration
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		ChunkSize:      service.DefaultChunkSize,
		ReadBufferSize: 64 * 1024,
		NotifyInterval: time.Second,
	}
}

// Coordinator executes download plans for one resource against its
// MediaWorker and the network transport. Each Run is one invocation; at most
// one invocation per resource runs at a time across the process.
type Coordinator struct {
	worker    *MediaWorker
	transport port.Transport
	inflight  *InFlightRegistry
	planner   *service.ActionPlanner
	notifier  *ProgressNotifier
	clock     port.Clock
	config    CoordinatorConfig
	logger    *zap.Logger

	mu    sync.Mutex
	state State
}

// NewCoordinator creates a coordinator for the resource owned by worker
func NewCoordinator(
	cfg CoordinatorConfig,
	worker *MediaWorker,
	transport port.Transport,
	inflight *InFlightRegistry,
	dispatcher event.EventDispatcher,
	clock port.Clock,
	logger *zap.Logger,
) *Coordinator {
	defaults := DefaultCoordinatorConfig()
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = defaults.ChunkSize
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaults.ReadBufferSize
	}
	if cfg.NotifyInterval == 0 {
		cfg.NotifyInterval = defaults.NotifyInterval
	}
	if clock == nil {
		clock = port.SystemClock{}
	}

	return &Coordinator{
		worker:    worker,
		transport: transport,
		inflight:  inflight,
		planner:   service.NewActionPlanner(cfg.ChunkSize),
		notifier:  NewProgressNotifier(worker.URL(), dispatcher, cfg.NotifyInterval, clock),
		clock:     clock,
		config:    cfg,
		logger:    logger.With(zap.String("url", worker.URL())),
	}
}

// State returns the current state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run serves req, passing bytes to deliver in ascending offset order.
//
// It fails immediately with a ResourceBusyError if another invocation for the
// same resource is running. Cancelling ctx ends the invocation with an error
// matching domain.ErrCancelled; no failure event is emitted for it.
func (c *Coordinator) Run(ctx context.Context, req domain.ReadRequest, deliver DeliverFunc) error {
	release, err := c.inflight.Acquire(c.worker.URL())
	if err != nil {
		return err
	}
	defer release()

	err = c.execute(ctx, req, deliver)

	if flushErr := c.worker.Flush(); flushErr != nil {
		c.logger.Warn("failed to persist metadata", zap.Error(flushErr))
	}

	switch {
	case err == nil:
		c.setState(StateCompleted)
		c.notifier.Complete(c.worker.Snapshot())
		c.logger.Debug("request completed", zap.Stringer("request", req))
		return nil

	case ctx.Err() != nil || domain.IsCancelled(err):
		c.setState(StateCancelled)
		c.logger.Debug("request cancelled", zap.Stringer("request", req))
		return fmt.Errorf("request %s: %w", req, domain.ErrCancelled)

	default:
		c.setState(StateFailed)
		if domain.IsPlanningError(err) {
			c.logger.Error("invalid download plan", zap.Stringer("request", req), zap.Error(err))
		} else {
			c.logger.Warn("request failed",
				zap.Stringer("request", req),
				zap.String("kind", domain.ErrorKind(err)),
				zap.Error(err))
		}
		c.notifier.Fail(c.worker.Snapshot(), err)
		return err
	}
}

func (c *Coordinator) execute(ctx context.Context, req domain.ReadRequest, deliver DeliverFunc) error {
	c.setState(StatePlanning)

	requested, ok := req.Resolve(c.worker.ContentLength())
	if !ok {
		// Length unknown: a short probe reveals it before planning
		if err := c.probe(ctx, req.Offset); err != nil {
			return err
		}
		requested, ok = req.Resolve(c.worker.ContentLength())
		if !ok {
			// The server does not reveal the length, stream until it closes
			c.setState(StateExecuting)
			return c.fetchRemote(ctx, domain.ByteRange{Offset: req.Offset}, true, deliver)
		}
	}

	index := c.worker.Segments()
	plan := c.planner.Plan(requested, &index)
	if err := plan.Validate(requested); err != nil {
		return err
	}

	c.logger.Debug("plan computed",
		zap.Stringer("range", requested),
		zap.Int("actions", len(plan)),
		zap.Uint64("remote_bytes", plan.RemoteBytes()))

	for _, action := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.setState(StateExecuting)

		// An earlier action may have revealed a shorter length
		rng := action.Range
		if total := c.worker.ContentLength(); total >= 0 {
			rng = domain.RangeFromBounds(rng.Offset, min(rng.End(), uint64(total)))
			if rng.IsEmpty() {
				break
			}
		}

		var err error
		switch action.Kind {
		case domain.SourceLocal:
			err = c.readLocal(rng, deliver)
		case domain.SourceRemote:
			err = c.fetchRemote(ctx, rng, false, deliver)
		}
		if err != nil {
			return err
		}
		metrics.ActionsTotal.WithLabelValues(action.Kind.String()).Inc()
	}
	return nil
}

// probe fetches the first bytes at offset to learn the content length.
// The bytes are cached but not delivered; the following plan serves them locally.
// An offset past the end is refused by the server; if the refusal does not
// carry the length, the probe is retried from the start of the resource.
func (c *Coordinator) probe(ctx context.Context, offset uint64) error {
	c.logger.Debug("probing content length", zap.Uint64("offset", offset))
	err := c.fetchRemote(ctx, domain.NewByteRange(offset, probeLength), false, nil)
	if err != nil && offset > 0 && errors.Is(err, domain.ErrInvalidRange) && c.worker.ContentLength() < 0 {
		c.logger.Debug("probe refused, retrying from offset 0", zap.Uint64("offset", offset))
		return c.fetchRemote(ctx, domain.NewByteRange(0, probeLength), false, nil)
	}
	return err
}

func (c *Coordinator) readLocal(r domain.ByteRange, deliver DeliverFunc) error {
	data, err := c.worker.Read(r)
	if err != nil {
		return err
	}
	if uint64(len(data)) < r.Length {
		// The data file lost bytes the index claims; forget them
		if rerr := c.worker.Revalidate(); rerr != nil {
			c.logger.Warn("failed to revalidate segments", zap.Error(rerr))
		}
		return domain.NewStoreError("read", r, domain.ErrShortRead)
	}

	if deliver != nil {
		if err := deliver(data, domain.SourceLocal); err != nil {
			return err
		}
	}
	metrics.BytesDeliveredTotal.WithLabelValues("local").Add(float64(len(data)))
	return nil
}

// fetchRemote fetches r from the network, caching and delivering every chunk.
// With openEnded set, r.Length is ignored and the body is read until it ends.
func (c *Coordinator) fetchRemote(ctx context.Context, r domain.ByteRange, openEnded bool, deliver DeliverFunc) error {
	url := c.worker.URL()
	start := c.clock.Now()
	defer func() {
		metrics.RemoteFetchDuration.Observe(c.clock.Now().Sub(start).Seconds())
	}()

	fetchRange := r
	if openEnded {
		fetchRange = domain.ByteRange{Offset: r.Offset}
	}

	resp, err := c.transport.Fetch(ctx, url, fetchRange)
	if err != nil {
		// A refused range still reveals the length; nothing lies past it
		if total, ok := domain.UnsatisfiableTotal(err); ok && total >= 0 {
			if lerr := c.recordLength(total); lerr != nil {
				return lerr
			}
			if r.Offset >= uint64(total) {
				return nil
			}
		}
		if !domain.IsNetworkError(err) {
			err = domain.NewNetworkError(url, r, err)
		}
		return err
	}
	defer resp.Body.Close()

	if err := c.applyHeaders(resp); err != nil {
		return err
	}

	c.worker.StartWriting()
	defer c.worker.FinishWriting()

	buf := make([]byte, c.config.ReadBufferSize)
	cursor := resp.Offset
	want := r.End()
	if total := c.worker.ContentLength(); !openEnded && total >= 0 && want > uint64(total) {
		want = uint64(total)
	}

	for openEnded || cursor < want {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			chunk := domain.NewByteRange(cursor, uint64(n))
			cursor += uint64(n)

			window := domain.RangeFromBounds(r.Offset, want)
			if openEnded {
				window = domain.RangeFromBounds(r.Offset, chunk.End())
			}
			if part, ok := chunk.Intersect(window); ok {
				data := buf[part.Offset-chunk.Offset : part.End()-chunk.Offset]
				if err := c.storeChunk(ctx, part, data, deliver); err != nil {
					return err
				}
			}
		}

		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return domain.NewNetworkError(url, r, rerr)
		}
	}

	if openEnded {
		return c.finishOpenEnded(cursor)
	}
	if cursor < want {
		return domain.NewNetworkError(url, r, io.ErrUnexpectedEOF)
	}
	return nil
}

// storeChunk writes one chunk, marks it cached and hands it to the consumer
func (c *Coordinator) storeChunk(ctx context.Context, part domain.ByteRange, data []byte, deliver DeliverFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.worker.Write(part, data); err != nil {
		return err
	}
	if err := c.worker.AddCache(part); err != nil {
		c.logger.Warn("failed to persist metadata", zap.Error(err))
	}
	if deliver != nil {
		if err := deliver(data, domain.SourceRemote); err != nil {
			return err
		}
		metrics.BytesDeliveredTotal.WithLabelValues("remote").Add(float64(len(data)))
	}
	c.notifier.Progress(c.worker.Snapshot)
	return nil
}

// applyHeaders checks the response content type and records content info the
// first time it is seen, or when the server reports a different length
func (c *Coordinator) applyHeaders(resp *port.Response) error {
	if !domain.IsSupportedMediaType(resp.ContentType) {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedContentType, resp.ContentType)
	}

	known := c.worker.ContentLength()
	if c.worker.HasContentInfo() && (resp.ContentLength < 0 || resp.ContentLength == known) {
		// A length learned from a refused range carries no content type
		if snap := c.worker.Snapshot(); snap.ContentType == "" && resp.ContentType != "" {
			c.worker.SetContentInfo(known, resp.ContentType, resp.ByteRangeSupported)
		}
		return nil
	}

	if c.worker.HasContentInfo() {
		c.logger.Info("content length changed, dropping cached bytes beyond new end",
			zap.Int64("old_length", known),
			zap.Int64("new_length", resp.ContentLength))
	}
	c.worker.SetContentInfo(resp.ContentLength, resp.ContentType, resp.ByteRangeSupported)
	return c.worker.SetTotalLength(resp.ContentLength)
}

// recordLength records a length reported without a response body
func (c *Coordinator) recordLength(total int64) error {
	if c.worker.HasContentInfo() && c.worker.ContentLength() == total {
		return nil
	}
	snap := c.worker.Snapshot()
	c.worker.SetContentInfo(total, snap.ContentType, true)
	return c.worker.SetTotalLength(total)
}

// finishOpenEnded records the length of a resource streamed to its end
func (c *Coordinator) finishOpenEnded(end uint64) error {
	if c.worker.HasContentInfo() {
		return nil
	}
	snap := c.worker.Snapshot()
	c.worker.SetContentInfo(int64(end), snap.ContentType, snap.ByteRangeSupported)
	return c.worker.SetTotalLength(int64(end))
}
