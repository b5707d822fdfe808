package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/angel-control/angelmon/internal/clock"
	"github.com/angel-control/angelmon/internal/config"
	"github.com/angel-control/angelmon/internal/jobs"
	"github.com/angel-control/angelmon/internal/liveness"
	"github.com/angel-control/angelmon/internal/logtail"
	"github.com/angel-control/angelmon/internal/metrics"
	"github.com/angel-control/angelmon/internal/watch"
)

// ErrAlreadyRunning is returned by StartMonitoring on a running hub.
var ErrAlreadyRunning = errors.New("telemetry: monitoring already running")

// Hub is the monitor façade. It is constructed once in main and shared with
// the API server and the command service.
//
// LOCK ORDERING:
// 1. logtail per-stream emit mutex, statsMu, jobsMu (held while publishing)
// 2. h.mu (hub lifecycle and cached state)
// 3. h.subs.mu and h.sse.mu (never held while calling out)
type Hub struct {
	cfg    *config.Config
	clock  clock.Clock
	logger *slog.Logger

	poller  *liveness.Poller
	reader  *metrics.Reader
	engine  *logtail.Engine
	watcher *watch.Watcher

	subs    subscriptions
	metrics *collector
	sse     sseClients

	// statsMu and jobsMu order each read with its publication.
	statsMu sync.Mutex
	jobsMu  sync.Mutex

	// historyLoaded runs between history load and watcher start. Tests only.
	historyLoaded func()

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastStats *metrics.Snapshot
	jobs      []jobs.Job
}

// Option customises a Hub.
type Option func(*hubOptions)

type hubOptions struct {
	clock  clock.Clock
	query  liveness.Query
	logger *slog.Logger
}

// WithClock sets the clock for polling, staleness, debounce and heartbeats.
func WithClock(c clock.Clock) Option {
	return func(o *hubOptions) { o.clock = c }
}

// WithQuery replaces the OS process query.
func WithQuery(q liveness.Query) Option {
	return func(o *hubOptions) { o.query = q }
}

// WithLogger sets the hub's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *hubOptions) { o.logger = l }
}

// NewHub wires the monitor components from cfg.
func NewHub(cfg *config.Config, opts ...Option) (*Hub, error) {
	o := hubOptions{clock: clock.Real(), query: liveness.CommandQuery{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	h := &Hub{
		cfg:     cfg,
		clock:   o.clock,
		logger:  o.logger,
		metrics: newCollector(),
		jobs:    []jobs.Job{},
	}

	poller, err := liveness.NewPoller(liveness.Config{
		PrimarySignature: cfg.Process.PrimarySignature,
		WorkerSignature:  cfg.Process.WorkerSignature,
		Interval:         cfg.Timing.PollInterval,
		Timeout:          cfg.Timing.QueryTimeout,
	}, o.query, o.clock, o.logger.With("component", "liveness"), h.onStatus)
	if err != nil {
		return nil, fmt.Errorf("create poller: %w", err)
	}
	h.poller = poller

	h.reader = metrics.NewReader(cfg.MetricsPath(), cfg.Timing.StaleAfter, o.clock)

	var sources []logtail.Source
	for _, s := range cfg.StreamPaths() {
		sources = append(sources, logtail.Source{Name: s.Name, Path: s.Path})
	}
	engine, err := logtail.NewEngine(logtail.Options{
		FloodThreshold: cfg.Tail.FloodThreshold,
		HistoryLines:   cfg.Tail.HistoryLines,
		BufferCapacity: cfg.Tail.BufferCapacity,
	}, sources, engineSink{h}, o.logger.With("component", "logtail"))
	if err != nil {
		return nil, fmt.Errorf("create tail engine: %w", err)
	}
	h.engine = engine

	h.watcher = watch.New(cfg.Tail.Debounce, cfg.Timing.WatchRetryInterval, o.clock,
		o.logger.With("component", "watch"))
	for _, src := range sources {
		name := src.Name
		h.watcher.Register(src.Path, func() {
			if err := h.engine.Sync(name); err != nil {
				h.logger.Debug("sync failed", "stream", name, "error", err)
			}
		})
	}
	h.watcher.Register(h.reader.Path(), h.emitStats)
	h.watcher.Register(cfg.JobsPath(), h.emitJobs)

	h.sse.init()
	return h, nil
}

// StartMonitoring loads log history, starts the watcher, the liveness poller
// and the metrics ticker. It returns ErrAlreadyRunning if already started.
func (h *Hub) StartMonitoring(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrAlreadyRunning
	}
	h.running = true
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.mu.Unlock()

	h.engine.LoadHistory()
	if h.historyLoaded != nil {
		h.historyLoaded()
	}

	if err := h.watcher.Start(ctx); err != nil {
		cancel()
		h.mu.Lock()
		h.running = false
		h.cancel = nil
		h.mu.Unlock()
		return fmt.Errorf("start watcher: %w", err)
	}
	// Catch up on anything written before the watches existed.
	for _, s := range h.cfg.StreamPaths() {
		h.watcher.Notify(s.Path)
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		h.poller.Run(ctx)
	}()
	go func() {
		defer h.wg.Done()
		h.metricsLoop(ctx)
	}()

	h.logger.Info("monitoring started", "streams", h.engine.Streams())
	return nil
}

// Stop halts every monitoring goroutine, disconnects SSE clients and resets
// state to empty and offline. Stop on a stopped hub is a no-op.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	cancel := h.cancel
	h.running = false
	h.cancel = nil
	h.mu.Unlock()

	cancel()
	h.watcher.Stop()
	h.wg.Wait()
	h.sse.closeAll()

	h.engine.Reset()
	h.poller.Reset()
	h.mu.Lock()
	h.lastStats = nil
	h.jobs = []jobs.Job{}
	h.mu.Unlock()
	h.metrics.observeState(liveness.State{})

	h.logger.Info("monitoring stopped")
}

// Running reports whether monitoring is active.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// ForceEmitStatus publishes exactly one status event derived from the current
// liveness flags, followed by a jobs update. It does not query processes.
func (h *Hub) ForceEmitStatus() {
	h.poller.Emit()
}

// ForceCheck asks the poller for an immediate forced re-check.
func (h *Hub) ForceCheck() {
	h.poller.ForceCheck()
}

// ReplayLogs re-publishes every buffered entry as a message event, streams in
// configured order.
func (h *Hub) ReplayLogs() {
	h.engine.Replay(func(entry logtail.Entry) {
		h.publish(EntryMessage(entry))
	})
}

// Subscribe registers handler for the given kinds, or every kind when none
// are given.
func (h *Hub) Subscribe(handler Handler, kinds ...Kind) SubscriptionID {
	id := h.subs.add(handler, kinds)
	h.metrics.subscribers.Set(float64(h.subs.count()))
	return id
}

// Unsubscribe removes a subscription. It reports whether id was registered.
func (h *Hub) Unsubscribe(id SubscriptionID) bool {
	ok := h.subs.remove(id)
	h.metrics.subscribers.Set(float64(h.subs.count()))
	return ok
}

// PublishPassthrough relays an opaque payload as a message event.
func (h *Hub) PublishPassthrough(source string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode passthrough payload: %w", err)
	}
	h.publish(MessageEvent{Passthrough: &Passthrough{Source: source, Payload: raw}})
	return nil
}

// Status returns the current liveness state.
func (h *Hub) Status() liveness.State {
	return h.poller.State()
}

// LastStats returns the last metrics snapshot read, or nil.
func (h *Hub) LastStats() *metrics.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastStats == nil {
		return nil
	}
	snap := *h.lastStats
	return &snap
}

// Jobs returns the last job list published.
func (h *Hub) Jobs() []jobs.Job {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]jobs.Job(nil), h.jobs...)
}

// Logs returns the buffered entries of one stream.
func (h *Hub) Logs(stream string) ([]logtail.Entry, error) {
	return h.engine.Entries(stream)
}

// Streams returns the configured stream names in order.
func (h *Hub) Streams() []string {
	return h.engine.Streams()
}

// publish delivers event to every matching subscriber and SSE client.
func (h *Hub) publish(event Event) {
	h.metrics.events.WithLabelValues(string(event.Kind())).Inc()
	for _, handler := range h.subs.matching(event.Kind()) {
		handler(event)
	}
	h.sse.broadcast(event, h.metrics)
}

func (h *Hub) onStatus(state liveness.State) {
	h.metrics.observeState(state)
	h.publish(StatusEvent{State: state})
	h.emitJobs()
}

func (h *Hub) emitStats() {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()

	snap := h.reader.Read()

	h.mu.Lock()
	h.lastStats = snap
	h.mu.Unlock()

	if snap == nil {
		h.metrics.statsStale.Set(1)
		return
	}
	h.metrics.statsStale.Set(boolGauge(snap.Stale))
	h.publish(StatsEvent{Snapshot: *snap})
}

func (h *Hub) emitJobs() {
	h.jobsMu.Lock()
	defer h.jobsMu.Unlock()

	list, err := jobs.Read(h.cfg.JobsPath(), h.poller.State().WorkerAlive)
	if err != nil {
		h.logger.Debug("job config unreadable", "error", err)
		return
	}

	h.mu.Lock()
	h.jobs = list
	h.mu.Unlock()
	h.publish(JobsEvent{Jobs: list})
}

func (h *Hub) metricsLoop(ctx context.Context) {
	ticker := h.clock.NewTicker(h.cfg.Timing.MetricsInterval)
	defer ticker.Stop()

	h.emitStats()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.emitStats()
		}
	}
}

// engineSink adapts the hub to the tail engine's output.
type engineSink struct{ h *Hub }

func (s engineSink) Entry(entry logtail.Entry) {
	s.h.metrics.logEntries.WithLabelValues(entry.Stream).Inc()
	s.h.publish(EntryMessage(entry))
}

func (s engineSink) Cleared(stream string) {
	s.h.metrics.truncations.WithLabelValues(stream).Inc()
	s.h.publish(ClearMessage(stream))
}
