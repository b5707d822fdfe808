package liveness

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/angel-control/angelmon/internal/clock"
)

// Config is the runtime config the poller needs.
type Config struct {
	PrimarySignature string
	WorkerSignature  string
	Interval         time.Duration
	Timeout          time.Duration
}

// Poller periodically queries the process table and reports status changes.
// A failed query counts as "neither process found".
type Poller struct {
	cfg      Config
	query    Query
	clock    clock.Clock
	logger   *slog.Logger
	onStatus func(State)

	// emitMu serialises state transitions with their callbacks so status
	// events leave the poller in the order they were decided.
	emitMu sync.Mutex

	mu          sync.RWMutex
	state       State
	lastEmitted Status

	force chan struct{}
}

// NewPoller creates a poller. onStatus is called for every published status,
// on the goroutine that decided it.
func NewPoller(cfg Config, query Query, clk clock.Clock, logger *slog.Logger, onStatus func(State)) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("poller: timeout must be > 0")
	}
	if query == nil {
		return nil, errors.New("poller: query required")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:      cfg,
		query:    query,
		clock:    clk,
		logger:   logger,
		onStatus: onStatus,
		force:    make(chan struct{}, 1),
	}, nil
}

// Run checks immediately, then on every interval and on every ForceCheck,
// until ctx is done. One goroutine per poller.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.CheckOnce(ctx, false)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CheckOnce(ctx, false)
		case <-p.force:
			p.CheckOnce(ctx, true)
		}
	}
}

// ForceCheck requests an immediate forced re-check from Run. Requests made
// while one is pending are coalesced.
func (p *Poller) ForceCheck() {
	select {
	case p.force <- struct{}{}:
	default:
	}
}

// CheckOnce performs exactly one query cycle. Status is recomputed when a
// flag changed or force is set, and published when it changed or force is set.
func (p *Poller) CheckOnce(ctx context.Context, force bool) State {
	primary, worker := p.probe(ctx)

	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	changed := primary != p.state.PrimaryAlive || worker != p.state.WorkerAlive
	p.state.PrimaryAlive = primary
	p.state.WorkerAlive = worker
	if !changed && !force {
		current := p.state
		p.mu.Unlock()
		return current
	}

	p.state.Status = Derive(primary, worker)
	publish := force || p.state.Status != p.lastEmitted
	if publish {
		p.lastEmitted = p.state.Status
	}
	current := p.state
	p.mu.Unlock()

	if publish {
		p.logger.Info("liveness status", "status", current.Status.String(),
			"primary", current.PrimaryAlive, "worker", current.WorkerAlive, "forced", force)
		if p.onStatus != nil {
			p.onStatus(current)
		}
	}
	return current
}

// Emit publishes the status derived from the current flags, changed or not.
func (p *Poller) Emit() State {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	p.state.Status = Derive(p.state.PrimaryAlive, p.state.WorkerAlive)
	p.lastEmitted = p.state.Status
	current := p.state
	p.mu.Unlock()

	if p.onStatus != nil {
		p.onStatus(current)
	}
	return current
}

// State returns the last recorded liveness state.
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Reset returns the poller to the offline state without publishing.
func (p *Poller) Reset() {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.mu.Lock()
	p.state = State{}
	p.lastEmitted = Offline
	p.mu.Unlock()

	select {
	case <-p.force:
	default:
	}
}

func (p *Poller) probe(ctx context.Context) (primary, worker bool) {
	queryCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	output, err := p.query.List(queryCtx)
	if err != nil {
		p.logger.Debug("process query failed", "error", err)
		return false, false
	}
	return Match(output, p.cfg.PrimarySignature, p.cfg.WorkerSignature)
}
