package liveness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angel-control/angelmon/internal/clock"
	"github.com/angel-control/angelmon/internal/logging"
)

// scriptedQuery returns one scripted result per call, repeating the last.
type scriptedQuery struct {
	mu      sync.Mutex
	results []queryResult
	calls   int
}

type queryResult struct {
	primary, worker bool
	err             error
}

func (q *scriptedQuery) List(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r := q.results[len(q.results)-1]
	if q.calls < len(q.results) {
		r = q.results[q.calls]
	}
	q.calls++
	if r.err != nil {
		return "", r.err
	}
	out := "init\n"
	if r.primary {
		out += "python angel-supervisor\n"
	}
	if r.worker {
		out += "python trinity-worker\n"
	}
	return out, nil
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.states))
	for i, s := range r.states {
		out[i] = s.Status
	}
	return out
}

func newTestPoller(t *testing.T, q Query, clk clock.Clock) (*Poller, *recorder) {
	t.Helper()
	rec := &recorder{}
	cfg := Config{
		PrimarySignature: "angel-supervisor",
		WorkerSignature:  "trinity-worker",
		Interval:         5 * time.Second,
		Timeout:          time.Second,
	}
	p, err := NewPoller(cfg, q, clk, logging.Discard(), rec.record)
	if err != nil {
		t.Fatalf("NewPoller() error = %v", err)
	}
	return p, rec
}

func TestNewPollerValidation(t *testing.T) {
	q := QueryFunc(func(context.Context) (string, error) { return "", nil })
	if _, err := NewPoller(Config{Timeout: time.Second}, q, nil, nil, nil); err == nil {
		t.Error("expected error for zero interval")
	}
	if _, err := NewPoller(Config{Interval: time.Second}, q, nil, nil, nil); err == nil {
		t.Error("expected error for zero timeout")
	}
	if _, err := NewPoller(Config{Interval: time.Second, Timeout: time.Second}, nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil query")
	}
}

func TestCheckOnceSequence(t *testing.T) {
	q := &scriptedQuery{results: []queryResult{
		{false, false, nil},
		{true, false, nil},
		{true, true, nil},
		{true, true, nil},
		{true, false, nil},
		{false, false, nil},
	}}
	p, rec := newTestPoller(t, q, clock.Fake(time.Unix(0, 0)))

	for range q.results {
		p.CheckOnce(context.Background(), false)
	}

	want := []Status{Standby, Active, Standby, Offline}
	got := rec.statuses()
	if len(got) != len(want) {
		t.Fatalf("emitted %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("emission %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestWorkerWithoutPrimaryDoesNotEmit(t *testing.T) {
	q := &scriptedQuery{results: []queryResult{{false, true, nil}}}
	p, rec := newTestPoller(t, q, clock.Fake(time.Unix(0, 0)))

	state := p.CheckOnce(context.Background(), false)
	if !state.WorkerAlive || state.PrimaryAlive {
		t.Errorf("state = %+v, want worker only", state)
	}
	if state.Status != Offline {
		t.Errorf("status = %s, want OFFLINE", state.Status)
	}
	if n := len(rec.statuses()); n != 0 {
		t.Errorf("emitted %d events, want 0", n)
	}
}

func TestQueryErrorCountsAsOffline(t *testing.T) {
	q := &scriptedQuery{results: []queryResult{
		{true, true, nil},
		{false, false, errors.New("ps: not found")},
	}}
	p, rec := newTestPoller(t, q, clock.Fake(time.Unix(0, 0)))

	p.CheckOnce(context.Background(), false)
	state := p.CheckOnce(context.Background(), false)

	if state.PrimaryAlive || state.WorkerAlive {
		t.Errorf("state after error = %+v, want both false", state)
	}
	got := rec.statuses()
	if len(got) != 2 || got[1] != Offline {
		t.Errorf("emitted %v, want [ACTIVE OFFLINE]", got)
	}
}

func TestForcedCheckAlwaysEmits(t *testing.T) {
	q := &scriptedQuery{results: []queryResult{{true, true, nil}}}
	p, rec := newTestPoller(t, q, clock.Fake(time.Unix(0, 0)))

	p.CheckOnce(context.Background(), false)
	p.CheckOnce(context.Background(), false)
	p.CheckOnce(context.Background(), true)

	got := rec.statuses()
	if len(got) != 2 || got[0] != Active || got[1] != Active {
		t.Errorf("emitted %v, want [ACTIVE ACTIVE]", got)
	}
}

func TestEmitPublishesOnce(t *testing.T) {
	q := &scriptedQuery{results: []queryResult{{true, false, nil}}}
	p, rec := newTestPoller(t, q, clock.Fake(time.Unix(0, 0)))

	p.CheckOnce(context.Background(), false)
	st := p.Emit()

	if st.Status != Standby {
		t.Errorf("Emit() status = %s, want STANDBY", st.Status)
	}
	if got := rec.statuses(); len(got) != 2 {
		t.Errorf("emitted %v, want two events", got)
	}
	if q.calls != 1 {
		t.Errorf("Emit() queried the process table; calls = %d", q.calls)
	}
}

func TestReset(t *testing.T) {
	q := &scriptedQuery{results: []queryResult{{true, true, nil}}}
	p, rec := newTestPoller(t, q, clock.Fake(time.Unix(0, 0)))

	p.CheckOnce(context.Background(), false)
	p.Reset()
	if st := p.State(); st.PrimaryAlive || st.WorkerAlive || st.Status != Offline {
		t.Errorf("State() after Reset = %+v", st)
	}

	p.CheckOnce(context.Background(), false)
	if got := rec.statuses(); len(got) != 2 {
		t.Errorf("emitted %v, want ACTIVE twice", got)
	}
}

func TestRunChecksOnTickAndForce(t *testing.T) {
	q := &scriptedQuery{results: []queryResult{{false, false, nil}, {true, false, nil}, {true, false, nil}}}
	clk := clock.Fake(time.Unix(0, 0))

	events := make(chan State, 10)
	cfg := Config{
		PrimarySignature: "angel-supervisor",
		WorkerSignature:  "trinity-worker",
		Interval:         5 * time.Second,
		Timeout:          time.Second,
	}
	p, err := NewPoller(cfg, q, clk, logging.Discard(), func(s State) { events <- s })
	if err != nil {
		t.Fatalf("NewPoller() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	// The initial check finds nothing and emits nothing.
	deadline := time.Now().Add(2 * time.Second)
	for clk.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	clk.Advance(5 * time.Second)

	select {
	case s := <-events:
		if s.Status != Standby {
			t.Errorf("tick status = %s, want STANDBY", s.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status after tick")
	}

	p.ForceCheck()
	select {
	case s := <-events:
		if s.Status != Standby {
			t.Errorf("forced status = %s, want STANDBY", s.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status after ForceCheck")
	}

	cancel()
	<-done
}
