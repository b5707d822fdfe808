package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/angel-control/angelmon/internal/jobs"
	"github.com/angel-control/angelmon/internal/liveness"
	"github.com/angel-control/angelmon/internal/logtail"
	"github.com/angel-control/angelmon/internal/metrics"
)

// sseClientBuffer is the per-client queue length. A full queue drops events.
const sseClientBuffer = 100

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("telemetry: response writer does not support streaming")

type sseFrame struct {
	id   int64
	kind string
	data []byte
}

type sseClient struct {
	id      string
	writer  http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	cancel  context.CancelFunc
	events  chan sseFrame
}

// sseClients tracks connected SSE clients and the shared heartbeat.
type sseClients struct {
	mu            sync.RWMutex
	clients       map[string]*sseClient
	nextID        atomic.Int64
	stopHeartbeat chan struct{}
	wg            sync.WaitGroup
}

func (s *sseClients) init() {
	s.clients = make(map[string]*sseClient)
}

// readySnapshot is sent to every client on connect.
type readySnapshot struct {
	ClientID string            `json:"clientId"`
	Status   liveness.State    `json:"status"`
	Stats    *metrics.Snapshot `json:"stats"`
	Jobs     []jobs.Job        `json:"jobs"`
	Streams  []string          `json:"streams"`
}

// ServeSSE streams events to one HTTP client until the request ends or the
// hub stops. The client first receives a ready event with the current
// snapshot, then every buffered log entry, then live events.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithCancel(r.Context())
	client := &sseClient{
		id:      uuid.NewString(),
		writer:  w,
		flusher: flusher,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan sseFrame, sseClientBuffer),
	}

	// Register before the snapshot so nothing published in between is lost.
	h.registerClient(client)
	defer h.unregisterClient(client)

	if err := h.sendReady(client); err != nil {
		return fmt.Errorf("failed to send ready event: %w", err)
	}

	var replayErr error
	h.engine.Replay(func(entry logtail.Entry) {
		if replayErr != nil {
			return
		}
		frame, err := h.sse.frame(EntryMessage(entry))
		if err != nil {
			replayErr = err
			return
		}
		replayErr = writeFrame(client, frame)
	})
	if replayErr != nil {
		return fmt.Errorf("failed to replay logs: %w", replayErr)
	}

	for {
		select {
		case <-client.ctx.Done():
			return nil
		case frame := <-client.events:
			if err := writeFrame(client, frame); err != nil {
				return nil
			}
		}
	}
}

// SSEClients returns the number of connected SSE clients.
func (h *Hub) SSEClients() int {
	h.sse.mu.RLock()
	defer h.sse.mu.RUnlock()
	return len(h.sse.clients)
}

func (h *Hub) sendReady(client *sseClient) error {
	snapshot := readySnapshot{
		ClientID: client.id,
		Status:   h.Status(),
		Stats:    h.LastStats(),
		Jobs:     h.Jobs(),
		Streams:  h.Streams(),
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return writeFrame(client, sseFrame{id: h.sse.nextID.Add(1), kind: "ready", data: data})
}

func (h *Hub) registerClient(client *sseClient) {
	h.sse.mu.Lock()
	defer h.sse.mu.Unlock()
	h.sse.clients[client.id] = client
	h.metrics.sseClients.Set(float64(len(h.sse.clients)))
	if h.sse.stopHeartbeat == nil {
		h.startHeartbeatLocked()
	}
}

func (h *Hub) unregisterClient(client *sseClient) {
	client.cancel()

	h.sse.mu.Lock()
	defer h.sse.mu.Unlock()
	delete(h.sse.clients, client.id)
	h.metrics.sseClients.Set(float64(len(h.sse.clients)))
	if len(h.sse.clients) == 0 && h.sse.stopHeartbeat != nil {
		close(h.sse.stopHeartbeat)
		h.sse.stopHeartbeat = nil
	}
}

// startHeartbeatLocked starts the shared heartbeat. Caller holds h.sse.mu.
func (h *Hub) startHeartbeatLocked() {
	interval := h.cfg.Timing.HeartbeatInterval
	if jitter := h.cfg.Timing.HeartbeatJitter; jitter > 0 {
		interval += rand.N(jitter)
	}

	ticker := h.clock.NewTicker(interval)
	stop := make(chan struct{})
	h.sse.stopHeartbeat = stop

	h.sse.wg.Add(1)
	go func() {
		defer h.sse.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				data, _ := json.Marshal(map[string]string{
					"ts": h.clock.Now().UTC().Format(time.RFC3339),
				})
				h.sse.send(sseFrame{id: h.sse.nextID.Add(1), kind: "heartbeat", data: data}, h.metrics)
			case <-stop:
				return
			}
		}
	}()
}

// closeAll disconnects every client and stops the heartbeat.
func (s *sseClients) closeAll() {
	s.mu.Lock()
	for _, client := range s.clients {
		client.cancel()
	}
	if s.stopHeartbeat != nil {
		close(s.stopHeartbeat)
		s.stopHeartbeat = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *sseClients) frame(event Event) (sseFrame, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return sseFrame{}, err
	}
	return sseFrame{id: s.nextID.Add(1), kind: string(event.Kind()), data: data}, nil
}

func (s *sseClients) broadcast(event Event, m *collector) {
	s.mu.RLock()
	empty := len(s.clients) == 0
	s.mu.RUnlock()
	if empty {
		return
	}

	frame, err := s.frame(event)
	if err != nil {
		return
	}
	s.send(frame, m)
}

// send queues frame for every client without blocking; slow clients lose it.
func (s *sseClients) send(frame sseFrame, m *collector) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		select {
		case <-client.ctx.Done():
		case client.events <- frame:
		default:
			m.sseDropped.Inc()
		}
	}
}

func writeFrame(client *sseClient, frame sseFrame) error {
	if _, err := fmt.Fprintf(client.writer, "id: %d\nevent: %s\ndata: %s\n\n", frame.id, frame.kind, frame.data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	client.flusher.Flush()
	return nil
}
