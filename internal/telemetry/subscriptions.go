package telemetry

import "sync"

// SubscriptionID identifies a registered handler. IDs are never reused: the
// low 32 bits index the arena slot and the high 32 bits its generation.
type SubscriptionID uint64

// Handler receives events. Handlers run on the producing goroutine and must
// not block. They may read the hub (Status, Logs, Jobs, LastStats) but must
// not call StartMonitoring, Stop, ForceEmitStatus or ReplayLogs.
type Handler func(Event)

type slot struct {
	generation uint32
	handler    Handler
	kinds      map[Kind]bool // nil means every kind
}

type subscriptions struct {
	mu    sync.RWMutex
	slots []slot
	free  []uint32
	live  int
}

func (s *subscriptions) add(handler Handler, kinds []Kind) SubscriptionID {
	var filter map[Kind]bool
	if len(kinds) > 0 {
		filter = make(map[Kind]bool, len(kinds))
		for _, kind := range kinds {
			filter[kind] = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var index uint32
	if n := len(s.free); n > 0 {
		index = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		index = uint32(len(s.slots))
		s.slots = append(s.slots, slot{})
	}
	entry := &s.slots[index]
	entry.generation++
	entry.handler = handler
	entry.kinds = filter
	s.live++
	return SubscriptionID(uint64(entry.generation)<<32 | uint64(index))
}

func (s *subscriptions) remove(id SubscriptionID) bool {
	index := uint32(id)
	generation := uint32(id >> 32)

	s.mu.Lock()
	defer s.mu.Unlock()
	if int(index) >= len(s.slots) {
		return false
	}
	entry := &s.slots[index]
	if entry.handler == nil || entry.generation != generation {
		return false
	}
	entry.handler = nil
	entry.kinds = nil
	s.free = append(s.free, index)
	s.live--
	return true
}

// matching returns the handlers subscribed to kind, in registration slot order.
func (s *subscriptions) matching(kind Kind) []Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	handlers := make([]Handler, 0, s.live)
	for _, entry := range s.slots {
		if entry.handler == nil {
			continue
		}
		if entry.kinds != nil && !entry.kinds[kind] {
			continue
		}
		handlers = append(handlers, entry.handler)
	}
	return handlers
}

func (s *subscriptions) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}
