package logtail

// Buffer is a fixed-capacity FIFO of entries. Adding to a full buffer evicts
// the oldest entry. Buffer is not safe for concurrent use; the owning stream's
// mutex guards it.
type Buffer struct {
	entries  []Entry
	head     int
	size     int
	capacity int
}

// NewBuffer creates a buffer holding at most capacity entries.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, evicting the oldest when full.
func (b *Buffer) Add(entry Entry) {
	tail := (b.head + b.size) % b.capacity
	b.entries[tail] = entry
	if b.size < b.capacity {
		b.size++
		return
	}
	b.head = (b.head + 1) % b.capacity
}

// Entries returns a copy of the buffered entries, oldest first.
func (b *Buffer) Entries() []Entry {
	out := make([]Entry, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.entries[(b.head+i)%b.capacity]
	}
	return out
}

// Clear drops every entry.
func (b *Buffer) Clear() {
	clear(b.entries)
	b.head = 0
	b.size = 0
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int { return b.size }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return b.capacity }
