package logtail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Source names one tailed file.
type Source struct {
	Name string
	Path string
}

// Options bounds the engine's memory and startup work.
type Options struct {
	// FloodThreshold is the backlog size above which a stream seen for the
	// first time starts at end of file.
	FloodThreshold int64
	// HistoryLines is how many trailing entries LoadHistory keeps per stream.
	HistoryLines int
	// BufferCapacity is the per-stream entry buffer size.
	BufferCapacity int
}

// Sink receives engine output. Calls for one stream are serialised and arrive
// in file order; calls for different streams may interleave. The stream's
// state is already updated and unlocked when a call is made, so a sink may
// read Entries or Replay. It must not call Sync or LoadHistory.
type Sink interface {
	Entry(entry Entry)
	Cleared(stream string)
}

// ErrUnknownStream is returned for a stream name that is not configured.
var ErrUnknownStream = errors.New("logtail: unknown stream")

type stream struct {
	// emitMu serialises a whole sync, including sink calls, so output stays
	// in file order. mu guards the fields below and is never held across a
	// sink call.
	emitMu sync.Mutex
	mu     sync.Mutex

	name    string
	path    string
	offset  int64
	buffer  *Buffer
	partial []byte
}

// Engine tails a fixed set of streams.
type Engine struct {
	opts    Options
	streams []*stream
	byName  map[string]*stream
	sink    Sink
	logger  *slog.Logger
}

// NewEngine creates an engine for sources, in the given order. sink may be nil.
func NewEngine(opts Options, sources []Source, sink Sink, logger *slog.Logger) (*Engine, error) {
	if opts.BufferCapacity < 1 {
		return nil, errors.New("logtail: buffer capacity must be > 0")
	}
	if opts.HistoryLines < 1 || opts.HistoryLines > opts.BufferCapacity {
		return nil, fmt.Errorf("logtail: history lines must be within [1, %d]", opts.BufferCapacity)
	}
	if opts.FloodThreshold < 0 {
		return nil, errors.New("logtail: flood threshold must be >= 0")
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		opts:   opts,
		byName: make(map[string]*stream, len(sources)),
		sink:   sink,
		logger: logger,
	}
	for _, src := range sources {
		if _, dup := e.byName[src.Name]; dup {
			return nil, fmt.Errorf("logtail: duplicate stream %q", src.Name)
		}
		s := &stream{name: src.Name, path: src.Path, buffer: NewBuffer(opts.BufferCapacity)}
		e.streams = append(e.streams, s)
		e.byName[src.Name] = s
	}
	return e, nil
}

// Streams returns the configured stream names in order.
func (e *Engine) Streams() []string {
	names := make([]string, len(e.streams))
	for i, s := range e.streams {
		names[i] = s.name
	}
	return names
}

// Path returns the file path of a stream.
func (e *Engine) Path(name string) (string, bool) {
	s, ok := e.byName[name]
	if !ok {
		return "", false
	}
	return s.path, true
}

// LoadHistory reads every stream once. A stream read from offset zero keeps
// and emits only its last HistoryLines entries.
func (e *Engine) LoadHistory() {
	for _, s := range e.streams {
		e.sync(s, true)
	}
}

// Sync brings one stream up to date with its file.
func (e *Engine) Sync(name string) error {
	s, ok := e.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStream, name)
	}
	e.sync(s, false)
	return nil
}

// Replay calls fn for every buffered entry, streams in configured order and
// entries oldest first.
func (e *Engine) Replay(fn func(Entry)) {
	for _, s := range e.streams {
		s.mu.Lock()
		entries := s.buffer.Entries()
		s.mu.Unlock()
		for _, entry := range entries {
			fn(entry)
		}
	}
}

// Entries returns a copy of one stream's buffer.
func (e *Engine) Entries(name string) ([]Entry, error) {
	s, ok := e.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStream, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Entries(), nil
}

// Offset returns the byte offset read so far for a stream.
func (e *Engine) Offset(name string) int64 {
	s, ok := e.byName[name]
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Reset forgets all offsets and buffered entries without notifying the sink.
func (e *Engine) Reset() {
	for _, s := range e.streams {
		s.mu.Lock()
		s.offset = 0
		s.partial = nil
		s.buffer.Clear()
		s.mu.Unlock()
	}
}

func (e *Engine) sync(s *stream, history bool) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	cleared, entries := e.apply(s, history)
	if e.sink == nil {
		return
	}
	if cleared {
		e.sink.Cleared(s.name)
	}
	for _, entry := range entries {
		e.sink.Entry(entry)
	}
}

// apply reads the file's new bytes into the stream's buffer and returns what
// must be published. Caller holds s.emitMu.
func (e *Engine) apply(s *stream, history bool) (cleared bool, entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.logger.Debug("log stat failed", "stream", s.name, "error", err)
		}
		return false, nil
	}
	size := info.Size()

	if size < s.offset {
		e.logger.Info("log truncated", "stream", s.name, "offset", s.offset, "size", size)
		s.offset = 0
		s.partial = nil
		s.buffer.Clear()
		cleared = true
	}
	if size == s.offset {
		return cleared, nil
	}

	fresh := s.offset == 0
	if fresh && size > e.opts.FloodThreshold {
		e.logger.Info("log backlog skipped", "stream", s.name, "size", size)
		s.offset = size
		return cleared, nil
	}

	chunk, err := readChunk(s.path, s.offset, size-s.offset)
	if err != nil {
		e.logger.Debug("log read failed", "stream", s.name, "error", err)
		return cleared, nil
	}
	if len(chunk) == 0 {
		return cleared, nil
	}
	s.offset += int64(len(chunk))

	entries = e.parse(s, chunk)
	if history && fresh && len(entries) > e.opts.HistoryLines {
		entries = entries[len(entries)-e.opts.HistoryLines:]
	}
	for _, entry := range entries {
		s.buffer.Add(entry)
	}
	return cleared, entries
}

// parse splits chunk into lines. An unterminated tail that already decodes as
// a record is emitted; otherwise it is carried to the next read. Caller holds
// s.mu.
func (e *Engine) parse(s *stream, chunk []byte) []Entry {
	if len(s.partial) > 0 {
		chunk = append(s.partial, chunk...)
		s.partial = nil
	}

	var entries []Entry
	for {
		idx := bytes.IndexByte(chunk, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(chunk[:idx])
		chunk = chunk[idx+1:]
		if len(line) == 0 {
			continue
		}
		entry, err := ParseLine(s.name, line)
		if err != nil {
			e.logger.Debug("dropping log line", "stream", s.name, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	if len(bytes.TrimSpace(chunk)) == 0 {
		return entries
	}
	if entry, err := ParseLine(s.name, chunk); err == nil {
		return append(entries, entry)
	}
	if int64(len(chunk)) > e.opts.FloodThreshold && e.opts.FloodThreshold > 0 {
		e.logger.Debug("dropping oversized partial line", "stream", s.name, "bytes", len(chunk))
	} else {
		s.partial = append([]byte(nil), chunk...)
	}
	return entries
}

// readChunk performs one positioned read of up to n bytes at offset. A file
// that shrank mid-read yields the bytes that were available.
func readChunk(path string, offset, n int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, n)
	read, err := file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}
