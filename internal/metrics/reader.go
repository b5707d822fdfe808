package metrics

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"time"

	"github.com/angel-control/angelmon/internal/clock"
)

// Snapshot is one decoded metrics record.
type Snapshot struct {
	CapturedAt   time.Time `json:"capturedAt"`
	SystemCPU    float64   `json:"systemCpu"`
	SystemRAM    float64   `json:"systemRam"`
	DiskUsage    float64   `json:"diskUsage"`
	PrimaryCPU   float64   `json:"primaryCpu"`
	PrimaryRAMMB float64   `json:"primaryRamMb"`
	WorkerCPU    float64   `json:"workerCpu"`
	WorkerRAMMB  float64   `json:"workerRamMb"`
	HelperCPU    float64   `json:"helperCpu"`
	HelperRAMMB  float64   `json:"helperRamMb"`
	ReservedGPU  float64   `json:"-"`
	ReservedVRAM float64   `json:"-"`
	Stale        bool      `json:"isStale"`
	AgeMillis    int64     `json:"ageMs"`
}

// Reader reads the metrics file on demand. It holds no file handle between
// reads, so the writer may replace the file at any time.
type Reader struct {
	path       string
	clock      clock.Clock
	staleAfter time.Duration
}

// NewReader creates a reader for path. A snapshot is stale when its embedded
// timestamp is more than staleAfter older than the clock.
func NewReader(path string, staleAfter time.Duration, clk clock.Clock) *Reader {
	if clk == nil {
		clk = clock.Real()
	}
	return &Reader{path: path, clock: clk, staleAfter: staleAfter}
}

// Path returns the metrics file path.
func (r *Reader) Path() string { return r.path }

// Read returns the current snapshot, or nil when the file is missing, shorter
// than one record or unreadable.
func (r *Reader) Read() *Snapshot {
	record, err := r.readRecord()
	if err != nil {
		return nil
	}
	return Decode(record, r.clock.Now(), r.staleAfter)
}

func (r *Reader) readRecord() ([]byte, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	record := make([]byte, RecordSize)
	if _, err := file.ReadAt(record, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return record, nil
}

// Decode parses a record. record must hold at least RecordSize bytes.
func Decode(record []byte, now time.Time, staleAfter time.Duration) *Snapshot {
	if len(record) < RecordSize {
		return nil
	}
	field := func(offset int) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(record[offset : offset+8]))
	}

	millis := int64(field(offsetTimestamp))
	ts := time.UnixMilli(millis)
	age := now.Sub(ts)

	return &Snapshot{
		CapturedAt:   ts,
		SystemCPU:    field(offsetSystemCPU),
		SystemRAM:    field(offsetSystemRAM),
		DiskUsage:    field(offsetDisk),
		PrimaryCPU:   field(offsetPrimaryCPU),
		PrimaryRAMMB: field(offsetPrimaryRAM),
		WorkerCPU:    field(offsetWorkerCPU),
		WorkerRAMMB:  field(offsetWorkerRAM),
		HelperCPU:    field(offsetHelperCPU),
		HelperRAMMB:  field(offsetHelperRAM),
		ReservedGPU:  field(offsetReservedGPU),
		ReservedVRAM: field(offsetReservedMem),
		Stale:        age > staleAfter,
		AgeMillis:    age.Milliseconds(),
	}
}

// Encode writes s into a RecordSize byte record. The sampler and tests use it.
func Encode(s Snapshot) []byte {
	record := make([]byte, RecordSize)
	put := func(offset int, v float64) {
		binary.LittleEndian.PutUint64(record[offset:offset+8], math.Float64bits(v))
	}
	put(offsetTimestamp, float64(s.CapturedAt.UnixMilli()))
	put(offsetSystemCPU, s.SystemCPU)
	put(offsetSystemRAM, s.SystemRAM)
	put(offsetDisk, s.DiskUsage)
	put(offsetPrimaryCPU, s.PrimaryCPU)
	put(offsetPrimaryRAM, s.PrimaryRAMMB)
	put(offsetWorkerCPU, s.WorkerCPU)
	put(offsetWorkerRAM, s.WorkerRAMMB)
	put(offsetHelperCPU, s.HelperCPU)
	put(offsetHelperRAM, s.HelperRAMMB)
	put(offsetReservedGPU, s.ReservedGPU)
	put(offsetReservedMem, s.ReservedVRAM)
	return record
}
