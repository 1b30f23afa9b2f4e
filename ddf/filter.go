// Package ddf implements a decaying duplicate filter: a two-generation
// rotating Bloom filter giving duplicate detection a bounded, roughly
// [duration_ms, 2*duration_ms) membership window at O(1) insert-and-test
// cost and fixed memory.
//
// This generalizes a single-generation Bloom-backed replay cache (keyed by
// xxhash, built on tylertreat/BoomFilters) into two rotating generations so
// membership decays instead of growing without bound.
package ddf

import (
	"crypto/rand"
	"fmt"
	"sync"

	boom "github.com/tylertreat/BoomFilters"
	"github.com/OneOfOne/xxhash"
	"github.com/rs/zerolog"

	"github.com/shadowmesh/admitcore/clock"
)

// DefaultM and DefaultK target ~10^6 insertions per window at a false
// positive rate well under 1e-6, at ~1 MiB per filter generation.
const (
	DefaultM = 1 << 23
	DefaultK = 11
)

// RotationStats is reported to an optional RotateHook each time the
// generations rotate.
type RotationStats struct {
	DuplicatesInWindow uint64
	InsertedInWindow   uint64
}

// Filter is a decaying duplicate filter.
type Filter struct {
	mu sync.Mutex

	current  *boom.BloomFilter
	previous *boom.BloomFilter

	m uint
	k uint

	entryBytes int
	extenders  [][]byte

	durationMs int64
	clk        clock.Service
	timer      clock.Handle
	decaying   bool

	currentDuplicates uint64
	currentSize       uint64

	logger     zerolog.Logger
	rotateHook func(RotationStats)
}

// Option configures a Filter at construction.
type Option func(*Filter)

// WithMK overrides the default Bloom filter sizing.
func WithMK(m, k uint) Option {
	return func(f *Filter) { f.m, f.k = m, k }
}

// WithLogger binds a logger; component="ddf" is added automatically.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Filter) { f.logger = logger.With().Str("component", "ddf").Logger() }
}

// WithRotateHook registers a callback invoked synchronously after every
// rotation, with the stats of the window that just ended.
func WithRotateHook(hook func(RotationStats)) Option {
	return func(f *Filter) { f.rotateHook = hook }
}

// New builds a Filter with the given rotation period, entry width, and
// clock collaborator, and arms the first rotation timer.
func New(clk clock.Service, durationMs int64, entryBytes int, opts ...Option) (*Filter, error) {
	if entryBytes <= 0 {
		return nil, fmt.Errorf("ddf: entryBytes must be positive, got %d", entryBytes)
	}

	f := &Filter{
		m:          DefaultM,
		k:          DefaultK,
		entryBytes: entryBytes,
		durationMs: durationMs,
		clk:        clk,
		logger:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(f)
	}

	var err error
	if f.extenders, err = makeExtenders(entryBytes); err != nil {
		return nil, err
	}

	f.current = newBloom(f.m, f.k)
	f.previous = newBloom(f.m, f.k)
	f.decaying = true
	f.timer = f.clk.Schedule(f.durationMs, f.rotate)

	return f, nil
}

func newBloom(m, k uint) *boom.BloomFilter {
	bf := boom.NewBloomFilter(m, k)
	bf.SetHash(xxhash.New64())

	return bf
}

// makeExtenders draws ceil(32/entryBytes)-1 random entryBytes-wide strings
// from the system CSPRNG, fixed for the lifetime of the filter. Using
// crypto/rand (not math/rand) keeps the widening unpredictable to a peer
// trying to force entry collisions.
func makeExtenders(entryBytes int) ([][]byte, error) {
	if entryBytes >= 32 {
		return nil, nil
	}

	n := (32 + entryBytes - 1) / entryBytes - 1
	out := make([][]byte, n)

	for i := range out {
		buf := make([]byte, entryBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("ddf: cannot seed extender: %w", err)
		}

		out[i] = buf
	}

	return out, nil
}

// widen extends entry to 32 bytes by concatenating it with entry XOR each
// extender. Entries already >= 32 bytes pass through unchanged.
func (f *Filter) widen(entry []byte) []byte {
	if len(entry) >= 32 {
		return entry
	}

	out := make([]byte, 0, 32)
	out = append(out, entry...)

	for _, ext := range f.extenders {
		if len(out) >= 32 {
			break
		}

		xored := make([]byte, len(entry))
		for i := range entry {
			xored[i] = entry[i] ^ ext[i]
		}

		out = append(out, xored...)
	}

	if len(out) > 32 {
		out = out[:32]
	}

	return out
}

// EncodeLong folds a signed 64-bit entry into entryBytes bytes, little
// endian, by two's-complement truncation. This is a pure function of
// (entry, entryBytes) and never produces both 0 and -0, since two's
// complement has no negative zero.
func EncodeLong(entry int64, entryBytes int) []byte {
	buf := make([]byte, entryBytes)
	u := uint64(entry)

	for i := 0; i < entryBytes && i < 8; i++ {
		buf[i] = byte(u)
		u >>= 8
	}

	return buf
}

// Add inserts entry and reports whether it was already present (likely).
// Rejects entries whose length does not equal entryBytes.
func (f *Filter) Add(entry []byte) (bool, error) {
	if len(entry) != f.entryBytes {
		return false, fmt.Errorf("ddf: wrong entry length: want %d, got %d", f.entryBytes, len(entry))
	}

	wide := f.widen(entry)

	f.mu.Lock()
	defer f.mu.Unlock()

	dup := f.current.Test(wide) || f.previous.Test(wide)
	f.currentSize++

	if dup {
		f.currentDuplicates++
	} else {
		// Double insert: writing to both generations guarantees a lifetime
		// of [duration_ms, 2*duration_ms) instead of the [0, duration_ms) a
		// naive single-generation insert would give an entry inserted right
		// before rotation. Only done on first observation: re-touching an
		// already-known entry must not refresh its window, or membership
		// would never decay under repeated reads.
		f.current.Add(wide)
		f.previous.Add(wide)
	}

	return dup, nil
}

// AddLong is the convenience form of Add for fixed-width numeric entries.
func (f *Filter) AddLong(entry int64) bool {
	dup, err := f.Add(EncodeLong(entry, f.entryBytes))
	if err != nil {
		// entryBytes is fixed at construction and EncodeLong always
		// produces exactly entryBytes bytes; this cannot fail.
		panic(err)
	}

	return dup
}

// IsKnown tests membership without inserting.
func (f *Filter) IsKnown(entry int64) bool {
	wide := f.widen(EncodeLong(entry, f.entryBytes))

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.current.Test(wide) || f.previous.Test(wide)
}

// Clear empties both generations and resets the duplicate counter.
func (f *Filter) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.current.Reset()
	f.previous.Reset()
	f.currentDuplicates = 0
	f.currentSize = 0
}

// StopDecaying cancels the rotation timer. Concurrent Add/IsKnown calls
// remain valid; the filter simply stops rotating.
func (f *Filter) StopDecaying() {
	f.mu.Lock()
	f.decaying = false
	timer := f.timer
	f.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}
}

// rotate swaps the two generations, discarding the older one, clears the
// (reused) new current, resets the duplicate counter, and re-arms the
// timer. Runs on the clock's internal worker; must not block.
func (f *Filter) rotate() {
	f.mu.Lock()

	if !f.decaying {
		f.mu.Unlock()
		return
	}

	stats := RotationStats{
		DuplicatesInWindow: f.currentDuplicates,
		InsertedInWindow:   f.currentSize,
	}

	oldPrevious := f.previous
	f.previous = f.current
	f.current = oldPrevious
	f.current.Reset()
	f.currentDuplicates = 0
	f.currentSize = 0
	f.timer = f.clk.Schedule(f.durationMs, f.rotate)
	hook := f.rotateHook

	f.mu.Unlock()

	f.logger.Debug().
		Uint64("duplicates", stats.DuplicatesInWindow).
		Uint64("inserted", stats.InsertedInWindow).
		Msg("ddf generation rotated")

	if hook != nil {
		hook(stats)
	}
}

// CurrentDuplicateCount returns the number of duplicates observed in the
// current window, reset every rotation.
func (f *Filter) CurrentDuplicateCount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.currentDuplicates
}

// Size returns the number of Add calls since the last rotation,
// duplicates included.
func (f *Filter) Size() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.currentSize
}

// FalsePositiveRate estimates the current generation's false-positive
// rate from its fill: (1 - e^(-kn/m))^k.
func (f *Filter) FalsePositiveRate() float64 {
	f.mu.Lock()
	n := f.currentSize
	m, k := f.m, f.k
	f.mu.Unlock()

	return estimateFPRate(m, k, n)
}
