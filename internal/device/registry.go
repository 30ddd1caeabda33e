package device

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/omnitensor/omnitensor-node/pkg/types"
)

// entry is one retained device. Load and used-memory accounting is mutated
// only while the registry mutex is held.
type entry struct {
	name  string
	total uint64
	used  uint64
	load  int64
}

// Registry tracks the accelerator devices retained at startup and their
// load/memory accounting. Selection and release are short critical sections;
// the mutex is never held across a task's execution, so work assigned to
// different devices proceeds fully in parallel.
type Registry struct {
	mu      sync.Mutex
	devices []*entry
	reserve uint64
	log     zerolog.Logger
}

// NewRegistry enumerates devices, keeps those with at least minMemory bytes of
// total memory, and fails when the retained set is empty. reserve is the
// per-lease memory estimate charged against a device while a task holds it.
func NewRegistry(enum Enumerator, minMemory, reserve uint64, log zerolog.Logger) (*Registry, error) {
	descs, err := enum.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	r := &Registry{reserve: reserve, log: log}
	for _, d := range descs {
		if d.TotalMemory < minMemory {
			log.Debug().Str("device", d.Name).Uint64("total_bytes", d.TotalMemory).
				Uint64("min_bytes", minMemory).Msg("device below memory threshold, skipped")
			continue
		}
		r.devices = append(r.devices, &entry{name: d.Name, total: d.TotalMemory})
		log.Info().Str("device", d.Name).Uint64("total_bytes", d.TotalMemory).Msg("device registered")
	}
	if len(r.devices) == 0 {
		return nil, noDeviceError{minMemory: minMemory}
	}
	return r, nil
}

// Acquire picks the least-loaded device, charges it, and returns a lease.
// Ties break in registry order, so selection is deterministic for a given
// load snapshot. Returns false when no devices are registered.
func (r *Registry) Acquire() (*Lease, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *entry
	for _, d := range r.devices {
		if best == nil || d.load < best.load {
			best = d
		}
	}
	if best == nil {
		return nil, false
	}
	best.load++
	reserved := r.reserve
	if free := best.total - best.used; reserved > free {
		reserved = free
	}
	best.used += reserved
	return &Lease{reg: r, dev: best, reserved: reserved}, true
}

// release undoes a lease's charge. Called exactly once per lease.
func (r *Registry) release(dev *entry, reserved uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev.load--
	if dev.load < 0 {
		// Double release would corrupt accounting; Lease guards against it,
		// so treat this as a bug worth shouting about.
		r.log.Error().Str("device", dev.name).Msg("device load went negative")
		dev.load = 0
	}
	if reserved > dev.used {
		reserved = dev.used
	}
	dev.used -= reserved
}

// Stats returns a {total, used} snapshot per device, in registry order.
func (r *Registry) Stats() []types.MemoryInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.MemoryInfo, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, types.MemoryInfo{Device: d.name, Total: d.total, Used: d.used})
	}
	return out
}

// Status returns device entries with load for the /status report.
func (r *Registry) Status() []types.DeviceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.DeviceStatus, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, types.DeviceStatus{Name: d.name, TotalBytes: d.total, UsedBytes: d.used, Load: d.load})
	}
	return out
}

// Lease is a scoped hold on one device. Release is idempotent and must run on
// every exit path of the work it covers, success or failure, so device load
// accounting cannot leak.
type Lease struct {
	reg      *Registry
	dev      *entry
	reserved uint64
	once     sync.Once
}

// Device returns the leased device's name.
func (l *Lease) Device() string { return l.dev.name }

// Release returns the device's load and memory charge. Safe to call more
// than once; only the first call has effect.
func (l *Lease) Release() {
	l.once.Do(func() { l.reg.release(l.dev, l.reserved) })
}
