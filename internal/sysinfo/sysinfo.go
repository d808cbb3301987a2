// Package sysinfo samples host figures shown on every error notification.
package sysinfo

import (
	"runtime"
	"strconv"

	"github.com/prometheus/procfs"
	"go.uber.org/zap"
)

// Unknown is shown for any figure that could not be read.
const Unknown = "unknown"

type Snapshot struct {
	// Load5 is the five minute load average.
	Load5 string
	// UsedMemoryKB is system memory in use, in kibibytes.
	UsedMemoryKB string
	Goroutines   string
}

// Provider reads /proc on every call. On hosts without procfs it degrades to
// Unknown values instead of failing the notification.
type Provider struct {
	fs     procfs.FS
	hasFS  bool
	logger *zap.Logger
}

func NewProvider(logger *zap.Logger) *Provider {
	return NewProviderAt(logger, procfs.DefaultMountPoint)
}

// NewProviderAt reads from a procfs mounted at root.
func NewProviderAt(logger *zap.Logger, root string) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("sysinfo")
	fs, err := procfs.NewFS(root)
	if err != nil {
		logger.Warn("procfs unavailable, host figures will be unknown", zap.String("root", root), zap.Error(err))
	}
	return &Provider{fs: fs, hasFS: err == nil, logger: logger}
}

func (p *Provider) Snapshot() Snapshot {
	snap := Snapshot{
		Load5:        Unknown,
		UsedMemoryKB: Unknown,
		Goroutines:   strconv.Itoa(runtime.NumGoroutine()),
	}
	if !p.hasFS {
		return snap
	}

	if load, err := p.fs.LoadAvg(); err != nil {
		p.logger.Debug("read load average", zap.Error(err))
	} else {
		snap.Load5 = strconv.FormatFloat(load.Load5, 'f', -1, 64)
	}

	if mem, err := p.fs.Meminfo(); err != nil {
		p.logger.Debug("read meminfo", zap.Error(err))
	} else if mem.MemTotal != nil && mem.MemAvailable != nil && *mem.MemTotal >= *mem.MemAvailable {
		snap.UsedMemoryKB = strconv.FormatUint(*mem.MemTotal-*mem.MemAvailable, 10)
	}
	return snap
}
