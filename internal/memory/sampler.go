// Package memory observes host memory. A Monitor samples available memory on
// a fixed interval and publishes it through a Signal that producers consult
// before doing more work.
package memory

import (
	"errors"
	"fmt"

	"github.com/prometheus/procfs"
)

// Sampler reads host memory figures in bytes.
type Sampler interface {
	TotalBytes() (uint64, error)
	AvailableBytes() (uint64, error)
}

// ProcSampler reads /proc/meminfo.
type ProcSampler struct {
	fs procfs.FS
}

func NewProcSampler() (*ProcSampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	return &ProcSampler{fs: fs}, nil
}

func (s *ProcSampler) TotalBytes() (uint64, error) {
	mi, err := s.fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("reading meminfo: %w", err)
	}
	if mi.MemTotal == nil {
		return 0, errors.New("meminfo has no MemTotal")
	}
	return *mi.MemTotal * 1024, nil
}

// AvailableBytes prefers MemAvailable and falls back to MemFree on kernels
// that do not report it.
func (s *ProcSampler) AvailableBytes() (uint64, error) {
	mi, err := s.fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("reading meminfo: %w", err)
	}
	switch {
	case mi.MemAvailable != nil:
		return *mi.MemAvailable * 1024, nil
	case mi.MemFree != nil:
		return *mi.MemFree * 1024, nil
	default:
		return 0, errors.New("meminfo has neither MemAvailable nor MemFree")
	}
}
