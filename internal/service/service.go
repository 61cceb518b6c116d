package service

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostMetrics is a point-in-time view of the machine running the relay.
type HostMetrics struct {
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	DiskUsage   float64 `json:"disk_usage"`
	ScratchFree uint64  `json:"scratch_free_bytes"`
	Hostname    string  `json:"hostname"`
	OS          string  `json:"os"`
	Uptime      uint64  `json:"uptime"`
}

type Service struct {
	scratchDir string
}

func NewService(scratchDir string) *Service {
	return &Service{scratchDir: scratchDir}
}

// ScratchFree returns the bytes available on the volume holding the scratch
// directory.
func (s *Service) ScratchFree() (uint64, error) {
	usage, err := disk.Usage(s.scratchDir)
	if err != nil {
		return 0, fmt.Errorf("failed to stat scratch volume: %w", err)
	}
	return usage.Free, nil
}

// EnsureSpace fails when the scratch volume cannot hold need bytes. An
// unreadable volume is not treated as full.
func (s *Service) EnsureSpace(need int64) error {
	if need <= 0 {
		return nil
	}
	free, err := s.ScratchFree()
	if err != nil {
		return nil
	}
	if uint64(need) > free {
		return fmt.Errorf("need %d bytes, %d free in %s", need, free, s.scratchDir)
	}
	return nil
}

func (s *Service) GetHostMetrics() *HostMetrics {
	m := &HostMetrics{}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPUUsage = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		m.MemoryUsage = vm.UsedPercent
	}
	if du, err := disk.Usage(s.scratchDir); err == nil {
		m.DiskUsage = du.UsedPercent
		m.ScratchFree = du.Free
	}
	if hi, err := host.Info(); err == nil {
		m.Hostname = hi.Hostname
		m.OS = hi.OS
		m.Uptime = hi.Uptime
	}
	return m
}
