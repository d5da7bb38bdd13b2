package observability

import (
	"os"

	"github.com/shirou/gopsutil/process"
)

// ProcessStats is a snapshot of the running server process.
type ProcessStats struct {
	PID        int32
	RSSBytes   uint64
	CPUPercent float64
	Threads    int32
}

type SelfMonitor struct {
	process *process.Process
}

func NewSelfMonitor() (*SelfMonitor, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &SelfMonitor{process: p}, nil
}

// Stats retrieves memory, CPU and thread count of the current process.
func (m *SelfMonitor) Stats() (ProcessStats, error) {
	memInfo, err := m.process.MemoryInfo()
	if err != nil {
		return ProcessStats{}, err
	}
	cpuPercent, err := m.process.CPUPercent()
	if err != nil {
		return ProcessStats{}, err
	}
	threads, err := m.process.NumThreads()
	if err != nil {
		return ProcessStats{}, err
	}
	return ProcessStats{
		PID:        m.process.Pid,
		RSSBytes:   memInfo.RSS,
		CPUPercent: cpuPercent,
		Threads:    threads,
	}, nil
}
