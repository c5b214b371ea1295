package diagnostics

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats ресурсы процесса клиента
type ProcessStats struct {
	Uptime       string  `json:"uptime"`
	CPUPercent   float64 `json:"cpu_percent"`
	RSSMB        float64 `json:"rss_mb"`
	AllocMB      float64 `json:"alloc_mb"`
	HeapAllocMB  float64 `json:"heap_alloc_mb"`
	SysMB        float64 `json:"sys_mb"`
	NumGC        uint32  `json:"num_gc"`
	Goroutines   int     `json:"goroutines"`
	NumThreads   int32   `json:"num_threads,omitempty"`
	SystemCPU    float64 `json:"system_cpu_percent,omitempty"`
	ProcessError string  `json:"process_error,omitempty"`
}

// processSampler снимает показатели процесса через gopsutil
type processSampler struct {
	startTime time.Time
	proc      *process.Process
	procErr   error
}

func newProcessSampler() *processSampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	return &processSampler{
		startTime: time.Now(),
		proc:      proc,
		procErr:   err,
	}
}

func (s *processSampler) sample() ProcessStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := ProcessStats{
		Uptime:      time.Since(s.startTime).Truncate(time.Second).String(),
		AllocMB:     toMB(m.Alloc),
		HeapAllocMB: toMB(m.HeapAlloc),
		SysMB:       toMB(m.Sys),
		NumGC:       m.NumGC,
		Goroutines:  runtime.NumGoroutine(),
	}

	if s.procErr != nil {
		stats.ProcessError = s.procErr.Error()
		return stats
	}

	if pct, err := s.proc.CPUPercent(); err == nil {
		stats.CPUPercent = pct
	} else if total, err := cpu.Percent(0, false); err == nil && len(total) > 0 {
		// Если метрика процесса недоступна, показываем системную
		stats.SystemCPU = total[0]
	}
	if mem, err := s.proc.MemoryInfo(); err == nil {
		stats.RSSMB = toMB(mem.RSS)
	}
	if threads, err := s.proc.NumThreads(); err == nil {
		stats.NumThreads = threads
	}
	return stats
}

func toMB(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
