package coordination

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"go.uber.org/zap"
)

// SystemStats is a sample of host-level resource usage, reported alongside
// coordination metrics.
type SystemStats struct {
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryPercent float64   `json:"memoryPercent"`
	MemoryUsed    uint64    `json:"memoryUsed"`
	TotalMemory   uint64    `json:"totalMemory"`
	Goroutines    int       `json:"goroutines"`
	SampledAt     time.Time `json:"sampledAt"`
}

// Monitor samples system CPU and memory on a fixed interval. It never
// blocks coordination; callers read the latest sample through Stats.
type Monitor struct {
	log      *zap.Logger
	interval time.Duration

	mu    sync.RWMutex
	stats SystemStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMonitor(interval time.Duration, log *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		log:      log,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Monitor) Start() {
	m.sample()
	m.wg.Add(1)
	go m.run()
}

func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sample()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Monitor) sample() {
	stats := SystemStats{
		Goroutines: runtime.NumGoroutine(),
		SampledAt:  time.Now(),
	}

	if percents, err := cpu.Percent(0, false); err != nil {
		m.log.Debug("cpu sample failed", zap.Error(err))
	} else if len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		m.log.Debug("memory sample failed", zap.Error(err))
	} else {
		stats.MemoryPercent = vm.UsedPercent
		stats.MemoryUsed = vm.Used
		stats.TotalMemory = vm.Total
	}

	m.mu.Lock()
	m.stats = stats
	m.mu.Unlock()
}

// Stats returns the most recent sample.
func (m *Monitor) Stats() SystemStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
