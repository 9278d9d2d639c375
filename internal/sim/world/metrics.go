package world

import "time"

// WorldMetrics is a point-in-time view of the world for health and admin
// endpoints. It is safe to read from any goroutine.
type WorldMetrics struct {
	Tick       uint64         `json:"tick"`
	Networks   map[string]int `json:"networks"`
	Pipes      map[string]int `json:"pipes"`
	Terminals  int            `json:"terminals"`
	InboxDepth int            `json:"inbox_depth"`
	StepMS     float64        `json:"step_ms"`
}

func (w *World) storeMetrics(nowTick uint64, d time.Duration) {
	m := WorldMetrics{
		Tick:       nowTick,
		Networks:   make(map[string]int),
		Pipes:      make(map[string]int),
		Terminals:  w.grid.TerminalCount(),
		InboxDepth: len(w.inbox),
		StepMS:     float64(d.Microseconds()) / 1000,
	}
	for _, k := range w.reg.Kinds() {
		m.Networks[k.Name] = w.reg.Count(k.Name)
		m.Pipes[k.Name] = w.reg.PipeCount(k.Name)
	}
	w.metrics.Store(m)
}

// Metrics returns the metrics stored after the last completed tick.
func (w *World) Metrics() WorldMetrics {
	if m, ok := w.metrics.Load().(WorldMetrics); ok {
		return m
	}
	return WorldMetrics{}
}
