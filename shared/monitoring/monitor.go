package monitoring

import (
	"fmt"
	"sync"
	"time"
)

// Monitor tracks the outcome of the most recent schedule check so the
// health endpoint can report liveness without poking external vendors.
type Monitor struct {
	mu             sync.Mutex
	lastRunSuccess bool
	lastRunTime    time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRunSuccess = true
	m.lastRunTime = time.Now()
}

func (m *Monitor) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRunSuccess = false
	m.lastRunTime = time.Now()
}

func (m *Monitor) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastRunTime.IsZero() {
		return true // No runs yet, assume healthy
	}
	return m.lastRunSuccess
}

func (m *Monitor) StatusSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastRunTime.IsZero() {
		return "No schedule checks yet"
	}
	if m.lastRunSuccess {
		return fmt.Sprintf("Last schedule check ok: %s", m.lastRunTime.Format("Jan 2 15:04"))
	}
	return fmt.Sprintf("Last schedule check failed: %s", m.lastRunTime.Format("Jan 2 15:04"))
}
