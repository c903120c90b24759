package relay

import (
	"sync"
	"time"
)

// SimpleMetrics счётчики обменов, защищены мьютексом
type SimpleMetrics struct {
	mu sync.Mutex

	totalExchanges int64
	totalChunks    int64
	totalDuration  time.Duration
	failures       int64
	cancellations  int64
}

type MetricsSnapshot struct {
	TotalExchanges  int64         `json:"total_exchanges"`
	TotalChunks     int64         `json:"total_chunks"`
	AverageDuration time.Duration `json:"average_duration"`
	Failures        int64         `json:"failures"`
	Cancellations   int64         `json:"cancellations"`
}

func NewSimpleMetrics() *SimpleMetrics {
	return &SimpleMetrics{}
}

func (m *SimpleMetrics) RecordExchange(chunks int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalExchanges++
	m.totalChunks += int64(chunks)
	m.totalDuration += duration
}

func (m *SimpleMetrics) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures++
}

func (m *SimpleMetrics) RecordCancellation() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancellations++
}

func (m *SimpleMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := MetricsSnapshot{
		TotalExchanges: m.totalExchanges,
		TotalChunks:    m.totalChunks,
		Failures:       m.failures,
		Cancellations:  m.cancellations,
	}
	if m.totalExchanges > 0 {
		snapshot.AverageDuration = m.totalDuration / time.Duration(m.totalExchanges)
	}
	return snapshot
}
