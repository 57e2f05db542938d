package application

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MetricsRecorder はアプリケーションの統計収集を抽象化する。
type MetricsRecorder interface {
	RecordLatency(ctx context.Context, endpoint string, duration time.Duration)
	IncrementCounter(ctx context.Context, name string, delta int)
}

// LatencyStats はエンドポイントごとの処理時間の集計です。
type LatencyStats struct {
	Count int64         `json:"count"`
	Total time.Duration `json:"total_ns"`
	Max   time.Duration `json:"max_ns"`
}

func (s LatencyStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// MetricsSnapshot は MemoryMetrics のある時点の写しです。
type MetricsSnapshot struct {
	Counters  map[string]int64        `json:"counters"`
	Latencies map[string]LatencyStats `json:"latencies"`
}

// MemoryMetrics はプロセス内に集計を保持する MetricsRecorder です。
// ルームのゴルーチンと HTTP ハンドラから同時に触られます。
type MemoryMetrics struct {
	mu        sync.Mutex
	counters  map[string]int64
	latencies map[string]LatencyStats
}

func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		counters:  make(map[string]int64),
		latencies: make(map[string]LatencyStats),
	}
}

func (m *MemoryMetrics) RecordLatency(ctx context.Context, endpoint string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.latencies[endpoint]
	s.Count++
	s.Total += duration
	s.Max = max(s.Max, duration)
	m.latencies[endpoint] = s
}

func (m *MemoryMetrics) IncrementCounter(ctx context.Context, name string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += int64(delta)
}

func (m *MemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Counters:  maps.Clone(m.counters),
		Latencies: maps.Clone(m.latencies),
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordLatency(context.Context, string, time.Duration) {}
func (nopMetrics) IncrementCounter(context.Context, string, int)        {}

var _ MetricsRecorder = (*MemoryMetrics)(nil)
