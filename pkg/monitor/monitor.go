// Package monitor samples host performance on a fixed tick and pushes the
// samples to sessions that opted into monitoring.
package monitor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
)

// eventPerformanceUpdate matches the realtime event catalogue. The literal
// avoids an import cycle with the event plane.
const eventPerformanceUpdate = "performance_update"

// sampleInterval is the push cadence for subscribed sessions.
const sampleInterval = 2 * time.Second

// Broadcaster fans a payload out to a session's connections. Satisfied by
// the realtime hub.
type Broadcaster interface {
	BroadcastToSession(sessionID, event string, payload any)
}

// Sample is one performance snapshot pushed to subscribed sessions.
type Sample struct {
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryUsed    uint64  `json:"memoryUsed"`
	MemoryTotal   uint64  `json:"memoryTotal"`
	MemoryPercent float64 `json:"memoryPercent"`
	BytesSent     uint64  `json:"bytesSent"`
	BytesRecv     uint64  `json:"bytesRecv"`
	ActiveUsers   int     `json:"activeUsers"`
	BuildTime     int     `json:"buildTime"`
	ServerLoad    float64 `json:"serverLoad"`
	ErrorRate     float64 `json:"errorRate"`
	ResponseTime  int     `json:"responseTime"`
	Timestamp     int64   `json:"timestamp"`
}

// Ticker owns the sampling loop and the subscription set. Subscriptions are
// per session; an unsubscribed session costs nothing.
type Ticker struct {
	broadcaster Broadcaster

	// activeUsers reports the current connection count.
	activeUsers func() int

	mu         sync.Mutex
	subscribed map[string]struct{}
}

// NewTicker creates a performance ticker. activeUsers is polled on each
// sample.
func NewTicker(broadcaster Broadcaster, activeUsers func() int) *Ticker {
	return &Ticker{
		broadcaster: broadcaster,
		activeUsers: activeUsers,
		subscribed:  make(map[string]struct{}),
	}
}

// Subscribe opts a session into performance pushes.
func (t *Ticker) Subscribe(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribed[sessionID] = struct{}{}
}

// Unsubscribe opts a session out. Idempotent.
func (t *Ticker) Unsubscribe(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribed, sessionID)
}

// Subscribed reports whether a session currently receives pushes.
func (t *Ticker) Subscribed(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.subscribed[sessionID]
	return ok
}

// Run samples and pushes until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions := t.snapshotSubscribers()
			if len(sessions) == 0 {
				continue
			}
			sample := t.sample(ctx)
			for _, sid := range sessions {
				t.broadcaster.BroadcastToSession(sid, eventPerformanceUpdate, sample)
			}
		}
	}
}

func (t *Ticker) snapshotSubscribers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.subscribed))
	for sid := range t.subscribed {
		out = append(out, sid)
	}
	return out
}

// sample collects one snapshot. Collection failures degrade to zero values
// rather than skipping the push.
func (t *Ticker) sample(ctx context.Context) Sample {
	s := Sample{
		ActiveUsers: t.activeUsers(),
		Timestamp:   time.Now().UnixMilli(),
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		s.CPUPercent = percents[0]
	} else if err != nil {
		logger.Debugw("cpu sample failed", "error", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemoryUsed = vm.Used
		s.MemoryTotal = vm.Total
		s.MemoryPercent = vm.UsedPercent
	} else {
		logger.Debugw("memory sample failed", "error", err)
	}

	if counters, err := gnet.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		s.BytesSent = counters[0].BytesSent
		s.BytesRecv = counters[0].BytesRecv
	} else if err != nil {
		logger.Debugw("network sample failed", "error", err)
	}

	// Synthetic development-dashboard figures derived from the real load.
	s.ServerLoad = s.CPUPercent/100*0.8 + rand.Float64()*0.2
	s.ErrorRate = rand.Float64() * 2
	s.ResponseTime = 20 + rand.Intn(80)
	s.BuildTime = 800 + rand.Intn(400)

	return s
}
