package services

import (
	"context"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"
)

// SessionSweeper periodically drops idle lab sessions
type SessionSweeper struct {
	lab      *LabService
	ttl      time.Duration
	interval time.Duration

	// Background sweep control
	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

// NewSessionSweeper creates a sweeper using the session settings of the lab configuration
func NewSessionSweeper(lab *LabService) *SessionSweeper {
	cfg := lab.Config().Session
	return &SessionSweeper{
		lab:      lab,
		ttl:      cfg.IdleTTL,
		interval: cfg.CleanupInterval,
	}
}

// Start begins sweeping in the background. It is a no-op when already running
// or when no idle TTL is configured.
func (p *SessionSweeper) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.ttl <= 0 {
		return
	}
	interval := p.interval
	if interval <= 0 {
		interval = p.ttl / 4
	}

	p.running = true
	p.stopChan = make(chan struct{})

	logging.Infow(ctx, "Starting session sweeper", "interval", interval.String(), "idle_ttl", p.ttl.String())
	go p.sweepLoop(ctx, interval, p.stopChan)
}

// Stop gracefully stops the sweeper
func (p *SessionSweeper) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false
	close(p.stopChan)
}

// IsRunning returns whether the sweeper is active
func (p *SessionSweeper) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Sweep removes idle sessions once
func (p *SessionSweeper) Sweep(ctx context.Context) int {
	removed := p.lab.ExpireIdle(p.ttl)
	if removed > 0 {
		logging.Infow(ctx, "Session sweep: removed idle sessions",
			"removed", removed, "open_sessions", p.lab.SessionCount())
	}
	return removed
}

func (p *SessionSweeper) sweepLoop(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Infow(ctx, "Session sweeper stopping due to context cancellation")
			return
		case <-stop:
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}
