package onboarding

import (
	"fmt"
	"sync"
	"time"

	"bookgpt/backend/internal/agent/deps"
	errx "bookgpt/backend/internal/core/error"
	"bookgpt/backend/internal/metrics"
	logx "bookgpt/backend/pkg/logger"

	"github.com/oklog/ulid/v2"
)

// PaywallProvider scopes the paywall capability to one customer.
type PaywallProvider interface {
	For(customer string) deps.PaywallService
}

type session struct {
	flow     *Flow
	lastSeen time.Time
}

// Manager keeps the live onboarding flows by session id. Sessions idle for
// longer than Options.IdleTTL are discarded by a background sweep.
type Manager struct {
	content    *Content
	visualizer deps.VisualizationService
	paywall    PaywallProvider
	opts       Options
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*session

	stop     chan struct{}
	stopOnce sync.Once
	sweeper  sync.WaitGroup
}

func NewManager(content *Content, visualizer deps.VisualizationService, paywall PaywallProvider, opts Options) *Manager {
	m := &Manager{
		content:    content,
		visualizer: visualizer,
		paywall:    paywall,
		opts:       opts,
		now:        time.Now,
		sessions:   make(map[string]*session),
		stop:       make(chan struct{}),
	}
	if opts.IdleTTL > 0 {
		m.sweeper.Add(1)
		go m.sweepLoop(sweepInterval(opts.IdleTTL))
	}
	return m
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return interval
}

// Create starts a flow. An empty customer id falls back to the session id.
func (m *Manager) Create(startAtPaywall bool, customer string) (string, *Flow) {
	id := ulid.Make().String()
	if customer == "" {
		customer = id
	}

	opts := m.opts
	onComplete := m.opts.OnComplete
	opts.OnComplete = func() {
		logx.Info().Str("session", id).Str("customer", customer).Msg("onboarding completed")
		if onComplete != nil {
			onComplete()
		}
	}

	var evicted []*Flow
	m.mu.Lock()
	if m.opts.MaxSessions > 0 {
		for len(m.sessions) >= m.opts.MaxSessions {
			oldest := m.oldestLocked()
			evicted = append(evicted, m.sessions[oldest].flow)
			delete(m.sessions, oldest)
			logx.Debug().Str("session", oldest).Msg("onboarding session evicted: capacity")
		}
	}
	m.mu.Unlock()
	m.closeAll(evicted)

	flow := NewFlow(m.content, m.visualizer, m.paywall.For(customer), startAtPaywall, opts)

	m.mu.Lock()
	m.sessions[id] = &session{flow: flow, lastSeen: m.now()}
	m.mu.Unlock()
	metrics.OnboardingSessions.Inc()

	logx.Debug().Str("session", id).Bool("start_at_paywall", startAtPaywall).Msg("onboarding session created")
	return id, flow
}

func (m *Manager) oldestLocked() string {
	var oldest string
	var seen time.Time
	for id, s := range m.sessions {
		if oldest == "" || s.lastSeen.Before(seen) {
			oldest, seen = id, s.lastSeen
		}
	}
	return oldest
}

// Get returns the flow and marks the session as used.
func (m *Manager) Get(id string) (*Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: onboarding session %s", errx.ErrNotFound, id)
	}
	s.lastSeen = m.now()
	return s.flow, nil
}

// Discard closes the flow, cancelling its running tasks, and forgets it.
func (m *Manager) Discard(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: onboarding session %s", errx.ErrNotFound, id)
	}

	m.closeAll([]*Flow{s.flow})
	return nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sweep discards sessions idle for longer than IdleTTL.
func (m *Manager) sweep() {
	cutoff := m.now().Add(-m.opts.IdleTTL)

	var idle []*Flow
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			idle = append(idle, s.flow)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	if len(idle) > 0 {
		logx.Debug().Int("count", len(idle)).Msg("idle onboarding sessions evicted")
	}
	m.closeAll(idle)
}

func (m *Manager) sweepLoop(interval time.Duration) {
	defer m.sweeper.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) closeAll(flows []*Flow) {
	for _, flow := range flows {
		flow.Close()
		metrics.OnboardingSessions.Dec()
	}
}

// Shutdown stops the sweep, discards every flow and waits for their tasks.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.sweeper.Wait()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	flows := make([]*Flow, 0, len(sessions))
	for _, s := range sessions {
		flows = append(flows, s.flow)
	}
	m.closeAll(flows)
	for _, flow := range flows {
		flow.Wait()
	}
}

func (m *Manager) Content() *Content {
	return m.content
}
