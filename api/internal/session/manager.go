package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"scan-viewer/api/internal/vlm/types"
)

// Manager owns all live sessions. Sessions idle for longer than the TTL are
// evicted by the janitor.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	log      *logrus.Logger
}

func NewManager(idleTTL time.Duration, log *logrus.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      idleTTL,
		now:      time.Now,
		log:      log,
	}
}

func (m *Manager) Create(engine string, sens types.Sensitivity) *Session {
	s := newSession(engine, sens, m.now)
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	m.log.WithFields(logrus.Fields{"session": s.id, "engine": engine}).Debug("session created")
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Evict drops sessions idle since before now-TTL and returns how many went.
func (m *Manager) Evict() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// RunJanitor evicts idle sessions every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := m.Evict(); n > 0 {
				m.log.WithField("evicted", n).Info("idle sessions evicted")
			}
		}
	}
}
