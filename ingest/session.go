package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Session statuses.
const (
	StatusStarting  = "starting"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// retention keeps finished sessions queryable for a while before they
// drop out of the registry.
const retention = 5 * time.Minute

// AccountResult is the per-account outcome inside a session.
type AccountResult struct {
	Account string  `json:"account"`
	Success bool    `json:"success"`
	Summary Summary `json:"summary"`
	Error   string  `json:"error,omitempty"`
}

// Session tracks one background ingestion job across its accounts.
type Session struct {
	ID             string          `json:"session_id"`
	Status         string          `json:"status"`
	Accounts       []string        `json:"accounts"`
	DateFrom       string          `json:"date_from,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Progress       int             `json:"progress"`
	CurrentAccount string          `json:"current_account,omitempty"`
	Results        []AccountResult `json:"results"`
	Error          string          `json:"error,omitempty"`
}

// SessionManager is the registry of active ingestion jobs. It is the only
// in-process shared state besides the analytics cache; every access goes
// through the mutex.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Create registers a new session and returns its id.
func (m *SessionManager) Create(accounts []string, dateFrom string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{
		ID:        fmt.Sprintf("session_%d", time.Now().UnixNano()),
		Status:    StatusStarting,
		Accounts:  accounts,
		DateFrom:  dateFrom,
		StartedAt: time.Now(),
		Results:   []AccountResult{},
	}
	m.sessions[s.ID] = s
	return s
}

// Get returns a copy of the session, so callers never see a partially
// updated struct.
func (m *SessionManager) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// IDs lists the registered session ids.
func (m *SessionManager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (m *SessionManager) update(id string, fn func(*Session)) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	fn(s)
	return *s, true
}

func (m *SessionManager) expireLater(id string) {
	time.AfterFunc(retention, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, id)
	})
}

// Notifier receives session snapshots as a run progresses; the websocket
// hub implements it. A nil notifier is valid.
type Notifier interface {
	SessionUpdate(s Session, message string)
}

// RunSession executes the ingestion for every account of a session in
// sequence, updating the registry and pushing progress after each step.
// Designed to run on its own goroutine.
func (p *Pipeline) RunSession(ctx context.Context, m *SessionManager, n Notifier, sessionID string, since time.Time) {
	notify := func(s Session, msg string) {
		if n != nil {
			n.SessionUpdate(s, msg)
		}
	}

	s, ok := m.update(sessionID, func(s *Session) { s.Status = StatusRunning })
	if !ok {
		return
	}
	notify(s, "ingestion started")

	total := len(s.Accounts)
	for i, account := range s.Accounts {
		s, _ = m.update(sessionID, func(s *Session) {
			s.CurrentAccount = account
			s.Progress = i * 100 / total
		})
		notify(s, fmt.Sprintf("ingesting @%s", account))

		sum, err := p.Run(ctx, account, since, 0)
		result := AccountResult{Account: account, Success: err == nil, Summary: sum}
		if err != nil {
			result.Error = err.Error()
		}

		s, _ = m.update(sessionID, func(s *Session) {
			s.Results = append(s.Results, result)
		})
		if err != nil {
			notify(s, fmt.Sprintf("@%s failed: %v", account, err))
		} else {
			notify(s, fmt.Sprintf("@%s done: %d downloaded, %d url dups, %d visual dups, %d failed",
				account, sum.Downloaded, sum.SkippedURLDuplicate, sum.SkippedVisualDuplicate, sum.Failed))
		}
	}

	now := time.Now()
	s, _ = m.update(sessionID, func(s *Session) {
		s.Status = StatusCompleted
		s.Progress = 100
		s.CurrentAccount = ""
		s.CompletedAt = &now
	})
	notify(s, "ingestion completed")
	m.expireLater(sessionID)
}
