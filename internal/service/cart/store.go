package cart

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// Store — реестр сессий в памяти, одна сессия на вкладку PDV.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	lastUsed map[string]time.Time
	cfg      Config
	now      func() time.Time
}

// NewStore создаёт реестр; cfg передаётся каждой новой сессии.
func NewStore(cfg Config) *Store {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		sessions: make(map[string]*Session),
		lastUsed: make(map[string]time.Time),
		cfg:      cfg,
		now:      now,
	}
}

// Open создаёт новую сессию для компании.
func (s *Store) Open(companyID string) *Session {
	session := NewSession(uuid.NewString(), companyID, s.cfg)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
	s.lastUsed[session.ID()] = s.now()
	return session
}

// Get возвращает сессию или ErrSessionNotFound и отмечает её как используемую.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	s.lastUsed[id] = s.now()
	return session, nil
}

// Close удаляет сессию. Сессию с оформлением в процессе закрыть нельзя.
func (s *Store) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	if session.Processing() {
		return domain.ErrSubmissionInProgress
	}
	delete(s.sessions, id)
	delete(s.lastUsed, id)
	return nil
}

// EvictIdle удаляет сессии, к которым не обращались с момента before.
// Сессии с оформлением в процессе остаются.
func (s *Store) EvictIdle(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, session := range s.sessions {
		if !s.lastUsed[id].Before(before) || session.Processing() {
			continue
		}
		delete(s.sessions, id)
		delete(s.lastUsed, id)
		evicted++
	}
	return evicted
}

// Len возвращает число открытых сессий.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
