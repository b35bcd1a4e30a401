package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// DefaultTimelineLimit — сколько последних событий хранится на сессию.
const DefaultTimelineLimit = 256

// TimelineRepository хранит журнал попыток оформления в памяти.
type TimelineRepository struct {
	mu     sync.RWMutex
	limit  int
	events map[string][]domain.SubmissionEvent
}

// NewTimelineRepository создаёт журнал с лимитом DefaultTimelineLimit на сессию.
func NewTimelineRepository() *TimelineRepository {
	return NewTimelineRepositoryWithLimit(DefaultTimelineLimit)
}

// NewTimelineRepositoryWithLimit создаёт журнал; при переполнении вытесняются самые старые события.
func NewTimelineRepositoryWithLimit(limit int) *TimelineRepository {
	if limit <= 0 {
		limit = DefaultTimelineLimit
	}
	return &TimelineRepository{
		limit:  limit,
		events: make(map[string][]domain.SubmissionEvent),
	}
}

// Append вставляет событие по времени; события с одинаковым временем сохраняют порядок записи.
func (r *TimelineRepository) Append(event domain.SubmissionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.events[event.SessionID]
	i := sort.Search(len(events), func(i int) bool {
		return events[i].Occurred.After(event.Occurred)
	})
	events = append(events, domain.SubmissionEvent{})
	copy(events[i+1:], events[i:])
	events[i] = event

	if over := len(events) - r.limit; over > 0 {
		events = append(events[:0:0], events[over:]...)
	}
	r.events[event.SessionID] = events
	return nil
}

func (r *TimelineRepository) List(sessionID string) ([]domain.SubmissionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.SubmissionEvent(nil), r.events[sessionID]...), nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
