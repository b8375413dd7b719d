package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// MemoryTicketRepository keeps tickets in process memory. It backs the service
// when no database is configured and is the store used by tests.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[int64]domain.Ticket
	nextID  int64
	now     func() time.Time
}

// NewMemoryTicketRepository builds an empty repository. A nil clock uses time.Now.
func NewMemoryTicketRepository(now func() time.Time) *MemoryTicketRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryTicketRepository{
		tickets: make(map[int64]domain.Ticket),
		now:     now,
	}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := r.now().UTC()
	ticket.ID = r.nextID
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r *MemoryTicketRepository) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tickets[ticket.ID]
	if !ok {
		return ErrTicketNotFound
	}
	updated := cloneTicket(*ticket)
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = r.now().UTC()
	if updated.UpdatedAt.Before(existing.UpdatedAt) {
		updated.UpdatedAt = existing.UpdatedAt
	}
	r.tickets[ticket.ID] = updated

	ticket.CreatedAt = updated.CreatedAt
	ticket.UpdatedAt = updated.UpdatedAt
	return nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	clone := cloneTicket(ticket)
	return &clone, nil
}

func (r *MemoryTicketRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[id]; !ok {
		return ErrTicketNotFound
	}
	delete(r.tickets, id)
	return nil
}

func (r *MemoryTicketRepository) ListWithFilter(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []domain.Ticket{}
	for _, ticket := range r.tickets {
		if matches(ticket, filter) {
			result = append(result, cloneTicket(ticket))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (r *MemoryTicketRepository) Count(_ context.Context, filter TicketFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, ticket := range r.tickets {
		if matches(ticket, filter) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryTicketRepository) CountByPriority(_ context.Context) (map[domain.TicketPriority]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[domain.TicketPriority]int64{}
	for _, ticket := range r.tickets {
		counts[ticket.UserPriority]++
	}
	return counts, nil
}

func (r *MemoryTicketRepository) CountByCategory(_ context.Context) (map[domain.TicketCategory]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[domain.TicketCategory]int64{}
	for _, ticket := range r.tickets {
		counts[ticket.UserCategory]++
	}
	return counts, nil
}

func matches(ticket domain.Ticket, filter TicketFilter) bool {
	if filter.Category != nil && ticket.UserCategory != *filter.Category {
		return false
	}
	if filter.Priority != nil && ticket.UserPriority != *filter.Priority {
		return false
	}
	if filter.Status != nil && ticket.Status != *filter.Status {
		return false
	}
	if filter.CreatedFrom != nil && ticket.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.SearchTerm != nil && *filter.SearchTerm != "" {
		term := strings.ToLower(*filter.SearchTerm)
		if !strings.Contains(strings.ToLower(ticket.Title), term) &&
			!strings.Contains(strings.ToLower(ticket.Description), term) {
			return false
		}
	}
	return true
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	if t.AICategory != nil {
		c := *t.AICategory
		t.AICategory = &c
	}
	if t.AIPriority != nil {
		p := *t.AIPriority
		t.AIPriority = &p
	}
	return t
}
