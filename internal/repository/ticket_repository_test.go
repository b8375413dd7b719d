package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func seed(t *testing.T, repo *MemoryTicketRepository, title, description string, cat domain.TicketCategory, status domain.TicketStatus) domain.Ticket {
	t.Helper()
	ticket := domain.Ticket{
		Title:        title,
		Description:  description,
		UserCategory: cat,
		UserPriority: domain.TicketPriorityLow,
		Status:       status,
	}
	require.NoError(t, repo.Create(context.Background(), &ticket))
	return ticket
}

func TestBuildWhereEmptyFilter(t *testing.T) {
	where, args := buildWhere(TicketFilter{})
	assert.Equal(t, "1=1", where)
	assert.Empty(t, args)
}

func TestBuildWhereCombinesClauses(t *testing.T) {
	cat := domain.TicketCategoryBilling
	status := domain.TicketStatusOpen
	term := "50%_off"

	where, args := buildWhere(TicketFilter{Category: &cat, Status: &status, SearchTerm: &term})

	assert.Equal(t, `1=1 AND user_category=$1 AND status=$2 AND (title ILIKE $3 ESCAPE '\' OR description ILIKE $3 ESCAPE '\')`, where)
	require.Len(t, args, 3)
	assert.Equal(t, cat, args[0])
	assert.Equal(t, status, args[1])
	assert.Equal(t, `%50\%\_off%`, args[2])
}

func TestMemoryListOrdersNewestFirst(t *testing.T) {
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	repo := NewMemoryTicketRepository(clock.Now)

	first := seed(t, repo, "one", "a", domain.TicketCategoryGeneral, domain.TicketStatusOpen)
	second := seed(t, repo, "two", "b", domain.TicketCategoryGeneral, domain.TicketStatusOpen)

	list, err := repo.ListWithFilter(context.Background(), TicketFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestMemoryFilterIntersection(t *testing.T) {
	repo := NewMemoryTicketRepository(nil)
	billingOpen := seed(t, repo, "Invoice", "charged twice", domain.TicketCategoryBilling, domain.TicketStatusOpen)
	seed(t, repo, "Invoice again", "still wrong", domain.TicketCategoryBilling, domain.TicketStatusResolved)
	seed(t, repo, "Crash", "app crashes", domain.TicketCategoryTechnical, domain.TicketStatusOpen)

	billing := domain.TicketCategoryBilling
	open := domain.TicketStatusOpen

	list, err := repo.ListWithFilter(context.Background(), TicketFilter{Category: &billing})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = repo.ListWithFilter(context.Background(), TicketFilter{Category: &billing, Status: &open})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, billingOpen.ID, list[0].ID)
}

func TestMemorySearchTitleOrDescription(t *testing.T) {
	repo := NewMemoryTicketRepository(nil)
	login := seed(t, repo, "Cannot login", "password rejected", domain.TicketCategoryAccount, domain.TicketStatusOpen)
	refund := seed(t, repo, "Money back", "I want a Refund please", domain.TicketCategoryBilling, domain.TicketStatusOpen)

	search := func(term string) []domain.Ticket {
		list, err := repo.ListWithFilter(context.Background(), TicketFilter{SearchTerm: &term})
		require.NoError(t, err)
		return list
	}

	got := search("LOGIN")
	require.Len(t, got, 1)
	assert.Equal(t, login.ID, got[0].ID)

	got = search("refund")
	require.Len(t, got, 1)
	assert.Equal(t, refund.ID, got[0].ID)

	assert.Empty(t, search("shipping"))
}

func TestMemoryUpdateKeepsCreatedAt(t *testing.T) {
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	repo := NewMemoryTicketRepository(clock.Now)
	ticket := seed(t, repo, "title", "desc", domain.TicketCategoryGeneral, domain.TicketStatusOpen)
	created := ticket.CreatedAt

	ticket.Status = domain.TicketStatusResolved
	ticket.CreatedAt = created.Add(-time.Hour)
	require.NoError(t, repo.Update(context.Background(), &ticket))

	assert.Equal(t, created, ticket.CreatedAt)
	assert.True(t, ticket.UpdatedAt.After(created))

	stored, err := repo.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, stored.Status)
	assert.Equal(t, created, stored.CreatedAt)
}

type settableClock struct {
	t time.Time
}

func (c *settableClock) Now() time.Time { return c.t }

func TestMemoryUpdatedAtNeverDecreases(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &settableClock{t: base}
	repo := NewMemoryTicketRepository(clock.Now)
	ticket := seed(t, repo, "title", "desc", domain.TicketCategoryGeneral, domain.TicketStatusOpen)

	clock.t = base.Add(time.Hour)
	require.NoError(t, repo.Update(context.Background(), &ticket))
	assert.Equal(t, base.Add(time.Hour), ticket.UpdatedAt)

	clock.t = base.Add(30 * time.Minute)
	require.NoError(t, repo.Update(context.Background(), &ticket))
	assert.Equal(t, base.Add(time.Hour), ticket.UpdatedAt)
}

func TestUpdateSQLClampsToPreviousUpdatedAt(t *testing.T) {
	sql := strings.Join(strings.Fields(updateTicketSQL), " ")
	assert.Contains(t, sql, "updated_at=GREATEST(NOW(), updated_at)")
	assert.Contains(t, sql, "RETURNING created_at, updated_at")
}

func TestMemoryUpdateMissing(t *testing.T) {
	repo := NewMemoryTicketRepository(nil)
	err := repo.Update(context.Background(), &domain.Ticket{ID: 42})
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestMemoryDeleteTwiceFails(t *testing.T) {
	repo := NewMemoryTicketRepository(nil)
	ticket := seed(t, repo, "title", "desc", domain.TicketCategoryGeneral, domain.TicketStatusOpen)

	require.NoError(t, repo.Delete(context.Background(), ticket.ID))
	assert.ErrorIs(t, repo.Delete(context.Background(), ticket.ID), ErrTicketNotFound)

	_, err := repo.GetByID(context.Background(), ticket.ID)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	repo := NewMemoryTicketRepository(nil)
	cat := domain.TicketCategoryBilling
	ticket := domain.Ticket{Title: "t", Description: "d", UserCategory: cat, UserPriority: domain.TicketPriorityLow, Status: domain.TicketStatusOpen, AICategory: &cat}
	require.NoError(t, repo.Create(context.Background(), &ticket))

	got, err := repo.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	*got.AICategory = domain.TicketCategoryGeneral

	again, err := repo.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketCategoryBilling, *again.AICategory)
}

func TestMemoryCounts(t *testing.T) {
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	repo := NewMemoryTicketRepository(clock.Now)
	seed(t, repo, "a", "a", domain.TicketCategoryBilling, domain.TicketStatusOpen)
	seed(t, repo, "b", "b", domain.TicketCategoryBilling, domain.TicketStatusResolved)
	seed(t, repo, "c", "c", domain.TicketCategoryAccount, domain.TicketStatusOpen)

	open := domain.TicketStatusOpen
	n, err := repo.Count(context.Background(), TicketFilter{Status: &open})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	since := time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC)
	n, err = repo.Count(context.Background(), TicketFilter{CreatedFrom: &since})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	byCategory, err := repo.CountByCategory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[domain.TicketCategory]int64{domain.TicketCategoryBilling: 2, domain.TicketCategoryAccount: 1}, byCategory)

	byPriority, err := repo.CountByPriority(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[domain.TicketPriority]int64{domain.TicketPriorityLow: 3}, byPriority)
}
