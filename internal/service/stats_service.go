package service

import (
	"context"
	"math"
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/repository"
)

// statsWindowDays is the trailing window used for the per-day average.
const statsWindowDays = 7

// StatsService aggregates counts over the ticket store on every call.
type StatsService struct {
	tickets repository.TicketRepository
	now     func() time.Time
}

// NewStatsService builds the aggregator. A nil clock uses time.Now.
func NewStatsService(tickets repository.TicketRepository, now func() time.Time) *StatsService {
	if now == nil {
		now = time.Now
	}
	return &StatsService{tickets: tickets, now: now}
}

// Compute returns totals, the trailing 7-day average and zero-filled breakdowns.
func (s *StatsService) Compute(ctx context.Context) (*domain.TicketStats, error) {
	total, err := s.tickets.Count(ctx, repository.TicketFilter{})
	if err != nil {
		return nil, err
	}

	open := domain.TicketStatusOpen
	openCount, err := s.tickets.Count(ctx, repository.TicketFilter{Status: &open})
	if err != nil {
		return nil, err
	}

	since := s.now().Add(-statsWindowDays * 24 * time.Hour)
	recent, err := s.tickets.Count(ctx, repository.TicketFilter{CreatedFrom: &since})
	if err != nil {
		return nil, err
	}

	byPriority, err := s.tickets.CountByPriority(ctx)
	if err != nil {
		return nil, err
	}
	byCategory, err := s.tickets.CountByCategory(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.TicketStats{
		TotalTickets:      total,
		OpenTickets:       openCount,
		AvgTicketsPerDay:  math.Round(float64(recent)/statsWindowDays*10) / 10,
		PriorityBreakdown: make(map[domain.TicketPriority]int64, len(domain.Priorities)),
		CategoryBreakdown: make(map[domain.TicketCategory]int64, len(domain.Categories)),
	}
	for _, p := range domain.Priorities {
		stats.PriorityBreakdown[p] = byPriority[p]
	}
	for _, c := range domain.Categories {
		stats.CategoryBreakdown[c] = byCategory[c]
	}
	return stats, nil
}
