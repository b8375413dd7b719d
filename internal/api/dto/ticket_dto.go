package dto

import (
	"strconv"
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// CreateTicketRequest payload. Server-controlled fields in the body are ignored.
type CreateTicketRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"required"`
	UserCategory string `json:"user_category" validate:"required,oneof=billing technical account general"`
	UserPriority string `json:"user_priority" validate:"required,oneof=low medium high critical"`
}

// UpdateTicketRequest is a partial update; absent fields are left untouched.
// ai_category, ai_priority, created_at and updated_at are not accepted.
type UpdateTicketRequest struct {
	Title        *string `json:"title" validate:"omitnil,required,max=200"`
	Description  *string `json:"description" validate:"omitnil,required"`
	UserCategory *string `json:"user_category" validate:"omitnil,oneof=billing technical account general"`
	UserPriority *string `json:"user_priority" validate:"omitnil,oneof=low medium high critical"`
	Status       *string `json:"status" validate:"omitnil,oneof=open in_progress resolved"`
}

// TicketListQuery captures query filters for the list endpoint.
type TicketListQuery struct {
	Category string `query:"category"`
	Priority string `query:"priority"`
	Status   string `query:"status"`
	Search   string `query:"search"`
}

// TicketResponse is the full ticket representation.
type TicketResponse struct {
	ID           int64                  `json:"id"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	UserCategory domain.TicketCategory  `json:"user_category"`
	UserPriority domain.TicketPriority  `json:"user_priority"`
	AICategory   *domain.TicketCategory `json:"ai_category"`
	AIPriority   *domain.TicketPriority `json:"ai_priority"`
	Status       domain.TicketStatus    `json:"status"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// ClassifyRequest payload.
type ClassifyRequest struct {
	Description string `json:"description"`
}

// ClassifyResponse carries the advisory pair; both are empty when no suggestion is available.
type ClassifyResponse struct {
	SuggestedCategory string `json:"suggested_category"`
	SuggestedPriority string `json:"suggested_priority"`
}

// StatsResponse mirrors domain.TicketStats on the wire.
type StatsResponse struct {
	TotalTickets      int64            `json:"total_tickets"`
	OpenTickets       int64            `json:"open_tickets"`
	AvgTicketsPerDay  DailyAverage     `json:"avg_tickets_per_day"`
	PriorityBreakdown map[string]int64 `json:"priority_breakdown"`
	CategoryBreakdown map[string]int64 `json:"category_breakdown"`
}

// DailyAverage always renders one decimal place, so an empty store reads 0.0 rather than 0.
type DailyAverage float64

// MarshalJSON implements json.Marshaler.
func (a DailyAverage) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(a), 'f', 1, 64), nil
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           ticket.ID,
		Title:        ticket.Title,
		Description:  ticket.Description,
		UserCategory: ticket.UserCategory,
		UserPriority: ticket.UserPriority,
		AICategory:   ticket.AICategory,
		AIPriority:   ticket.AIPriority,
		Status:       ticket.Status,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
	}
}

// NewStatsResponse maps a stats snapshot.
func NewStatsResponse(stats *domain.TicketStats) StatsResponse {
	resp := StatsResponse{
		TotalTickets:      stats.TotalTickets,
		OpenTickets:       stats.OpenTickets,
		AvgTicketsPerDay:  DailyAverage(stats.AvgTicketsPerDay),
		PriorityBreakdown: make(map[string]int64, len(stats.PriorityBreakdown)),
		CategoryBreakdown: make(map[string]int64, len(stats.CategoryBreakdown)),
	}
	for k, v := range stats.PriorityBreakdown {
		resp.PriorityBreakdown[string(k)] = v
	}
	for k, v := range stats.CategoryBreakdown {
		resp.CategoryBreakdown[string(k)] = v
	}
	return resp
}
