package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/repository"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util/errorutil"
)

// Suggester proposes a category and priority for a ticket description.
type Suggester interface {
	Suggest(ctx context.Context, description string) domain.Suggestion
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	suggester  Suggester
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Suggester  Suggester
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title        string
	Description  string
	UserCategory domain.TicketCategory
	UserPriority domain.TicketPriority
}

// TicketUpdateInput is a partial update. Nil fields are left untouched.
type TicketUpdateInput struct {
	Title        *string
	Description  *string
	UserCategory *domain.TicketCategory
	UserPriority *domain.TicketPriority
	AICategory   *domain.TicketCategory
	AIPriority   *domain.TicketPriority
	Status       *domain.TicketStatus
}

// TicketQuery holds the optional list filters. Empty strings impose no constraint.
type TicketQuery struct {
	Category string
	Priority string
	Status   string
	Search   string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		suggester:  deps.Suggester,
	}
}

// CreateTicket validates and stores a new open ticket.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	ticket := &domain.Ticket{
		Title:        strings.TrimSpace(input.Title),
		Description:  strings.TrimSpace(input.Description),
		UserCategory: input.UserCategory,
		UserPriority: input.UserPriority,
		Status:       domain.TicketStatusOpen,
	}
	if err := validateTicket(ticket); err != nil {
		return nil, err
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			Title:        ticket.Title,
			UserCategory: ticket.UserCategory,
			UserPriority: ticket.UserPriority,
		},
	})
	return ticket, nil
}

// ListTickets returns tickets matching every non-empty filter, newest first.
func (s *TicketService) ListTickets(ctx context.Context, query TicketQuery) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, query.toFilter())
}

// GetTicket fetches one ticket.
func (s *TicketService) GetTicket(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, id)
	}
	return ticket, nil
}

// UpdateTicket applies a partial update and refreshes updated_at.
func (s *TicketService) UpdateTicket(ctx context.Context, id int64, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, id)
	}
	oldStatus := ticket.Status

	fields := input.apply(ticket)
	if err := validateTicket(ticket); err != nil {
		return nil, err
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapRepoError(err, id)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: ticket.ID,
		Payload:  events.TicketUpdatedPayload{Fields: fields},
	})
	if ticket.Status != oldStatus {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Payload: events.TicketStatusChangedPayload{
				OldStatus: oldStatus,
				NewStatus: ticket.Status,
			},
		})
	}
	return ticket, nil
}

// DeleteTicket removes a ticket. Deleting an absent id is a NotFound error.
func (s *TicketService) DeleteTicket(ctx context.Context, id int64) error {
	if err := s.tickets.Delete(ctx, id); err != nil {
		return mapRepoError(err, id)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: id,
	})
	return nil
}

// ApplySuggestion asks the advisor about the ticket's description and stores a
// non-empty answer in ai_category / ai_priority. An empty answer leaves the ticket as is.
func (s *TicketService) ApplySuggestion(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, id)
	}
	if s.suggester == nil {
		return ticket, nil
	}

	suggestion := s.suggester.Suggest(ctx, ticket.Description)
	if suggestion.Empty() {
		return ticket, nil
	}

	updated, err := s.UpdateTicket(ctx, id, TicketUpdateInput{
		AICategory: &suggestion.Category,
		AIPriority: &suggestion.Priority,
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketSuggestionStored,
		TicketID: id,
		Payload: events.TicketSuggestionStoredPayload{
			AICategory: suggestion.Category,
			AIPriority: suggestion.Priority,
		},
	})
	return updated, nil
}

func (in TicketUpdateInput) apply(ticket *domain.Ticket) []string {
	var fields []string
	if in.Title != nil {
		ticket.Title = strings.TrimSpace(*in.Title)
		fields = append(fields, "title")
	}
	if in.Description != nil {
		ticket.Description = strings.TrimSpace(*in.Description)
		fields = append(fields, "description")
	}
	if in.UserCategory != nil {
		ticket.UserCategory = *in.UserCategory
		fields = append(fields, "user_category")
	}
	if in.UserPriority != nil {
		ticket.UserPriority = *in.UserPriority
		fields = append(fields, "user_priority")
	}
	if in.AICategory != nil {
		c := *in.AICategory
		ticket.AICategory = &c
		fields = append(fields, "ai_category")
	}
	if in.AIPriority != nil {
		p := *in.AIPriority
		ticket.AIPriority = &p
		fields = append(fields, "ai_priority")
	}
	if in.Status != nil {
		ticket.Status = *in.Status
		fields = append(fields, "status")
	}
	return fields
}

func (q TicketQuery) toFilter() repository.TicketFilter {
	var filter repository.TicketFilter
	if v := strings.TrimSpace(q.Category); v != "" {
		c := domain.TicketCategory(v)
		filter.Category = &c
	}
	if v := strings.TrimSpace(q.Priority); v != "" {
		p := domain.TicketPriority(v)
		filter.Priority = &p
	}
	if v := strings.TrimSpace(q.Status); v != "" {
		st := domain.TicketStatus(v)
		filter.Status = &st
	}
	if v := strings.TrimSpace(q.Search); v != "" {
		filter.SearchTerm = &v
	}
	return filter
}

func validateTicket(ticket *domain.Ticket) error {
	details := map[string]any{}
	if ticket.Title == "" {
		details["title"] = "required"
	} else if utf8.RuneCountInString(ticket.Title) > domain.TitleMaxLength {
		details["title"] = "must be at most 200 characters"
	}
	if ticket.Description == "" {
		details["description"] = "required"
	}
	if ticket.UserCategory == "" {
		details["user_category"] = "required"
	} else if !ticket.UserCategory.Valid() {
		details["user_category"] = "must be one of billing, technical, account, general"
	}
	if ticket.UserPriority == "" {
		details["user_priority"] = "required"
	} else if !ticket.UserPriority.Valid() {
		details["user_priority"] = "must be one of low, medium, high, critical"
	}
	if ticket.AICategory != nil && !ticket.AICategory.Valid() {
		details["ai_category"] = "must be one of billing, technical, account, general"
	}
	if ticket.AIPriority != nil && !ticket.AIPriority.Valid() {
		details["ai_priority"] = "must be one of low, medium, high, critical"
	}
	if !ticket.Status.Valid() {
		details["status"] = "must be one of open, in_progress, resolved"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket", details)
	}
	return nil
}

// mapRepoError turns any store-level not-found (ErrTicketNotFound, pgx.ErrNoRows)
// into a ticket NotFound carrying the id.
func mapRepoError(err error, id int64) error {
	if apperrors.IsNotFound(err) {
		return apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return err
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
