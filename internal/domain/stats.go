package domain

// TicketStats is a point-in-time aggregate over all tickets.
type TicketStats struct {
	TotalTickets      int64
	OpenTickets       int64
	AvgTicketsPerDay  float64
	PriorityBreakdown map[TicketPriority]int64
	CategoryBreakdown map[TicketCategory]int64
}

// Suggestion is an advisory category/priority pair. Empty fields mean no suggestion.
type Suggestion struct {
	Category TicketCategory
	Priority TicketPriority
}

// Empty reports whether the advisor produced nothing.
func (s Suggestion) Empty() bool {
	return s.Category == "" && s.Priority == ""
}
