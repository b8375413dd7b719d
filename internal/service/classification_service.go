package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/observability"
)

// Completer sends one prompt to a text model and returns its raw reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

const classifierSystemPrompt = "You classify support tickets. Return only JSON."

const classifierPromptTemplate = `Given this support ticket description, classify it into:
- Category: billing, technical, account, or general
- Priority: low, medium, high, or critical

Description: %q

Return ONLY JSON format: {"category": "...", "priority": "..."}`

// ClassificationService produces best-effort suggestions. It never returns an error:
// every failure degrades to an empty suggestion.
type ClassificationService struct {
	completer Completer
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// ClassificationDependencies bundles collaborators for the advisor.
// A nil Completer disables outbound calls.
type ClassificationDependencies struct {
	Completer Completer
	Timeout   time.Duration
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// NewClassificationService constructs the advisor.
func NewClassificationService(deps ClassificationDependencies) *ClassificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassificationService{
		completer: deps.Completer,
		timeout:   deps.Timeout,
		logger:    logger,
		metrics:   deps.Metrics,
	}
}

// Suggest classifies a description. Empty input makes no external call.
func (s *ClassificationService) Suggest(ctx context.Context, description string) domain.Suggestion {
	description = strings.TrimSpace(description)
	if description == "" {
		s.metrics.RecordClassification("skipped")
		return domain.Suggestion{}
	}
	if s.completer == nil {
		s.logger.Debug("classifier disabled; returning empty suggestion")
		s.metrics.RecordClassification("disabled")
		return domain.Suggestion{}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	reply, err := s.completer.Complete(ctx, classifierSystemPrompt, fmt.Sprintf(classifierPromptTemplate, description))
	if err != nil {
		s.logger.Warn("classification call failed", zap.Error(err))
		s.metrics.RecordClassification("failed")
		return domain.Suggestion{}
	}

	suggestion, err := decodeSuggestion(reply)
	if err != nil {
		s.logger.Warn("classification reply rejected", zap.Error(err), zap.String("reply", truncate(reply, 200)))
		s.metrics.RecordClassification("failed")
		return domain.Suggestion{}
	}

	s.metrics.RecordClassification("ok")
	return suggestion
}

type suggestionReply struct {
	Category *string `json:"category"`
	Priority *string `json:"priority"`
}

// decodeSuggestion accepts exactly one JSON object with the keys category and priority,
// optionally wrapped in a markdown code fence. Missing keys default to general / low;
// unknown keys, trailing data or out-of-enum values are errors.
func decodeSuggestion(reply string) (domain.Suggestion, error) {
	body := stripCodeFence(reply)
	if !strings.HasPrefix(body, "{") {
		return domain.Suggestion{}, errors.New("reply is not a JSON object")
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()

	var parsed suggestionReply
	if err := dec.Decode(&parsed); err != nil {
		return domain.Suggestion{}, fmt.Errorf("decode reply: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.Suggestion{}, errors.New("unexpected data after reply object")
	}

	suggestion := domain.Suggestion{
		Category: domain.TicketCategoryGeneral,
		Priority: domain.TicketPriorityLow,
	}
	if parsed.Category != nil {
		suggestion.Category = domain.TicketCategory(normalizeEnum(*parsed.Category))
		if !suggestion.Category.Valid() {
			return domain.Suggestion{}, fmt.Errorf("unknown category %q", *parsed.Category)
		}
	}
	if parsed.Priority != nil {
		suggestion.Priority = domain.TicketPriority(normalizeEnum(*parsed.Priority))
		if !suggestion.Priority.Valid() {
			return domain.Suggestion{}, fmt.Errorf("unknown priority %q", *parsed.Priority)
		}
	}
	return suggestion, nil
}

func stripCodeFence(reply string) string {
	body := strings.TrimSpace(reply)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimPrefix(body, "json")
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}

func normalizeEnum(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// truncate caps s at n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
