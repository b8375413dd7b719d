package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/ticket-triage/internal/api/dto"
	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/service"
)

type stubCompleter struct {
	reply string
	err   error
	calls int
}

func (s *stubCompleter) Complete(context.Context, string, string) (string, error) {
	s.calls++
	return s.reply, s.err
}

type testServer struct {
	app       *fiber.App
	completer *stubCompleter
}

func newTestServer(t *testing.T, rateLimit fiber.Handler) *testServer {
	t.Helper()
	return newTestServerWithApp(t, rateLimit, AppDependencies{Name: "test"})
}

func newTestServerWithApp(t *testing.T, rateLimit fiber.Handler, deps AppDependencies) *testServer {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	logger := deps.Logger
	metrics := observability.NewMetrics()
	repo := repository.NewMemoryTicketRepository(nil)
	completer := &stubCompleter{reply: `{"category":"billing","priority":"high"}`}

	advisor := service.NewClassificationService(service.ClassificationDependencies{
		Completer: completer,
		Logger:    logger,
		Metrics:   metrics,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repo,
		Dispatcher: events.NewInMemoryDispatcher(logger),
		Suggester:  advisor,
	})

	app := NewApp(RouteConfig{
		Health:    handlers.NewHealthHandler(handlers.HealthDependencies{Name: "test", Version: "dev"}),
		Tickets:   handlers.NewTicketsHandler(tickets),
		Classify:  handlers.NewClassifyHandler(advisor),
		Stats:     handlers.NewStatsHandler(service.NewStatsService(repo, nil)),
		Metrics:   metrics,
		RateLimit: rateLimit,
	}, deps)

	return &testServer{app: app, completer: completer}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func (s *testServer) createTicket(t *testing.T, body string) dto.TicketResponse {
	t.Helper()
	status, raw := s.do(t, fiber.MethodPost, "/api/tickets/", body)
	require.Equal(t, fiber.StatusCreated, status, string(raw))
	var ticket dto.TicketResponse
	require.NoError(t, json.Unmarshal(raw, &ticket))
	return ticket
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, raw []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func TestCreateAndFetchTicket(t *testing.T) {
	s := newTestServer(t, nil)

	created := s.createTicket(t, `{"title":"Cannot login","description":"password rejected","user_category":"account","user_priority":"high","ai_category":"billing","status":"resolved","created_at":"2001-01-01T00:00:00Z"}`)

	assert.Equal(t, "open", string(created.Status))
	assert.Nil(t, created.AICategory)
	assert.Nil(t, created.AIPriority)
	assert.NotEqual(t, 2001, created.CreatedAt.Year())

	status, raw := s.do(t, fiber.MethodGet, "/api/tickets/"+itoa(created.ID)+"/", "")
	require.Equal(t, fiber.StatusOK, status)
	var fetched map[string]any
	require.NoError(t, json.Unmarshal(raw, &fetched))
	assert.Equal(t, "Cannot login", fetched["title"])
	assert.Contains(t, fetched, "ai_category")
	assert.Nil(t, fetched["ai_category"])
}

func TestCreateTicketValidation(t *testing.T) {
	s := newTestServer(t, nil)

	status, raw := s.do(t, fiber.MethodPost, "/api/tickets/", `{"title":"x","description":"y","user_category":"shipping","user_priority":"low"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
	env := decodeError(t, raw)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Details, "user_category")

	status, raw = s.do(t, fiber.MethodPost, "/api/tickets/", `{"description":"y"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
	env = decodeError(t, raw)
	assert.Contains(t, env.Error.Details, "title")
	assert.Contains(t, env.Error.Details, "user_priority")

	status, _ = s.do(t, fiber.MethodPost, "/api/tickets/", `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, raw = s.do(t, fiber.MethodGet, "/api/tickets/", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestListTicketsWithFilters(t *testing.T) {
	s := newTestServer(t, nil)
	s.createTicket(t, `{"title":"Invoice","description":"charged twice","user_category":"billing","user_priority":"high"}`)
	s.createTicket(t, `{"title":"Crash","description":"app crashes","user_category":"technical","user_priority":"low"}`)
	s.createTicket(t, `{"title":"Cannot login","description":"locked out","user_category":"account","user_priority":"medium"}`)

	list := func(query string) []dto.TicketResponse {
		status, raw := s.do(t, fiber.MethodGet, "/api/tickets/"+query, "")
		require.Equal(t, fiber.StatusOK, status)
		var out []dto.TicketResponse
		require.NoError(t, json.Unmarshal(raw, &out))
		return out
	}

	all := list("")
	require.Len(t, all, 3)
	assert.Equal(t, "Cannot login", all[0].Title)

	billing := list("?category=billing")
	require.Len(t, billing, 1)
	assert.Equal(t, "Invoice", billing[0].Title)

	assert.Len(t, list("?category=billing&status=open"), 1)
	assert.Empty(t, list("?category=billing&status=resolved"))
	assert.Len(t, list("?search=LOGIN"), 1)
	assert.Len(t, list("?search=twice"), 1)
	assert.Empty(t, list("?search=printer"))
}

func TestUpdateTicket(t *testing.T) {
	s := newTestServer(t, nil)
	created := s.createTicket(t, `{"title":"Crash","description":"app crashes","user_category":"technical","user_priority":"low"}`)
	path := "/api/tickets/" + itoa(created.ID) + "/"

	status, raw := s.do(t, fiber.MethodPatch, path, `{"status":"in_progress","ai_priority":"critical","updated_at":"2001-01-01T00:00:00Z"}`)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	var updated dto.TicketResponse
	require.NoError(t, json.Unmarshal(raw, &updated))
	assert.Equal(t, "in_progress", string(updated.Status))
	assert.Nil(t, updated.AIPriority)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	status, raw = s.do(t, fiber.MethodPut, path, `{"user_priority":"urgent"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, decodeError(t, raw).Error.Details, "user_priority")

	status, _ = s.do(t, fiber.MethodPut, path, `{"title":""}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, fiber.MethodPut, "/api/tickets/999/", `{"title":"x"}`)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestDeleteTicket(t *testing.T) {
	s := newTestServer(t, nil)
	created := s.createTicket(t, `{"title":"Crash","description":"app crashes","user_category":"technical","user_priority":"low"}`)
	path := "/api/tickets/" + itoa(created.ID) + "/"

	status, raw := s.do(t, fiber.MethodDelete, path, "")
	assert.Equal(t, fiber.StatusNoContent, status)
	assert.Empty(t, raw)

	status, raw = s.do(t, fiber.MethodGet, path, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", decodeError(t, raw).Error.Code)

	status, _ = s.do(t, fiber.MethodDelete, path, "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = s.do(t, fiber.MethodGet, "/api/tickets/abc/", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestClassifyEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	status, raw := s.do(t, fiber.MethodPost, "/api/tickets/classify/", `{"description":"I was billed twice"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"suggested_category":"billing","suggested_priority":"high"}`, string(raw))
	assert.Equal(t, 1, s.completer.calls)

	status, raw = s.do(t, fiber.MethodPost, "/api/tickets/classify/", `{"description":""}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"suggested_category":"","suggested_priority":""}`, string(raw))
	assert.Equal(t, 1, s.completer.calls)

	s.completer.err = errors.New("network unreachable")
	status, raw = s.do(t, fiber.MethodPost, "/api/tickets/classify/", `{"description":"app crashes"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"suggested_category":"","suggested_priority":""}`, string(raw))

	status, raw = s.do(t, fiber.MethodPost, "/api/tickets/classify/", `garbage`)
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"suggested_category":"","suggested_priority":""}`, string(raw))
}

func TestApplySuggestionEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	created := s.createTicket(t, `{"title":"Invoice","description":"charged twice","user_category":"general","user_priority":"low"}`)

	status, raw := s.do(t, fiber.MethodPost, "/api/tickets/"+itoa(created.ID)+"/apply-suggestion/", "")
	require.Equal(t, fiber.StatusOK, status, string(raw))
	var updated dto.TicketResponse
	require.NoError(t, json.Unmarshal(raw, &updated))
	require.NotNil(t, updated.AICategory)
	assert.Equal(t, "billing", string(*updated.AICategory))
	assert.Equal(t, "high", string(*updated.AIPriority))
	assert.Equal(t, "general", string(updated.UserCategory))
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	status, raw := s.do(t, fiber.MethodGet, "/api/tickets/stats/", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{
		"total_tickets": 0,
		"open_tickets": 0,
		"avg_tickets_per_day": 0.0,
		"priority_breakdown": {"low": 0, "medium": 0, "high": 0, "critical": 0},
		"category_breakdown": {"billing": 0, "technical": 0, "account": 0, "general": 0}
	}`, string(raw))
	assert.Contains(t, string(raw), `"avg_tickets_per_day":0.0`)

	for i := 0; i < 3; i++ {
		s.createTicket(t, `{"title":"Outage","description":"down","user_category":"technical","user_priority":"high"}`)
	}
	s.createTicket(t, `{"title":"Question","description":"how","user_category":"general","user_priority":"low"}`)

	status, raw = s.do(t, fiber.MethodGet, "/api/tickets/stats", "")
	require.Equal(t, fiber.StatusOK, status)
	var stats dto.StatsResponse
	require.NoError(t, json.Unmarshal(raw, &stats))
	assert.EqualValues(t, 4, stats.TotalTickets)
	assert.EqualValues(t, 4, stats.OpenTickets)
	assert.Equal(t, dto.DailyAverage(0.6), stats.AvgTicketsPerDay)
	assert.Contains(t, string(raw), `"avg_tickets_per_day":0.6`)
	assert.Equal(t, map[string]int64{"low": 1, "medium": 0, "high": 3, "critical": 0}, stats.PriorityBreakdown)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	status, _ := s.do(t, fiber.MethodGet, "/health/live", "")
	assert.Equal(t, fiber.StatusOK, status)

	status, raw := s.do(t, fiber.MethodGet, "/health/ready", "")
	assert.Equal(t, fiber.StatusOK, status, string(raw))
	assert.JSONEq(t, `{"status":"ready","dependencies":{"store":{"backend":"memory","status":"ok"},"redis":"not configured","classifier":"disabled"}}`, string(raw))

	s.do(t, fiber.MethodGet, "/api/tickets/", "")
	status, raw = s.do(t, fiber.MethodGet, "/metrics", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), "tickets_http_requests_total")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil)
	status, raw := s.do(t, fiber.MethodGet, "/nope", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", decodeError(t, raw).Error.Code)
}

type scriptedRedis struct {
	redis.Scripter
	result []any
	err    error
	keys   []string
}

func (s *scriptedRedis) EvalSha(_ context.Context, _ string, keys []string, _ ...any) *redis.Cmd {
	s.keys = append(s.keys, keys...)
	return redis.NewCmdResult(s.result, s.err)
}

func (s *scriptedRedis) Eval(_ context.Context, _ string, keys []string, _ ...any) *redis.Cmd {
	s.keys = append(s.keys, keys...)
	return redis.NewCmdResult(s.result, s.err)
}

func (s *testServer) classifyFrom(t *testing.T, forwardedFor string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/api/tickets/classify/", strings.NewReader(`{"description":"x"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderXForwardedFor, forwardedFor)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func rateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{Enabled: true, Capacity: 5, RefillTokens: 1, RefillInterval: 1e9, TTL: 60e9, Prefix: "rl:test"}
}

func TestRateLimitBlocksClassify(t *testing.T) {
	rdb := &scriptedRedis{result: []any{int64(0), int64(0), int64(1500)}}
	s := newTestServer(t, RateLimit(rateLimitConfig(), rdb, zap.NewNop()))

	req := httptest.NewRequest(fiber.MethodPost, "/api/tickets/classify/", strings.NewReader(`{"description":"x"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get(fiber.HeaderRetryAfter))
	assert.Equal(t, 0, s.completer.calls)
}

func TestRateLimitAllowsAndFailsOpen(t *testing.T) {
	rdb := &scriptedRedis{result: []any{int64(1), int64(4), int64(0)}}
	s := newTestServer(t, RateLimit(rateLimitConfig(), rdb, zap.NewNop()))

	status, _ := s.do(t, fiber.MethodPost, "/api/tickets/classify/", `{"description":"x"}`)
	assert.Equal(t, fiber.StatusOK, status)

	rdb.err = errors.New("redis down")
	rdb.result = nil
	status, _ = s.do(t, fiber.MethodPost, "/api/tickets/classify/", `{"description":"x"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 2, s.completer.calls)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	cfg := rateLimitConfig()
	cfg.Enabled = false
	rdb := &scriptedRedis{result: []any{int64(0), int64(0), int64(1000)}}
	s := newTestServer(t, RateLimit(cfg, rdb, zap.NewNop()))

	status, _ := s.do(t, fiber.MethodPost, "/api/tickets/classify/", `{"description":"x"}`)
	assert.Equal(t, fiber.StatusOK, status)

	s = newTestServer(t, RateLimit(rateLimitConfig(), nil, zap.NewNop()))
	status, _ = s.do(t, fiber.MethodPost, "/api/tickets/classify/", `{"description":"x"}`)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestRateLimitIgnoresClientForwardedFor(t *testing.T) {
	rdb := &scriptedRedis{result: []any{int64(1), int64(4), int64(0)}}
	s := newTestServer(t, RateLimit(rateLimitConfig(), rdb, zap.NewNop()))

	assert.Equal(t, fiber.StatusOK, s.classifyFrom(t, "1.1.1.1"))
	assert.Equal(t, fiber.StatusOK, s.classifyFrom(t, "2.2.2.2"))

	require.Len(t, rdb.keys, 2)
	assert.Equal(t, rdb.keys[0], rdb.keys[1])
	assert.NotContains(t, rdb.keys[0], "1.1.1.1")
}

func TestRateLimitHonoursForwardedForFromTrustedProxy(t *testing.T) {
	rdb := &scriptedRedis{result: []any{int64(1), int64(4), int64(0)}}
	// app.Test connections come from 0.0.0.0.
	s := newTestServerWithApp(t, RateLimit(rateLimitConfig(), rdb, zap.NewNop()), AppDependencies{
		Name:           "test",
		TrustedProxies: []string{"0.0.0.0"},
		ProxyHeader:    fiber.HeaderXForwardedFor,
	})

	assert.Equal(t, fiber.StatusOK, s.classifyFrom(t, "1.1.1.1"))
	assert.Equal(t, fiber.StatusOK, s.classifyFrom(t, "2.2.2.2"))

	assert.Equal(t, []string{"rl:test:ip:1.1.1.1", "rl:test:ip:2.2.2.2"}, rdb.keys)
}

func TestPanicIsRenderedAndLoggedWithRequestID(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s := newTestServerWithApp(t, nil, AppDependencies{Name: "test", Logger: zap.New(core)})
	s.app.Get("/boom", func(*fiber.Ctx) error { panic("kaboom") })

	req := httptest.NewRequest(fiber.MethodGet, "/boom", nil)
	req.Header.Set(observability.RequestIDHeader, "req-123")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, raw).Error.Code)
	assert.Equal(t, "req-123", resp.Header.Get(observability.RequestIDHeader))

	entries := logs.All()
	require.NotEmpty(t, entries)
	for _, entry := range entries {
		assert.Equal(t, "req-123", entry.ContextMap()["request_id"], entry.Message)
	}
}
