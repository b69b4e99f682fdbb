package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clarify-api/internal/common/completion"
	"clarify-api/internal/common/config"
	"clarify-api/internal/common/identity"
	"clarify-api/internal/common/logger"
	"clarify-api/internal/models"
	accessgate "clarify-api/internal/services/access-gate"
	creditledger "clarify-api/internal/services/credit-ledger"
	repairpipeline "clarify-api/internal/services/repair-pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type stubCompleter struct {
	reply string
	err   error
}

func (s stubCompleter) Complete(context.Context, completion.Request) (string, error) {
	return s.reply, s.err
}

// countingRepairer records how often the pipeline was reached.
type countingRepairer struct {
	next  Repairer
	calls atomic.Int32
}

func (c *countingRepairer) Repair(ctx context.Context, text string) (*models.RepairResult, error) {
	c.calls.Add(1)
	return c.next.Repair(ctx, text)
}

// barrierRepairer holds every call until n calls have arrived, so that all
// concurrent requests pass the gate before any of them is billed.
type barrierRepairer struct {
	wg sync.WaitGroup
}

func newBarrier(n int) *barrierRepairer {
	b := &barrierRepairer{}
	b.wg.Add(n)
	return b
}

func (b *barrierRepairer) Repair(context.Context, string) (*models.RepairResult, error) {
	b.wg.Done()
	b.wg.Wait()
	return &models.RepairResult{Value: map[string]interface{}{}, Tier: models.TierHeuristic}, nil
}

type fixture struct {
	server   *Server
	store    *identity.MemoryStore
	repairer *countingRepairer
}

func testConfig(mode string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           0,
			AllowedOrigins: []string{"https://app.clarify.dev"},
			MaxBodyBytes:   1 << 20,
		},
		Limits: config.LimitsConfig{DemoMaxChars: 5000, MeteredMaxChars: 50000},
		Ledger: config.LedgerConfig{Mode: mode},
	}
}

func newFixture(t *testing.T, mode string, repairer Repairer, completer completion.Completer) *fixture {
	t.Helper()
	log := logger.NewTestLogger(t)

	store := identity.NewMemoryStore()
	store.PutAccount("key-5", models.Account{ID: "acc-5", Credits: 5})
	store.PutAccount("key-1", models.Account{ID: "acc-1", Credits: 1})
	store.PutAccount("key-0", models.Account{ID: "acc-0", Credits: 0})

	if repairer == nil {
		repairer = repairpipeline.New(repairpipeline.LoadConfig(), completer, log)
	}
	counting := &countingRepairer{next: repairer}

	cfg := testConfig(mode)
	srv := New(cfg, Deps{
		Pipeline: counting,
		Gate:     accessgate.New(store, log),
		Ledger:   creditledger.New(creditledger.LoadConfig(cfg.Ledger), store, log),
		Logger:   log,
	})
	return &fixture{server: srv, store: store, repairer: counting}
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func repairBody(t *testing.T, text string) string {
	raw, err := json.Marshal(models.RepairRequest{BrokenJSON: text})
	require.NoError(t, err)
	return string(raw)
}

func TestHealthAndRoot(t *testing.T) {
	f := newFixture(t, config.LedgerModeAtomic, nil, stubCompleter{})

	rec := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	rec = f.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Welcome to the Clarify AI backend"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDemoRepair(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		completer  completion.Completer
		wantStatus int
		wantBody   string
		wantCalls  int32
	}{
		{
			name:       "heuristic repair",
			body:       repairBody(t, `{"a": 1,`),
			wantStatus: http.StatusOK,
			wantBody:   `{"repaired_json":{"a":1},"tier":"heuristic"}`,
			wantCalls:  1,
		},
		{
			name:       "valid array passes through",
			body:       repairBody(t, `[1, "two", null]`),
			wantStatus: http.StatusOK,
			wantBody:   `{"repaired_json":[1,"two",null],"tier":"heuristic"}`,
			wantCalls:  1,
		},
		{
			name:       "llm fallback",
			body:       repairBody(t, ""),
			completer:  stubCompleter{reply: `{"from":"llm"}`},
			wantStatus: http.StatusOK,
			wantBody:   `{"repaired_json":{"from":"llm"},"tier":"llm"}`,
			wantCalls:  1,
		},
		{
			name:       "llm returns prose",
			body:       repairBody(t, ""),
			completer:  stubCompleter{reply: "no idea"},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"detail":"Repair failed"}`,
			wantCalls:  1,
		},
		{
			name:       "backslash comma goes to llm",
			body:       repairBody(t, `"\,"*tr`),
			completer:  stubCompleter{reply: `"\\,"`},
			wantStatus: http.StatusOK,
			wantBody:   `{"repaired_json":"\\,","tier":"llm"}`,
			wantCalls:  1,
		},
		{
			name:       "backslash comma with llm down",
			body:       repairBody(t, `"\,"*tr`),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"detail":"Repair failed"}`,
			wantCalls:  1,
		},
		{
			name:       "5000 characters accepted",
			body:       repairBody(t, `"`+strings.Repeat("a", 4998)+`"`),
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:       "5001 characters rejected",
			body:       repairBody(t, strings.Repeat("a", 5001)),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantBody:   `{"detail":"Input too large for demo"}`,
			wantCalls:  0,
		},
		{
			name:       "limit counts characters not bytes",
			body:       repairBody(t, `"`+strings.Repeat("é", 4998)+`"`),
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:       "missing field",
			body:       `{}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCalls:  0,
		},
		{
			name:       "wrong type",
			body:       `{"broken_json": 5}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCalls:  0,
		},
		{
			name:       "body not JSON",
			body:       `broken_json=1`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCalls:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := tt.completer
			if completer == nil {
				completer = stubCompleter{err: completion.ErrCompletionFailed}
			}
			f := newFixture(t, config.LedgerModeAtomic, nil, completer)

			rec := f.do(http.MethodPost, "/repair/demo", tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
			assert.Equal(t, tt.wantCalls, f.repairer.calls.Load())
		})
	}
}

func TestDemoRepair_BodyTooLarge(t *testing.T) {
	f := newFixture(t, config.LedgerModeAtomic, nil, stubCompleter{})

	rec := f.do(http.MethodPost, "/repair/demo", repairBody(t, strings.Repeat("x", 2<<20)), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, f.repairer.calls.Load())
}

func TestMeteredRepair_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		text       string
		wantStatus int
		wantDetail string
	}{
		{"missing key", "", `{"a":1}`, http.StatusUnauthorized, "API key missing"},
		{"unknown key", "nope", `{"a":1}`, http.StatusForbidden, "Invalid API key"},
		{"no credits", "key-0", `{"a":1}`, http.StatusPaymentRequired, "Insufficient credits"},
		{"too large", "key-5", strings.Repeat("a", 50001), http.StatusRequestEntityTooLarge, "Input too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, config.LedgerModeAtomic, nil, stubCompleter{})

			headers := map[string]string{}
			if tt.key != "" {
				headers[headerAPIKey] = tt.key
			}
			rec := f.do(http.MethodPost, "/repair", repairBody(t, tt.text), headers)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, `{"detail":"`+tt.wantDetail+`"}`, rec.Body.String())
			assert.Zero(t, f.repairer.calls.Load(), "pipeline must not run")

			credits, err := f.store.GetCredits(context.Background(), "acc-5")
			require.NoError(t, err)
			assert.Equal(t, 5, credits)
		})
	}
}

func TestMeteredRepair_Success(t *testing.T) {
	for _, mode := range []string{config.LedgerModeAtomic, config.LedgerModeUnconditional} {
		t.Run(mode, func(t *testing.T) {
			f := newFixture(t, mode, nil, stubCompleter{})

			rec := f.do(http.MethodPost, "/repair", repairBody(t, `{name: "clarify"`), map[string]string{headerAPIKey: "key-5"})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, `{"repaired_json":{"name":"clarify"},"tier":"heuristic","credits_left":4}`, rec.Body.String())

			credits, err := f.store.GetCredits(context.Background(), "acc-5")
			require.NoError(t, err)
			assert.Equal(t, 4, credits)
		})
	}
}

func TestMeteredRepair_FailureIsNotBilled(t *testing.T) {
	tests := []struct {
		name       string
		completer  completion.Completer
		wantDetail string
	}{
		{"service error", stubCompleter{err: completion.ErrCompletionTimeout}, "Repair failed"},
		{"invalid output", stubCompleter{reply: "{{{"}, "Repair produced invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, config.LedgerModeAtomic, nil, tt.completer)

			rec := f.do(http.MethodPost, "/repair", repairBody(t, ""), map[string]string{headerAPIKey: "key-5"})
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"detail":"`+tt.wantDetail+`"}`, rec.Body.String())

			credits, _ := f.store.GetCredits(context.Background(), "acc-5")
			assert.Equal(t, 5, credits)
		})
	}
}

func concurrentLastCredit(t *testing.T, mode string) []int {
	f := newFixture(t, mode, newBarrier(2), nil)

	statuses := make([]int, 2)
	var g errgroup.Group
	for i := range statuses {
		g.Go(func() error {
			rec := f.do(http.MethodPost, "/repair", repairBody(t, `{}`), map[string]string{headerAPIKey: "key-1"})
			statuses[i] = rec.Code
			return nil
		})
	}
	require.NoError(t, g.Wait())

	credits, err := f.store.GetCredits(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 0, credits)
	return statuses
}

func TestMeteredRepair_ConcurrentLastCredit(t *testing.T) {
	t.Run("atomic bills once", func(t *testing.T) {
		statuses := concurrentLastCredit(t, config.LedgerModeAtomic)
		assert.ElementsMatch(t, []int{http.StatusOK, http.StatusPaymentRequired}, statuses)
	})

	t.Run("unconditional reproduces the double spend", func(t *testing.T) {
		statuses := concurrentLastCredit(t, config.LedgerModeUnconditional)
		assert.Equal(t, []int{http.StatusOK, http.StatusOK}, statuses)
	})
}

func TestCORS(t *testing.T) {
	f := newFixture(t, config.LedgerModeAtomic, nil, stubCompleter{})

	t.Run("preflight from allowed origin", func(t *testing.T) {
		rec := f.do(http.MethodOptions, "/repair", "", map[string]string{
			"Origin":                         "https://app.clarify.dev",
			"Access-Control-Request-Method":  "POST",
			"Access-Control-Request-Headers": "X-API-Key",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://app.clarify.dev", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
	})

	t.Run("preflight from other origin", func(t *testing.T) {
		rec := f.do(http.MethodOptions, "/repair", "", map[string]string{
			"Origin":                        "https://evil.example",
			"Access-Control-Request-Method": "POST",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("simple request", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/health", "", map[string]string{"Origin": "https://app.clarify.dev"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://app.clarify.dev", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, config.LedgerModeAtomic, nil, stubCompleter{})

	rec := f.do(http.MethodGet, "/health", "", map[string]string{headerRequestID: "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get(headerRequestID))
}

func TestServe_GracefulShutdown(t *testing.T) {
	f := newFixture(t, config.LedgerModeAtomic, nil, stubCompleter{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()

	transport := &http.Transport{}
	client := &http.Client{Transport: transport, Timeout: 2 * time.Second}

	resp, err := client.Post("http://"+ln.Addr().String()+"/repair/demo", "application/json",
		bytes.NewBufferString(repairBody(t, `{"ok":true}`)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	transport.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	rec := f.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
