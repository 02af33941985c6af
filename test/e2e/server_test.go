package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sundayezeilo/shortlink/codec"
	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/db"
	"github.com/sundayezeilo/shortlink/internal/server"
	"github.com/sundayezeilo/shortlink/internal/shortener"
	"github.com/sundayezeilo/shortlink/internal/store/pgstore"
	"github.com/sundayezeilo/shortlink/internal/sweeper"
)

const baseURL = "http://sho.rt"

// testClock is a manually advanced time source shared by the engine and sweeper.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testApp holds the application components for e2e testing
type testApp struct {
	ts      *httptest.Server
	client  *http.Client
	dbPool  *pgxpool.Pool
	store   shortener.Store
	clock   *testClock
	sweeper *sweeper.Sweeper
}

// setupTestApp creates a test application backed by a real database
func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(dbPool.Close)

	if err := dbPool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	if _, err := db.Migrate(ctx, dbPool); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	// postgres keeps microseconds; start on a whole second so round trips compare equal
	clock := &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	store := pgstore.New(db.New(dbPool))
	svc := shortener.NewService(store, &shortener.ServiceConfig{Clock: clock.Now})
	handler := shortener.NewHandler(shortener.HandlerConfig{
		Service: svc,
		Logger:  logger,
		BaseURL: baseURL,
	})

	cfg := &config.Config{
		Server: config.ServerConfig{BaseURL: baseURL},
		Store:  config.StoreConfig{Driver: config.DriverPostgres},
		App: config.AppConfig{
			Environment:    "test",
			LogLevel:       "error",
			ServiceName:    "shortlink-test",
			ServiceVersion: "test",
		},
	}

	sw, err := sweeper.New(store, sweeper.Config{Clock: clock.Now}, logger)
	if err != nil {
		t.Fatalf("failed to create sweeper: %v", err)
	}

	ts := httptest.NewServer(server.New(cfg, logger, handler).Handler())
	t.Cleanup(ts.Close)

	return &testApp{
		ts: ts,
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		dbPool:  dbPool,
		store:   store,
		clock:   clock,
		sweeper: sw,
	}
}

func (a *testApp) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, a.ts.URL+path, r)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp, data
}

func (a *testApp) create(t *testing.T, body map[string]any) shortener.CreateLinkResponse {
	t.Helper()
	resp, data := a.do(t, http.MethodPost, "/api/links", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", resp.StatusCode, data)
	}
	var out shortener.CreateLinkResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	return out
}

func TestHealthCheck(t *testing.T) {
	app := setupTestApp(t)

	resp, data := app.do(t, http.MethodGet, "/x/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	var response map[string]string
	if err := json.Unmarshal(data, &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("expected status 'ok', got %s", response["status"])
	}
	if response["store"] != "postgres" {
		t.Errorf("expected store 'postgres', got %s", response["store"])
	}
}

func TestCreateLink_E2E(t *testing.T) {
	app := setupTestApp(t)

	tests := []struct {
		name           string
		requestBody    map[string]any
		expectedStatus int
		checkResponse  func(*testing.T, map[string]any)
	}{
		{
			name:           "create link without ttl",
			requestBody:    map[string]any{"url": "https://example.com/test"},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, resp map[string]any) {
				if resp["short_code"] != "1" {
					t.Errorf("expected short_code '1', got %v", resp["short_code"])
				}
				if resp["short_url"] != baseURL+"/1" {
					t.Errorf("expected short_url %q, got %v", baseURL+"/1", resp["short_url"])
				}
				if _, ok := resp["expires_at"]; ok {
					t.Errorf("expected no expires_at, got %v", resp["expires_at"])
				}
			},
		},
		{
			name:           "create link with ttl",
			requestBody:    map[string]any{"url": "https://example.com/ttl", "ttl_hours": 2},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, resp map[string]any) {
				if resp["expires_at"] != "2025-06-01T11:00:00Z" {
					t.Errorf("expected expires_at 2025-06-01T11:00:00Z, got %v", resp["expires_at"])
				}
			},
		},
		{
			name:           "missing url",
			requestBody:    map[string]any{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid url format",
			requestBody:    map[string]any{"url": "not-a-valid-url"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "negative ttl",
			requestBody:    map[string]any{"url": "https://example.com", "ttl_hours": -1},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := app.do(t, http.MethodPost, "/api/links", tt.requestBody)
			if resp.StatusCode != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d (body: %s)", tt.expectedStatus, resp.StatusCode, data)
			}
			if tt.checkResponse == nil {
				return
			}
			if loc := resp.Header.Get("Location"); loc == "" {
				t.Error("expected Location header")
			}
			var response map[string]any
			if err := json.Unmarshal(data, &response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			tt.checkResponse(t, response)
		})
	}
}

func TestResolveAndStats_E2E(t *testing.T) {
	app := setupTestApp(t)
	ctx := context.Background()

	created := app.create(t, map[string]any{"url": "https://example.com/track-test"})

	for i := range 3 {
		app.clock.Advance(time.Minute)
		resp, _ := app.do(t, http.MethodGet, "/"+created.ShortCode, nil)
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("resolve attempt %d failed with status %d", i+1, resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != "https://example.com/track-test" {
			t.Errorf("expected Location https://example.com/track-test, got %s", loc)
		}
	}

	resp, data := app.do(t, http.MethodGet, "/api/links/"+created.ShortCode+"/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	var stats shortener.StatsResponse
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.AccessCount != 3 {
		t.Errorf("expected access count 3, got %d", stats.AccessCount)
	}
	if stats.LastAccessedAt == nil || !stats.LastAccessedAt.Equal(app.clock.Now()) {
		t.Errorf("expected last_accessed_at %v, got %v", app.clock.Now(), stats.LastAccessedAt)
	}

	key, err := codec.Decode(created.ShortCode)
	if err != nil {
		t.Fatalf("failed to decode short code: %v", err)
	}
	row, err := db.New(app.dbPool).GetMapping(ctx, int64(key))
	if err != nil {
		t.Fatalf("failed to get mapping from database: %v", err)
	}
	if row.AccessCount != 3 {
		t.Errorf("expected stored access count 3, got %d", row.AccessCount)
	}
	if !row.LastAccessedAt.Valid {
		t.Error("expected last_accessed_at to be set")
	}

	for _, path := range []string{"/zzzzzz", "/not-base62!", "/api/links/zzzzzz/stats"} {
		resp, _ := app.do(t, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestExpiry_E2E(t *testing.T) {
	app := setupTestApp(t)

	created := app.create(t, map[string]any{"url": "https://example.com/expiring", "ttl_hours": 1})
	forever := app.create(t, map[string]any{"url": "https://example.com/forever", "ttl_hours": 0})

	// exactly at the expiry instant the link still resolves
	app.clock.Advance(time.Hour)
	if resp, _ := app.do(t, http.MethodGet, "/"+created.ShortCode, nil); resp.StatusCode != http.StatusFound {
		t.Fatalf("resolve at expiry instant: expected 302, got %d", resp.StatusCode)
	}

	app.clock.Advance(time.Second)
	resp, data := app.do(t, http.MethodGet, "/"+created.ShortCode, nil)
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("resolve after expiry: expected 410, got %d", resp.StatusCode)
	}
	var errResp map[string]any
	if err := json.Unmarshal(data, &errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp["error"] != "gone" {
		t.Errorf("expected error code 'gone', got %v", errResp["error"])
	}

	// expired mappings stay visible in stats and are not counted
	resp, data = app.do(t, http.MethodGet, "/api/links/"+created.ShortCode+"/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats on expired: expected 200, got %d", resp.StatusCode)
	}
	var stats shortener.StatsResponse
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if !stats.IsExpired || stats.AccessCount != 1 {
		t.Errorf("expected expired mapping with count 1, got expired=%v count=%d", stats.IsExpired, stats.AccessCount)
	}

	deleted, err := app.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() unexpected error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 swept mapping, got %d", deleted)
	}

	if resp, _ := app.do(t, http.MethodGet, "/"+created.ShortCode, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("resolve after sweep: expected 404, got %d", resp.StatusCode)
	}
	if resp, _ := app.do(t, http.MethodGet, "/"+forever.ShortCode, nil); resp.StatusCode != http.StatusFound {
		t.Errorf("never-expiring link: expected 302, got %d", resp.StatusCode)
	}
}

func TestDeleteLink_E2E(t *testing.T) {
	app := setupTestApp(t)

	created := app.create(t, map[string]any{"url": "https://example.com/delete-me"})

	resp, _ := app.do(t, http.MethodDelete, "/api/links/"+created.ShortCode, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}

	resp, _ = app.do(t, http.MethodDelete, "/api/links/"+created.ShortCode, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", resp.StatusCode)
	}

	resp, _ = app.do(t, http.MethodGet, "/"+created.ShortCode, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("resolve after delete: expected 404, got %d", resp.StatusCode)
	}

	// keys are never reused
	next := app.create(t, map[string]any{"url": "https://example.com/next"})
	if next.ShortCode == created.ShortCode {
		t.Errorf("deleted code %s was reissued", created.ShortCode)
	}
}

func TestConcurrentLinkCreation_E2E(t *testing.T) {
	app := setupTestApp(t)

	concurrency := 10
	errChan := make(chan error, concurrency)
	codeChan := make(chan string, concurrency)

	for i := range concurrency {
		go func(index int) {
			body, _ := json.Marshal(map[string]string{
				"url": fmt.Sprintf("https://example.com/concurrent-%d", index),
			})
			resp, err := app.client.Post(app.ts.URL+"/api/links", "application/json", bytes.NewReader(body))
			if err != nil {
				errChan <- err
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusCreated {
				errChan <- fmt.Errorf("request %d failed with status %d", index, resp.StatusCode)
				return
			}

			var response shortener.CreateLinkResponse
			if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
				errChan <- err
				return
			}
			codeChan <- response.ShortCode
			errChan <- nil
		}(i)
	}

	codes := make(map[string]bool)
	for range concurrency {
		if err := <-errChan; err != nil {
			t.Errorf("concurrent request failed: %v", err)
		}
	}
	close(codeChan)
	for code := range codeChan {
		if codes[code] {
			t.Errorf("duplicate code generated: %s", code)
		}
		codes[code] = true
	}

	if len(codes) != concurrency {
		t.Errorf("expected %d unique codes, got %d", concurrency, len(codes))
	}
}

func TestConcurrentResolves_E2E(t *testing.T) {
	app := setupTestApp(t)
	created := app.create(t, map[string]any{"url": "https://example.com/hot"})

	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := app.client.Get(app.ts.URL + "/" + created.ShortCode)
			if err != nil {
				t.Errorf("resolve failed: %v", err)
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()

	key, _ := codec.Decode(created.ShortCode)
	m, err := app.store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if m.AccessCount != n {
		t.Errorf("expected access count %d, got %d", n, m.AccessCount)
	}
}
