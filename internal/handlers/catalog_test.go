package handlers

import (
	"net/http"
	"testing"
	"time"
)

func TestCatalogStateBeforeAndAfterLoad(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/v1/catalog", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	before := decodeBody[catalogStatePayload](t, rr)
	if before.Loaded || before.ProductCount != 3 || before.BaselineCount != 3 {
		t.Fatalf("unexpected initial state %+v", before)
	}
	if before.Error != nil {
		t.Fatalf("expected no error before load, got %q", *before.Error)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/catalog:load", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	after := decodeBody[catalogStatePayload](t, rr)
	if !after.Loaded || after.ProductCount != 4 {
		t.Fatalf("unexpected loaded state %+v", after)
	}
	if after.LoadedAt == nil {
		t.Fatalf("expected loadedAt after load")
	}

	env.do(t, http.MethodPost, "/api/v1/catalog:load", nil, nil)
	if calls := env.remote.calls.Load(); calls != 1 {
		t.Fatalf("expected a single remote fetch, got %d", calls)
	}

	env.do(t, http.MethodPost, "/api/v1/catalog:refresh", nil, nil)
	if calls := env.remote.calls.Load(); calls != 2 {
		t.Fatalf("expected refresh to fetch again, got %d", calls)
	}
}

func TestCatalogLoadWhenEveryRemoteFails(t *testing.T) {
	env := newTestEnv(t, &staticSource{name: "dummy", remote: true, err: errRemoteDown})

	rr := env.do(t, http.MethodPost, "/api/v1/catalog:load", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	state := decodeBody[catalogStatePayload](t, rr)
	if state.Loaded {
		t.Fatalf("expected catalog to stay unloaded")
	}
	if state.Error == nil || *state.Error != "Failed to load external products" {
		t.Fatalf("expected load failure message, got %v", state.Error)
	}
	if state.ProductCount != 3 {
		t.Fatalf("expected baseline products to remain, got %d", state.ProductCount)
	}
	if _, ok := state.SourceErrors["dummy"]; !ok {
		t.Fatalf("expected dummy source error, got %v", state.SourceErrors)
	}
}

func TestCatalogHandlersUnavailable(t *testing.T) {
	router := NewRouter(WithCatalogRoutes(NewCatalogHandlers(nil).Routes))

	env := &testEnv{router: router}
	rr := env.do(t, http.MethodGet, "/api/v1/catalog", nil, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	body := decodeBody[errorBody](t, rr)
	if body.Error != "catalog_unavailable" {
		t.Fatalf("unexpected error code %q", body.Error)
	}
}

func TestCatalogRefreshIsRateLimited(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	catalog := newTestEnv(t, nil).catalog
	router := NewRouter(WithCatalogRoutes(NewCatalogHandlers(catalog,
		WithRefreshLimit(2, time.Minute, func() time.Time { return now }),
	).Routes))
	env := &testEnv{router: router}

	for i := 0; i < 2; i++ {
		if rr := env.do(t, http.MethodPost, "/api/v1/catalog:refresh", nil, nil); rr.Code != http.StatusOK {
			t.Fatalf("refresh %d: expected 200, got %d", i, rr.Code)
		}
	}

	rr := env.do(t, http.MethodPost, "/api/v1/catalog:refresh", nil, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60, got %q", got)
	}

	now = now.Add(time.Minute)
	if rr := env.do(t, http.MethodPost, "/api/v1/catalog:refresh", nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected refresh after window, got %d", rr.Code)
	}
}

func TestWindowLimiterKeysAreIndependent(t *testing.T) {
	limiter := newWindowLimiter(1, time.Second, nil)
	if ok, _ := limiter.allow("10.0.0.1"); !ok {
		t.Fatalf("expected first hit allowed")
	}
	if ok, _ := limiter.allow("10.0.0.1"); ok {
		t.Fatalf("expected second hit rejected")
	}
	if ok, _ := limiter.allow("10.0.0.2"); !ok {
		t.Fatalf("expected other client allowed")
	}
	var disabled *windowLimiter
	if ok, _ := disabled.allow("x"); !ok {
		t.Fatalf("expected nil limiter to allow")
	}
}
