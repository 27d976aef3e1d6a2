package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"shopsense/internal/middleware"
	"shopsense/internal/models"
	"shopsense/internal/services"
)

func newRecommendApp(t *testing.T) (*fiber.App, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	stats := services.NewStatsService(rdb, time.Hour)
	popular := services.NewPopularityService(rdb, "popular_requirements", 50, 50, time.Hour)
	store := services.NewRecommendationStore(rdb, 20, time.Hour, stats, popular)
	h := NewRecommendHandler(store, popular, 50, 20)

	app := fiber.New()
	app.Use(middleware.ResolveSubject())
	app.Post("/recommendations", h.Save)
	app.Get("/recommendations", h.List)
	app.Get("/recommendations/:id", h.Detail)
	app.Get("/requirements/popular", h.PopularRequirements)
	return app, mr
}

func postJSON(t *testing.T, app *fiber.App, path, user, body string) models.APIResponse {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", user)
	return decodeResponse(t, app, req)
}

func getJSON(t *testing.T, app *fiber.App, path, user string) models.APIResponse {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("X-User-ID", user)
	return decodeResponse(t, app, req)
}

func decodeResponse(t *testing.T, app *fiber.App, req *http.Request) models.APIResponse {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var out models.APIResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("response is not valid JSON: %s", body)
	}
	return out
}

func TestSaveAndListRecommendations(t *testing.T) {
	app, _ := newRecommendApp(t)

	resp := postJSON(t, app, "/recommendations", "user-1",
		`{"requirement":"need a gaming laptop","recommendation_text":"Try the Raider 18.","products":[{"id":"p1"},{"id":"p2"}]}`)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}

	list := getJSON(t, app, "/recommendations", "user-1")
	if !list.Success {
		t.Fatalf("expected success, got %+v", list)
	}
	items, ok := list.Data.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected 1 summary, got %v", list.Data)
	}
	first, _ := items[0].(map[string]any)
	if first["text"] != "need a gaming laptop" {
		t.Errorf("expected requirement as summary text, got %v", first["text"])
	}
	if first["item_count"] != float64(2) {
		t.Errorf("expected item count 2, got %v", first["item_count"])
	}

	// Another user sees nothing.
	other := getJSON(t, app, "/recommendations", "user-2")
	if items, _ := other.Data.([]any); len(items) != 0 {
		t.Errorf("expected empty history for another user, got %v", other.Data)
	}
}

func TestSaveRejectsMissingFields(t *testing.T) {
	app, _ := newRecommendApp(t)

	req := httptest.NewRequest("POST", "/recommendations", strings.NewReader(`{"requirement":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSaveDegradesWhenStoreUnavailable(t *testing.T) {
	app, mr := newRecommendApp(t)
	mr.Close()

	resp := postJSON(t, app, "/recommendations", "user-1",
		`{"requirement":"need a phone","recommendation_text":"Try the Phone X."}`)
	if !resp.Success {
		t.Errorf("expected success envelope even with history unavailable, got %+v", resp)
	}
	if !strings.Contains(resp.Message, "not recorded") {
		t.Errorf("expected a not-recorded notice, got %q", resp.Message)
	}
}

func TestDetailNotFound(t *testing.T) {
	app, _ := newRecommendApp(t)

	req := httptest.NewRequest("GET", "/recommendations/rec_0_00000", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("expected 404 for unknown recommendation, got %d", resp.StatusCode)
	}
}

func TestPopularRequirementsAggregateAcrossUsers(t *testing.T) {
	app, _ := newRecommendApp(t)

	for _, user := range []string{"user-1", "user-2"} {
		resp := postJSON(t, app, "/recommendations", user,
			`{"requirement":"Need a Phone","recommendation_text":"Phone X."}`)
		if !resp.Success {
			t.Fatalf("save failed for %s: %+v", user, resp)
		}
	}

	popular := getJSON(t, app, "/requirements/popular", "user-3")
	entries, ok := popular.Data.([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("expected one leaderboard entry, got %v", popular.Data)
	}
	entry, _ := entries[0].(map[string]any)
	if entry["text"] != "need a phone" {
		t.Errorf("expected normalized requirement, got %v", entry["text"])
	}
	if entry["count"] != float64(2) {
		t.Errorf("expected count aggregated across users, got %v", entry["count"])
	}
}
