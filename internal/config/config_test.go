package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.MaxRecommendations != 20 || cfg.MaxConversations != 50 || cfg.MaxRecentViews != 10 {
		t.Errorf("unexpected retention defaults: %d/%d/%d",
			cfg.MaxRecommendations, cfg.MaxConversations, cfg.MaxRecentViews)
	}
	if cfg.HistoryTTL != 7*24*time.Hour {
		t.Errorf("expected 7 day history TTL, got %s", cfg.HistoryTTL)
	}
	if cfg.StatsTTL != 30*24*time.Hour {
		t.Errorf("expected 30 day stats TTL, got %s", cfg.StatsTTL)
	}
	if cfg.SemanticBoost != 1.2 {
		t.Errorf("expected semantic boost 1.2, got %v", cfg.SemanticBoost)
	}
	if cfg.PopularRequirementsCap != 50 || cfg.PopularQuestionsCap != 100 {
		t.Errorf("unexpected leaderboard caps: %d/%d",
			cfg.PopularRequirementsCap, cfg.PopularQuestionsCap)
	}
	if cfg.MaxSources != 3 {
		t.Errorf("expected 3 max sources, got %d", cfg.MaxSources)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_RECENT_VIEWS", "25")
	t.Setenv("SEMANTIC_BOOST", "1.5")
	t.Setenv("HISTORY_TTL_SECONDS", "3600")
	t.Setenv("ELASTICSEARCH_ENABLED", "false")
	t.Setenv("ELASTICSEARCH_ADDRESSES", "http://es1:9200, http://es2:9200/")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port override, got %s", cfg.Port)
	}
	if cfg.MaxRecentViews != 25 {
		t.Errorf("expected 25 recent views, got %d", cfg.MaxRecentViews)
	}
	if cfg.SemanticBoost != 1.5 {
		t.Errorf("expected boost 1.5, got %v", cfg.SemanticBoost)
	}
	if cfg.HistoryTTL != time.Hour {
		t.Errorf("expected 1h TTL, got %s", cfg.HistoryTTL)
	}
	if cfg.ESEnabled {
		t.Error("expected search disabled")
	}
	want := []string{"http://es1:9200", "http://es2:9200"}
	if len(cfg.ESAddresses) != 2 || cfg.ESAddresses[0] != want[0] || cfg.ESAddresses[1] != want[1] {
		t.Errorf("expected %v, got %v", want, cfg.ESAddresses)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MAX_CONVERSATIONS", "not-a-number")
	t.Setenv("SEMANTIC_BOOST", "high")

	cfg := Load()

	if cfg.MaxConversations != 50 {
		t.Errorf("expected default kept on malformed int, got %d", cfg.MaxConversations)
	}
	if cfg.SemanticBoost != 1.2 {
		t.Errorf("expected default kept on malformed float, got %v", cfg.SemanticBoost)
	}
}
