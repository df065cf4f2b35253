package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("DISPATCH_BATCH_SIZE", "")
	t.Setenv("CONVERSATION_TTL", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.LLMProvider != "gemini" {
		t.Fatalf("expected gemini provider by default, got %s", cfg.LLMProvider)
	}
	if cfg.DispatchBatchSize != 10 {
		t.Fatalf("expected batch size 10, got %d", cfg.DispatchBatchSize)
	}
	if cfg.ConversationTTL != 30*time.Minute {
		t.Fatalf("expected 30m conversation ttl, got %s", cfg.ConversationTTL)
	}
	if cfg.SlotLockTTL != 300*time.Second {
		t.Fatalf("expected 300s slot lock ttl, got %s", cfg.SlotLockTTL)
	}
	if cfg.AgentMaxIterations != 5 {
		t.Fatalf("expected 5 agent iterations, got %d", cfg.AgentMaxIterations)
	}
	if cfg.BudgetSafetyMargin != 1.2 {
		t.Fatalf("expected 1.2 safety margin, got %v", cfg.BudgetSafetyMargin)
	}
	if cfg.BusinessOpenHour != 8 || cfg.BusinessCloseHour != 18 {
		t.Fatalf("expected 08-18 business hours, got %d-%d", cfg.BusinessOpenHour, cfg.BusinessCloseHour)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_PROVIDER", " Bedrock ")
	t.Setenv("PRICE_CAPABLE_INPUT", "3.5")
	t.Setenv("ORACLE_TIMEOUT", "5s")
	t.Setenv("DISPATCH_WORKER_ENABLED", "true")
	t.Setenv("CONVERSATION_MAX_TURNS", "12")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.LLMProvider != "bedrock" {
		t.Fatalf("expected normalized provider, got %q", cfg.LLMProvider)
	}
	if cfg.PriceCapableInput != 3.5 {
		t.Fatalf("expected price override, got %v", cfg.PriceCapableInput)
	}
	if cfg.OracleTimeout != 5*time.Second {
		t.Fatalf("expected oracle timeout override, got %s", cfg.OracleTimeout)
	}
	if !cfg.DispatchWorkerEnabled {
		t.Fatalf("expected dispatch worker enabled")
	}
	if cfg.ConversationMaxTurns != 12 {
		t.Fatalf("expected max turns override, got %d", cfg.ConversationMaxTurns)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DISPATCH_BATCH_SIZE", "ten")
	t.Setenv("DISPATCH_INTERVAL", "soon")
	t.Setenv("PRICE_CHEAP_INPUT", "free")
	cfg := Load()
	if cfg.DispatchBatchSize != 10 {
		t.Fatalf("expected default batch size, got %d", cfg.DispatchBatchSize)
	}
	if cfg.DispatchInterval != time.Minute {
		t.Fatalf("expected default interval, got %s", cfg.DispatchInterval)
	}
	if cfg.PriceCheapInput != 0.15 {
		t.Fatalf("expected default price, got %v", cfg.PriceCheapInput)
	}
}
