package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ALLOWED_ORIGIN", "BRANCH_ID", "BRANCH_CODE",
		"TAX_RATE_PERCENT", "SLIP_TOLERANCE_SATANG", "SLIP_RECENCY_HOURS",
		"SHOP_BANK_ACCOUNTS", "UNPAID_CANCEL_AFTER_MINUTES", "ACCESS_TOKEN_TTL_MINUTES",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.BranchID != "branch_001" || cfg.BranchCode != "SAR" {
		t.Fatalf("unexpected branch defaults: %s %s", cfg.BranchID, cfg.BranchCode)
	}
	if cfg.TaxRatePercent != 7 {
		t.Fatalf("expected 7%% tax default, got %v", cfg.TaxRatePercent)
	}
	if cfg.SlipToleranceSatang != 100 {
		t.Fatalf("expected 100 satang tolerance, got %d", cfg.SlipToleranceSatang)
	}
	if cfg.SlipRecencyHours != 24 {
		t.Fatalf("expected 24h recency, got %d", cfg.SlipRecencyHours)
	}
	if cfg.UnpaidCancelAfterMin != 30 {
		t.Fatalf("expected 30min unpaid window, got %d", cfg.UnpaidCancelAfterMin)
	}
	if len(cfg.ShopAccounts) != 0 {
		t.Fatalf("expected no shop accounts by default, got %v", cfg.ShopAccounts)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestLoadOverridesAndFallbacks(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TAX_RATE_PERCENT", "10")
	t.Setenv("SLIP_TOLERANCE_SATANG", "not-a-number")
	t.Setenv("SLIP_RECENCY_HOURS", "-5")
	t.Setenv("SHOP_BANK_ACCOUNTS", " 123-4-56789-0 , 987-6-54321-0 ,")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected 9090, got %s", cfg.Port)
	}
	if cfg.TaxRatePercent != 10 {
		t.Fatalf("expected 10%% tax, got %v", cfg.TaxRatePercent)
	}
	if cfg.SlipToleranceSatang != 100 {
		t.Fatalf("bad tolerance must fall back to 100, got %d", cfg.SlipToleranceSatang)
	}
	if cfg.SlipRecencyHours != 24 {
		t.Fatalf("negative recency must fall back to 24, got %d", cfg.SlipRecencyHours)
	}
	if len(cfg.ShopAccounts) != 2 || cfg.ShopAccounts[0] != "123-4-56789-0" {
		t.Fatalf("unexpected account list %v", cfg.ShopAccounts)
	}
}
