package env

import "testing"

func TestGetFallsBackOnBlank(t *testing.T) {
	t.Setenv("PAYOUTS_TEST_VALUE", "  ")
	if got := Get("PAYOUTS_TEST_VALUE", "json"); got != "json" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("PAYOUTS_TEST_VALUE", "console")
	if got := Get("PAYOUTS_TEST_VALUE", "json"); got != "console" {
		t.Fatalf("expected console, got %q", got)
	}
}

func TestFirstHonoursOrder(t *testing.T) {
	t.Setenv("PAYOUTS_TEST_A", "")
	t.Setenv("PAYOUTS_TEST_B", "b")
	t.Setenv("PAYOUTS_TEST_C", "c")
	if got := First("none", "PAYOUTS_TEST_A", "PAYOUTS_TEST_B", "PAYOUTS_TEST_C"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := First("none"); got != "none" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
