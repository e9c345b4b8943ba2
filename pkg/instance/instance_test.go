package instance

import "testing"

func TestIDPrefersExplicitOverride(t *testing.T) {
	t.Setenv("CIVIC_INSTANCE_ID", "api-7")
	t.Setenv("DYNO", "web.1")
	if got := ID(); got != "api-7" {
		t.Fatalf("expected api-7, got %q", got)
	}
}

func TestIDFallsBack(t *testing.T) {
	t.Setenv("CIVIC_INSTANCE_ID", "")
	t.Setenv("DYNO", "")
	t.Setenv("HOSTNAME", "  ")
	if got := ID(); got != fallbackID {
		t.Fatalf("expected %q, got %q", fallbackID, got)
	}
}
