package observability

import (
	"strings"
	"testing"
)

func TestSanitizeRouteStripsControlCharacters(t *testing.T) {
	got := SanitizeRoute("/inventory/\x1b[31mreduce\x00")
	if got != "/inventory/[31mreduce" {
		t.Fatalf("unexpected sanitized route %q", got)
	}
	if SanitizeRoute("") != "/" {
		t.Fatal("empty route must read as /")
	}
}

func TestSanitizeRouteCapsLength(t *testing.T) {
	long := "/" + strings.Repeat("a", 500)
	if got := SanitizeRoute(long); len(got) != 180 {
		t.Fatalf("expected route capped at 180, got %d", len(got))
	}
}

func TestSanitizeMethod(t *testing.T) {
	if got := SanitizeMethod("GET\x00"); got != "GET" {
		t.Fatalf("unexpected sanitized method %q", got)
	}
	if got := SanitizeMethod("PROPFINDEXTRA"); got != "PROPFINDEX" {
		t.Fatalf("expected method capped at 10, got %q", got)
	}
}
