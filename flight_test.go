package flightcache

import (
	"testing"
	"time"
)

func TestFlightAdmitDropsOldestAtCap(t *testing.T) {
	base := time.Unix(1700000000, 0)
	ft := newFlightTable(2)

	opA, dropped := ft.admit("a", base)
	if dropped != "" {
		t.Fatalf("no drop expected, got %q", dropped)
	}
	if _, dropped = ft.admit("b", base.Add(time.Second)); dropped != "" {
		t.Fatalf("no drop expected, got %q", dropped)
	}

	// Table full: admitting c unregisters a (oldest by start time).
	if _, dropped = ft.admit("c", base.Add(2*time.Second)); dropped != "a" {
		t.Fatalf("expected a dropped, got %q", dropped)
	}
	if n := ft.count(); n != 2 {
		t.Fatalf("expected 2 tracked, got %d", n)
	}

	// The dropped op settles untracked; b and c settle tracked.
	if ft.settle("a", opA) {
		t.Fatalf("dropped op must settle untracked")
	}
}

// Re-admitting a key replaces its op: the superseded op's settle must not
// report tracked, and must not untrack the replacement.
func TestFlightSettleChecksOpIdentity(t *testing.T) {
	base := time.Unix(1700000000, 0)
	ft := newFlightTable(4)

	op1, _ := ft.admit("k", base)
	op2, _ := ft.admit("k", base.Add(time.Second))

	if ft.settle("k", op1) {
		t.Fatalf("superseded op must settle untracked")
	}
	if n := ft.count(); n != 1 {
		t.Fatalf("superseded settle must not untrack the replacement, count=%d", n)
	}
	if !ft.settle("k", op2) {
		t.Fatalf("current op should settle tracked")
	}
	if n := ft.count(); n != 0 {
		t.Fatalf("expected empty table, count=%d", n)
	}
}

func TestFlightDropAndSettle(t *testing.T) {
	base := time.Unix(1700000000, 0)
	ft := newFlightTable(4)

	op, _ := ft.admit("k", base)
	if !ft.drop("k") {
		t.Fatalf("drop should report the key was tracked")
	}
	if ft.drop("k") {
		t.Fatalf("second drop should report untracked")
	}
	if ft.settle("k", op) {
		t.Fatalf("dropped op must settle untracked")
	}
}

func TestFlightDropContaining(t *testing.T) {
	base := time.Unix(1700000000, 0)
	ft := newFlightTable(8)
	for i, k := range []string{"fam-1:a", "fam-1:b", "other"} {
		ft.admit(k, base.Add(time.Duration(i)*time.Second))
	}
	if n := ft.dropContaining("fam-1"); n != 2 {
		t.Fatalf("expected 2 dropped, got %d", n)
	}
	if n := ft.count(); n != 1 {
		t.Fatalf("expected 1 tracked, got %d", n)
	}
}

// The cutoff is inclusive: an op started exactly at the cutoff is stalled.
func TestFlightDropStalledCutoff(t *testing.T) {
	base := time.Unix(1700000000, 0)
	ft := newFlightTable(8)
	ft.admit("old", base)
	ft.admit("edge", base.Add(10*time.Second))
	ft.admit("fresh", base.Add(20*time.Second))

	stalled := ft.dropStalled(base.Add(10 * time.Second))
	if len(stalled) != 2 {
		t.Fatalf("expected 2 stalled, got %v", stalled)
	}
	seen := map[string]bool{}
	for _, s := range stalled {
		seen[s.key] = true
	}
	if !seen["old"] || !seen["edge"] {
		t.Fatalf("expected old and edge stalled, got %v", stalled)
	}
	if n := ft.count(); n != 1 {
		t.Fatalf("expected only fresh tracked, got %d", n)
	}
}
