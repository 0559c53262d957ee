package registry

import "testing"

func TestPublishAndSnapshot(t *testing.T) {
	r := New()
	r.Publish("auth", map[string]any{"token": "T"})

	snap := r.Snapshot([]string{"auth", "billing"})
	if got, ok := snap["auth.token"]; !ok || got != "T" {
		t.Fatalf("snapshot missing auth.token, got %#v", snap)
	}
	if len(snap) != 1 {
		t.Fatalf("expected only auth's export, got %#v", snap)
	}
}

func TestPublishEmptyIsNoop(t *testing.T) {
	r := New()
	r.Publish("auth", nil)
	if snap := r.Snapshot([]string{"auth"}); len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %#v", snap)
	}
	r.Publish("", map[string]any{"x": 1})
	if snap := r.Snapshot([]string{""}); len(snap) != 0 {
		t.Fatalf("expected empty node_id publish to be ignored, got %#v", snap)
	}
}

func TestSnapshotIsIsolatedFromFutureWrites(t *testing.T) {
	r := New()
	r.Publish("auth", map[string]any{"token": "T1"})
	snap := r.Snapshot([]string{"auth"})
	r.Publish("auth", map[string]any{"token": "T2"})
	if snap["auth.token"] != "T1" {
		t.Fatalf("expected prior snapshot to remain T1, got %v", snap["auth.token"])
	}
}
