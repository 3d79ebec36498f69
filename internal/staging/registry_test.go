package staging

import (
	"reflect"
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestRecordSighting_InsertIfAbsent(t *testing.T) {
	r := New()

	if !r.RecordSighting("A", t0) {
		t.Fatal("first sighting should insert")
	}
	if r.RecordSighting("A", t0.Add(time.Hour)) {
		t.Error("second sighting should not insert")
	}

	at, ok := r.FirstSeen("A")
	if !ok || !at.Equal(t0) {
		t.Errorf("firstSeenAt overwritten: got %v", at)
	}
	if r.RecordSighting("", t0) {
		t.Error("empty address should be ignored")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 record, got %d", r.Len())
	}
}

func TestSweepExpired_Boundary(t *testing.T) {
	ttl := 48 * time.Hour
	now := t0

	r := New()
	r.RecordSighting("expired", now.Add(-ttl-time.Second))
	r.RecordSighting("kept", now.Add(-ttl+time.Second))
	r.RecordSighting("exact", now.Add(-ttl))

	removed := r.SweepExpired(now, ttl)

	if !reflect.DeepEqual(removed, []string{"expired"}) {
		t.Errorf("unexpected removed set: %v", removed)
	}
	if r.Has("expired") {
		t.Error("expired record still present")
	}
	if !r.Has("kept") {
		t.Error("record younger than ttl was removed")
	}
	if !r.Has("exact") {
		t.Error("record exactly at ttl must be retained")
	}
}

func TestExcludeIfTracked(t *testing.T) {
	r := New()
	r.RecordSighting("A", t0)
	r.RecordSighting("B", t0)

	n := r.ExcludeIfTracked([]string{"B", "Z"})

	if n != 1 {
		t.Errorf("expected 1 removal, got %d", n)
	}
	if r.Has("B") {
		t.Error("tracked address still staged")
	}
	if !r.Has("A") {
		t.Error("untracked address removed")
	}
}

func TestListLive_Ordered(t *testing.T) {
	r := New()
	r.RecordSighting("C", t0.Add(time.Minute))
	r.RecordSighting("B", t0)
	r.RecordSighting("A", t0)

	got := r.Addresses()
	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	r := New()
	r.RecordSighting("A", t0)
	r.RecordSighting("B", t0.Add(time.Minute))

	snap := r.Snapshot()
	snap["A"] = t0.Add(time.Hour) // mutating the copy must not touch r

	at, _ := r.FirstSeen("A")
	if !at.Equal(t0) {
		t.Error("snapshot aliases registry")
	}

	restored := FromSnapshot(map[string]time.Time{"A": t0, "": t0, "Z": {}})
	if restored.Len() != 1 || !restored.Has("A") {
		t.Errorf("unexpected restored registry: %v", restored.Addresses())
	}
}

func TestRemove(t *testing.T) {
	r := New()
	r.RecordSighting("A", t0)
	r.RecordSighting("B", t0)

	r.Remove("A", "missing")

	if r.Has("A") || !r.Has("B") {
		t.Errorf("unexpected registry after remove: %v", r.Addresses())
	}
}
