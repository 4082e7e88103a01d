package records

import (
	"errors"
	"reflect"
	"testing"
)

func TestCollectionMembership(t *testing.T) {
	fx := newFixture(t)
	a := mustLoad(t, fx.post, map[string]any{"id": 1})
	b := mustLoad(t, fx.post, map[string]any{"id": "2"})

	c, err := NewCollection(fx.post, a)
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	notified := 0
	c.onDirty(func() { notified++ })

	if err := c.Add(b, a); err != nil {
		t.Fatalf("add: %v", err)
	}
	if c.Len() != 2 || notified != 1 {
		t.Fatalf("expected one notification for one new member, len=%d notified=%d", c.Len(), notified)
	}
	if !reflect.DeepEqual(c.Keys(), []any{1, "2"}) {
		t.Fatalf("unexpected keys %v", c.Keys())
	}
	if c.Find("1") != a || c.Find(2) != b || c.Find(3) != nil {
		t.Fatalf("expected Find to compare keys by their string form")
	}

	if !c.Remove(a) || c.Remove(a) {
		t.Fatalf("expected remove to report membership")
	}
	mustSet(t, a, "title", "detached")
	if notified != 2 {
		t.Fatalf("expected removed member to stop notifying, got %d", notified)
	}
	mustSet(t, b, "title", "member")
	if notified != 3 {
		t.Fatalf("expected member dirty flip to notify, got %d", notified)
	}

	c.Clear()
	if c.Len() != 0 || b.dirtied.len() != 0 {
		t.Fatalf("expected clear to drop members and subscriptions")
	}
}

func TestCollectionRejectsForeignRecords(t *testing.T) {
	fx := newFixture(t)
	if _, err := NewCollection(nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected unknown type, got %v", err)
	}
	c, _ := NewCollection(fx.post)
	if err := c.Add(fx.user.New()); !errors.Is(err, ErrRelationType) {
		t.Fatalf("expected relation type error, got %v", err)
	}
	if err := c.Add(nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
}

func TestCollectionEachStopsEarly(t *testing.T) {
	fx := newFixture(t)
	c, _ := NewCollection(fx.post,
		mustLoad(t, fx.post, map[string]any{"id": 1}),
		mustLoad(t, fx.post, map[string]any{"id": 2}),
		mustLoad(t, fx.post, map[string]any{"id": 3}),
	)
	var seen []any
	c.Each(func(i int, r *Record) bool {
		seen = append(seen, r.Key())
		return i < 1
	})
	if !reflect.DeepEqual(seen, []any{1, 2}) {
		t.Fatalf("unexpected walk %v", seen)
	}

	var nilCollection *Collection
	if nilCollection.Len() != 0 || nilCollection.At(0) != nil || nilCollection.Keys() != nil {
		t.Fatalf("expected nil collection to behave as empty")
	}
}
