package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNormalizeEventTrimsAndDetachesMetadata(t *testing.T) {
	meta := map[string]any{"type": "models.Post"}
	evt := Event{
		Verb:       " record.updated ",
		ActorID:    " actor ",
		TenantID:   " tenant ",
		ObjectType: " post ",
		ObjectID:   " 7 ",
		Channel:    " records ",
		Metadata:   meta,
	}

	got := NormalizeEvent(evt)

	if got.Verb != "record.updated" || got.ObjectType != "post" || got.ObjectID != "7" {
		t.Fatalf("unexpected normalized fields: %+v", got)
	}
	if got.ActorID != "actor" || got.TenantID != "tenant" || got.Channel != "records" {
		t.Fatalf("unexpected trimming: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be stamped")
	}
	got.Metadata["type"] = "changed"
	if meta["type"] != "models.Post" {
		t.Fatalf("expected caller metadata untouched, got %v", meta)
	}
}

func TestHooksNotifyDropsInvalidEvents(t *testing.T) {
	capture := &CaptureHook{}
	if err := (Hooks{capture}).Notify(context.Background(), Event{Verb: "record.created"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected event without object to be dropped, got %d", len(capture.Events))
	}
}

func TestHooksNotifyJoinsErrorsAndKeepsDelivering(t *testing.T) {
	errA := errors.New("sink a down")
	errB := errors.New("sink b down")
	capture := &CaptureHook{}
	var ctxSeen bool
	hooks := Hooks{
		HookFunc(func(_ context.Context, _ Event) error { return errA }),
		nil,
		HookFunc(func(ctx context.Context, _ Event) error {
			ctxSeen = ctx != nil
			return nil
		}),
		capture,
		HookFunc(func(_ context.Context, _ Event) error { return errB }),
	}

	//nolint:staticcheck // nil context falls back to Background
	err := hooks.Notify(nil, Event{Verb: VerbRecordDeleted, ObjectType: "post", ObjectID: "1"})
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !ctxSeen {
		t.Fatalf("expected a non-nil context to reach hooks")
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected delivery past failing hook, got %d events", len(capture.Events))
	}
}

func TestEmitterDisabledWithoutHooks(t *testing.T) {
	emitter := NewEmitter(Hooks{nil}, Config{Enabled: true})
	if emitter.Enabled() {
		t.Fatalf("expected emitter without hooks to be disabled")
	}
	if err := emitter.Emit(context.Background(), Event{Verb: VerbRecordCreated, ObjectType: "post", ObjectID: "1"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	capture := &CaptureHook{}
	disabled := NewEmitter(Hooks{capture}, Config{Enabled: false})
	_ = disabled.Emit(context.Background(), Event{Verb: VerbRecordCreated, ObjectType: "post", ObjectID: "1"})
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events from disabled emitter")
	}
}

func TestEmitterAppliesChannelAndActor(t *testing.T) {
	capture := &CaptureHook{}
	emitter := NewEmitter(Hooks{capture}, Config{Enabled: true})
	if emitter.Channel() != DefaultChannel {
		t.Fatalf("expected default channel, got %q", emitter.Channel())
	}

	ctx := WithActor(context.Background(), Actor{ActorID: "svc", TenantID: "acme"})
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	err := emitter.Emit(ctx, Event{
		Verb:       VerbRecordUpdated,
		ObjectType: "post",
		ObjectID:   "9",
		TenantID:   "explicit",
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	got := capture.Events[0]
	if got.Channel != DefaultChannel {
		t.Fatalf("expected default channel applied, got %q", got.Channel)
	}
	if got.ActorID != "svc" {
		t.Fatalf("expected actor from context, got %q", got.ActorID)
	}
	if got.TenantID != "explicit" {
		t.Fatalf("expected explicit tenant preserved, got %q", got.TenantID)
	}
	if !got.OccurredAt.Equal(at) {
		t.Fatalf("expected occurred_at preserved, got %v", got.OccurredAt)
	}
}

func TestEmitterPreservesExplicitChannel(t *testing.T) {
	capture := &CaptureHook{}
	emitter := NewEmitter(Hooks{capture}, Config{Enabled: true, Channel: "audit"})
	_ = emitter.Emit(context.Background(), Event{Verb: VerbRecordCreated, ObjectType: "post", ObjectID: "1", Channel: "custom"})
	_ = emitter.Emit(context.Background(), Event{Verb: VerbRecordCreated, ObjectType: "post", ObjectID: "2"})
	if capture.Events[0].Channel != "custom" || capture.Events[1].Channel != "audit" {
		t.Fatalf("unexpected channels: %q %q", capture.Events[0].Channel, capture.Events[1].Channel)
	}
}
