package activity

import (
	"fmt"
	"strings"
	"time"
)

// Record lifecycle verbs.
const (
	VerbRecordCreated = "record.created"
	VerbRecordUpdated = "record.updated"
	VerbRecordDeleted = "record.deleted"
)

// RecordEventInput describes the record an event is about.
type RecordEventInput struct {
	Resource      string
	TypeName      string
	Key           any
	ChangedFields []string
	State         string
	Channel       string
	Actor         Actor
	Metadata      map[string]any
	OccurredAt    time.Time
}

// BuildRecordCreated builds the event emitted after a new record is saved.
func BuildRecordCreated(input RecordEventInput) Event {
	return buildRecordEvent(VerbRecordCreated, input)
}

// BuildRecordUpdated builds the event emitted after an existing record is saved.
func BuildRecordUpdated(input RecordEventInput) Event {
	return buildRecordEvent(VerbRecordUpdated, input)
}

// BuildRecordDeleted builds the event emitted after a record is deleted.
func BuildRecordDeleted(input RecordEventInput) Event {
	return buildRecordEvent(VerbRecordDeleted, input)
}

func buildRecordEvent(verb string, input RecordEventInput) Event {
	metadata := cloneMap(input.Metadata)
	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}
	if input.TypeName != "" {
		set("type", input.TypeName)
	}
	if len(input.ChangedFields) > 0 {
		set("changed_fields", append([]string(nil), input.ChangedFields...))
	}
	if input.State != "" {
		set("state", input.State)
	}

	objectType := strings.TrimSpace(input.Resource)
	if objectType == "" {
		objectType = strings.TrimSpace(input.TypeName)
	}
	objectID := ""
	if input.Key != nil {
		objectID = fmt.Sprint(input.Key)
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.Actor.ActorID),
		UserID:     strings.TrimSpace(input.Actor.UserID),
		TenantID:   strings.TrimSpace(input.Actor.TenantID),
		ObjectType: objectType,
		ObjectID:   strings.TrimSpace(objectID),
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}
