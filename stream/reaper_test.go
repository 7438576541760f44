package stream_test

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/internal/fixture"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/stream"
)

func removeEvent(ref entity.Ref, deleted bool) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:   "evt-" + ref.ID,
		EventName: "REMOVE",
		Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{
				"pk": events.NewStringAttribute(ref.String()),
			},
			OldImage: map[string]events.DynamoDBAttributeValue{
				store.AttrRef:       events.NewStringAttribute(ref.String()),
				store.AttrIsDeleted: events.NewBooleanAttribute(deleted),
				store.AttrTTL:       events.NewNumberAttribute("1709294400"),
			},
		},
		UserIdentity: &events.DynamoDBUserIdentity{Type: "Service", PrincipalID: "dynamodb.amazonaws.com"},
	}
}

func TestNewHandler(t *testing.T) {
	if h := stream.NewHandler(nil, nil, nil); h == nil {
		t.Fatal("expected non-nil Handler")
	}
}

func TestHandleRemove_SkipsOtherEvents(t *testing.T) {
	h := stream.NewHandler(nil, nil, nil)
	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		{EventName: "INSERT"},
		{EventName: "MODIFY"},
	}}
	if err := h.HandleRemove(context.Background(), event); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestHandleRemove_EmptyEvent(t *testing.T) {
	h := stream.NewHandler(nil, nil, nil)
	if err := h.HandleRemove(context.Background(), events.DynamoDBEvent{}); err != nil {
		t.Errorf("expected no error for empty event, got %v", err)
	}
}

func TestHandleRemove_PurgesTombstonedChildren(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	gone := fixture.User("u1", dept, entity.RoleUser)
	alsoGone := fixture.User("u2", dept, entity.RoleUser)
	straggler := fixture.User("u3", dept, entity.RoleUser)
	task := fixture.AssignedTask("t1", dept, gone, gone)
	w.Seed(t, org, dept, gone, alsoGone, straggler, task)
	w.Tombstone(t, dept, gone, alsoGone, task)
	before := w.Backend.Len()

	h := stream.NewHandler(w.Backend, nil, nil)
	h.SetBatchSize(1)
	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		removeEvent(entity.RefOf(dept), true),
	}}
	if err := h.HandleRemove(context.Background(), event); err != nil {
		t.Fatalf("HandleRemove: %v", err)
	}

	if got := w.Backend.Len(); got != before-3 {
		t.Errorf("Len() = %d, want %d", got, before-3)
	}
	if w.Deleted(t, straggler) {
		t.Error("live child must survive")
	}
}

func TestHandleRemove_IgnoresLiveRecords(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	u := fixture.User("u1", dept, entity.RoleUser)
	w.Seed(t, org, dept, u)
	w.Tombstone(t, u)
	before := w.Backend.Len()

	h := stream.NewHandler(w.Backend, nil, nil)
	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		removeEvent(entity.RefOf(dept), false),
	}}
	if err := h.HandleRemove(context.Background(), event); err != nil {
		t.Fatalf("HandleRemove: %v", err)
	}
	if got := w.Backend.Len(); got != before {
		t.Errorf("Len() = %d, want %d", got, before)
	}
}

func TestHandleRemove_LeafKind(t *testing.T) {
	h := stream.NewHandler(nil, nil, nil)
	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		removeEvent(entity.NewRef(entity.KindAttachment, "a1"), true),
	}}
	if err := h.HandleRemove(context.Background(), event); err != nil {
		t.Errorf("leaf kinds have nothing to purge, got %v", err)
	}
}

func TestRecordRef(t *testing.T) {
	ref := entity.NewRef(entity.KindTask, "t1")

	got, err := stream.RecordRef(removeEvent(ref, true))
	if err != nil || got != ref {
		t.Errorf("RecordRef() = %v, %v; want %v", got, err, ref)
	}

	keysOnly := events.DynamoDBEventRecord{Change: events.DynamoDBStreamRecord{
		Keys: map[string]events.DynamoDBAttributeValue{"pk": events.NewStringAttribute(ref.String())},
	}}
	got, err = stream.RecordRef(keysOnly)
	if err != nil || got != ref {
		t.Errorf("RecordRef(keys only) = %v, %v; want %v", got, err, ref)
	}

	if _, err := stream.RecordRef(events.DynamoDBEventRecord{}); err == nil {
		t.Error("expected error for record without reference")
	}
}
