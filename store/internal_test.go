package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/entity"
)

// --- ItemFromRaw Tests ---

func TestItemFromRaw_Full(t *testing.T) {
	raw := map[string]types.AttributeValue{
		AttrID:           &types.AttributeValueMemberS{Value: "u1"},
		AttrKind:         &types.AttributeValueMemberS{Value: "user"},
		AttrParentRef:    &types.AttributeValueMemberS{Value: "department#d1"},
		AttrOrganization: &types.AttributeValueMemberS{Value: "o1"},
		AttrDepartment:   &types.AttributeValueMemberS{Value: "d1"},
		AttrVersion:      &types.AttributeValueMemberN{Value: "7"},
		AttrIsDeleted:    &types.AttributeValueMemberBOOL{Value: true},
		AttrTTL:          &types.AttributeValueMemberN{Value: "1700000000"},
		AttrUniqueKeys: &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberS{Value: "k1"},
		}},
	}

	item := ItemFromRaw(raw)

	if item.Ref() != entity.NewRef(entity.KindUser, "u1") {
		t.Errorf("unexpected ref %v", item.Ref())
	}
	if item.Version != 7 || !item.IsDeleted || item.TTL != 1700000000 {
		t.Errorf("unexpected managed fields %+v", item)
	}
	if item.ParentRef != "department#d1" || item.Organization != "o1" || item.Department != "d1" {
		t.Errorf("unexpected scope fields %+v", item)
	}
	if len(item.UniqueKeys) != 1 || item.UniqueKeys[0] != "k1" {
		t.Errorf("unexpected unique keys %v", item.UniqueKeys)
	}
}

func TestItemFromRaw_Minimal(t *testing.T) {
	item := ItemFromRaw(map[string]types.AttributeValue{
		AttrID:      &types.AttributeValueMemberS{Value: "o1"},
		AttrKind:    &types.AttributeValueMemberS{Value: "organization"},
		AttrVersion: &types.AttributeValueMemberS{Value: "not a number"},
	})
	if item.Version != 0 || item.IsDeleted || item.ParentRef != "" || item.UniqueKeys != nil {
		t.Errorf("expected zero managed fields, got %+v", item)
	}
}

func TestItem_CloneIsIndependent(t *testing.T) {
	item := ItemFromRaw(map[string]types.AttributeValue{
		AttrID:   &types.AttributeValueMemberS{Value: "v1"},
		AttrKind: &types.AttributeValueMemberS{Value: "vendor"},
	})
	item.UniqueKeys = []string{"a"}

	c := item.clone()
	c.Raw["name"] = &types.AttributeValueMemberS{Value: "changed"}
	c.UniqueKeys[0] = "b"
	c.setVersion(3)

	if _, ok := item.Raw["name"]; ok {
		t.Error("clone shares Raw with the original")
	}
	if item.UniqueKeys[0] != "a" || item.Version != 0 {
		t.Error("clone shares state with the original")
	}
}

// --- Config Tests ---

func TestConfigValidate_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.validate()

	if cfg != DefaultConfig() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestConfigValidate_NumShardsBounds(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 1}, {-4, 1}, {16, 16}, {256, 256}, {1000, 256},
	}
	for _, tt := range tests {
		cfg := Config{NumShards: tt.in}
		cfg.validate()
		if cfg.NumShards != tt.want {
			t.Errorf("NumShards %d clamped to %d, want %d", tt.in, cfg.NumShards, tt.want)
		}
	}
}

func TestConfigValidate_PreservesCustomNames(t *testing.T) {
	cfg := Config{RecordsTable: "records", UniqueTable: "uniques", ScopeIndex: "gsi1", ParentIndex: "gsi2", NumShards: 4}
	cfg.validate()
	if cfg.RecordsTable != "records" || cfg.UniqueTable != "uniques" || cfg.ScopeIndex != "gsi1" || cfg.ParentIndex != "gsi2" {
		t.Errorf("custom names overwritten: %+v", cfg)
	}
}

// --- mapCommitError Tests ---

func TestMapCommitError(t *testing.T) {
	failed := "ConditionalCheckFailed"
	conflict := "TransactionConflict"
	none := "None"
	ref := entity.NewRef(entity.KindUser, "u1")
	ops := []txOp{
		{kind: opInsert, ref: ref},
		{kind: opUpdate, ref: ref},
		{kind: opUniquePut, ref: ref},
	}

	cancelAt := func(i int, code *string) error {
		reasons := make([]types.CancellationReason, len(ops))
		for j := range reasons {
			reasons[j] = types.CancellationReason{Code: &none}
		}
		reasons[i] = types.CancellationReason{Code: code}
		return &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"insert condition", cancelAt(0, &failed), ErrAlreadyExists},
		{"version condition", cancelAt(1, &failed), ErrConcurrentModification},
		{"unique condition", cancelAt(2, &failed), ErrDuplicateValue},
		{"transaction conflict", cancelAt(1, &conflict), ErrConcurrentModification},
		{"conflict exception", &types.TransactionConflictException{}, ErrConcurrentModification},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := mapCommitError(tt.err, ops); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if mapCommitError(nil, ops) != nil {
		t.Error("nil error should stay nil")
	}
	other := errors.New("throttled")
	if err := mapCommitError(other, ops); err != other {
		t.Errorf("unrelated error should pass through, got %v", err)
	}
}

// --- filterExpression Tests ---

func TestFilterExpression(t *testing.T) {
	f := Filter{
		Kind:         entity.KindTask,
		Organization: "o1",
		Equals:       []Condition{Eq("type", "AssignedTask")},
		Contains:     []Condition{Eq("assigned.assignees", "u1")},
		ExcludeIDs:   []string{"t9"},
	}

	expr, names, values := filterExpression(f)

	for _, want := range []string{
		"#is_deleted = :false",
		"#entity_type = :",
		"#organization = :",
		"#e0_0 = :e0",
		"contains(#c0_0.#c0_1, :c0)",
		"#id <> :x0",
	} {
		if !strings.Contains(expr, want) {
			t.Errorf("expression %q missing %q", expr, want)
		}
	}
	if names["#c0_0"] != "assigned" || names["#c0_1"] != "assignees" {
		t.Errorf("unexpected nested names %v", names)
	}
	for placeholder := range values {
		if !strings.Contains(expr, placeholder) {
			t.Errorf("value %s not referenced by %q", placeholder, expr)
		}
	}
}

func TestFilterExpression_IncludeTombstoned(t *testing.T) {
	expr, _, _ := filterExpression(Filter{Visibility: IncludeTombstoned})
	if expr != "" {
		t.Errorf("expected empty expression, got %q", expr)
	}
}

// --- transactItems Tests ---

func TestTransactItems_UniqueKeyTransitions(t *testing.T) {
	d := NewDynamoBackend(nil, DefaultConfig())
	u1 := entity.NewRef(entity.KindUser, "u1")
	u2 := entity.NewRef(entity.KindUser, "u2")

	item := func(ref entity.Ref, version int64, keys ...string) *Item {
		it := ItemFromRaw(map[string]types.AttributeValue{
			AttrID:   &types.AttributeValueMemberS{Value: ref.ID},
			AttrKind: &types.AttributeValueMemberS{Value: string(ref.Kind)},
		})
		it.setVersion(version)
		it.UniqueKeys = keys
		return it
	}

	writes := []*write{
		// u1 tombstoned: releases "email-a".
		{ref: u1, prev: item(u1, 1, "email-a", "phone-a"), item: item(u1, 2), expected: 1},
		// u2 renamed to "email-a": claims the released key in the same tx.
		{ref: u2, prev: item(u2, 4, "email-b"), item: item(u2, 5, "email-a"), expected: 4},
	}

	items, ops := d.transactItems(writes)
	if len(items) != len(ops) {
		t.Fatalf("items/ops mismatch: %d vs %d", len(items), len(ops))
	}

	var puts, deletes, unconditionalPuts int
	for i, it := range items {
		switch ops[i].kind {
		case opUniquePut:
			puts++
			if it.Put.ConditionExpression == nil {
				unconditionalPuts++
			}
		case opUniqueDelete:
			deletes++
		}
	}
	// email-a moves (1 unconditional put); phone-a and email-b are released.
	if puts != 1 || unconditionalPuts != 1 {
		t.Errorf("expected 1 unconditional unique put, got %d puts (%d unconditional)", puts, unconditionalPuts)
	}
	if deletes != 2 {
		t.Errorf("expected 2 unique deletes, got %d", deletes)
	}
	if len(items) != 5 {
		t.Errorf("expected 5 transact items, got %d", len(items))
	}
}

// --- txBuffer Tests ---

func TestTxBuffer_PutRequiresPriorReadForUpdates(t *testing.T) {
	b := newTxBuffer()
	it := ItemFromRaw(map[string]types.AttributeValue{
		AttrID:   &types.AttributeValueMemberS{Value: "t1"},
		AttrKind: &types.AttributeValueMemberS{Value: "task"},
	})
	it.setVersion(3)
	if err := b.put(it); err == nil {
		t.Error("expected error updating an unread record")
	}

	it.setVersion(0)
	if err := b.put(it); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if it.Version != 1 {
		t.Errorf("expected version 1 after insert, got %d", it.Version)
	}
	if err := b.purge(it.Ref()); err != nil {
		t.Fatalf("purge of buffered insert: %v", err)
	}
	if len(b.pending()) != 0 {
		t.Error("purging a buffered insert should drop it")
	}

	b.finish()
	if err := b.put(it); !errors.Is(err, ErrTxDone) {
		t.Errorf("expected ErrTxDone, got %v", err)
	}
}
