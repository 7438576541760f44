package shard

import (
	"strings"
	"testing"
)

func TestParentPK_SingleShard(t *testing.T) {
	tests := []struct {
		parentRef string
		childRef  string
		expected  string
	}{
		{"department#d1", "user#u1", "department#d1#00"},
		{"department#d1", "task#t1", "department#d1#00"},
		{"task#t1", "task_comment#c1", "task#t1#00"},
	}

	for _, tt := range tests {
		if got := ParentPK(tt.parentRef, tt.childRef, 1); got != tt.expected {
			t.Errorf("ParentPK(%q, %q, 1) = %q, want %q", tt.parentRef, tt.childRef, got, tt.expected)
		}
	}
}

func TestParentPK_NonPositiveShards(t *testing.T) {
	for _, n := range []int{0, -1} {
		if got := ParentPK("task#t1", "attachment#a1", n); got != "task#t1#00" {
			t.Errorf("ParentPK with %d shards = %q", n, got)
		}
	}
}

func TestParentPK_Distribution(t *testing.T) {
	parentRef := "organization#o1"
	seen := make(map[string]int)
	for i := 0; i < 1000; i++ {
		childRef := "notification#" + string(rune('a'+i%26)) + string(rune('0'+i%10)) + strings.Repeat("x", i%7)
		pk := ParentPK(parentRef, childRef, 16)
		if !strings.HasPrefix(pk, parentRef+"#") {
			t.Fatalf("expected prefix %q#, got %q", parentRef, pk)
		}
		seen[pk[len(parentRef)+1:]]++
	}
	if len(seen) < 8 {
		t.Errorf("expected children spread across shards, got %d shards", len(seen))
	}
}

func TestParentPK_Deterministic(t *testing.T) {
	first := ParentPK("department#d1", "task#t1", 256)
	for i := 0; i < 50; i++ {
		if got := ParentPK("department#d1", "task#t1", 256); got != first {
			t.Fatalf("non-deterministic key %q vs %q", got, first)
		}
	}
}

func TestParentPKs_CoverEveryShard(t *testing.T) {
	keys := ParentPKs("department#d1", 16)
	if len(keys) != 16 {
		t.Fatalf("expected 16 keys, got %d", len(keys))
	}
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	for i := 0; i < 200; i++ {
		pk := ParentPK("department#d1", "user#"+strings.Repeat("u", i), 16)
		if !set[pk] {
			t.Errorf("ParentPK %q not in ParentPKs", pk)
		}
	}

	if got := ParentPKs("department#d1", 0); len(got) != 1 || got[0] != "department#d1#00" {
		t.Errorf("unexpected single shard keys %v", got)
	}
}

func TestUniqueConstraintPK(t *testing.T) {
	pk := UniqueConstraintPK("org-1", "user", "email", "ann@example.com")
	if len(pk) != 32 {
		t.Errorf("expected 32 hex chars, got %d (%q)", len(pk), pk)
	}
	if pk != UniqueConstraintPK("org-1", "user", "email", "ann@example.com") {
		t.Error("expected deterministic key")
	}

	tests := []struct {
		name  string
		other string
	}{
		{"different scope", UniqueConstraintPK("org-2", "user", "email", "ann@example.com")},
		{"different kind", UniqueConstraintPK("org-1", "vendor", "email", "ann@example.com")},
		{"different field", UniqueConstraintPK("org-1", "user", "phone", "ann@example.com")},
		{"different value", UniqueConstraintPK("org-1", "user", "email", "bob@example.com")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.other == pk {
				t.Errorf("expected distinct key, got %q", pk)
			}
		})
	}
}

func BenchmarkParentPK_256Shards(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ParentPK("department#d1", "task#t1", 256)
	}
}

func BenchmarkUniqueConstraintPK(b *testing.B) {
	for i := 0; i < b.N; i++ {
		UniqueConstraintPK("org-1", "user", "email", "ann@example.com")
	}
}
