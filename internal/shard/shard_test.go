package shard

import (
	"slices"
	"strings"
	"testing"
)

func TestRelationshipPK_SingleShard(t *testing.T) {
	// With numShards=1, all records should go to shard "00"
	tests := []struct {
		parentRef string
		childRef  string
		expected  string
	}{
		{"page#p1", "block#b1", "page#p1#00"},
		{"page#p1", "page#c2", "page#p1#00"},
		{"page#p2", "block#b1", "page#p2#00"},
	}

	for _, tt := range tests {
		for _, n := range []int{1, 0, -1} {
			result := RelationshipPK(tt.parentRef, tt.childRef, n)
			if result != tt.expected {
				t.Errorf("RelationshipPK(%q, %q, %d) = %q, want %q",
					tt.parentRef, tt.childRef, n, result, tt.expected)
			}
		}
	}
}

func TestRelationshipPK_Distribution(t *testing.T) {
	parentRef := "page#busy"
	numShards := 16

	counts := make(map[string]int)
	for i := 0; i < 1600; i++ {
		childRef := "block#" + strings.Repeat("x", i%7) + string(rune('a'+i%26)) + string(rune('0'+i%10)) + string(rune('A'+i/260))
		pk := RelationshipPK(parentRef, childRef, numShards)
		if !strings.HasPrefix(pk, parentRef+"#") {
			t.Fatalf("expected prefix %q#, got %q", parentRef, pk)
		}
		counts[pk]++
	}
	if len(counts) < 12 {
		t.Errorf("expected distribution across most of 16 shards, got %d", len(counts))
	}
	for pk := range counts {
		if !slices.Contains(All(parentRef, numShards), pk) {
			t.Errorf("%q is not one of the parent's shards", pk)
		}
	}
}

func TestRelationshipPK_Deterministic(t *testing.T) {
	first := RelationshipPK("page#p1", "block#b1", 256)
	for i := 0; i < 100; i++ {
		if result := RelationshipPK("page#p1", "block#b1", 256); result != first {
			t.Fatalf("expected deterministic result %q, got %q on iteration %d", first, result, i)
		}
	}
}

func TestRelationshipPK_SameChildDifferentParent(t *testing.T) {
	// The shard depends on the child only; the prefix on the parent.
	a := RelationshipPK("page#a", "block#b", 64)
	b := RelationshipPK("page#b", "block#b", 64)
	if a[len("page#a"):] != b[len("page#b"):] {
		t.Errorf("expected same shard suffix, got %q and %q", a, b)
	}
}

func TestPK_HexFormat(t *testing.T) {
	tests := []struct {
		shard    int
		expected string
	}{
		{0, "page#p#00"},
		{9, "page#p#09"},
		{10, "page#p#0a"},
		{255, "page#p#ff"},
	}
	for _, tt := range tests {
		if got := PK("page#p", tt.shard); got != tt.expected {
			t.Errorf("PK(page#p, %d) = %q, want %q", tt.shard, got, tt.expected)
		}
	}
}

func TestAll(t *testing.T) {
	if got := All("page#p", 1); len(got) != 1 || got[0] != "page#p#00" {
		t.Errorf("single shard: got %v", got)
	}
	if got := All("page#p", 0); len(got) != 1 {
		t.Errorf("zero shards should mean one, got %v", got)
	}
	got := All("page#p", 256)
	if len(got) != 256 || got[0] != "page#p#00" || got[255] != "page#p#ff" {
		t.Errorf("unexpected shards: %d, first %q", len(got), got[0])
	}
}

func BenchmarkRelationshipPK_256Shards(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RelationshipPK("page#12345678-1234-1234-1234-123456789012", "block#87654321-4321-4321-4321-210987654321", 256)
	}
}
