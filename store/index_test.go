package store

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/canopy/model"
)

func page(id string, parent model.Ref, order int) model.Page {
	return model.Page{ID: id, ParentID: parent, Order: order, Title: id}
}

func TestIndex_UpsertInsertsByOrder(t *testing.T) {
	x := newIndex[model.Page]()
	x.upsert(page("a", model.Null, 0))
	x.upsert(page("c", model.Null, 2))
	x.upsert(page("b", model.Null, 1))
	x.upsert(page("d", model.Null, 2))

	assert.Equal(t, []string{"a", "b", "c", "d"}, x.ids(model.Null))
	require.NoError(t, x.check())
}

func TestIndex_UpsertSameGroupKeepsPosition(t *testing.T) {
	x := newIndex[model.Page]()
	x.upsert(page("a", model.Null, 0))
	x.upsert(page("b", model.Null, 1))
	x.reorder(model.Null, []string{"b", "a"})

	updated := page("b", model.Null, 1)
	updated.Title = "renamed"
	x.upsert(updated)

	assert.Equal(t, []string{"b", "a"}, x.ids(model.Null))
	got, ok := x.get("b")
	require.True(t, ok)
	assert.Equal(t, "renamed", got.Title)
}

func TestIndex_UpsertMovesBetweenGroups(t *testing.T) {
	x := newIndex[model.Page]()
	x.upsert(page("p", model.Null, 0))
	x.upsert(page("a", model.RefTo("p"), 0))
	x.upsert(page("b", model.RefTo("p"), 1))

	x.upsert(page("a", model.Null, 1))

	assert.Equal(t, []string{"b"}, x.ids(model.RefTo("p")))
	assert.Equal(t, []string{"p", "a"}, x.ids(model.Null))
	require.NoError(t, x.check())
}

func TestIndex_ReplaceGroup(t *testing.T) {
	x := newIndex[model.Page]()
	x.upsert(page("p", model.Null, 0))
	x.upsert(page("q", model.Null, 1))
	x.upsert(page("stale", model.RefTo("p"), 0))
	x.upsert(page("moved", model.RefTo("q"), 0))

	evicted := x.replaceGroup(model.RefTo("p"), []model.Page{
		page("moved", model.RefTo("p"), 0),
		page("fresh", model.RefTo("p"), 1),
	})

	assert.Equal(t, []string{"stale"}, evicted)
	assert.Equal(t, []string{"moved", "fresh"}, x.ids(model.RefTo("p")))
	assert.Empty(t, x.ids(model.RefTo("q")))
	_, ok := x.get("stale")
	assert.False(t, ok)
	require.NoError(t, x.check())
}

func TestIndex_HasGroupOnlyAfterListing(t *testing.T) {
	x := newIndex[model.Page]()
	x.upsert(page("a", model.RefTo("p"), 0))
	assert.False(t, x.hasGroup(model.RefTo("p")))
	assert.Equal(t, []string{"a"}, x.ids(model.RefTo("p")))

	x.replaceGroup(model.RefTo("q"), nil)
	assert.True(t, x.hasGroup(model.RefTo("q")), "an empty listing still loads the group")

	x.replaceGroup(model.RefTo("p"), []model.Page{page("a", model.RefTo("p"), 0)})
	assert.True(t, x.hasGroup(model.RefTo("p")))

	x.evictGroup(model.RefTo("p"))
	assert.False(t, x.hasGroup(model.RefTo("p")))
}

func TestIndex_Reorder(t *testing.T) {
	x := newIndex[model.Page]()
	for i, id := range []string{"a", "b", "c"} {
		x.upsert(page(id, model.Null, i))
	}

	tests := []struct {
		name string
		ids  []string
		want []string
	}{
		{"full permutation", []string{"c", "a", "b"}, []string{"c", "a", "b"}},
		{"unknown ids are skipped", []string{"b", "zzz", "a", "c"}, []string{"b", "a", "c"}},
		{"unlisted members trail", []string{"c"}, []string{"c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x.reorder(model.Null, tt.ids)
			assert.Equal(t, tt.want, x.ids(model.Null))
			require.NoError(t, x.check())
		})
	}
}

func TestIndex_IsPermutation(t *testing.T) {
	x := newIndex[model.Page]()
	x.upsert(page("a", model.Null, 0))
	x.upsert(page("b", model.Null, 1))

	assert.True(t, x.isPermutation(model.Null, []string{"b", "a"}))
	assert.False(t, x.isPermutation(model.Null, []string{"a"}))
	assert.False(t, x.isPermutation(model.Null, []string{"a", "a"}))
	assert.False(t, x.isPermutation(model.Null, []string{"a", "c"}))
	assert.False(t, x.isPermutation(model.RefTo("a"), []string{"b"}))
}

func TestIndex_BlocksGroupByPage(t *testing.T) {
	x := newIndex[model.Block]()
	x.upsert(model.Block{ID: "x", PageID: "p", Order: 0, Type: model.BlockParagraph, Content: model.NewParagraph("")})
	x.upsert(model.Block{ID: "y", PageID: "p", ParentID: model.RefTo("x"), Order: 0, Type: model.BlockParagraph, Content: model.NewParagraph("")})

	assert.Equal(t, []string{"x", "y"}, x.ids(model.RefTo("p")))
	assert.Empty(t, x.ids(model.RefTo("x")))

	assert.ElementsMatch(t, []string{"x", "y"}, x.evictGroup(model.RefTo("p")))
	assert.Equal(t, 0, x.len())
	require.NoError(t, x.check())
}

// Random operation sequences must keep the primary map and the sequences in
// agreement after every step.
func TestIndex_RandomOperationsStayConsistent(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	x := newIndex[model.Page]()
	parents := []model.Ref{model.Null, model.RefTo("g1"), model.RefTo("g2")}
	id := func() string { return fmt.Sprintf("p%d", rng.IntN(20)) }

	for step := range 2000 {
		parent := parents[rng.IntN(len(parents))]
		switch rng.IntN(5) {
		case 0, 1:
			x.upsert(page(id(), parent, rng.IntN(5)))
		case 2:
			x.remove(id())
		case 3:
			var members []model.Page
			for range rng.IntN(4) {
				members = append(members, page(id(), parent, rng.IntN(5)))
			}
			members = dedupe(members)
			x.replaceGroup(parent, members)
		case 4:
			ids := x.ids(parent)
			rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
			x.reorder(parent, ids)
		}
		require.NoError(t, x.check(), "step %d", step)
	}
}

func dedupe(pages []model.Page) []model.Page {
	seen := map[string]bool{}
	out := pages[:0]
	for _, p := range pages {
		if !seen[p.ID] {
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	return out
}
