package store

import (
	"slices"

	"github.com/jacentio/canopy/model"
)

// entity is what the index needs to know about a cached value.
type entity interface {
	Key() string
	GroupKey() model.Ref
	SortOrder() int
}

// index is a primary map plus ordered group sequences. It does no locking;
// the owning store guards it.
//
// A group sequence also exists for groups that only received single
// upserts; listed records the groups replaced from a full listing.
type index[T entity] struct {
	byID   map[string]T
	groups map[model.Ref][]string
	listed map[model.Ref]bool
}

func newIndex[T entity]() *index[T] {
	return &index[T]{
		byID:   make(map[string]T),
		groups: make(map[model.Ref][]string),
		listed: make(map[model.Ref]bool),
	}
}

func (x *index[T]) get(id string) (T, bool) {
	v, ok := x.byID[id]
	return v, ok
}

func (x *index[T]) len() int { return len(x.byID) }

// ids returns a copy of the group sequence.
func (x *index[T]) ids(key model.Ref) []string {
	return slices.Clone(x.groups[key])
}

// group returns the group members in sequence order.
func (x *index[T]) group(key model.Ref) []T {
	seq := x.groups[key]
	out := make([]T, 0, len(seq))
	for _, id := range seq {
		out = append(out, x.byID[id])
	}
	return out
}

// hasGroup reports whether the group was replaced from a full listing and
// not evicted since.
func (x *index[T]) hasGroup(key model.Ref) bool {
	return x.listed[key]
}

// upsert writes v to the primary map. A new entity, or one whose group
// changed, is placed in its group by order; an entity staying in its group
// keeps its position.
func (x *index[T]) upsert(v T) {
	id := v.Key()
	prev, cached := x.byID[id]
	x.byID[id] = v
	if cached && prev.GroupKey() == v.GroupKey() && slices.Contains(x.groups[v.GroupKey()], id) {
		return
	}
	if cached {
		x.unlink(prev.GroupKey(), id)
	}
	x.insertSorted(v)
}

// insertSorted places v after the last member whose order is <= its own.
func (x *index[T]) insertSorted(v T) {
	key := v.GroupKey()
	seq := x.groups[key]
	pos := 0
	for i, id := range seq {
		if x.byID[id].SortOrder() <= v.SortOrder() {
			pos = i + 1
		}
	}
	x.groups[key] = slices.Insert(seq, pos, v.Key())
}

// remove drops id from the primary map and from its group.
func (x *index[T]) remove(id string) (T, bool) {
	v, ok := x.byID[id]
	if !ok {
		return v, false
	}
	delete(x.byID, id)
	x.unlink(v.GroupKey(), id)
	return v, true
}

func (x *index[T]) unlink(key model.Ref, id string) {
	seq, ok := x.groups[key]
	if !ok {
		return
	}
	x.groups[key] = slices.DeleteFunc(seq, func(s string) bool { return s == id })
}

// replaceGroup makes members the whole content of the group key, in the
// given order. Entities previously cached in the group but not listed are
// evicted; listed entities cached under another group are moved. It returns
// the evicted ids.
func (x *index[T]) replaceGroup(key model.Ref, members []T) []string {
	listed := make(map[string]bool, len(members))
	for _, v := range members {
		listed[v.Key()] = true
	}

	var evicted []string
	for _, id := range x.groups[key] {
		if listed[id] {
			continue
		}
		if v, ok := x.byID[id]; ok && v.GroupKey() == key {
			delete(x.byID, id)
			evicted = append(evicted, id)
		}
	}

	seq := make([]string, 0, len(members))
	for _, v := range members {
		id := v.Key()
		if prev, ok := x.byID[id]; ok && prev.GroupKey() != key {
			x.unlink(prev.GroupKey(), id)
		}
		x.byID[id] = v
		seq = append(seq, id)
	}
	x.groups[key] = seq
	x.listed[key] = true
	return evicted
}

// reorder puts ids first in the given order, followed by any member that is
// not listed. Listed ids that are no longer members are skipped.
func (x *index[T]) reorder(key model.Ref, ids []string) {
	current := x.groups[key]
	member := make(map[string]bool, len(current))
	for _, id := range current {
		member[id] = true
	}
	seq := make([]string, 0, len(current))
	for _, id := range ids {
		if member[id] {
			seq = append(seq, id)
			delete(member, id)
		}
	}
	for _, id := range current {
		if member[id] {
			seq = append(seq, id)
		}
	}
	x.groups[key] = seq
}

// isPermutation reports whether ids lists every member of the group exactly
// once.
func (x *index[T]) isPermutation(key model.Ref, ids []string) bool {
	current := x.groups[key]
	if len(ids) != len(current) {
		return false
	}
	want := make(map[string]bool, len(current))
	for _, id := range current {
		want[id] = true
	}
	for _, id := range ids {
		if !want[id] {
			return false
		}
		delete(want, id)
	}
	return len(want) == 0
}

// evictGroup removes the group and every entity cached in it.
func (x *index[T]) evictGroup(key model.Ref) []string {
	seq := x.groups[key]
	for _, id := range seq {
		delete(x.byID, id)
	}
	delete(x.groups, key)
	delete(x.listed, key)
	return seq
}

// check verifies the primary map and the group sequences agree.
func (x *index[T]) check() error {
	seen := make(map[string]bool, len(x.byID))
	for key, seq := range x.groups {
		for _, id := range seq {
			v, ok := x.byID[id]
			if !ok {
				return &inconsistency{id: id, group: key, reason: "sequenced but not cached"}
			}
			if v.GroupKey() != key {
				return &inconsistency{id: id, group: key, reason: "sequenced under the wrong group"}
			}
			if seen[id] {
				return &inconsistency{id: id, group: key, reason: "sequenced twice"}
			}
			seen[id] = true
		}
	}
	for id, v := range x.byID {
		if !seen[id] {
			return &inconsistency{id: id, group: v.GroupKey(), reason: "cached but not sequenced"}
		}
	}
	return nil
}

type inconsistency struct {
	id     string
	group  model.Ref
	reason string
}

func (e *inconsistency) Error() string {
	return "index: " + e.id + " in group " + e.group.String() + ": " + e.reason
}
