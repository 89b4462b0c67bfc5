package patch

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
)

// Keyed is a snapshot of an id-keyed collection. Schema identifies the shape
// of the items; two snapshots with different schemas are never diffed field
// by field.
type Keyed[T any] struct {
	Schema int
	Items  map[string]T
}

// NewKeyed returns an empty collection for schema.
func NewKeyed[T any](schema int) Keyed[T] {
	return Keyed[T]{Schema: schema, Items: map[string]T{}}
}

// Clone returns a shallow copy whose item map can be mutated independently.
func (k Keyed[T]) Clone() Keyed[T] {
	out := Keyed[T]{Schema: k.Schema, Items: make(map[string]T, len(k.Items))}
	maps.Copy(out.Items, k.Items)
	return out
}

// Filter returns a copy of k holding only items for which keep returns true.
func (k Keyed[T]) Filter(keep func(T) bool) Keyed[T] {
	out := Keyed[T]{Schema: k.Schema, Items: make(map[string]T, len(k.Items))}
	for id, item := range k.Items {
		if keep(item) {
			out.Items[id] = item
		}
	}
	return out
}

// Value returns the JSON value of the collection. An empty collection
// encodes as {} rather than null.
func (k Keyed[T]) Value() map[string]T {
	if k.Items == nil {
		return map[string]T{}
	}
	return k.Items
}

// DiffKeyed computes the operations turning old into next under root.
//
// Ids are visited in sorted order, so the output is deterministic. A removed
// item yields one remove, a new item one add, and a changed item one
// replace/add/remove per top-level field. Items that do not encode as JSON
// objects are replaced whole. When the schemas differ, or any item cannot be
// encoded, the result degrades to a full snapshot of next.
func DiffKeyed[T any](root string, old, next Keyed[T]) (Patch, error) {
	if old.Schema != next.Schema {
		return Snapshot(root, next.Value())
	}

	ids := make([]string, 0, len(old.Items)+len(next.Items))
	for id := range old.Items {
		ids = append(ids, id)
	}
	for id := range next.Items {
		if _, ok := old.Items[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	var out Patch
	for _, id := range ids {
		before, hadBefore := old.Items[id]
		after, hasAfter := next.Items[id]
		path := Pointer(root, id)

		switch {
		case hadBefore && !hasAfter:
			out = append(out, Remove(path))
		case !hadBefore && hasAfter:
			op, err := Add(path, after)
			if err != nil {
				return Snapshot(root, next.Value())
			}
			out = append(out, op)
		default:
			ops, ok := diffItem(path, before, after)
			if !ok {
				return Snapshot(root, next.Value())
			}
			out = append(out, ops...)
		}
	}

	return out, nil
}

// diffItem compares two encodings of the same item. ok is false only when
// an item could not be encoded at all.
func diffItem(path string, before, after any) (Patch, bool) {
	rawBefore, err := json.Marshal(before)
	if err != nil {
		return nil, false
	}
	rawAfter, err := json.Marshal(after)
	if err != nil {
		return nil, false
	}
	if bytes.Equal(rawBefore, rawAfter) {
		return nil, true
	}

	var fieldsBefore, fieldsAfter map[string]json.RawMessage
	if json.Unmarshal(rawBefore, &fieldsBefore) != nil || json.Unmarshal(rawAfter, &fieldsAfter) != nil ||
		fieldsBefore == nil || fieldsAfter == nil {
		return Patch{{Op: OpReplace, Path: path, Value: rawAfter}}, true
	}

	keys := make([]string, 0, len(fieldsBefore)+len(fieldsAfter))
	for k := range fieldsBefore {
		keys = append(keys, k)
	}
	for k := range fieldsAfter {
		if _, ok := fieldsBefore[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var out Patch
	for _, k := range keys {
		vb, inBefore := fieldsBefore[k]
		va, inAfter := fieldsAfter[k]
		fieldPath := Pointer(path, k)

		switch {
		case inBefore && !inAfter:
			out = append(out, Remove(fieldPath))
		case !inBefore && inAfter:
			out = append(out, Operation{Op: OpAdd, Path: fieldPath, Value: va})
		case !jsonEqual(vb, va):
			out = append(out, Operation{Op: OpReplace, Path: fieldPath, Value: va})
		}
	}
	return out, true
}

func jsonEqual(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
