package patch

import "strconv"

// AppendItems returns one add per item, addressed by index starting at
// start. Sequences are append-only so this is the complete diff for
// growth.
func AppendItems[T any](root string, start int, items ...T) (Patch, error) {
	out := make(Patch, 0, len(items))
	for i, item := range items {
		op, err := Add(Pointer(root, strconv.Itoa(start+i)), item)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

// DiffSequence computes the operations turning old into next. When next
// extends old it emits appends. Anything else (truncation, reset, an
// edited entry) degrades to a snapshot of next.
func DiffSequence[T any](root string, old, next []T) (Patch, error) {
	if len(next) >= len(old) {
		prefixSame := true
		for i := range old {
			a, errA := Add("", old[i])
			b, errB := Add("", next[i])
			if errA != nil || errB != nil || !jsonEqual(a.Value, b.Value) {
				prefixSame = false
				break
			}
		}
		if prefixSame {
			return AppendItems(root, len(old), next[len(old):]...)
		}
	}

	if next == nil {
		next = []T{}
	}
	return Snapshot(root, next)
}
