package property

/* transfer.go contains functions for moving elements between stores. */

import (
	"fmt"
)

// Transfer copies elements from src into dest: element from[k] of src is
// written to element to[k] of dest. The two stores must have the same layout
// and dest must not be shared. Index arrays are passed in bulk to amortize the
// cost of error handling.
func Transfer(dest, src *Store, from, to []int) error {
	if !dest.SameLayout(src) {
		return fmt.Errorf("Cannot transfer %s into %s: the layouts differ.",
			src, dest)
	} else if len(from) != len(to) {
		return fmt.Errorf("'from' index array has length %d, but 'to' has " +
			"length %d.", len(from), len(to))
	}

	for k := range from {
		if from[k] < 0 || from[k] >= src.count {
			return fmt.Errorf("from[%d] = %d is outside the %d elements of " +
				"property '%s'.", k, from[k], src.count, src.name)
		} else if to[k] < 0 || to[k] >= dest.count {
			return fmt.Errorf("to[%d] = %d is outside the %d elements of " +
				"property '%s'.", k, to[k], dest.count, dest.name)
		}
	}

	return dest.Modify(func(m *Mutation) error {
		nc := src.components
		for k := range from {
			i, j := from[k]*nc, to[k]*nc
			switch src.dataType {
			case Int: copy(dest.i32[j: j+nc], src.i32[i: i+nc])
			case Int64: copy(dest.i64[j: j+nc], src.i64[i: i+nc])
			case Float: copy(dest.f64[j: j+nc], src.f64[i: i+nc])
			}
		}
		return nil
	})
}

// Gather returns a new store whose k-th element is element from[k] of s.
func (s *Store) Gather(from []int) (*Store, error) {
	out := s.emptyLike(len(from))
	to := make([]int, len(from))
	for k := range to { to[k] = k }
	if err := Transfer(out, s, from, to); err != nil { return nil, err }
	return out, nil
}

// Filter returns a new store holding the elements of s for which keep is
// true, in their original order. len(keep) must equal s.Len().
func (s *Store) Filter(keep []bool) (*Store, error) {
	if len(keep) != s.count {
		return nil, fmt.Errorf("Filter mask for property '%s' has %d " +
			"entries, but the property has %d elements.",
			s.name, len(keep), s.count)
	}

	from := make([]int, 0, len(keep))
	for i := range keep {
		if keep[i] { from = append(from, i) }
	}
	return s.Gather(from)
}
