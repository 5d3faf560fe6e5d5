package snapio

import (
	"testing"
)

func TestZMajorUnigridIndex(t *testing.T) {
	n := 10
	order := NewZMajorUnigrid(n)
	tests := []struct{
		idx [3]int
		id uint64
	} {
		{[3]int{0, 0, 0}, 0},
		{[3]int{9, 9, 9}, 999},
		{[3]int{1, 1, 1}, 111},
		{[3]int{3, 2, 1}, 321},
	}

	for i := range tests {
		id := order.IndexToID(tests[i].idx)
		idx := order.IDToIndex(tests[i].id)
		if id != tests[i].id {
			t.Errorf("%d) Expected index %d to have id %d, got %d.",
				i, tests[i].idx, tests[i].id, id)
		} else if idx != tests[i].idx {
			t.Errorf("%d) Expected id %d to have index %d, got %d.",
				i, tests[i].id, tests[i].idx, idx)
		}
	}

	if id := order.IndexToID([3]int{ 13, -1, 10 }); id != 390 {
		t.Errorf("Expected wrapped index to have id 390, got %d.", id)
	}
	if w := order.Width(); w != n {
		t.Errorf("Expected Width() = %d, got %d.", n, w)
	}
}
