package bonds

import (
	"errors"
	"testing"

	g_error "github.com/phil-mansfield/nbpipe/lib/error"
	"github.com/phil-mansfield/nbpipe/lib/eq"
)

func TestAddIsSymmetric(t *testing.T) {
	l := New()
	l.Add(0, 1, [3]int{ })
	l.Add(1, 2, [3]int{-1, 0, 0})
	l.Add(2, 2, [3]int{0, 1, 0})

	if l.HalfCount() != 6 || l.Count() != 3 {
		t.Errorf("Expected 6 half-bonds and 3 bonds, got %d and %d.",
			l.HalfCount(), l.Count())
	}
	if err := l.CheckSymmetry(); err != nil {
		t.Errorf("Expected a symmetric list, got '%s'.", err.Error())
	}

	for i := 0; i < l.HalfCount(); i += 2 {
		if l.At(i).Reverse() != l.At(i+1) {
			t.Errorf("Half-bond %d, %v, is not the partner of %v.",
				i+1, l.At(i+1), l.At(i))
		}
	}
}

func TestCheckSymmetry(t *testing.T) {
	tests := []struct{
		bonds []Bond
		valid bool
	} {
		{[]Bond{ }, true},
		{[]Bond{{0, 1, [3]int{ }}, {1, 0, [3]int{ }}}, true},
		{[]Bond{{0, 1, [3]int{1, 0, 0}}, {1, 0, [3]int{-1, 0, 0}}}, true},
		{[]Bond{{0, 1, [3]int{ }}}, false},
		{[]Bond{{0, 1, [3]int{1, 0, 0}}, {1, 0, [3]int{1, 0, 0}}}, false},
		{[]Bond{{0, 0, [3]int{ }}, {0, 0, [3]int{ }}}, false},
	}

	for i := range tests {
		l := New()
		for _, b := range tests[i].bonds { l.AddHalf(b) }
		err := l.CheckSymmetry()
		if tests[i].valid && err != nil {
			t.Errorf("%d) Expected valid, got '%s'.", i, err.Error())
		} else if !tests[i].valid && err == nil {
			t.Errorf("%d) Expected CheckSymmetry() to fail.", i)
		}
	}
}

func TestRemap(t *testing.T) {
	l := New()
	l.Add(0, 1, [3]int{ })
	l.Add(1, 2, [3]int{0, 0, 1})
	l.Add(2, 3, [3]int{ })

	keep, err := l.Remap([]int{0, -1, 1, 2})
	if err != nil { t.Fatal(err) }

	expKeep := []bool{false, false, false, false, true, true}
	if !eq.Slices(keep, expKeep) {
		t.Errorf("Expected keep = %v, got %v.", expKeep, keep)
	}
	exp := []Bond{{1, 2, [3]int{ }}, {2, 1, [3]int{ }}}
	if !eq.Slices(l.Bonds(), exp) {
		t.Errorf("Expected %v, got %v.", exp, l.Bonds())
	}
	if err := l.CheckSymmetry(); err != nil {
		t.Errorf("Remap broke symmetry: %s", err.Error())
	}
}

func TestSharedList(t *testing.T) {
	l := New()
	l.Retain()
	l.Retain()
	if err := l.Add(0, 1, [3]int{ }); !errors.Is(err, g_error.ErrSharedMutation) {
		t.Errorf("Expected ErrSharedMutation, got %v.", err)
	}

	c := l.Clone()
	if err := c.Add(0, 1, [3]int{ }); err != nil {
		t.Errorf("Expected Add on a clone to succeed, got '%s'.", err.Error())
	}
	if l.HalfCount() != 0 {
		t.Errorf("Adding to the clone changed the original.")
	}
}

func TestCheckIndices(t *testing.T) {
	l := New()
	l.Add(0, 4, [3]int{ })
	if err := l.CheckIndices(5); err != nil {
		t.Errorf("Expected valid indices, got '%s'.", err.Error())
	}
	if err := l.CheckIndices(4); !errors.Is(err, g_error.ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange, got %v.", err)
	}
}

func TestAdjacency(t *testing.T) {
	l := New()
	l.Add(0, 1, [3]int{ })
	l.Add(0, 2, [3]int{ })
	l.Add(1, 2, [3]int{ })

	adj, err := NewAdjacency(l, 4)
	if err != nil { t.Fatal(err) }

	tests := []struct{
		i int
		bonds []int
	} {
		{0, []int{0, 2}},
		{1, []int{1, 4}},
		{2, []int{3, 5}},
		{3, []int{ }},
		{7, []int{ }},
	}
	for _, test := range tests {
		if got := adj.BondsOf(test.i); !eq.Slices(got, test.bonds) {
			t.Errorf("Expected BondsOf(%d) = %v, got %v.",
				test.i, test.bonds, got)
		}
		if adj.Degree(test.i) != len(test.bonds) {
			t.Errorf("Expected Degree(%d) = %d, got %d.",
				test.i, len(test.bonds), adj.Degree(test.i))
		}
	}
}
