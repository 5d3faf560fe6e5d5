package collection

/* cow.go contains the copy-on-write helpers stages use to get writable
objects out of a collection. */

import (
	"fmt"

	"github.com/phil-mansfield/nbpipe/lib/bonds"
	"github.com/phil-mansfield/nbpipe/lib/cell"
	g_error "github.com/phil-mansfield/nbpipe/lib/error"
	"github.com/phil-mansfield/nbpipe/lib/object"
	"github.com/phil-mansfield/nbpipe/lib/property"
)

// CopyIfNeeded returns a version of obj which only this collection refers to.
// If obj is already exclusive it is returned unchanged. Otherwise it is
// cloned, the clone takes obj's place in c, and the clone is returned. obj
// must be held by c.
func (c *Collection) CopyIfNeeded(obj object.Object) (object.Object, error) {
	if !c.holds(obj) {
		return nil, fmt.Errorf("CopyIfNeeded was given an object the " +
			"collection does not hold: %w", g_error.ErrNoSuchObject)
	}
	if obj.References() <= 1 { return obj, nil }

	clone := obj.CloneObject()
	c.replace(obj, clone)
	return clone, nil
}

// holds returns true if obj is one of c's objects.
func (c *Collection) holds(obj object.Object) bool {
	found := false
	c.forEach(func(x object.Object) {
		if x == obj { found = true }
	})
	return found
}

// replace swaps old for clone everywhere it occurs in c.
func (c *Collection) replace(old, clone object.Object) {
	clone.Retain()
	defer old.Release()

	switch x := clone.(type) {
	case *property.Store:
		for _, stores := range [][]*property.Store{ c.particles, c.bondProps } {
			for i := range stores {
				if object.Object(stores[i]) == old { stores[i] = x }
			}
		}
	case *cell.Cell:
		c.cell = x
	case *bonds.List:
		c.bonds = x
	default:
		for name, obj := range c.objects {
			if obj == old { c.objects[name] = clone }
		}
	}
}

// MutableProperty returns an exclusively held store of a standard kind.
func (c *Collection) MutableProperty(kind property.Kind) (*property.Store, error) {
	s, err := c.Property(kind)
	if err != nil { return nil, err }
	obj, err := c.CopyIfNeeded(s)
	if err != nil { return nil, err }
	return obj.(*property.Store), nil
}

// MutablePropertyByName returns an exclusively held store looked up by name.
func (c *Collection) MutablePropertyByName(
	class property.Class, name string,
) (*property.Store, error) {
	s, err := c.PropertyByName(class, name)
	if err != nil { return nil, err }
	obj, err := c.CopyIfNeeded(s)
	if err != nil { return nil, err }
	return obj.(*property.Store), nil
}

// MutableCell returns an exclusively held simulation cell.
func (c *Collection) MutableCell() (*cell.Cell, error) {
	cl, err := c.Cell()
	if err != nil { return nil, err }
	obj, err := c.CopyIfNeeded(cl)
	if err != nil { return nil, err }
	return obj.(*cell.Cell), nil
}

// MutableBonds returns an exclusively held bond list.
func (c *Collection) MutableBonds() (*bonds.List, error) {
	l, err := c.Bonds()
	if err != nil { return nil, err }
	obj, err := c.CopyIfNeeded(l)
	if err != nil { return nil, err }
	return obj.(*bonds.List), nil
}
