/*package collection implements data collections: the unit of data which flows
through a pipeline.

A collection holds references to property stores, a simulation cell, a bond
list, named derived objects and a flat attribute map. Collections share their
objects: Clone is shallow and only bumps reference counts. An object held by
more than one collection is frozen, and a stage which wants to change it asks
its own collection for a private copy with CopyIfNeeded (or one of the typed
Mutable* helpers). Objects that are not shared are changed in place.
*/
package collection

import (
	"fmt"
	"sort"

	"github.com/phil-mansfield/nbpipe/lib/bonds"
	"github.com/phil-mansfield/nbpipe/lib/cell"
	g_error "github.com/phil-mansfield/nbpipe/lib/error"
	"github.com/phil-mansfield/nbpipe/lib/object"
	"github.com/phil-mansfield/nbpipe/lib/property"
)

// Collection is a set of data objects describing one frame of a dataset.
// Collections are not safe for concurrent mutation, but any number of
// goroutines may read a collection nobody is changing.
type Collection struct {
	particles []*property.Store
	bondProps []*property.Store
	cell *cell.Cell
	bonds *bonds.List

	objectNames []string
	objects map[string]object.Object

	attributes map[string]interface{}

	released bool
}

// New returns an empty collection.
func New() *Collection {
	return &Collection{
		objects: map[string]object.Object{ },
		attributes: map[string]interface{}{ },
	}
}

// Clone returns a shallow copy of c. Every object is shared between the two
// collections afterwards.
func (c *Collection) Clone() *Collection {
	out := New()
	for _, s := range c.particles { out.particles = append(out.particles, s) }
	for _, s := range c.bondProps { out.bondProps = append(out.bondProps, s) }
	out.cell, out.bonds = c.cell, c.bonds
	out.objectNames = append([]string{ }, c.objectNames...)
	for name, obj := range c.objects { out.objects[name] = obj }
	for name, val := range c.attributes { out.attributes[name] = val }

	out.forEach(func(obj object.Object) { obj.Retain() })
	return out
}

// Release drops all of the collection's references. Calling it more than once
// has no further effect. A released collection must not be used again.
func (c *Collection) Release() {
	if c.released { return }
	c.released = true
	c.forEach(func(obj object.Object) { obj.Release() })
}

// forEach calls f on every object in canonical order: particle properties,
// bond properties, the cell, the bond list and then named objects by name.
func (c *Collection) forEach(f func(obj object.Object)) {
	for _, s := range c.particles { f(s) }
	for _, s := range c.bondProps { f(s) }
	if c.cell != nil { f(c.cell) }
	if c.bonds != nil { f(c.bonds) }
	for _, name := range c.sortedObjectNames() { f(c.objects[name]) }
}

func (c *Collection) sortedObjectNames() []string {
	names := append([]string{ }, c.objectNames...)
	sort.Strings(names)
	return names
}

//////////////////
// Properties //
//////////////////

func (c *Collection) storesOf(class property.Class) *[]*property.Store {
	if class == property.BondClass { return &c.bondProps }
	return &c.particles
}

// findStore returns the index of the store matching kind (or, for user
// properties, name) in the given class, or -1.
func findStore(
	stores []*property.Store, kind property.Kind, name string,
) int {
	for i, s := range stores {
		if kind != property.UserKind && s.Kind() == kind { return i }
		if kind == property.UserKind && s.Kind() == property.UserKind &&
			s.Name() == name {
			return i
		}
	}
	return -1
}

// expectedCount returns the element count a new store of the given class
// must have, ignoring the store at index skip. ok is false if nothing fixes
// the count yet.
func (c *Collection) expectedCount(
	class property.Class, skip int,
) (n int, ok bool) {
	if class == property.BondClass && c.bonds != nil {
		return c.bonds.HalfCount(), true
	}

	stores := *c.storesOf(class)
	if class == property.ParticleClass {
		i := findStore(stores, property.PositionKind, "")
		if i != -1 && i != skip { return stores[i].Len(), true }
	}
	for i, s := range stores {
		if i != skip { return s.Len(), true }
	}
	return 0, false
}

// AddProperty inserts s, replacing any store of the same class with the same
// kind (or, for user properties, the same name). The element count must agree
// with the stores already in the collection.
func (c *Collection) AddProperty(s *property.Store) error {
	stores := c.storesOf(s.Class())
	i := findStore(*stores, s.Kind(), s.Name())

	if n, ok := c.expectedCount(s.Class(), i); ok && n != s.Len() {
		return fmt.Errorf("%s property '%s' has %d elements, but the " +
			"collection has %d: %w", s.Class(), s.Name(), s.Len(), n,
			g_error.ErrCountMismatch)
	}

	s.Retain()
	if i == -1 {
		*stores = append(*stores, s)
	} else {
		if (*stores)[i] != s { (*stores)[i].Release() } else { s.Release() }
		(*stores)[i] = s
	}
	return nil
}

// RemoveProperty removes the store with the given class and kind (or name).
func (c *Collection) RemoveProperty(
	class property.Class, kind property.Kind, name string,
) error {
	stores := c.storesOf(class)
	i := findStore(*stores, kind, name)
	if i == -1 {
		return fmt.Errorf("%s property %s: %w", class,
			propertyLabel(kind, name), g_error.ErrNoSuchProperty)
	}
	(*stores)[i].Release()
	*stores = append((*stores)[:i], (*stores)[i+1:]...)
	return nil
}

// Property returns the particle or bond store of a standard kind.
func (c *Collection) Property(kind property.Kind) (*property.Store, error) {
	if !kind.IsStandard() {
		return nil, fmt.Errorf("%s is not a standard kind: %w", kind,
			g_error.ErrNoSuchProperty)
	}
	stores := *c.storesOf(kind.Class())
	i := findStore(stores, kind, "")
	if i == -1 {
		return nil, fmt.Errorf("%s property '%s': %w", kind.Class(), kind,
			g_error.ErrNoSuchProperty)
	}
	return stores[i], nil
}

// PropertyByName looks a store up by its name, standard or not.
func (c *Collection) PropertyByName(
	class property.Class, name string,
) (*property.Store, error) {
	for _, s := range *c.storesOf(class) {
		if s.Name() == name { return s, nil }
	}
	return nil, fmt.Errorf("%s property '%s': %w", class, name,
		g_error.ErrNoSuchProperty)
}

// HasProperty returns true if a store of the given standard kind is present.
func (c *Collection) HasProperty(kind property.Kind) bool {
	_, err := c.Property(kind)
	return err == nil
}

// Properties returns the stores of one class in insertion order. The slice is
// a copy, but the stores are not.
func (c *Collection) Properties(class property.Class) []*property.Store {
	return append([]*property.Store{ }, *c.storesOf(class)...)
}

func propertyLabel(kind property.Kind, name string) string {
	if kind == property.UserKind { return fmt.Sprintf("'%s'", name) }
	return fmt.Sprintf("'%s'", kind)
}

////////////////////////
// Cell and bonds //
////////////////////////

// SetCell replaces the simulation cell. A nil cell removes it.
func (c *Collection) SetCell(cl *cell.Cell) {
	if cl != nil { cl.Retain() }
	if c.cell != nil { c.cell.Release() }
	c.cell = cl
}

// Cell returns the simulation cell.
func (c *Collection) Cell() (*cell.Cell, error) {
	if c.cell == nil { return nil, g_error.ErrNoCellDefined }
	return c.cell, nil
}

// SetBonds replaces the bond list. A nil list removes it. Bond properties are
// not checked against the new list here; Validate does that.
func (c *Collection) SetBonds(l *bonds.List) {
	if l != nil { l.Retain() }
	if c.bonds != nil { c.bonds.Release() }
	c.bonds = l
}

// Bonds returns the bond list.
func (c *Collection) Bonds() (*bonds.List, error) {
	if c.bonds == nil {
		return nil, fmt.Errorf("bond list: %w", g_error.ErrNoSuchObject)
	}
	return c.bonds, nil
}

/////////////////////////////////////
// Named objects and attributes //
/////////////////////////////////////

// SetObject stores a derived object under name, replacing any previous one.
// A nil object removes the entry.
func (c *Collection) SetObject(name string, obj object.Object) {
	old, exists := c.objects[name]
	if obj != nil { obj.Retain() }
	if exists { old.Release() }

	switch {
	case obj == nil && exists:
		delete(c.objects, name)
		for i := range c.objectNames {
			if c.objectNames[i] == name {
				c.objectNames = append(c.objectNames[:i],
					c.objectNames[i+1:]...)
				break
			}
		}
	case obj != nil:
		if !exists { c.objectNames = append(c.objectNames, name) }
		c.objects[name] = obj
	}
}

// Object returns the derived object stored under name.
func (c *Collection) Object(name string) (object.Object, error) {
	obj, ok := c.objects[name]
	if !ok {
		return nil, fmt.Errorf("object '%s': %w", name,
			g_error.ErrNoSuchObject)
	}
	return obj, nil
}

// ObjectNames returns the names of the derived objects in insertion order.
func (c *Collection) ObjectNames() []string {
	return append([]string{ }, c.objectNames...)
}

// SetAttribute sets a global attribute. Values must be numbers or strings;
// integers are stored as float64.
func (c *Collection) SetAttribute(name string, value interface{}) error {
	switch x := value.(type) {
	case float64, string:
		c.attributes[name] = x
	case float32:
		c.attributes[name] = float64(x)
	case int:
		c.attributes[name] = float64(x)
	case int32:
		c.attributes[name] = float64(x)
	case int64:
		c.attributes[name] = float64(x)
	default:
		return fmt.Errorf("Attribute '%s' has type %T, but only numbers " +
			"and strings are supported.", name, value)
	}
	return nil
}

// Attribute returns a global attribute, which is either a float64 or a
// string.
func (c *Collection) Attribute(name string) (interface{}, bool) {
	val, ok := c.attributes[name]
	return val, ok
}

// AttributeNames returns the attribute names in sorted order.
func (c *Collection) AttributeNames() []string {
	names := make([]string, 0, len(c.attributes))
	for name := range c.attributes { names = append(names, name) }
	sort.Strings(names)
	return names
}

////////////
// Counts //
////////////

// ParticleCount returns the number of elements in the Position property, or
// 0 if there isn't one.
func (c *Collection) ParticleCount() int {
	i := findStore(c.particles, property.PositionKind, "")
	if i == -1 { return 0 }
	return c.particles[i].Len()
}

// HalfBondCount returns the number of half-bonds, or 0 without a bond list.
func (c *Collection) HalfBondCount() int {
	if c.bonds == nil { return 0 }
	return c.bonds.HalfCount()
}

// BondCount returns HalfBondCount()/2.
func (c *Collection) BondCount() int { return c.HalfBondCount() / 2 }

// Validate checks the invariants that tie the collection's objects together:
// every store of a class has the same element count, bond stores have one
// element per half-bond, and the bond list is symmetric and only references
// existing particles.
func (c *Collection) Validate() error {
	n, _ := c.expectedCount(property.ParticleClass, -1)
	for _, s := range c.particles {
		if s.Len() != n {
			return fmt.Errorf("particle property '%s' has %d elements, " +
				"but the collection has %d: %w", s.Name(), s.Len(), n,
				g_error.ErrCountMismatch)
		}
	}

	nb, _ := c.expectedCount(property.BondClass, -1)
	for _, s := range c.bondProps {
		if s.Len() != nb {
			return fmt.Errorf("bond property '%s' has %d elements, but the " +
				"collection has %d half-bonds: %w", s.Name(), s.Len(), nb,
				g_error.ErrCountMismatch)
		}
	}

	if c.bonds != nil {
		if err := c.bonds.CheckIndices(n); err != nil { return err }
		if err := c.bonds.CheckSymmetry(); err != nil { return err }
	}
	return nil
}

func (c *Collection) String() string {
	return fmt.Sprintf("Collection{%d particles, %d particle properties, " +
		"%d half-bonds, %d bond properties, cell=%v, %d objects, " +
		"%d attributes}", c.ParticleCount(), len(c.particles),
		c.HalfBondCount(), len(c.bondProps), c.cell != nil,
		len(c.objects), len(c.attributes))
}
