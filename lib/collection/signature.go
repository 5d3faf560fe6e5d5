package collection

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/phil-mansfield/nbpipe/lib/property"
)

// Section tags keep, e.g., a missing cell from hashing the same as an empty
// attribute map.
const (
	tagParticle byte = iota + 1
	tagBond
	tagCell
	tagBondList
	tagObject
	tagAttribute
)

// Signature returns a hash of the collection's contents. Two collections with
// the same signature hold the same object states, so a stage applied to
// either one produces equivalent output. Any change to a contained object
// gives it a new revision and therefore changes the signature.
func (c *Collection) Signature() uint64 {
	d := xxhash.New()
	buf := make([]byte, 8)

	writeUint := func(x uint64) {
		binary.LittleEndian.PutUint64(buf, x)
		d.Write(buf)
	}
	writeString := func(s string) {
		writeUint(uint64(len(s)))
		d.WriteString(s)
	}
	writeStore := func(tag byte, s *property.Store) {
		d.Write([]byte{ tag })
		writeString(s.Name())
		writeUint(s.Revision())
	}

	for _, s := range c.particles { writeStore(tagParticle, s) }
	for _, s := range c.bondProps { writeStore(tagBond, s) }
	if c.cell != nil {
		d.Write([]byte{ tagCell })
		writeUint(c.cell.Revision())
	}
	if c.bonds != nil {
		d.Write([]byte{ tagBondList })
		writeUint(c.bonds.Revision())
	}
	for _, name := range c.sortedObjectNames() {
		d.Write([]byte{ tagObject })
		writeString(name)
		writeUint(c.objects[name].Revision())
	}
	for _, name := range c.AttributeNames() {
		d.Write([]byte{ tagAttribute })
		writeString(name)
		switch x := c.attributes[name].(type) {
		case float64:
			d.Write([]byte{ 0 })
			writeUint(math.Float64bits(x))
		case string:
			d.Write([]byte{ 1 })
			writeString(x)
		}
	}

	return d.Sum64()
}
