/*package compress writes collections to compact binary files and reads them
back. Every component of every property is stored as a column of int64
values: integer properties are delta encoded and floating point properties
are stored as their IEEE bit patterns, so the files are lossless. Each column
is then split into eight byte-columns which are entropy coded separately,
which lets the high-significance bytes compress to almost nothing.
*/
package compress

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/DataDog/zstd"
)

// MethodFlag is a flag representing the method used to compress the data.
type MethodFlag uint32
const (
	ZStdFlag MethodFlag = iota
	ZLibFlag
	numMethods
)

func (m MethodFlag) String() string {
	switch m {
	case ZStdFlag: return "zstd"
	case ZLibFlag: return "zlib"
	}
	return fmt.Sprintf("MethodFlag(%d)", uint32(m))
}

// MethodByName returns the flag for "zstd" or "zlib".
func MethodByName(name string) (MethodFlag, error) {
	for m := MethodFlag(0); m < numMethods; m++ {
		if m.String() == name { return m, nil }
	}
	return 0, fmt.Errorf("'%s' is not a compression method. The methods " +
		"are 'zstd' and 'zlib'.", name)
}

// Buffer is an expandable buffer which is used by many of compress's functions
// to avoid unneeded heap allocations.
type Buffer struct {
	b, bComp []byte
	q []int64
}

// NewBuffer creates a new, resizable Buffer.
func NewBuffer() *Buffer {
	return &Buffer{ []byte{ }, []byte{ }, []int64{ } }
}

// Resize resizes the buffer so its arrays all have length n.
func (buf *Buffer) Resize(n int) {
	buf.b = resizeBytes(buf.b, n)
	if cap(buf.q) >= n {
		buf.q = buf.q[:n]
	} else {
		buf.q = buf.q[:cap(buf.q)]
		buf.q = append(buf.q, make([]int64, n - len(buf.q))...)
	}
}

// DeltaEncode delta encodes the array x into the array out. The element
// before x[0] is taken to be offset. x and out can be the same array.
func DeltaEncode(offset int64, x, out []int64) {
	if len(x) == 0 { return }

	// The loop is written this way so DeltaEncode can be called in place.
	prev := x[0]
	out[0] = prev - offset
	for i := 1; i < len(x); i++ {
		next := x[i]
		out[i] = next - prev
		prev = next
	}
}

// DeltaDecode decodes a integer array encoded with DeltaEncode. x and out can
// be the same array.
func DeltaDecode(offset int64, x, out []int64) {
	if len(x) == 0 { return }

	out[0] = offset + x[0]
	for i := 1; i < len(out); i++ {
		out[i] = out[i-1] + x[i]
	}
}

// intToByte transfers a one-byte "column" from i64 to b. The bytes are indexed
// from least to most significant.
func intToByte(i64 []int64, b []byte, col int) {
	for i := range i64 {
		b[i] = byte((uint64(i64[i]) >> (8*col)) & 0xff)
	}
}

// byteToInt adds a one-byte column to i64.
func byteToInt(b []byte, i64 []int64, col int) {
	for i := range i64 {
		i64[i] = int64(uint64(i64[i]) | uint64(b[i]) << (8*col))
	}
}

// resizeBytes resizes a byte buffer to have length n.
func resizeBytes(b []byte, n int) []byte {
	if cap(b) >= n {
		b = b[:n]
	} else {
		b = b[:cap(b)]
		b = append(b, make([]byte, n - len(b))...)
	}

	return b
}

// WriteCompressedInts writes buf.q to wr as eight length-prefixed,
// separately compressed byte columns.
func WriteCompressedInts(
	method MethodFlag, buf *Buffer, order binary.ByteOrder, wr io.Writer,
) error {
	q := buf.q
	buf.b = resizeBytes(buf.b, len(q))

	for i := 0; i < 8; i++ {
		intToByte(q, buf.b, i)

		var err error
		buf.bComp, err = compressBytes(method, buf.b, buf.bComp[:0])
		if err != nil { return err }

		err = binary.Write(wr, order, int64(len(buf.bComp)))
		if err != nil { return err }
		if _, err = wr.Write(buf.bComp); err != nil { return err }
	}

	return nil
}

// ReadCompressedInts reads len(buf.q) ints written by WriteCompressedInts
// into buf.q.
func ReadCompressedInts(
	method MethodFlag, buf *Buffer, order binary.ByteOrder, rd io.Reader,
) error {
	q := buf.q
	for i := range q { q[i] = 0 }

	for i := 0; i < 8; i++ {
		nComp := int64(0)
		err := binary.Read(rd, order, &nComp)
		if err != nil { return err }
		if nComp < 0 {
			return fmt.Errorf("A compressed column claims to have %d bytes.",
				nComp)
		}

		buf.bComp = resizeBytes(buf.bComp, int(nComp))
		if _, err = io.ReadFull(rd, buf.bComp); err != nil { return err }

		buf.b, err = decompressBytes(method, buf.bComp,
			resizeBytes(buf.b, len(q)))
		if err != nil { return err }
		if len(buf.b) != len(q) {
			return fmt.Errorf("A compressed column decompressed to %d " +
				"bytes, but %d were expected.", len(buf.b), len(q))
		}

		byteToInt(buf.b, q, i)
	}

	return nil
}

// compressBytes compresses src, appending to dst.
func compressBytes(method MethodFlag, src, dst []byte) ([]byte, error) {
	switch method {
	case ZStdFlag:
		return zstd.CompressLevel(dst, src, 1)
	case ZLibFlag:
		out := bytes.NewBuffer(dst)
		wr := zlib.NewWriter(out)
		if _, err := wr.Write(src); err != nil { return nil, err }
		if err := wr.Close(); err != nil { return nil, err }
		return out.Bytes(), nil
	}
	return nil, fmt.Errorf("Unrecognized compression method %s.", method)
}

// decompressBytes decompresses src into dst, which should already have the
// expected length.
func decompressBytes(method MethodFlag, src, dst []byte) ([]byte, error) {
	switch method {
	case ZStdFlag:
		return zstd.Decompress(dst, src)
	case ZLibFlag:
		rd, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil { return nil, err }
		defer rd.Close()
		out := bytes.NewBuffer(dst[:0])
		if _, err := io.Copy(out, rd); err != nil { return nil, err }
		return out.Bytes(), nil
	}
	return nil, fmt.Errorf("Unrecognized compression method %s.", method)
}
