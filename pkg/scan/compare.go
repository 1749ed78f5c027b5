package scan

import (
	"bytes"
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// compareFunc evaluates a relation between the freshly read bytes and the
// previously stored bytes of one filter candidate.
type compareFunc func(fresh, old []byte, rel Relation) bool

var comparers = map[DataType]compareFunc{
	Int8:   intComparer(1),
	Int16:  intComparer(2),
	Int32:  intComparer(4),
	Int64:  intComparer(8),
	Uint8:  uintComparer(1),
	Uint16: uintComparer(2),
	Uint32: uintComparer(4),
	Uint64: uintComparer(8),
	Float:  floatComparer(4),
	Double: floatComparer(8),
	UTF8:   compareUTF8,
	UTF16:  compareUTF16,
	AOB:    compareRaw,
}

// Compare evaluates rel between fresh and old interpreted as d. Types
// without an ordering only ever satisfy changed and unchanged. Buffers
// narrower than the type width never satisfy any relation.
func Compare(d DataType, rel Relation, fresh, old []byte) bool {
	cmp, ok := comparers[d]
	if !ok {
		return false
	}
	return cmp(fresh, old, rel)
}

func leUint(b []byte, width int) (uint64, bool) {
	if len(b) < width {
		return 0, false
	}
	var v uint64
	switch width {
	case 1:
		v = uint64(b[0])
	case 2:
		v = uint64(binary.LittleEndian.Uint16(b))
	case 4:
		v = uint64(binary.LittleEndian.Uint32(b))
	case 8:
		v = binary.LittleEndian.Uint64(b)
	default:
		return 0, false
	}
	return v, true
}

// leInt sign-extends the width-sized little-endian value in b.
func leInt(b []byte, width int) (int64, bool) {
	u, ok := leUint(b, width)
	if !ok {
		return 0, false
	}
	shift := 64 - uint(width)*8
	return int64(u<<shift) >> shift, true
}

func intComparer(width int) compareFunc {
	return func(fresh, old []byte, rel Relation) bool {
		a, ok := leInt(fresh, width)
		if !ok {
			return false
		}
		b, ok := leInt(old, width)
		if !ok {
			return false
		}
		switch rel {
		case Changed:
			return a != b
		case Unchanged:
			return a == b
		case Increased:
			return a > b
		case Decreased:
			return a < b
		}
		return false
	}
}

func uintComparer(width int) compareFunc {
	return func(fresh, old []byte, rel Relation) bool {
		a, ok := leUint(fresh, width)
		if !ok {
			return false
		}
		b, ok := leUint(old, width)
		if !ok {
			return false
		}
		switch rel {
		case Changed:
			return a != b
		case Unchanged:
			return a == b
		case Increased:
			return a > b
		case Decreased:
			return a < b
		}
		return false
	}
}

func floatComparer(width int) compareFunc {
	return func(fresh, old []byte, rel Relation) bool {
		au, ok := leUint(fresh, width)
		if !ok {
			return false
		}
		bu, ok := leUint(old, width)
		if !ok {
			return false
		}
		var a, b float64
		if width == 4 {
			a = float64(math.Float32frombits(uint32(au)))
			b = float64(math.Float32frombits(uint32(bu)))
		} else {
			a = math.Float64frombits(au)
			b = math.Float64frombits(bu)
		}
		// IEEE semantics: NaN compares unequal to everything, so a NaN
		// read counts as changed and never as increased or decreased.
		switch rel {
		case Changed:
			return a != b
		case Unchanged:
			return a == b
		case Increased:
			return a > b
		case Decreased:
			return a < b
		}
		return false
	}
}

// compareUTF8 compares the buffers as UTF-8 text. Invalid text decodes as
// the empty string, so two unreadable buffers compare as unchanged.
func compareUTF8(fresh, old []byte, rel Relation) bool {
	a, b := fresh, old
	if !utf8.Valid(a) {
		a = nil
	}
	if !utf8.Valid(b) {
		b = nil
	}
	switch rel {
	case Changed:
		return !bytes.Equal(a, b)
	case Unchanged:
		return bytes.Equal(a, b)
	}
	return false
}

// compareUTF16 compares the buffers as sequences of 16-bit code units; a
// trailing odd byte is ignored.
func compareUTF16(fresh, old []byte, rel Relation) bool {
	a := fresh[:len(fresh)&^1]
	b := old[:len(old)&^1]
	switch rel {
	case Changed:
		return !bytes.Equal(a, b)
	case Unchanged:
		return bytes.Equal(a, b)
	}
	return false
}

func compareRaw(fresh, old []byte, rel Relation) bool {
	switch rel {
	case Changed:
		return !bytes.Equal(fresh, old)
	case Unchanged:
		return bytes.Equal(fresh, old)
	}
	return false
}
