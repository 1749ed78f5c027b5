package scan

import (
	"encoding/binary"
	"math"
	"testing"
)

func leBytes(v uint64, width int) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b[:width]
}

func f32(v float32) []byte {
	return leBytes(uint64(math.Float32bits(v)), 4)
}

func f64(v float64) []byte {
	return leBytes(math.Float64bits(v), 8)
}

func TestCompareInt(t *testing.T) {
	tests := []struct {
		name  string
		typ   DataType
		fresh []byte
		old   []byte
		rel   Relation
		want  bool
	}{
		{"int8 increased", Int8, leBytes(20, 1), leBytes(10, 1), Increased, true},
		{"int8 negative decreased", Int8, leBytes(uint64(uint8(0xff)), 1), leBytes(1, 1), Decreased, true},
		{"int32 unchanged", Int32, leBytes(42, 4), leBytes(42, 4), Unchanged, true},
		{"int32 changed", Int32, leBytes(42, 4), leBytes(43, 4), Changed, true},
		{"int32 not increased", Int32, leBytes(5, 4), leBytes(10, 4), Increased, false},
		{"int64 sign extension", Int64, leBytes(math.MaxUint64, 8), leBytes(0, 8), Decreased, true},
		{"uint8 wraparound is larger", Uint8, leBytes(0xff, 1), leBytes(1, 1), Increased, true},
		{"uint64 decreased", Uint64, leBytes(1, 8), leBytes(2, 8), Decreased, true},
		{"short fresh buffer", Int32, leBytes(1, 2), leBytes(1, 4), Unchanged, false},
		{"short old buffer", Int32, leBytes(1, 4), leBytes(1, 2), Unchanged, false},
	}
	for _, tc := range tests {
		if got := Compare(tc.typ, tc.rel, tc.fresh, tc.old); got != tc.want {
			t.Errorf("%s: Compare = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCompareFloat(t *testing.T) {
	tests := []struct {
		name  string
		typ   DataType
		fresh []byte
		old   []byte
		rel   Relation
		want  bool
	}{
		{"float increased", Float, f32(1.5), f32(1.0), Increased, true},
		{"float unchanged", Float, f32(3.25), f32(3.25), Unchanged, true},
		{"double decreased", Double, f64(-2.0), f64(-1.0), Decreased, true},
		{"nan is changed", Float, f32(float32(math.NaN())), f32(1.0), Changed, true},
		{"nan never increased", Float, f32(float32(math.NaN())), f32(1.0), Increased, false},
		{"nan never unchanged", Double, f64(math.NaN()), f64(math.NaN()), Unchanged, false},
	}
	for _, tc := range tests {
		if got := Compare(tc.typ, tc.rel, tc.fresh, tc.old); got != tc.want {
			t.Errorf("%s: Compare = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCompareText(t *testing.T) {
	tests := []struct {
		name  string
		typ   DataType
		fresh []byte
		old   []byte
		rel   Relation
		want  bool
	}{
		{"utf8 unchanged", UTF8, []byte("abc"), []byte("abc"), Unchanged, true},
		{"utf8 changed", UTF8, []byte("abc"), []byte("abd"), Changed, true},
		{"utf8 invalid both sides unchanged", UTF8, []byte{0xff, 0xfe}, []byte{0xc0}, Unchanged, true},
		{"utf8 has no ordering", UTF8, []byte("b"), []byte("a"), Increased, false},
		{"utf16 ignores trailing odd byte", UTF16, []byte("abcd?"), []byte("abcd!"), Unchanged, true},
		{"utf16 changed", UTF16, []byte("abcd"), []byte("abce"), Changed, true},
		{"aob unchanged", AOB, []byte{1, 2, 3}, []byte{1, 2, 3}, Unchanged, true},
		{"aob has no ordering", AOB, []byte{2}, []byte{1}, Increased, false},
	}
	for _, tc := range tests {
		if got := Compare(tc.typ, tc.rel, tc.fresh, tc.old); got != tc.want {
			t.Errorf("%s: Compare = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCompareUnknownType(t *testing.T) {
	if Compare(Regex, Unchanged, []byte("a"), []byte("a")) {
		t.Fatal("regex type must not satisfy any relation")
	}
}
