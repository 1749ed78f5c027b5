package batch

import (
	"bytes"
	"errors"
	"testing"

	"github.com/memprobe/memprobe/pkg/gateway"
)

type fakeMem struct {
	gateway.Gateway
	base uint64
	data []byte
}

func (m *fakeMem) ReadMemory(pid int, addr uint64, size int) ([]byte, error) {
	if size <= 0 || addr < m.base || addr+uint64(size) > m.base+uint64(len(m.data)) {
		return nil, errors.New("unmapped address")
	}
	out := make([]byte, size)
	copy(out, m.data[addr-m.base:])
	return out, nil
}

func TestCodecRoundTrip(t *testing.T) {
	data := make([]byte, 0x100)
	for i := range data {
		data[i] = byte(i)
	}
	c := NewCodec(&fakeMem{base: 0x1000, data: data})

	reqs := []ReadRequest{
		{Address: 0x1000, Size: 16},
		{Address: 0xdead0000, Size: 8}, // unmapped
		{Address: 0x1040, Size: 64},
		{Address: 0x10f0, Size: 32}, // crosses the end of the mapping
		{Address: 0x10ff, Size: 1},
	}
	stream := c.Encode(1, reqs)

	results, err := Decode(stream)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(results) != len(reqs) {
		t.Fatalf("decoded %d records, want %d", len(results), len(reqs))
	}

	wantOK := []bool{true, false, true, false, true}
	for i, r := range results {
		if r.OK != wantOK[i] {
			t.Errorf("record %d: OK = %v, want %v", i, r.OK, wantOK[i])
		}
	}
	if !bytes.Equal(results[0].Data, data[:16]) {
		t.Errorf("record 0 data mismatch")
	}
	if !bytes.Equal(results[2].Data, data[0x40:0x80]) {
		t.Errorf("record 2 data mismatch")
	}
	if !bytes.Equal(results[4].Data, data[0xff:]) {
		t.Errorf("record 4 data mismatch")
	}
	if results[1].Data != nil {
		t.Errorf("failed record carries data")
	}
}

func TestCodecEmptyBatch(t *testing.T) {
	c := NewCodec(&fakeMem{})
	stream := c.Encode(1, nil)
	if len(stream) != 0 {
		t.Fatalf("empty batch encoded to %d bytes", len(stream))
	}
	results, err := Decode(stream)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("decoded %d records from empty stream", len(results))
	}
}

func TestCodecOrderPreserved(t *testing.T) {
	data := make([]byte, 0x100)
	for i := range data {
		data[i] = byte(i)
	}
	c := NewCodec(&fakeMem{base: 0x1000, data: data})
	c.SetWorkers(8)

	var reqs []ReadRequest
	for i := 0; i < 64; i++ {
		reqs = append(reqs, ReadRequest{Address: 0x1000 + uint64(i), Size: 1})
	}
	results, err := Decode(c.Encode(1, reqs))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for i, r := range results {
		if !r.OK || len(r.Data) != 1 || r.Data[0] != byte(i) {
			t.Fatalf("record %d out of order: %+v", i, r)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	data := []byte("some memory contents to compress")
	c := NewCodec(&fakeMem{base: 0x1000, data: data})
	stream := c.Encode(1, []ReadRequest{{Address: 0x1000, Size: len(data)}})

	for _, cut := range []int{1, 3, 5, 7, len(stream) - 1} {
		if _, err := Decode(stream[:cut]); !errors.Is(err, ErrTruncated) {
			t.Errorf("cut at %d: got error %v, want ErrTruncated", cut, err)
		}
	}
}
