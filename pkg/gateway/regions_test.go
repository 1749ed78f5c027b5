package gateway

import "testing"

func TestParseRegions(t *testing.T) {
	text := "00400000-00452000 r-xp /usr/bin/target\n" +
		"7f0000000000-7f0000021000 rw-p\n" +
		"malformed line without addresses\n" +
		"deadbeef r--p\n" +
		"zzzz-0010 r--p\n" +
		"ffffffffff600000-ffffffffff601000 --xp [vsyscall]\n"

	regions := ParseRegions(text)
	if len(regions) != 3 {
		t.Fatalf("parsed %d regions, want 3", len(regions))
	}

	r := regions[0]
	if r.Start != 0x400000 || r.End != 0x452000 {
		t.Errorf("region 0 spans %#x-%#x", r.Start, r.End)
	}
	if r.Protection != "r-xp" || r.Path != "/usr/bin/target" {
		t.Errorf("region 0 parsed as %+v", r)
	}
	if !r.Readable() || r.Writable() {
		t.Errorf("region 0 protection flags wrong: %+v", r)
	}
	if r.Size() != 0x52000 {
		t.Errorf("region 0 size %#x, want 0x52000", r.Size())
	}

	if regions[1].Path != "" {
		t.Errorf("anonymous region has path %q", regions[1].Path)
	}
	if !regions[1].Writable() {
		t.Error("rw region not writable")
	}

	if regions[2].Readable() {
		t.Error("--xp region reported readable")
	}
	if regions[2].Path != "[vsyscall]" {
		t.Errorf("region 2 path %q", regions[2].Path)
	}
}

func TestParseRegionsEmpty(t *testing.T) {
	if rs := ParseRegions(""); len(rs) != 0 {
		t.Fatalf("parsed %d regions from empty text", len(rs))
	}
}
