package scan

import (
	"sort"
	"testing"
)

func TestStoreClearCreates(t *testing.T) {
	s := NewStore()
	if _, ok := s.Snapshot("s"); ok {
		t.Fatal("empty store reports an id")
	}
	s.Clear("s")
	matches, ok := s.Snapshot("s")
	if !ok {
		t.Fatal("cleared id does not exist")
	}
	if len(matches) != 0 {
		t.Fatalf("cleared id holds %d matches, want 0", len(matches))
	}
}

func TestStoreAppendMerges(t *testing.T) {
	s := NewStore()
	s.Append("s", []Match{{Address: 1, Value: "01"}})
	s.Append("s", []Match{{Address: 2, Value: "02"}})
	s.Append("s", nil)
	if n := s.Count("s"); n != 2 {
		t.Fatalf("store holds %d matches, want 2", n)
	}
}

func TestStoreReplace(t *testing.T) {
	s := NewStore()
	s.Append("s", []Match{{Address: 1}, {Address: 2}, {Address: 3}})
	s.Replace("s", []Match{{Address: 9}})
	matches, _ := s.Snapshot("s")
	if len(matches) != 1 || matches[0].Address != 9 {
		t.Fatalf("replace left %v", matches)
	}
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Append("s", []Match{{Address: 1, Value: "01"}})
	matches, _ := s.Snapshot("s")
	matches[0].Value = "ff"
	fresh, _ := s.Snapshot("s")
	if fresh[0].Value != "01" {
		t.Fatal("snapshot aliases the stored set")
	}
}

func TestStoreRemove(t *testing.T) {
	s := NewStore()
	s.Append("s", []Match{{Address: 1}})
	if !s.Remove("s") {
		t.Fatal("remove of existing id reported false")
	}
	if s.Remove("s") {
		t.Fatal("remove of missing id reported true")
	}
	if _, ok := s.Snapshot("s"); ok {
		t.Fatal("removed id still exists")
	}
}

func TestStoreIDs(t *testing.T) {
	s := NewStore()
	s.Clear("a")
	s.Clear("b")
	ids := s.IDs()
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("ids = %v, want [a b]", ids)
	}
}

func TestStoreRetainCap(t *testing.T) {
	s := NewStore()
	s.SetRetainCap(2)

	s.Append("s", []Match{{Address: 1}, {Address: 2}, {Address: 3}})
	if n := s.Count("s"); n != 2 {
		t.Fatalf("append retained %d matches, want 2", n)
	}

	s.Replace("s", []Match{{Address: 1}, {Address: 2}, {Address: 3}, {Address: 4}})
	if n := s.Count("s"); n != 2 {
		t.Fatalf("replace retained %d matches, want 2", n)
	}

	s.SetRetainCap(0)
	s.Replace("s", []Match{{Address: 1}, {Address: 2}, {Address: 3}})
	if n := s.Count("s"); n != 3 {
		t.Fatalf("uncapped replace retained %d matches, want 3", n)
	}
}
