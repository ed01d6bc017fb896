package container

import "testing"

func TestPutGetDelete(t *testing.T) {
	m := New[string, int]()
	m.Put("a", 1, 0)
	if v, ok := m.Get("a", 0); !ok || v != 1 {
		t.Fatalf("got (%v, %v)", v, ok)
	}
	m.Delete("a", 0)
	if _, ok := m.Get("a", 0); ok {
		t.Fatal("expected the entry to be gone after Delete")
	}
}

func TestSize(t *testing.T) {
	m := New[string, int]()
	m.Put("a", 1, 0)
	m.Put("b", 2, 0)
	if m.Size() != 2 {
		t.Fatalf("got size %d, want 2", m.Size())
	}
}

func TestProcessReentrantPutAndGet(t *testing.T) {
	m := New[string, int]()
	err := m.Process(func(pid int) error {
		m.Put("a", 1, pid)
		if v, ok := m.Get("a", pid); !ok || v != 1 {
			t.Fatalf("nested Get under Process saw (%v, %v)", v, ok)
		}
		return nil
	}, false)
	if err != nil {
		t.Fatalf("Process: %s", err)
	}
	if v, ok := m.Get("a", 0); !ok || v != 1 {
		t.Fatalf("got (%v, %v) after Process returned", v, ok)
	}
}

func TestProcessRangeVisitsAllEntries(t *testing.T) {
	m := New[string, int]()
	m.Put("a", 1, 0)
	m.Put("b", 2, 0)

	seen := make(map[string]int)
	err := m.ProcessRange(func(k string, v int, pid int) error {
		seen[k] = v
		return nil
	}, true)
	if err != nil {
		t.Fatalf("ProcessRange: %s", err)
	}
	if len(seen) != 2 || seen["a"] != 1 || seen["b"] != 2 {
		t.Fatalf("got %#v", seen)
	}
}

func TestProcessRangePropagatesCallbackError(t *testing.T) {
	m := New[string, int]()
	m.Put("a", 1, 0)

	sentinel := errTest("boom")
	err := m.ProcessRange(func(k string, v int, pid int) error {
		return sentinel
	}, true)
	if err != sentinel {
		t.Fatalf("got %v, want %v", err, sentinel)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
