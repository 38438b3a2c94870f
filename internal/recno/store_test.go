package recno

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func backends(t *testing.T) map[string]func() Store {
	t.Helper()
	dir := t.TempDir()
	return map[string]func() Store{
		"memory": func() Store { return NewMem() },
		"bolt": func() Store {
			s, err := OpenTemp(filepath.Join(dir, "test.db"))
			if err != nil {
				t.Fatalf("OpenTemp: %v", err)
			}
			return s
		},
	}
}

func contents(t *testing.T, s Store) []string {
	t.Helper()
	last, err := s.Last()
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	out := make([]string, 0, last)
	for n := 1; n <= last; n++ {
		b, err := s.Get(n)
		if err != nil {
			t.Fatalf("Get(%d): %v", n, err)
		}
		out = append(out, string(b))
	}
	return out
}

func TestStoreRenumbering(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			if err := s.InsertAfter(0, []byte("b")); err != nil {
				t.Fatalf("InsertAfter(0): %v", err)
			}
			if err := s.InsertBefore(1, []byte("a")); err != nil {
				t.Fatalf("InsertBefore(1): %v", err)
			}
			if err := s.InsertAfter(2, []byte("d")); err != nil {
				t.Fatalf("InsertAfter(2): %v", err)
			}
			if err := s.InsertBefore(3, []byte("c")); err != nil {
				t.Fatalf("InsertBefore(3): %v", err)
			}
			if err := s.InsertBefore(5, []byte("e")); err != nil {
				t.Fatalf("InsertBefore(5): %v", err)
			}
			want := []string{"a", "b", "c", "d", "e"}
			if diff := cmp.Diff(want, contents(t, s)); diff != "" {
				t.Fatalf("after inserts (-want +got):\n%s", diff)
			}

			if err := s.Delete(2); err != nil {
				t.Fatalf("Delete(2): %v", err)
			}
			if err := s.Put(1, []byte("A")); err != nil {
				t.Fatalf("Put(1): %v", err)
			}
			if err := s.Put(5, []byte("f")); err != nil {
				t.Fatalf("Put(5): %v", err)
			}
			want = []string{"A", "c", "d", "e", "f"}
			if diff := cmp.Diff(want, contents(t, s)); diff != "" {
				t.Fatalf("after delete/put (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStoreBounds(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			if _, err := s.Get(0); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get(0) err = %v, want ErrNotFound", err)
			}
			if _, err := s.Get(1); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get(1) on empty err = %v, want ErrNotFound", err)
			}
			if err := s.Delete(1); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Delete(1) on empty err = %v, want ErrNotFound", err)
			}
			if err := s.Put(2, []byte("x")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Put(2) on empty err = %v, want ErrNotFound", err)
			}
			if err := s.InsertAfter(1, []byte("x")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("InsertAfter(1) on empty err = %v, want ErrNotFound", err)
			}
			if last, _ := s.Last(); last != 0 {
				t.Fatalf("Last = %d, want 0", last)
			}
		})
	}
}

func TestStoreCopiesData(t *testing.T) {
	s := NewMem()
	buf := []byte("hello")
	if err := s.Put(1, buf); err != nil {
		t.Fatalf("Put: %v", err)
	}
	buf[0] = 'j'
	got, _ := s.Get(1)
	if string(got) != "hello" {
		t.Fatalf("Get = %q, want %q", got, "hello")
	}
	got[0] = 'y'
	again, _ := s.Get(1)
	if string(again) != "hello" {
		t.Fatalf("Get after caller mutation = %q, want %q", again, "hello")
	}
}

func TestStoreClosed(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			if err := s.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if _, err := s.Get(1); !errors.Is(err, ErrClosed) {
				t.Fatalf("Get after close err = %v, want ErrClosed", err)
			}
			if err := s.Put(1, nil); !errors.Is(err, ErrClosed) {
				t.Fatalf("Put after close err = %v, want ErrClosed", err)
			}
		})
	}
}

func TestOpenTempRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmp.db")
	s, err := OpenTemp(path)
	if err != nil {
		t.Fatalf("OpenTemp: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat while open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("stat after close err = %v, want not exist", err)
	}
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Backend: BackendBolt, Dir: dir, Name: "open"})
	if err != nil {
		t.Fatalf("Open bolt: %v", err)
	}
	if _, ok := s.(*Bolt); !ok {
		t.Fatalf("Open bolt returned %T", s)
	}
	_ = s.Close()

	s, err = Open(Options{})
	if err != nil {
		t.Fatalf("Open default: %v", err)
	}
	if _, ok := s.(*Mem); !ok {
		t.Fatalf("Open default returned %T", s)
	}

	if _, err := Open(Options{Backend: "tape"}); err == nil {
		t.Fatalf("Open unknown backend succeeded")
	}
}
