package excmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kobzarvs/qex/internal/buffer"
	"github.com/kobzarvs/qex/internal/changelog"
	"github.com/kobzarvs/qex/internal/mark"
	"github.com/kobzarvs/qex/internal/recno"
	"github.com/kobzarvs/qex/internal/sigblock"
)

func newExec(t *testing.T, lines ...string) (*Executor, *buffer.Buffer, *bytes.Buffer) {
	t.Helper()
	store := recno.NewMem()
	for i, l := range lines {
		if err := store.Put(i+1, []byte(l)); err != nil {
			t.Fatalf("seed line %d: %v", i+1, err)
		}
	}
	log, err := changelog.New(func() (recno.Store, error) { return recno.NewMem(), nil })
	if err != nil {
		t.Fatalf("changelog.New: %v", err)
	}
	b, err := buffer.New(store, buffer.WithLog(log))
	if err != nil {
		t.Fatalf("buffer.New: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	var out bytes.Buffer
	return New(b, WithOutput(&out), WithUndoToggle(true)), b, &out
}

func run(t *testing.T, e *Executor, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if err := e.Execute(context.Background(), line); err != nil {
			t.Fatalf("Execute(%q): %v", line, err)
		}
	}
}

func contents(t *testing.T, b *buffer.Buffer) []string {
	t.Helper()
	out := []string{}
	for _, text := range b.All() {
		out = append(out, string(text))
	}
	return out
}

func expect(t *testing.T, b *buffer.Buffer, want ...string) {
	t.Helper()
	if diff := cmp.Diff(want, contents(t, b)); diff != "" {
		t.Fatalf("contents mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendInsertDelete(t *testing.T) {
	e, b, _ := newExec(t, "a", "b", "c")

	run(t, e, "2a x")
	expect(t, b, "a", "b", "x", "c")
	if e.Dot().Line != 3 {
		t.Fatalf("dot = %d, want 3", e.Dot().Line)
	}
	run(t, e, "1i y")
	expect(t, b, "y", "a", "b", "x", "c")
	run(t, e, "$d")
	expect(t, b, "y", "a", "b", "x")
	run(t, e, "1,2d")
	expect(t, b, "b", "x")
	run(t, e, "0a top")
	expect(t, b, "top", "b", "x")
}

func TestInputMode(t *testing.T) {
	e, b, _ := newExec(t)

	run(t, e, "a", "one", "two")
	if !e.Inputting() {
		t.Fatalf("Inputting = false")
	}
	if last, _ := b.Last(); last != 2 {
		t.Fatalf("Last during input = %d, want 2", last)
	}
	run(t, e, ".")
	if e.Inputting() {
		t.Fatalf("Inputting = true after .")
	}
	expect(t, b, "one", "two")
	if e.Dot().Line != 2 {
		t.Fatalf("dot = %d, want 2", e.Dot().Line)
	}

	// Undo of text typed into an empty file leaves it empty again.
	run(t, e, "u")
	if last, _ := b.Last(); last != 0 {
		t.Fatalf("Last after undo = %d, want 0", last)
	}
	run(t, e, "u")
	expect(t, b, "one", "two")
}

func TestAppendToEmptyFile(t *testing.T) {
	e, b, _ := newExec(t)

	run(t, e, "a hello", "u")
	if last, _ := b.Last(); last != 0 {
		t.Fatalf("Last after undo = %d, want 0", last)
	}
	run(t, e, "redo")
	expect(t, b, "hello")
	run(t, e, "u")
	if last, _ := b.Last(); last != 0 {
		t.Fatalf("Last after second undo = %d, want 0", last)
	}
}

func TestCancelInput(t *testing.T) {
	e, b, _ := newExec(t, "a", "b")

	run(t, e, "1a", "typed")
	expect(t, b, "a", "typed", "b")
	if err := e.CancelInput(); err != nil {
		t.Fatalf("CancelInput: %v", err)
	}
	expect(t, b, "a", "b")
}

func TestChange(t *testing.T) {
	e, b, _ := newExec(t, "a", "b", "c", "d")

	run(t, e, "2,3c", "X", "Y", "Z", ".")
	expect(t, b, "a", "X", "Y", "Z", "d")
	run(t, e, "u")
	expect(t, b, "a", "b", "c", "d")
}

func TestSubstitute(t *testing.T) {
	e, b, _ := newExec(t, "foo bar foo", "baa")

	run(t, e, "%s/foo/X/")
	expect(t, b, "X bar foo", "baa")
	run(t, e, "1s/o+/[&]/g")
	expect(t, b, "X bar f[oo]", "baa")
	run(t, e, `1s/(bar)/<\1>/`)
	expect(t, b, "X <bar> f[oo]", "baa")

	// An empty pattern reuses the previous one.
	run(t, e, "2s/a/A/", "s//E/")
	expect(t, b, "X <bar> f[oo]", "bAE")

	if err := e.Execute(context.Background(), "2s/zzz/y/"); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("no match err = %v, want ErrNoMatch", err)
	}
}

func TestGlobal(t *testing.T) {
	e, b, out := newExec(t, "a1", "b", "a2", "a3", "c")

	run(t, e, "g/^a/d")
	expect(t, b, "b", "c")
	if e.Dot().Line != 2 {
		t.Fatalf("dot = %d, want 2", e.Dot().Line)
	}

	run(t, e, "v/b/s/$/!/")
	expect(t, b, "b", "c!")

	run(t, e, "g/./p")
	if got, want := out.String(), "b\nc!\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestGlobalAppend(t *testing.T) {
	e, b, _ := newExec(t, "x", "y", "x")

	run(t, e, "g/x/a new")
	expect(t, b, "x", "new", "y", "x", "new")

	// The whole global command is one change.
	run(t, e, "u")
	expect(t, b, "x", "y", "x")

	if err := e.Execute(context.Background(), "g/x/a"); !errors.Is(err, ErrUsage) {
		t.Fatalf("input inside global err = %v, want ErrUsage", err)
	}
}

func TestGlobalChangeNeedsText(t *testing.T) {
	e, b, _ := newExec(t, "x1", "keep", "x2")

	if err := e.Execute(context.Background(), "g/x/c"); !errors.Is(err, ErrUsage) {
		t.Fatalf("g/x/c err = %v, want ErrUsage", err)
	}
	expect(t, b, "x1", "keep", "x2")
	if e.Inputting() {
		t.Fatalf("Inputting = true after a refused change")
	}
}

func TestGlobalInterrupted(t *testing.T) {
	e, b, _ := newExec(t, "x", "x", "x")
	var intr sigblock.Interrupter
	ctx, done := intr.Begin(context.Background())
	defer done()
	if !intr.Interrupt() {
		t.Fatalf("Interrupt = false")
	}

	err := e.Execute(ctx, "g/x/d")
	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want ErrInterrupted wrapping context.Canceled", err)
	}
	expect(t, b, "x", "x", "x")
}

func TestUndoToggle(t *testing.T) {
	e, b, _ := newExec(t, "a")

	run(t, e, "s/a/b/")
	run(t, e, "u")
	expect(t, b, "a")
	run(t, e, "u")
	expect(t, b, "b")
	run(t, e, "u")
	expect(t, b, "a")
}

func TestUndoNoToggle(t *testing.T) {
	e, b, _ := newExec(t, "a")
	e.undoToggle = false

	run(t, e, "s/a/b/", "u")
	expect(t, b, "a")
	if err := e.Execute(context.Background(), "u"); !errors.Is(err, changelog.ErrNothingToUndo) {
		t.Fatalf("second undo err = %v, want ErrNothingToUndo", err)
	}
	run(t, e, "redo")
	expect(t, b, "b")
}

func TestRestoreLineCommand(t *testing.T) {
	e, b, _ := newExec(t, "one", "two")

	run(t, e, "1s/one/1/", "1s/1/uno/")
	expect(t, b, "uno", "two")
	run(t, e, "U")
	expect(t, b, "one", "two")
}

func TestMarks(t *testing.T) {
	e, b, _ := newExec(t, "a", "b", "c", "d")

	run(t, e, "3ka", "'a,$d")
	expect(t, b, "a", "b")

	err := e.Execute(context.Background(), "'ap")
	if !errors.Is(err, mark.ErrDeleted) {
		t.Fatalf("deleted mark err = %v, want ErrDeleted", err)
	}
	run(t, e, "u")
	expect(t, b, "a", "b", "c", "d")
	run(t, e, "'ad")
	expect(t, b, "a", "b", "d")
}

func TestAddressErrors(t *testing.T) {
	e, _, _ := newExec(t, "a", "b")
	tests := map[string]error{
		"5p":   ErrBadAddress,
		"2,1p": ErrAddressOrder,
		"1q":   ErrNoAddress,
		"zz":   ErrUnknownCommand,
		"0d":   ErrBadAddress,
		"'zp":  mark.ErrNotSet,
	}
	for line, want := range tests {
		if err := e.Execute(context.Background(), line); !errors.Is(err, want) {
			t.Fatalf("Execute(%q) err = %v, want %v", line, err, want)
		}
	}

	empty, _, _ := newExec(t)
	if err := empty.Execute(context.Background(), "p"); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("print on empty file err = %v, want ErrEmptyFile", err)
	}
}

func TestPrinting(t *testing.T) {
	e, _, out := newExec(t, "a", "b", "c")

	run(t, e, "%nu", "=", "2", ".=")
	want := "     1  a\n     2  b\n     3  c\n3\nb\n2\n"
	if got := out.String(); got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestWriteQuit(t *testing.T) {
	e, b, _ := newExec(t, "a")
	path := filepath.Join(t.TempDir(), "out.txt")

	run(t, e, "1a b")
	if err := e.Execute(context.Background(), "q"); !errors.Is(err, ErrModified) {
		t.Fatalf("quit modified err = %v, want ErrModified", err)
	}
	if e.Quit() {
		t.Fatalf("Quit = true after refused quit")
	}
	run(t, e, "w "+path)
	if b.Modified() {
		t.Fatalf("Modified = true after write")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "a\nb\n" {
		t.Fatalf("file = %q, want %q", data, "a\nb\n")
	}
	run(t, e, "q")
	if !e.Quit() {
		t.Fatalf("Quit = false")
	}
}
