// Package mark keeps named line positions that follow line insertions and
// deletions.
package mark

import (
	"errors"
	"fmt"
	"sort"
)

// Absolute is the previous-context mark. AbsoluteAlias names the same entry.
const (
	Absolute      byte = '\''
	AbsoluteAlias byte = '`'
)

var (
	ErrNotSet       = errors.New("not set")
	ErrDeleted      = errors.New("the line was deleted")
	ErrPositionGone = errors.New("cursor position no longer exists")
	ErrInvalidName  = errors.New("invalid mark name")
)

// Position is a line and column. Line 0 means no line.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Mark is one table entry.
type Mark struct {
	Name byte
	Position
	Deleted bool
	UserSet bool
}

// Error reports a failed lookup of a named mark.
type Error struct {
	Name byte
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mark %c: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Source answers line lookups so a mark can be checked against the text.
type Source interface {
	Line(lno int) ([]byte, error)
}

// Table is the set of marks of one file, kept sorted by name.
type Table struct {
	src   Source
	marks []Mark
}

// New returns a table holding only the absolute mark at 1:0.
func New(src Source) *Table {
	t := &Table{src: src}
	t.marks = []Mark{{Name: Absolute, Position: Position{Line: 1}}}
	return t
}

// Valid reports whether name can be used as a mark.
func Valid(name byte) bool {
	switch {
	case name >= 'a' && name <= 'z', name >= 'A' && name <= 'Z':
		return true
	case name == Absolute, name == AbsoluteAlias:
		return true
	}
	return false
}

func canonical(name byte) byte {
	if name == AbsoluteAlias {
		return Absolute
	}
	return name
}

// find returns the index of the first entry whose name is >= name.
func (t *Table) find(name byte) int {
	return sort.Search(len(t.marks), func(i int) bool { return t.marks[i].Name >= name })
}

func (t *Table) lookup(name byte) (*Mark, bool) {
	i := t.find(name)
	if i < len(t.marks) && t.marks[i].Name == name {
		return &t.marks[i], true
	}
	return nil, false
}

// Get returns the position of a mark.
func (t *Table) Get(name byte) (Position, error) {
	name = canonical(name)
	m, ok := t.lookup(name)
	if !ok {
		return Position{}, &Error{Name: name, Err: ErrNotSet}
	}
	if m.Deleted {
		return Position{}, &Error{Name: name, Err: ErrDeleted}
	}
	// The absolute mark starts at 1:0 and works even in an empty file.
	if m.Line == 1 && m.Column == 0 {
		return m.Position, nil
	}
	if t.src != nil {
		text, err := t.src.Line(m.Line)
		if err != nil || (m.Column > 0 && m.Column >= len(text)) {
			return Position{}, &Error{Name: name, Err: ErrPositionGone}
		}
	}
	return m.Position, nil
}

// Set stores a mark. A user set always wins. A set made while replaying
// the change log leaves a live user-set mark alone.
func (t *Table) Set(name byte, pos Position, userSet bool) error {
	if !Valid(name) {
		return &Error{Name: name, Err: ErrInvalidName}
	}
	name = canonical(name)
	i := t.find(name)
	if i < len(t.marks) && t.marks[i].Name == name {
		m := &t.marks[i]
		if !userSet && !m.Deleted && m.UserSet {
			return nil
		}
		m.Position = pos
		m.Deleted = false
		m.UserSet = userSet
		return nil
	}
	t.marks = append(t.marks, Mark{})
	copy(t.marks[i+1:], t.marks[i:])
	t.marks[i] = Mark{Name: name, Position: pos, UserSet: userSet}
	return nil
}

// Insert moves marks at or after lno down one line.
func (t *Table) Insert(lno int) {
	for i := range t.marks {
		if t.marks[i].Line >= lno {
			t.marks[i].Line++
		}
	}
}

// Delete moves marks after lno up one line and flags marks on lno as
// deleted. The flagged marks are returned so the caller can log them.
func (t *Table) Delete(lno int) []Mark {
	var hit []Mark
	for i := range t.marks {
		m := &t.marks[i]
		switch {
		case m.Line == lno:
			m.Deleted = true
			hit = append(hit, *m)
		case m.Line > lno:
			m.Line--
		}
	}
	return hit
}

// All returns a copy of every entry.
func (t *Table) All() []Mark {
	out := make([]Mark, len(t.marks))
	copy(out, t.marks)
	return out
}
