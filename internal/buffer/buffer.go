// Package buffer is the line store of one editing session.
//
// Lines are numbered from 1 and kept in a recno.Store. Reads go through a
// one-line cache and through the pending input run, the lines the user is
// typing that are not committed yet. Every change moves the marks and the
// global-command range trackers, is written to the change log, and is
// announced to the attached display surfaces.
package buffer

import (
	"errors"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/kobzarvs/qex/internal/changelog"
	"github.com/kobzarvs/qex/internal/logger"
	"github.com/kobzarvs/qex/internal/mark"
	"github.com/kobzarvs/qex/internal/rangelist"
	"github.com/kobzarvs/qex/internal/recno"
	"github.com/kobzarvs/qex/internal/sigblock"
)

// Position is a line and column in the buffer.
type Position = mark.Position

// ChangeKind says what happened to a line.
type ChangeKind int

const (
	Append ChangeKind = iota
	Insert
	Delete
	Reset
)

func (k ChangeKind) String() string {
	switch k {
	case Append:
		return "append"
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Reset:
		return "reset"
	}
	return fmt.Sprintf("change(%d)", int(k))
}

// Notifier is told about every line change. redraw is false while a
// multi-line paste is still arriving.
type Notifier interface {
	Notify(kind ChangeKind, lno int, redraw bool) error
}

// Message is a user-visible report.
type Message struct {
	Text  string
	Error bool
}

// GetFlag modifies Get.
type GetFlag uint8

const (
	// GetFatal reports a failed lookup as an error message.
	GetFatal GetFlag = 1 << iota
	// GetNoCache skips the one-line cache.
	GetNoCache
)

type Option func(*Buffer)

func WithLog(l *changelog.Log) Option {
	return func(b *Buffer) { b.log = l }
}

// WithSurfaces attaches the display surfaces showing this buffer.
func WithSurfaces(s ...Notifier) Option {
	return func(b *Buffer) { b.surfaces = append(b.surfaces, s...) }
}

// WithGate guards store changes against signal delivery.
func WithGate(g *sigblock.Gate) Option {
	return func(b *Buffer) { b.gate = g }
}

func WithMessages(fn func(Message)) Option {
	return func(b *Buffer) { b.messages = fn }
}

func WithID(id uuid.UUID) Option {
	return func(b *Buffer) { b.id = id }
}

// Buffer holds the lines, marks, trackers and change log of one file.
type Buffer struct {
	id       uuid.UUID
	path     string
	store    recno.Store
	log      *changelog.Log
	marks    *mark.Table
	trackers []*rangelist.Tracker
	surfaces []Notifier
	gate     *sigblock.Gate
	messages func(Message)

	// One-line cache, keyed by store record number. 0 means empty.
	cacheLine int
	cacheText []byte

	// Line count of the store, valid when countKnown.
	count      int
	countKnown bool

	// Pending input run. It covers lines inputFirst..inputFirst+len-1 and
	// stands in for store line inputFirst.
	input      [][]byte
	inputFirst int

	cursor   Position
	modified bool
}

// New returns a buffer over store. The store's records are the lines.
func New(store recno.Store, opts ...Option) (*Buffer, error) {
	if store == nil {
		return nil, ErrNoFile
	}
	b := &Buffer{store: store, cursor: Position{Line: 1}}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = changelog.Disabled()
	}
	if b.id == uuid.Nil {
		b.id = uuid.New()
	}
	b.marks = mark.New(markSource{b})
	return b, nil
}

// markSource lets the mark table check positions against the text.
type markSource struct{ b *Buffer }

func (s markSource) Line(lno int) ([]byte, error) { return s.b.Get(lno, 0) }

func (b *Buffer) ID() uuid.UUID { return b.id }

func (b *Buffer) Path() string { return b.path }

func (b *Buffer) SetPath(path string) { b.path = path }

func (b *Buffer) Modified() bool { return b.modified }

func (b *Buffer) Log() *changelog.Log { return b.log }

func (b *Buffer) message(msg Message) {
	if b.messages != nil {
		b.messages(msg)
	}
}

func (b *Buffer) invalidate() {
	b.cacheLine, b.cacheText = 0, nil
	b.countKnown = false
}

func (b *Buffer) storageError(op string, lno int, err error) error {
	b.invalidate()
	lerr := &LineError{Op: op, Line: lno, Err: fmt.Errorf("%w: %w", ErrStorage, err)}
	logger.Error("store failed", "op", op, "line", lno, "err", err, "buffer", b.id)
	b.message(Message{Text: lerr.Error(), Error: true})
	return lerr
}

// Get returns a copy of line lno.
func (b *Buffer) Get(lno int, flags GetFlag) ([]byte, error) {
	if b.store == nil {
		return nil, ErrNoFile
	}
	text, err := b.get(lno, flags)
	if err != nil && flags&GetFatal != 0 && errors.Is(err, ErrLineNotFound) {
		b.message(Message{Text: err.Error(), Error: true})
	}
	return text, err
}

func (b *Buffer) get(lno int, flags GetFlag) ([]byte, error) {
	if lno < 1 {
		return nil, &LineError{Op: "get", Line: lno, Err: ErrLineNotFound}
	}
	rec := lno
	if n := len(b.input); n > 0 {
		last := b.inputFirst + n - 1
		if lno >= b.inputFirst && lno <= last {
			return clone(b.input[lno-b.inputFirst]), nil
		}
		if lno > last {
			rec -= n - 1
		}
	}
	if flags&GetNoCache == 0 && rec == b.cacheLine {
		return clone(b.cacheText), nil
	}
	text, err := b.store.Get(rec)
	if err != nil {
		if errors.Is(err, recno.ErrNotFound) {
			return nil, &LineError{Op: "get", Line: lno, Err: ErrLineNotFound}
		}
		return nil, b.storageError("get", lno, err)
	}
	b.cacheLine, b.cacheText = rec, text
	return clone(text), nil
}

// GetOrEmpty is Get, except that asking for line 0 or 1 of a file with no
// lines reports empty instead of failing.
func (b *Buffer) GetOrEmpty(lno int) (text []byte, empty bool, err error) {
	text, err = b.Get(lno, 0)
	if err == nil || !errors.Is(err, ErrLineNotFound) || lno > 1 {
		return text, false, err
	}
	last, lerr := b.Last()
	if lerr != nil {
		return nil, false, lerr
	}
	if last == 0 {
		return nil, true, nil
	}
	return nil, false, err
}

// Last returns the number of the last line, 0 for an empty file.
func (b *Buffer) Last() (int, error) {
	if b.store == nil {
		return 0, ErrNoFile
	}
	if !b.countKnown {
		n, err := b.store.Last()
		if err != nil {
			b.invalidate()
			logger.Error("store failed", "op", "last", "err", err, "buffer", b.id)
			return 0, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		b.count, b.countKnown = n, true
	}
	n := b.count
	if k := len(b.input); k > 0 {
		n += k - 1
		// An empty file gains its first line from the run.
		n = max(n, b.inputFirst+k-1)
	}
	return n, nil
}

// Exists reports whether line lno exists.
func (b *Buffer) Exists(lno int) bool {
	if lno < 1 || b.store == nil {
		return false
	}
	if b.countKnown {
		last, err := b.Last()
		return err == nil && lno <= last
	}
	_, err := b.Get(lno, 0)
	return err == nil
}

func (b *Buffer) ready() error {
	if b.store == nil {
		return ErrNoFile
	}
	if len(b.input) > 0 {
		return ErrInputPending
	}
	return nil
}

// Append adds text as the line after lno. Append(0) adds a first line.
func (b *Buffer) Append(lno int, text []byte) error {
	return b.append(lno, text, true)
}

// AppendBatch appends lines after lno, redrawing once at the end.
func (b *Buffer) AppendBatch(lno int, lines [][]byte) error {
	for i, text := range lines {
		if err := b.append(lno+i, text, i == len(lines)-1); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buffer) append(lno int, text []byte, redraw bool) error {
	if err := b.ready(); err != nil {
		return err
	}
	release := b.gate.Block()
	err := b.store.InsertAfter(lno, text)
	release()
	if err != nil {
		if errors.Is(err, recno.ErrNotFound) {
			return &LineError{Op: "append to", Line: lno, Err: ErrLineNotFound}
		}
		return b.storageError("append to", lno, err)
	}

	if lno < b.cacheLine {
		b.cacheLine, b.cacheText = 0, nil
	}
	if b.countKnown {
		b.count++
	}
	b.modified = true

	b.logLine(changelog.KindAppend, lno+1, text)
	b.shiftInsert(lno + 1)
	return b.notify(Append, lno+1, redraw)
}

// Insert adds text as line lno, moving lno and later lines down.
func (b *Buffer) Insert(lno int, text []byte) error {
	if err := b.ready(); err != nil {
		return err
	}
	release := b.gate.Block()
	err := b.store.InsertBefore(lno, text)
	release()
	if err != nil {
		if errors.Is(err, recno.ErrNotFound) {
			return &LineError{Op: "insert", Line: lno, Err: ErrLineNotFound}
		}
		return b.storageError("insert", lno, err)
	}

	if lno <= b.cacheLine {
		b.cacheLine, b.cacheText = 0, nil
	}
	if b.countKnown {
		b.count++
	}
	b.modified = true

	b.logLine(changelog.KindInsert, lno, text)
	b.shiftInsert(lno)
	return b.notify(Insert, lno, true)
}

// Set replaces line lno. Setting line 1 of an empty file appends it, so
// undo removes the line again.
func (b *Buffer) Set(lno int, text []byte) error {
	if err := b.ready(); err != nil {
		return err
	}
	old, err := b.Get(lno, GetNoCache)
	if err != nil {
		if lno == 1 && errors.Is(err, ErrLineNotFound) {
			if last, lerr := b.Last(); lerr == nil && last == 0 {
				return b.append(0, text, true)
			}
		}
		return err
	}
	b.logLine(changelog.KindResetBefore, lno, old)

	release := b.gate.Block()
	err = b.store.Put(lno, text)
	release()
	if err != nil {
		if errors.Is(err, recno.ErrNotFound) {
			return &LineError{Op: "store", Line: lno, Err: ErrLineNotFound}
		}
		return b.storageError("store", lno, err)
	}

	if lno == b.cacheLine {
		b.cacheLine, b.cacheText = 0, nil
	}
	b.countKnown = false
	b.modified = true

	b.logLine(changelog.KindResetAfter, lno, text)
	return b.notify(Reset, lno, true)
}

// Delete removes line lno.
func (b *Buffer) Delete(lno int) error {
	if err := b.ready(); err != nil {
		return err
	}
	old, err := b.Get(lno, GetFatal)
	if err != nil {
		return err
	}

	for _, m := range b.marks.Delete(lno) {
		if err := b.log.Mark(m.Name, m.Position); err != nil {
			logger.Warn("mark not logged", "mark", string(m.Name), "err", err)
		}
	}
	for _, t := range b.trackers {
		t.Delete(lno)
	}
	b.logLine(changelog.KindDelete, lno, old)

	release := b.gate.Block()
	err = b.store.Delete(lno)
	release()
	if err != nil {
		return b.storageError("delete", lno, err)
	}

	if lno <= b.cacheLine {
		b.cacheLine, b.cacheText = 0, nil
	}
	if b.countKnown {
		b.count--
	}
	b.modified = true
	return b.notify(Delete, lno, true)
}

// logLine writes a change record. A failing log has already restarted or
// disabled itself, so the edit goes ahead without it.
func (b *Buffer) logLine(op changelog.Kind, lno int, text []byte) {
	if err := b.log.Line(op, lno, text); err != nil {
		logger.Warn("change not logged", "op", op, "line", lno, "err", err)
	}
}

func (b *Buffer) shiftInsert(lno int) {
	// The first line of an empty file replaces the "line" marks were set
	// on, so they stay put.
	if last, err := b.Last(); err != nil || lno != 1 || last != 1 {
		b.marks.Insert(lno)
	}
	for _, t := range b.trackers {
		t.Insert(lno)
	}
}

func (b *Buffer) notify(kind ChangeKind, lno int, redraw bool) error {
	var err error
	for _, s := range b.surfaces {
		err = multierr.Append(err, s.Notify(kind, lno, redraw))
	}
	return err
}

// Attach adds a display surface.
func (b *Buffer) Attach(n Notifier) {
	b.surfaces = append(b.surfaces, n)
}

// Detach removes a display surface.
func (b *Buffer) Detach(n Notifier) {
	for i, s := range b.surfaces {
		if s == n {
			b.surfaces = append(b.surfaces[:i], b.surfaces[i+1:]...)
			return
		}
	}
}

// SetInput installs a pending input run starting at line first. The first
// run line stands in for line first of the file.
func (b *Buffer) SetInput(first int, lines [][]byte) error {
	if b.store == nil {
		return ErrNoFile
	}
	b.input = nil
	last, err := b.Last()
	if err != nil {
		return err
	}
	if first < 1 || first > max(last, 1) {
		return &LineError{Op: "edit", Line: first, Err: ErrLineNotFound}
	}
	if len(lines) == 0 {
		return nil
	}
	b.inputFirst = first
	b.input = make([][]byte, len(lines))
	for i, l := range lines {
		b.input[i] = clone(l)
	}
	return nil
}

// InputRange returns the lines covered by the pending input run.
func (b *Buffer) InputRange() (first, last int, ok bool) {
	if len(b.input) == 0 {
		return 0, 0, false
	}
	return b.inputFirst, b.inputFirst + len(b.input) - 1, true
}

// ClearInput drops the pending input run.
func (b *Buffer) ClearInput() {
	b.input = nil
	b.inputFirst = 0
}

// CommitInput stores the pending input run and clears it.
func (b *Buffer) CommitInput() error {
	lines, first := b.input, b.inputFirst
	b.ClearInput()
	if len(lines) == 0 {
		return nil
	}
	if err := b.Set(first, lines[0]); err != nil {
		return err
	}
	return b.AppendBatch(first, lines[1:])
}

// Cursor returns the last noted cursor position.
func (b *Buffer) Cursor() Position { return b.cursor }

// NoteCursor records a cursor move. Changes made since the previous move
// form one undo step.
func (b *Buffer) NoteCursor(pos Position) {
	b.cursor = pos
	if err := b.log.Cursor(pos); err != nil {
		logger.Warn("cursor not logged", "pos", pos, "err", err)
	}
}

// Undo rolls back the last set of changes and returns the cursor from
// before them.
func (b *Buffer) Undo() (Position, error) {
	if err := b.ready(); err != nil {
		return b.cursor, err
	}
	b.NoteCursor(b.cursor)
	pos, err := b.log.Backward(b)
	if err != nil {
		return b.cursor, err
	}
	b.NoteCursor(pos)
	return pos, nil
}

// Redo rolls forward the next set of changes and returns the cursor from
// after them.
func (b *Buffer) Redo() (Position, error) {
	if err := b.ready(); err != nil {
		return b.cursor, err
	}
	b.NoteCursor(b.cursor)
	pos, err := b.log.Forward(b)
	if err != nil {
		return b.cursor, err
	}
	b.NoteCursor(pos)
	return pos, nil
}

// RestoreLine undoes the changes made to the line at pos while the cursor
// stayed on it. The cursor ends at the start of the line.
func (b *Buffer) RestoreLine(pos Position) (Position, error) {
	if err := b.ready(); err != nil {
		return b.cursor, err
	}
	b.NoteCursor(pos)
	if err := b.log.SetLine(pos.Line, b); err != nil {
		return pos, err
	}
	pos = Position{Line: pos.Line}
	b.cursor = pos
	return pos, nil
}

// ReplayInsert, ReplayDelete and ReplaySet apply change log records. The
// log does not record them.

func (b *Buffer) ReplayInsert(lno int, text []byte) error { return b.Insert(lno, text) }

func (b *Buffer) ReplayDelete(lno int) error { return b.Delete(lno) }

func (b *Buffer) ReplaySet(lno int, text []byte) error { return b.Set(lno, text) }

func (b *Buffer) ReplayMark(name byte, pos Position) error {
	return b.marks.Set(name, pos, false)
}

// SetMark sets a mark on behalf of the user.
func (b *Buffer) SetMark(name byte, pos Position) error {
	if b.store == nil {
		return ErrNoFile
	}
	return b.marks.Set(name, pos, true)
}

// Mark returns the position of a mark.
func (b *Buffer) Mark(name byte) (Position, error) {
	if b.store == nil {
		return Position{}, ErrNoFile
	}
	return b.marks.Get(name)
}

// Marks returns every mark entry.
func (b *Buffer) Marks() []mark.Mark { return b.marks.All() }

// Track keeps t in step with line insertions and deletions until Untrack.
func (b *Buffer) Track(t *rangelist.Tracker) {
	b.trackers = append(b.trackers, t)
}

func (b *Buffer) Untrack(t *rangelist.Tracker) {
	for i, x := range b.trackers {
		if x == t {
			b.trackers = append(b.trackers[:i], b.trackers[i+1:]...)
			return
		}
	}
}

// All yields every line with its number. It stops at the first error.
func (b *Buffer) All() iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		last, err := b.Last()
		if err != nil {
			return
		}
		for lno := 1; lno <= last; lno++ {
			text, err := b.Get(lno, 0)
			if err != nil || !yield(lno, text) {
				return
			}
		}
	}
}

// Lines returns copies of lines from..to inclusive.
func (b *Buffer) Lines(from, to int) ([][]byte, error) {
	var out [][]byte
	for lno := from; lno <= to; lno++ {
		text, err := b.Get(lno, GetFatal)
		if err != nil {
			return out, err
		}
		out = append(out, text)
	}
	return out, nil
}

// Close releases the store and the change log.
func (b *Buffer) Close() error {
	if b.store == nil {
		return ErrNoFile
	}
	err := multierr.Combine(b.store.Close(), b.log.Close())
	b.store = nil
	b.invalidate()
	b.ClearInput()
	logger.Debug("buffer closed", "buffer", b.id, "path", b.path)
	return err
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
