// Package changelog records every line change of a file as before/after
// images so the changes can be rolled back (undo) and forward (redo).
//
// Records are kept in a recno.Store under increasing sequence numbers. Each
// set of changes is bracketed by a start record holding the cursor before
// the change and an end record holding the cursor after it. Line
// replacements log two records, the line before and the line after.
//
// Roll-back walks backward to the start record of the previous set of
// changes; roll-forward walks forward to the next end record. The 'U'
// command walks backward until it reaches a cursor record for a different
// line, restoring the cursor line as it goes. The log position it consumes
// is where the next undo starts, which is how historic vi behaved: moving
// off a changed line and back, then using 'U', can restore an older
// version than expected.
package changelog

import (
	"errors"
	"fmt"

	"github.com/kobzarvs/qex/internal/logger"
	"github.com/kobzarvs/qex/internal/mark"
	"github.com/kobzarvs/qex/internal/recno"
)

var (
	ErrLoggingDisabled = errors.New("logging not being performed, undo not possible")
	ErrNothingToUndo   = errors.New("no changes to undo")
	ErrNothingToRedo   = errors.New("no changes to re-do")
	ErrReplayActive    = errors.New("log replay already in progress")
	ErrCorrupt         = errors.New("corrupt log record")
)

// State is the lifecycle state of a Log.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDisabled:
		return "disabled"
	}
	return "uninitialized"
}

// Opener creates the empty store a log writes to.
type Opener func() (recno.Store, error)

// Replayer applies replayed changes. Implementations must not log them.
type Replayer interface {
	ReplayInsert(lno int, text []byte) error
	ReplayDelete(lno int) error
	ReplaySet(lno int, text []byte) error
	ReplayMark(name byte, pos mark.Position) error
}

type Option func(*Log)

// WithRestart controls the single automatic restart after a store failure.
func WithRestart(on bool) Option {
	return func(l *Log) { l.restart = on }
}

// WithReporter receives user-visible messages such as "Log restarted".
func WithReporter(fn func(msg string)) Option {
	return func(l *Log) { l.report = fn }
}

// Log is the change log of one file.
type Log struct {
	open    Opener
	store   recno.Store
	state   State
	restart bool
	report  func(string)

	// cursor is the position written by the next start record.
	cursor mark.Position
	// inTxn is set once a start record has been written and cleared when
	// the matching end record goes out.
	inTxn bool

	cur  int // next sequence number to read backward from or write to
	high int // one past the last valid record

	replaying bool
}

// New opens a log. When the store cannot be opened the log is returned
// disabled together with the error; editing continues without undo.
func New(open Opener, opts ...Option) (*Log, error) {
	// Any valid line will do until the first cursor note.
	l := &Log{open: open, restart: true, cursor: mark.Position{Line: 1}}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.init(); err != nil {
		return l, err
	}
	return l, nil
}

// Disabled returns a log that records nothing.
func Disabled() *Log {
	return &Log{state: StateDisabled}
}

func (l *Log) init() error {
	if l.open == nil {
		l.state = StateDisabled
		return ErrLoggingDisabled
	}
	store, err := l.open()
	if err != nil {
		l.state = StateDisabled
		logger.Error("change log unavailable", "err", err)
		return fmt.Errorf("open change log: %w", err)
	}
	l.store = store
	// The noted cursor survives a restart; only the records are lost.
	l.inTxn = false
	l.cur, l.high = 1, 1
	l.state = StateActive
	return nil
}

// fail handles a store error: the log is closed and, if allowed, restarted
// once with an empty store.
func (l *Log) fail(cause error) {
	logger.Error("change log store failed", "err", cause, "cur", l.cur, "high", l.high)
	l.message(fmt.Sprintf("change log: %v", cause))
	if l.store != nil {
		_ = l.store.Close()
		l.store = nil
	}
	if !l.restart {
		l.state = StateDisabled
		logger.Warn("change log disabled")
		return
	}
	if err := l.init(); err != nil {
		logger.Warn("change log restart failed, logging disabled", "err", err)
		return
	}
	logger.Warn("change log restarted")
	l.message("Log restarted")
}

func (l *Log) message(msg string) {
	if l.report != nil {
		l.report(msg)
	}
}

func (l *Log) off() bool {
	return l.state != StateActive || l.replaying
}

func (l *Log) write(rec Record) error {
	if err := l.store.Put(l.cur, Encode(rec)); err != nil {
		l.fail(err)
		return err
	}
	l.cur++
	// A new record discards anything that could have been redone.
	l.high = l.cur
	return nil
}

func (l *Log) read(n int) (Record, error) {
	data, err := l.store.Get(n)
	if err != nil {
		l.fail(err)
		return nil, err
	}
	rec, err := Decode(data)
	if err != nil {
		l.fail(err)
		return nil, err
	}
	return rec, nil
}

// Cursor notes that the cursor moved to pos. If changes were made since the
// last note, the open transaction is closed with pos.
func (l *Log) Cursor(pos mark.Position) error {
	if l.off() {
		return nil
	}
	l.cursor = pos
	if !l.inTxn {
		return nil
	}
	l.inTxn = false
	return l.write(CursorRecord{End: true, Pos: pos})
}

// begin writes one start record per set of changes.
func (l *Log) begin() error {
	if l.inTxn {
		return nil
	}
	if err := l.write(CursorRecord{Pos: l.cursor}); err != nil {
		return err
	}
	l.inTxn = true
	return nil
}

// Line logs an image of line lno.
func (l *Log) Line(op Kind, lno int, text []byte) error {
	if l.off() {
		return nil
	}
	switch op {
	case KindAppend, KindDelete, KindInsert, KindResetBefore, KindResetAfter:
	default:
		return fmt.Errorf("changelog: %s is not a line record", op)
	}
	if err := l.begin(); err != nil {
		return err
	}
	return l.write(LineRecord{Op: op, Line: lno, Text: text})
}

// Mark logs the position of a mark whose line is being deleted.
func (l *Log) Mark(name byte, pos mark.Position) error {
	if l.off() {
		return nil
	}
	if err := l.begin(); err != nil {
		return err
	}
	return l.write(MarkRecord{Name: name, Pos: pos})
}

func (l *Log) replayStart() error {
	if l.state != StateActive {
		return ErrLoggingDisabled
	}
	if l.replaying {
		return ErrReplayActive
	}
	return nil
}

// Backward rolls back one set of changes and returns the cursor position
// saved before it. A replay error aborts the walk; changes already rolled
// back stay rolled back.
func (l *Log) Backward(r Replayer) (mark.Position, error) {
	if err := l.replayStart(); err != nil {
		return mark.Position{}, err
	}
	if l.cur == 1 {
		return mark.Position{}, ErrNothingToUndo
	}
	l.replaying = true
	defer func() { l.replaying = false }()

	didop := false
	for {
		if l.cur == 1 {
			if didop {
				return l.cursor, nil
			}
			return mark.Position{}, ErrNothingToUndo
		}
		l.cur--
		rec, err := l.read(l.cur)
		if err != nil {
			return mark.Position{}, err
		}
		switch rec := rec.(type) {
		case CursorRecord:
			// An empty bracket is skipped.
			if !rec.End && didop {
				logger.Debug("undo", "cur", l.cur, "high", l.high, "cursor", rec.Pos)
				return rec.Pos, nil
			}
		case LineRecord:
			switch rec.Op {
			case KindAppend, KindInsert:
				didop = true
				err = r.ReplayDelete(rec.Line)
			case KindDelete:
				didop = true
				err = r.ReplayInsert(rec.Line, rec.Text)
			case KindResetBefore:
				didop = true
				err = r.ReplaySet(rec.Line, rec.Text)
			}
		case MarkRecord:
			didop = true
			err = r.ReplayMark(rec.Name, rec.Pos)
		}
		if err != nil {
			return mark.Position{}, err
		}
	}
}

// Forward rolls forward one set of changes and returns the cursor position
// saved after it.
func (l *Log) Forward(r Replayer) (mark.Position, error) {
	if err := l.replayStart(); err != nil {
		return mark.Position{}, err
	}
	if l.cur == l.high {
		return mark.Position{}, ErrNothingToRedo
	}
	l.replaying = true
	defer func() { l.replaying = false }()

	didop := false
	last := l.cursor
	for {
		if l.cur+1 >= l.high {
			// The final set of changes has no end record yet.
			l.cur = l.high
			if didop {
				return last, nil
			}
			return mark.Position{}, ErrNothingToRedo
		}
		l.cur++
		rec, err := l.read(l.cur)
		if err != nil {
			return mark.Position{}, err
		}
		switch rec := rec.(type) {
		case CursorRecord:
			last = rec.Pos
			if rec.End && didop {
				l.cur++
				logger.Debug("redo", "cur", l.cur, "high", l.high, "cursor", rec.Pos)
				return rec.Pos, nil
			}
		case LineRecord:
			switch rec.Op {
			case KindAppend, KindInsert:
				didop = true
				err = r.ReplayInsert(rec.Line, rec.Text)
			case KindDelete:
				didop = true
				err = r.ReplayDelete(rec.Line)
			case KindResetAfter:
				didop = true
				err = r.ReplaySet(rec.Line, rec.Text)
			}
		case MarkRecord:
			didop = true
			err = r.ReplayMark(rec.Name, rec.Pos)
		}
		if err != nil {
			return mark.Position{}, err
		}
	}
}

// SetLine restores line lno to its contents before the changes made while
// the cursor stayed on it. The walk stops at the first cursor record for a
// different line.
func (l *Log) SetLine(lno int, r Replayer) error {
	if err := l.replayStart(); err != nil {
		return err
	}
	if l.cur == 1 {
		return ErrNothingToUndo
	}
	l.replaying = true
	defer func() { l.replaying = false }()

	for l.cur > 1 {
		l.cur--
		rec, err := l.read(l.cur)
		if err != nil {
			return err
		}
		switch rec := rec.(type) {
		case CursorRecord:
			if rec.Pos.Line == lno {
				continue
			}
			if rec.End {
				// Leave the other line's changes in place.
				l.cur++
			}
			return nil
		case LineRecord:
			if rec.Op == KindResetBefore && rec.Line == lno {
				err = r.ReplaySet(lno, rec.Text)
			}
		case MarkRecord:
			err = r.ReplayMark(rec.Name, rec.Pos)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Position returns the current read/write position.
func (l *Log) Position() int { return l.cur }

// High returns one past the last record that can be redone.
func (l *Log) High() int { return l.high }

func (l *Log) State() State { return l.state }

// InTransaction reports whether changes were logged since the last cursor note.
func (l *Log) InTransaction() bool { return l.inTxn }

// Reset discards all records and starts an empty log.
func (l *Log) Reset() error {
	if l.store != nil {
		_ = l.store.Close()
		l.store = nil
	}
	if l.open == nil {
		return nil
	}
	return l.init()
}

func (l *Log) Close() error {
	l.state = StateUninitialized
	if l.store == nil {
		return nil
	}
	err := l.store.Close()
	l.store = nil
	return err
}
