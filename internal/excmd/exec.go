// Package excmd runs ex-style line commands against a buffer.
package excmd

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/kobzarvs/qex/internal/buffer"
	"github.com/kobzarvs/qex/internal/logger"
	"github.com/kobzarvs/qex/internal/rangelist"
)

type Position = buffer.Position

type addrDefault int

const (
	defDot addrDefault = iota
	defAll
	defLast
	defNone
)

type undoDir int

const (
	undoNone undoDir = iota
	undoBackward
	undoForward
)

type command struct {
	name   string
	abbrev int
	def    addrDefault
	zero   bool
	run    func(e *Executor, ctx context.Context, r *request) error
}

// request is a command with its addresses resolved.
type request struct {
	*Command
	line1, line2 int
}

var commands []command

func init() {
	commands = []command{
		{name: "append", abbrev: 1, zero: true, run: (*Executor).appendText},
		{name: "change", abbrev: 1, run: (*Executor).change},
		{name: "delete", abbrev: 1, run: (*Executor).deleteLines},
		{name: "global", abbrev: 1, def: defAll, run: func(e *Executor, ctx context.Context, r *request) error {
			return e.global(ctx, r, false)
		}},
		{name: "insert", abbrev: 1, zero: true, run: (*Executor).insertText},
		{name: "k", abbrev: 1, run: (*Executor).mark},
		{name: "mark", abbrev: 2, run: (*Executor).mark},
		{name: "number", abbrev: 2, run: func(e *Executor, _ context.Context, r *request) error {
			return e.printLines(r, true)
		}},
		{name: "print", abbrev: 1, run: func(e *Executor, _ context.Context, r *request) error {
			return e.printLines(r, false)
		}},
		{name: "quit", abbrev: 1, def: defNone, run: (*Executor).quitCmd},
		{name: "redo", abbrev: 3, def: defNone, run: (*Executor).redo},
		{name: "substitute", abbrev: 1, run: (*Executor).substitute},
		{name: "undo", abbrev: 1, def: defNone, run: (*Executor).undo},
		{name: "U", abbrev: 1, def: defNone, run: (*Executor).restoreLine},
		{name: "v", abbrev: 1, def: defAll, run: func(e *Executor, ctx context.Context, r *request) error {
			return e.global(ctx, r, true)
		}},
		{name: "write", abbrev: 1, def: defNone, run: (*Executor).write},
		{name: "wq", abbrev: 2, def: defNone, run: (*Executor).writeQuit},
		{name: "xit", abbrev: 1, def: defNone, run: (*Executor).xit},
		{name: "=", abbrev: 1, def: defLast, zero: true, run: (*Executor).lineNumber},
	}
}

func lookup(name string) *command {
	for i := range commands {
		c := &commands[i]
		if len(name) >= c.abbrev && len(name) <= len(c.name) && strings.HasPrefix(c.name, name) {
			return c
		}
	}
	return nil
}

type input struct {
	after       int
	first       int
	placeholder bool
	lines       [][]byte
}

type Option func(*Executor)

// WithOutput sets where print commands write. The default discards.
func WithOutput(w io.Writer) Option {
	return func(e *Executor) { e.out = w }
}

// WithUndoToggle makes a repeated u redo what the previous u undid.
func WithUndoToggle(on bool) Option {
	return func(e *Executor) { e.undoToggle = on }
}

// Executor runs commands against one buffer and owns the current line.
type Executor struct {
	buf        *buffer.Buffer
	out        io.Writer
	undoToggle bool

	dot      Position
	undoDir  undoDir
	prevUndo undoDir
	lastRE   *regexp.Regexp
	input    *input
	depth    int
	quit     bool
}

func New(b *buffer.Buffer, opts ...Option) *Executor {
	e := &Executor{buf: b, out: io.Discard, dot: b.Cursor()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Dot() Position { return e.dot }

// SetDot moves the current line without running a command.
func (e *Executor) SetDot(pos Position) { e.setDot(pos) }

// Quit reports whether a quit command ran.
func (e *Executor) Quit() bool { return e.quit }

// Inputting reports whether text lines are being collected for a/i/c.
func (e *Executor) Inputting() bool { return e.input != nil }

// Execute runs one line. While text input is active the line is text, and
// a line holding only "." ends the input.
func (e *Executor) Execute(ctx context.Context, line string) error {
	if e.input != nil {
		return e.feed(line)
	}
	c, err := Parse(line)
	if err != nil {
		return err
	}
	if c.Name == "" && len(c.Addrs) == 0 {
		return nil
	}
	logger.Debug("ex command", "line", line, "dot", e.dot)
	e.buf.NoteCursor(e.dot)
	e.prevUndo, e.undoDir = e.undoDir, undoNone
	err = e.run(ctx, c)
	if err != nil && ctx.Err() != nil {
		logger.Warn("command interrupted", "line", line)
	}
	return err
}

func (e *Executor) run(ctx context.Context, c *Command) error {
	if c.Name == "" {
		r, err := e.resolve(c, defDot, false)
		if err != nil {
			return err
		}
		r.line1 = r.line2
		return e.printLines(r, false)
	}
	cmd := lookup(c.Name)
	if cmd == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, c.Name)
	}
	r, err := e.resolve(c, cmd.def, cmd.zero)
	if err != nil {
		return err
	}
	return cmd.run(e, ctx, r)
}

func (e *Executor) resolve(c *Command, def addrDefault, zero bool) (*request, error) {
	last, err := e.buf.Last()
	if err != nil {
		return nil, err
	}
	r := &request{Command: c}
	if def == defNone {
		if len(c.Addrs) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoAddress, c.Name)
		}
		return r, nil
	}

	switch len(c.Addrs) {
	case 0:
		switch def {
		case defAll:
			r.line1, r.line2 = min(1, last), last
		case defLast:
			r.line1, r.line2 = last, last
		default:
			r.line1 = e.dotLine(last)
			r.line2 = r.line1
		}
	case 1:
		if r.line1, err = e.address(c.Addrs[0], last); err != nil {
			return nil, err
		}
		r.line2 = r.line1
	default:
		if r.line1, err = e.address(c.Addrs[0], last); err != nil {
			return nil, err
		}
		if r.line2, err = e.address(c.Addrs[1], last); err != nil {
			return nil, err
		}
	}

	if r.line1 > r.line2 {
		return nil, ErrAddressOrder
	}
	for _, n := range []int{r.line1, r.line2} {
		switch {
		case n > last:
			return nil, fmt.Errorf("%w: only %d lines in the file", ErrBadAddress, last)
		case n == 0 && !zero && last == 0:
			return nil, ErrEmptyFile
		case n == 0 && !zero:
			return nil, fmt.Errorf("%w: line 0", ErrBadAddress)
		}
	}
	return r, nil
}

func (e *Executor) address(a Address, last int) (int, error) {
	var n int
	switch a.Base {
	case BaseNumber:
		n = a.Line
	case BaseLast:
		n = last
	case BaseMark:
		pos, err := e.buf.Mark(a.Mark)
		if err != nil {
			return 0, err
		}
		n = pos.Line
	default:
		n = e.dotLine(last)
	}
	n += a.Offset
	if n < 0 {
		return 0, fmt.Errorf("%w: reference to a line number less than 0", ErrBadAddress)
	}
	return n, nil
}

func (e *Executor) dotLine(last int) int {
	if last == 0 {
		return 0
	}
	return min(max(e.dot.Line, 1), last)
}

func (e *Executor) setDot(pos Position) {
	last, err := e.buf.Last()
	if err != nil {
		e.dot = pos
		return
	}
	if pos.Line > last {
		pos = Position{Line: last}
	}
	if pos.Line < 1 {
		pos = Position{Line: 1}
	}
	e.dot = pos
}

func (e *Executor) appendText(_ context.Context, r *request) error {
	return e.startInput(r.line2, r)
}

func (e *Executor) insertText(_ context.Context, r *request) error {
	return e.startInput(max(r.line2-1, 0), r)
}

func (e *Executor) change(ctx context.Context, r *request) error {
	if err := e.checkInput(r); err != nil {
		return err
	}
	for lno := r.line1; lno <= r.line2; lno++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		if err := e.buf.Delete(r.line1); err != nil {
			return err
		}
	}
	return e.startInput(r.line1-1, r)
}

// checkInput refuses input mode inside a global command.
func (e *Executor) checkInput(r *request) error {
	if r.Arg == "" && e.depth > 0 {
		return fmt.Errorf("%w: %s needs text inside a global command", ErrUsage, r.Name)
	}
	return nil
}

func (e *Executor) startInput(after int, r *request) error {
	if err := e.checkInput(r); err != nil {
		return err
	}
	e.input = &input{after: after}
	if r.Arg == "" {
		return nil
	}
	if err := e.feed(r.Arg); err != nil {
		return err
	}
	return e.feed(".")
}

func (e *Executor) feed(line string) error {
	in := e.input
	if line == "." {
		return e.endInput()
	}
	if in.first == 0 {
		last, err := e.buf.Last()
		if err != nil {
			e.input = nil
			return err
		}
		if last == 0 {
			in.first = 1
		} else {
			if err := e.buf.Append(in.after, nil); err != nil {
				e.input = nil
				return err
			}
			in.first, in.placeholder = in.after+1, true
		}
	}
	in.lines = append(in.lines, []byte(line))
	return e.buf.SetInput(in.first, in.lines)
}

func (e *Executor) endInput() error {
	in := e.input
	e.input = nil
	if in.first == 0 {
		return nil
	}
	if err := e.buf.CommitInput(); err != nil {
		return err
	}
	e.setDot(Position{Line: in.first + len(in.lines) - 1})
	return nil
}

// CancelInput drops the text collected so far.
func (e *Executor) CancelInput() error {
	in := e.input
	e.input = nil
	if in == nil {
		return nil
	}
	e.buf.ClearInput()
	if in.placeholder {
		return e.buf.Delete(in.first)
	}
	return nil
}

func (e *Executor) deleteLines(ctx context.Context, r *request) error {
	for lno := r.line1; lno <= r.line2; lno++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		if err := e.buf.Delete(r.line1); err != nil {
			return err
		}
	}
	e.setDot(Position{Line: r.line1})
	return nil
}

func (e *Executor) pattern(pat string) (*regexp.Regexp, error) {
	if pat == "" {
		if e.lastRE == nil {
			return nil, ErrNoPattern
		}
		return e.lastRE, nil
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	e.lastRE = re
	return re, nil
}

func (e *Executor) substitute(ctx context.Context, r *request) error {
	parts, err := splitDelimited(r.Arg, 3)
	if err != nil {
		return err
	}
	re, err := e.pattern(parts[0])
	if err != nil {
		return err
	}
	tmpl := []byte(template(parts[1]))
	global := strings.Contains(parts[2], "g")

	changed := 0
	for lno := r.line1; lno <= r.line2; lno++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		text, err := e.buf.Get(lno, buffer.GetFatal)
		if err != nil {
			return err
		}
		out, ok := replace(re, text, tmpl, global)
		if !ok {
			continue
		}
		if err := e.buf.Set(lno, out); err != nil {
			return err
		}
		changed = lno
	}
	if changed == 0 {
		return ErrNoMatch
	}
	e.setDot(Position{Line: changed})
	return nil
}

// template turns an ex replacement (& and \1..\9) into a regexp template.
func template(repl string) string {
	var sb strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		switch {
		case c == '\\' && i+1 < len(repl):
			i++
			if n := repl[i]; isDigit(n) {
				fmt.Fprintf(&sb, "${%c}", n)
			} else if n == '$' {
				sb.WriteString("$$")
			} else {
				sb.WriteByte(n)
			}
		case c == '&':
			sb.WriteString("${0}")
		case c == '$':
			sb.WriteString("$$")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func replace(re *regexp.Regexp, text, tmpl []byte, global bool) ([]byte, bool) {
	n := 1
	if global {
		n = -1
	}
	matches := re.FindAllSubmatchIndex(text, n)
	if len(matches) == 0 {
		return text, false
	}
	var out []byte
	prev := 0
	for _, m := range matches {
		out = append(out, text[prev:m[0]]...)
		out = re.Expand(out, tmpl, text, m)
		prev = m[1]
	}
	return append(out, text[prev:]...), true
}

func (e *Executor) mark(_ context.Context, r *request) error {
	if len(r.Arg) != 1 {
		return fmt.Errorf("%w: %s x", ErrUsage, r.Name)
	}
	return e.buf.SetMark(r.Arg[0], Position{Line: r.line2})
}

// global runs a command on every line matching (or, inverted, not
// matching) a pattern. Lines are tracked so the command may add or remove
// lines as it goes.
func (e *Executor) global(ctx context.Context, r *request, invert bool) error {
	invert = invert != r.Bang
	parts, err := splitDelimited(r.Arg, 2)
	if err != nil {
		return err
	}
	re, err := e.pattern(parts[0])
	if err != nil {
		return err
	}
	text := strings.TrimSpace(parts[1])
	if text == "" {
		text = "p"
	}
	sub, err := Parse(text)
	if err != nil {
		return err
	}

	t := rangelist.New()
	for lno := r.line1; lno <= r.line2; lno++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		line, err := e.buf.Get(lno, buffer.GetFatal)
		if err != nil {
			return err
		}
		if re.Match(line) != invert {
			t.Add(lno)
		}
	}
	if t.Len() == 0 {
		return nil
	}
	logger.Debug("global", "pattern", re.String(), "lines", t.Len(), "ranges", len(t.Ranges()))

	e.buf.Track(t)
	defer e.buf.Untrack(t)
	e.depth++
	defer func() { e.depth-- }()

	for {
		lno, ok := t.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		e.dot = Position{Line: lno}
		if err := e.run(ctx, sub); err != nil {
			return err
		}
	}
	if lno := t.LastChanged(); lno > 0 {
		e.setDot(Position{Line: lno})
	}
	return nil
}

func (e *Executor) undo(_ context.Context, _ *request) error {
	var (
		pos Position
		err error
	)
	if e.undoToggle && e.prevUndo == undoBackward {
		pos, err = e.buf.Redo()
		e.undoDir = undoForward
	} else {
		pos, err = e.buf.Undo()
		e.undoDir = undoBackward
	}
	if err != nil {
		return err
	}
	e.setDot(pos)
	return nil
}

func (e *Executor) redo(_ context.Context, _ *request) error {
	pos, err := e.buf.Redo()
	if err != nil {
		return err
	}
	e.setDot(pos)
	return nil
}

func (e *Executor) restoreLine(_ context.Context, _ *request) error {
	pos, err := e.buf.RestoreLine(e.dot)
	if err != nil {
		return err
	}
	e.setDot(pos)
	return nil
}

func (e *Executor) printLines(r *request, numbered bool) error {
	for lno := r.line1; lno <= r.line2; lno++ {
		text, err := e.buf.Get(lno, buffer.GetFatal)
		if err != nil {
			return err
		}
		if numbered {
			fmt.Fprintf(e.out, "%6d  %s\n", lno, text)
		} else {
			fmt.Fprintf(e.out, "%s\n", text)
		}
	}
	e.dot = Position{Line: r.line2}
	return nil
}

func (e *Executor) lineNumber(_ context.Context, r *request) error {
	_, err := fmt.Fprintf(e.out, "%d\n", r.line2)
	return err
}

func (e *Executor) write(_ context.Context, r *request) error {
	if e.buf.Path() == "" && r.Arg != "" {
		e.buf.SetPath(r.Arg)
	}
	if err := e.buf.Save(r.Arg); err != nil {
		return err
	}
	name := r.Arg
	if name == "" {
		name = e.buf.Path()
	}
	last, err := e.buf.Last()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.out, "%q: %d lines\n", name, last)
	return err
}

func (e *Executor) quitCmd(_ context.Context, r *request) error {
	if e.buf.Modified() && !r.Bang {
		return ErrModified
	}
	e.quit = true
	return nil
}

func (e *Executor) writeQuit(ctx context.Context, r *request) error {
	if err := e.write(ctx, r); err != nil {
		return err
	}
	e.quit = true
	return nil
}

func (e *Executor) xit(ctx context.Context, r *request) error {
	if e.buf.Modified() {
		return e.writeQuit(ctx, r)
	}
	e.quit = true
	return nil
}
