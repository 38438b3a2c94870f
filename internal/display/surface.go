// Package display draws a buffer on a tcell screen and tracks which lines
// need drawing again after a change.
package display

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/kobzarvs/qex/internal/buffer"
	"github.com/kobzarvs/qex/internal/config"
)

type LineNumberMode int

const (
	LineNumberAbsolute LineNumberMode = iota
	LineNumberRelative
	LineNumberOff
)

// Source is what a surface reads to draw a buffer.
type Source interface {
	Get(lno int, flags buffer.GetFlag) ([]byte, error)
	Last() (int, error)
	Path() string
	Modified() bool
}

// Surface is one window onto a buffer. It implements buffer.Notifier.
type Surface struct {
	tabWidth       int
	lineNumberMode LineNumberMode

	styleMain             tcell.Style
	styleStatus           tcell.Style
	styleCommand          tcell.Style
	styleLineNumber       tcell.Style
	styleLineNumberActive tcell.Style
	styleError            tcell.Style

	top        int
	viewHeight int

	// Lines dirtyFrom..dirtyTo changed since the last Reset.
	dirtyFrom, dirtyTo int
	redraw             bool

	message      string
	messageError bool
	promptPrefix string
	prompt       []rune
	prompting    bool
}

func New(cfg config.Config) *Surface {
	tabWidth := cfg.Editor.TabWidth
	if tabWidth < 1 {
		tabWidth = 1
	}
	mainFg := parseColor(cfg.Theme.Foreground, tcell.ColorWhite)
	mainBg := parseColor(cfg.Theme.Background, tcell.ColorBlack)
	statusFg := parseColor(cfg.Theme.StatuslineForeground, tcell.ColorBlack)
	statusBg := parseColor(cfg.Theme.StatuslineBackground, tcell.ColorGray)
	commandFg := parseColor(cfg.Theme.CommandlineForeground, statusFg)
	commandBg := parseColor(cfg.Theme.CommandlineBackground, statusBg)
	lineNumberFg := parseColor(cfg.Theme.LineNumberForeground, tcell.ColorGray)
	lineNumberActiveFg := parseColor(cfg.Theme.LineNumberActiveForeground, mainFg)
	errorFg := parseColor(cfg.Theme.ErrorForeground, tcell.ColorRed)
	return &Surface{
		tabWidth:              tabWidth,
		lineNumberMode:        parseLineNumberMode(cfg.Editor.LineNumbers),
		styleMain:             tcell.StyleDefault.Foreground(mainFg).Background(mainBg),
		styleStatus:           tcell.StyleDefault.Foreground(statusFg).Background(statusBg),
		styleCommand:          tcell.StyleDefault.Foreground(commandFg).Background(commandBg),
		styleLineNumber:       tcell.StyleDefault.Foreground(lineNumberFg).Background(mainBg),
		styleLineNumberActive: tcell.StyleDefault.Foreground(lineNumberActiveFg).Background(mainBg),
		styleError:            tcell.StyleDefault.Foreground(errorFg).Background(commandBg),
		redraw:                true,
	}
}

// Notify records a line change. Appends, inserts and deletes move every
// later line, so everything from lno down is dirty.
func (s *Surface) Notify(kind buffer.ChangeKind, lno int, redraw bool) error {
	to := math.MaxInt
	if kind == buffer.Reset {
		to = lno
	}
	if s.dirtyFrom == 0 || lno < s.dirtyFrom {
		s.dirtyFrom = lno
	}
	if to > s.dirtyTo {
		s.dirtyTo = to
	}
	if redraw {
		s.redraw = true
	}
	return nil
}

// Dirty returns the changed line span. to is math.MaxInt when the change
// reaches the end of the file.
func (s *Surface) Dirty() (from, to int, ok bool) {
	if s.dirtyFrom == 0 {
		return 0, 0, false
	}
	return s.dirtyFrom, s.dirtyTo, true
}

// NeedsRedraw reports whether the screen is out of date.
func (s *Surface) NeedsRedraw() bool { return s.redraw }

// Reset clears the dirty state after a draw.
func (s *Surface) Reset() {
	s.dirtyFrom, s.dirtyTo = 0, 0
	s.redraw = false
}

// Invalidate forces a full redraw.
func (s *Surface) Invalidate() { s.redraw = true }

// SetMessage shows msg on the status line until the next message.
func (s *Surface) SetMessage(msg string, isError bool) {
	s.message = msg
	s.messageError = isError
	s.redraw = true
}

// SetPrompt shows the line being typed after prefix. A nil line hides it.
func (s *Surface) SetPrompt(prefix string, line []rune) {
	s.prompting = line != nil
	s.promptPrefix = prefix
	s.prompt = line
	s.redraw = true
}

// Scroll moves the view by n lines.
func (s *Surface) Scroll(n int) {
	s.top = max(s.top+n, 0)
	s.redraw = true
}

// ViewHeight is the number of text rows drawn by the last Render.
func (s *Surface) ViewHeight() int { return s.viewHeight }

func (s *Surface) Top() int { return s.top + 1 }

func (s *Surface) ensureVisible(row, viewHeight int) {
	if viewHeight <= 0 {
		return
	}
	if row < s.top {
		s.top = row
	}
	if row >= s.top+viewHeight {
		s.top = row - viewHeight + 1
	}
}

// Render draws the whole surface.
func (s *Surface) Render(scr tcell.Screen, src Source, cur buffer.Position) {
	w, h := scr.Size()
	if w <= 0 || h <= 0 {
		return
	}
	statusY := h - 2
	cmdY := h - 1
	viewHeight := h - 2
	if h < 2 {
		statusY = h - 1
		cmdY = h - 1
	}
	if viewHeight < 0 {
		viewHeight = 0
	}
	s.viewHeight = viewHeight

	last, err := src.Last()
	if err != nil {
		last = 0
	}
	row := max(cur.Line-1, 0)
	s.ensureVisible(row, viewHeight)

	scr.SetStyle(s.styleMain)
	scr.Clear()

	gutterWidth := s.gutterWidth(last)
	var cursorText []rune
	for y := 0; y < viewHeight; y++ {
		lno := s.top + y + 1
		if lno > last {
			clearLine(scr, y, w, s.styleMain)
			scr.SetContent(0, y, '~', nil, s.styleLineNumber)
			continue
		}
		text, err := src.Get(lno, 0)
		if err != nil {
			clearLine(scr, y, w, s.styleMain)
			continue
		}
		line := []rune(string(text))
		if lno == cur.Line {
			cursorText = line
		}
		s.drawGutter(scr, y, w, gutterWidth, lno, cur.Line)
		s.drawLine(scr, y, w, gutterWidth, line)
	}

	if statusY >= 0 {
		s.renderStatusline(scr, src, cur, cursorText, w, statusY)
	}
	if cmdY >= 0 && cmdY != statusY {
		s.renderCommandline(scr, w, cmdY)
	}

	if s.prompting {
		x := len([]rune(s.promptPrefix)) + len(s.prompt)
		scr.ShowCursor(min(x, w-1), cmdY)
	} else if y := row - s.top; y >= 0 && y < viewHeight {
		x := gutterWidth + visualCol(cursorText, byteToRune(cursorText, cur.Column), s.tabWidth)
		scr.ShowCursor(min(x, w-1), y)
	} else {
		scr.HideCursor()
	}
	scr.Show()
}

func (s *Surface) renderStatusline(scr tcell.Screen, src Source, cur buffer.Position, line []rune, w, y int) {
	name := src.Path()
	if name == "" {
		name = "[No Name]"
	} else {
		name = filepath.Base(name)
	}
	dirty := ""
	if src.Modified() {
		dirty = "*"
	}
	status := fmt.Sprintf(" %s%s ", name, dirty)
	if s.message != "" {
		status = fmt.Sprintf(" %s%s | %s ", name, dirty, s.message)
	}
	col := visualCol(line, byteToRune(line, cur.Column), s.tabWidth) + 1
	right := fmt.Sprintf(" Ln %d, Col %d ", cur.Line, col)

	style := s.styleStatus
	if s.messageError {
		fg, _, _ := s.styleError.Decompose()
		style = style.Foreground(fg)
	}
	line2 := composeStatusLine(status, right, w)
	for x, r := range line2 {
		if x >= w {
			break
		}
		scr.SetContent(x, y, r, nil, style)
	}
}

func (s *Surface) renderCommandline(scr tcell.Screen, w, y int) {
	clearLine(scr, y, w, s.styleCommand)
	if !s.prompting {
		return
	}
	text := append([]rune(s.promptPrefix), s.prompt...)
	for x, r := range text {
		if x >= w {
			break
		}
		scr.SetContent(x, y, r, nil, s.styleCommand)
	}
}

func (s *Surface) gutterWidth(last int) int {
	if s.lineNumberMode == LineNumberOff {
		return 0
	}
	digits := len(strconv.Itoa(max(last, 1)))
	if digits < 2 {
		digits = 2
	}
	// leading space + number + trailing space
	return 1 + digits + 1
}

func (s *Surface) drawGutter(scr tcell.Screen, y, w, gutterWidth, lno, curLine int) {
	if gutterWidth <= 0 {
		return
	}
	digits := max(gutterWidth-2, 1)
	num := lno
	if s.lineNumberMode == LineNumberRelative && lno != curLine {
		num = lno - curLine
		if num < 0 {
			num = -num
		}
	}
	numStr := fmt.Sprintf("%*d", digits, num)
	style := s.styleLineNumber
	if lno == curLine {
		style = s.styleLineNumberActive
	}
	if w > 0 {
		scr.SetContent(0, y, ' ', nil, s.styleMain)
	}
	for i, r := range numStr {
		x := 1 + i
		if x >= gutterWidth-1 || x >= w {
			break
		}
		scr.SetContent(x, y, r, nil, style)
	}
	if gutterWidth-1 < w {
		scr.SetContent(gutterWidth-1, y, ' ', nil, s.styleMain)
	}
}

func (s *Surface) drawLine(scr tcell.Screen, y, w, startX int, line []rune) {
	x := startX
	col := 0
	for _, r := range line {
		if x >= w {
			break
		}
		if r == '\t' {
			spaces := s.tabWidth - (col % s.tabWidth)
			for i := 0; i < spaces && x < w; i++ {
				scr.SetContent(x, y, ' ', nil, s.styleMain)
				x++
				col++
			}
			continue
		}
		scr.SetContent(x, y, r, nil, s.styleMain)
		x++
		col++
	}
	for x < w {
		scr.SetContent(x, y, ' ', nil, s.styleMain)
		x++
	}
}

func clearLine(s tcell.Screen, y, w int, style tcell.Style) {
	for x := 0; x < w; x++ {
		s.SetContent(x, y, ' ', nil, style)
	}
}

func composeStatusLine(left, right string, width int) []rune {
	if width <= 0 {
		return nil
	}
	leftRunes := []rune(left)
	rightRunes := []rune(right)
	if len(leftRunes)+len(rightRunes) > width {
		if len(rightRunes) >= width {
			rightRunes = rightRunes[len(rightRunes)-width:]
			leftRunes = nil
		} else {
			leftRunes = leftRunes[:width-len(rightRunes)]
		}
	}
	spaceCount := max(width-len(leftRunes)-len(rightRunes), 0)
	line := make([]rune, 0, width)
	line = append(line, leftRunes...)
	for i := 0; i < spaceCount; i++ {
		line = append(line, ' ')
	}
	line = append(line, rightRunes...)
	return line
}

func parseColor(name string, fallback tcell.Color) tcell.Color {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	if strings.HasPrefix(name, "#") && len(name) == 7 {
		r, err1 := strconv.ParseInt(name[1:3], 16, 32)
		g, err2 := strconv.ParseInt(name[3:5], 16, 32)
		b, err3 := strconv.ParseInt(name[5:7], 16, 32)
		if err1 == nil && err2 == nil && err3 == nil {
			return tcell.NewRGBColor(int32(r), int32(g), int32(b))
		}
		return fallback
	}
	name = strings.ToLower(name)
	if name == "default" {
		return tcell.ColorDefault
	}
	c := tcell.GetColor(name)
	if c == tcell.ColorDefault {
		return fallback
	}
	return c
}

func parseLineNumberMode(value string) LineNumberMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "relative", "rel":
		return LineNumberRelative
	case "off", "none", "false":
		return LineNumberOff
	default:
		return LineNumberAbsolute
	}
}

// visualCol is the screen column of rune index col, with tabs expanded.
func visualCol(line []rune, col int, tabWidth int) int {
	if tabWidth < 1 {
		tabWidth = 1
	}
	col = min(max(col, 0), len(line))
	vc := 0
	for i := 0; i < col; i++ {
		if line[i] == '\t' {
			vc += tabWidth - (vc % tabWidth)
			continue
		}
		vc++
	}
	return vc
}

// byteToRune converts a byte offset in the line's UTF-8 text to a rune index.
func byteToRune(line []rune, off int) int {
	n := 0
	for i, r := range line {
		if n >= off {
			return i
		}
		n += len(string(r))
	}
	return len(line)
}
