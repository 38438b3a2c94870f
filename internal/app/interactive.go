package app

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/kobzarvs/qex/internal/buffer"
	"github.com/kobzarvs/qex/internal/config"
	"github.com/kobzarvs/qex/internal/display"
	"github.com/kobzarvs/qex/internal/excmd"
	"github.com/kobzarvs/qex/internal/logger"
	"github.com/kobzarvs/qex/internal/session"
	"github.com/kobzarvs/qex/internal/sigblock"
)

// ui is one interactive editing session: a screen, the command line and
// the buffer's surface.
type ui struct {
	app  *App
	scr  tcell.Screen
	buf  *buffer.Buffer
	ex   *excmd.Executor
	surf *display.Surface
	sm   *session.Manager
	keys map[string]string

	line     []rune
	out      bytes.Buffer
	deferred []os.Signal
	hangup   bool
}

func (a *App) runInteractive(ctx context.Context, cfg config.Config, buf *buffer.Buffer, sm *session.Manager) error {
	s := a.screen
	if s == nil {
		var err error
		if s, err = tcell.NewScreen(); err != nil {
			return err
		}
	}
	if err := s.Init(); err != nil {
		return err
	}
	defer s.Fini()

	u := newUI(a, s, cfg, buf, sm)
	defer buf.Detach(u.surf)
	a.report = func(msg buffer.Message) { u.surf.SetMessage(msg.Text, msg.Error) }
	defer func() { a.report = a.printMessage }()
	return u.loop(ctx)
}

func newUI(a *App, s tcell.Screen, cfg config.Config, buf *buffer.Buffer, sm *session.Manager) *ui {
	u := &ui{app: a, scr: s, buf: buf, sm: sm, keys: cfg.Keys}
	u.surf = display.New(cfg)
	buf.Attach(u.surf)
	if sm != nil {
		if pos, top, ok := sm.Restore(buf); ok {
			buf.NoteCursor(pos)
			u.surf.Scroll(top - 1)
		}
	}
	u.ex = excmd.New(buf, excmd.WithOutput(&u.out), excmd.WithUndoToggle(cfg.Editor.UndoToggle))
	return u
}

func (u *ui) loop(ctx context.Context) error {
	events := make(chan tcell.Event)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			ev := u.scr.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-stop:
				return
			}
		}
	}()

	// running is non-nil while a command executes. The buffer and the
	// surface belong to that command until it reports back.
	var running chan error
	u.render()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-running:
			running = nil
			u.finish(err)
			if u.ex.Quit() || u.hangup {
				return nil
			}
			for _, sig := range u.deferred {
				if u.signal(sig) {
					return nil
				}
			}
			u.deferred = nil
		case sig := <-u.app.sigs:
			if running != nil {
				if sigblock.IsHangup(sig) {
					u.hangup = true
					u.app.intr.Interrupt()
				} else {
					u.deferred = append(u.deferred, sig)
				}
				continue
			}
			if u.signal(sig) {
				return nil
			}
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if running != nil {
					if u.keys[keyString(ev)] == "cancel" {
						u.app.intr.Interrupt()
					}
					continue
				}
				if line, submit := u.handleKey(ev); submit {
					running = u.start(ctx, line)
					continue
				}
			case *tcell.EventResize:
				u.scr.Sync()
				if running == nil {
					u.surf.Invalidate()
				}
			}
		}
		if running == nil && u.surf.NeedsRedraw() {
			u.render()
		}
	}
}

// start runs line on its own goroutine so the loop can still read the
// interrupt key.
func (u *ui) start(ctx context.Context, line string) chan error {
	ch := make(chan error, 1)
	u.out.Reset()
	cctx, done := u.app.intr.Begin(ctx)
	go func() {
		defer done()
		ch <- u.ex.Execute(cctx, line)
	}()
	return ch
}

func (u *ui) finish(err error) {
	switch {
	case err != nil:
		u.surf.SetMessage(err.Error(), true)
	case u.out.Len() > 0:
		out := strings.TrimRight(u.out.String(), "\n")
		if i := strings.LastIndexByte(out, '\n'); i >= 0 {
			out = out[i+1:]
		}
		u.surf.SetMessage(out, false)
	}
	if u.sm != nil {
		u.sm.Capture(u.buf, u.ex.Dot(), u.surf.Top())
	}
	u.render()
}

// signal handles a signal between commands. It reports whether the
// session has to end.
func (u *ui) signal(sig os.Signal) bool {
	switch {
	case sigblock.IsHangup(sig):
		logger.Warn("hangup", "signal", sig)
		return true
	case sigblock.IsSuspend(sig):
		u.suspend()
	case sigblock.IsResize(sig):
		u.scr.Sync()
		u.surf.Invalidate()
	case sigblock.IsInterrupt(sig):
		u.action("cancel")
	}
	return false
}

// handleKey edits the command line. It returns the line when Enter
// submits it.
func (u *ui) handleKey(ev *tcell.EventKey) (string, bool) {
	if action, ok := u.keys[keyString(ev)]; ok {
		u.action(action)
		return "", false
	}
	switch ev.Key() {
	case tcell.KeyEnter:
		line := string(u.line)
		u.line = u.line[:0]
		return line, true
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if n := len(u.line); n > 0 {
			u.line = u.line[:n-1]
		}
	case tcell.KeyCtrlW:
		i := len(u.line)
		for i > 0 && u.line[i-1] == ' ' {
			i--
		}
		for i > 0 && u.line[i-1] != ' ' {
			i--
		}
		u.line = u.line[:i]
	case tcell.KeyRune:
		u.line = append(u.line, ev.Rune())
	}
	u.showPrompt()
	return "", false
}

func (u *ui) action(name string) {
	dot := u.ex.Dot()
	page := max(u.surf.ViewHeight()-1, 1)
	switch name {
	case "page_up":
		u.ex.SetDot(buffer.Position{Line: max(dot.Line-page, 1)})
		u.surf.Scroll(-page)
	case "page_down":
		u.ex.SetDot(buffer.Position{Line: dot.Line + page})
		u.surf.Scroll(page)
	case "line_up":
		u.ex.SetDot(buffer.Position{Line: max(dot.Line-1, 1)})
		u.surf.Invalidate()
	case "line_down":
		u.ex.SetDot(buffer.Position{Line: dot.Line + 1})
		u.surf.Invalidate()
	case "redraw":
		u.scr.Sync()
		u.surf.Invalidate()
	case "cancel":
		if u.ex.Inputting() {
			if err := u.ex.CancelInput(); err != nil {
				u.surf.SetMessage(err.Error(), true)
			}
		}
		u.line = u.line[:0]
	case "clear":
		u.line = u.line[:0]
	case "suspend":
		u.suspend()
	default:
		logger.Debug("unknown key action", "action", name)
	}
	u.showPrompt()
}

func (u *ui) suspend() {
	if err := u.scr.Suspend(); err != nil {
		u.surf.SetMessage(err.Error(), true)
		return
	}
	if err := sigblock.Suspend(); err != nil {
		logger.Warn("suspend failed", "err", err)
	}
	if err := u.scr.Resume(); err != nil {
		logger.Error("resume failed", "err", err)
	}
	u.surf.Invalidate()
}

func (u *ui) showPrompt() {
	prefix := ":"
	if u.ex.Inputting() {
		prefix = ""
	}
	u.surf.SetPrompt(prefix, append([]rune{}, u.line...))
}

func (u *ui) render() {
	u.showPrompt()
	u.surf.Render(u.scr, u.buf, u.ex.Dot())
	u.surf.Reset()
}

func keyString(ev *tcell.EventKey) string {
	switch ev.Key() {
	case tcell.KeyRune:
		r := ev.Rune()
		switch {
		case ev.Modifiers()&tcell.ModCtrl != 0:
			return "ctrl+" + strings.ToLower(string(r))
		case ev.Modifiers()&tcell.ModAlt != 0:
			return "alt+" + string(r)
		case r == ' ':
			return "space"
		}
		return string(r)
	case tcell.KeyUp:
		return "up"
	case tcell.KeyDown:
		return "down"
	case tcell.KeyLeft:
		return "left"
	case tcell.KeyRight:
		return "right"
	case tcell.KeyPgUp:
		return "pgup"
	case tcell.KeyPgDn:
		return "pgdn"
	case tcell.KeyHome:
		return "home"
	case tcell.KeyEnd:
		return "end"
	case tcell.KeyEnter:
		return "enter"
	case tcell.KeyTab:
		return "tab"
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return "backspace"
	case tcell.KeyDelete:
		return "delete"
	case tcell.KeyEscape:
		return "esc"
	}
	if k := ev.Key(); k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ {
		return "ctrl+" + string(rune('a'+int(k-tcell.KeyCtrlA)))
	}
	return ""
}
