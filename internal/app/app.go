package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/kobzarvs/qex/internal/buffer"
	"github.com/kobzarvs/qex/internal/changelog"
	"github.com/kobzarvs/qex/internal/config"
	"github.com/kobzarvs/qex/internal/logger"
	"github.com/kobzarvs/qex/internal/recno"
	"github.com/kobzarvs/qex/internal/session"
	"github.com/kobzarvs/qex/internal/sigblock"
)

var ErrUsage = errors.New("usage: qex [-s] [--] [file]")

// App is the top-level runtime for qex.
type App struct {
	args   []string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	screen tcell.Screen

	intr   sigblock.Interrupter
	sigs   chan os.Signal
	report func(buffer.Message)
}

type Option func(*App)

// WithIO replaces the process's standard streams.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(a *App) {
		a.stdin, a.stdout, a.stderr = in, out, errOut
	}
}

// WithScreen runs interactive mode on s instead of the terminal.
func WithScreen(s tcell.Screen) Option {
	return func(a *App) { a.screen = s }
}

func New(args []string, opts ...Option) *App {
	a := &App{
		args:   args,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		sigs:   make(chan os.Signal, 4),
	}
	a.report = a.printMessage
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func parseArgs(args []string) (script bool, path string, err error) {
	flags := true
	for _, arg := range args {
		switch {
		case flags && arg == "--":
			flags = false
		case flags && arg == "-s":
			script = true
		case flags && len(arg) > 1 && arg[0] == '-':
			return false, "", fmt.Errorf("%w: unknown flag %s", ErrUsage, arg)
		case path != "":
			return false, "", fmt.Errorf("%w: more than one file", ErrUsage)
		default:
			path = arg
		}
	}
	return script, path, nil
}

func (a *App) Run() (err error) {
	script, path, err := parseArgs(a.args)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(os.Getenv("QEX_DEBUG") != ""); err != nil {
		logger.InitWriter(io.Discard, false)
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := sigblock.New(a.onSignal)
	gate.Watch(ctx)

	buf, err := a.openBuffer(cfg, path, gate)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, buf.Close())
	}()

	if script {
		return a.runScript(ctx, cancel, cfg, buf)
	}

	var sm *session.Manager
	if path != "" {
		m, serr := session.NewManager(time.Duration(cfg.Editor.Autosave) * time.Second)
		if serr != nil {
			logger.Warn("session unavailable", "err", serr)
		} else {
			sm = m
		}
	}
	if sm != nil {
		defer func() {
			err = multierr.Append(err, sm.Stop())
		}()
	}
	return a.runInteractive(ctx, cfg, buf, sm)
}

// onSignal runs for every signal the gate lets through. An interrupt goes
// to the running command; everything else goes to the mode's loop.
func (a *App) onSignal(sig os.Signal) {
	if sigblock.IsInterrupt(sig) && a.intr.Interrupt() {
		return
	}
	select {
	case a.sigs <- sig:
	default:
		logger.Warn("signal dropped", "signal", sig)
	}
}

func (a *App) printMessage(msg buffer.Message) {
	fmt.Fprintln(a.stderr, "qex:", msg.Text)
}

func (a *App) openBuffer(cfg config.Config, path string, gate *sigblock.Gate) (*buffer.Buffer, error) {
	id := uuid.New()
	store, err := recno.Open(recno.Options{Backend: cfg.Store.Backend, Dir: cfg.Store.Dir, Name: id.String()})
	if err != nil {
		return nil, fmt.Errorf("open line store: %w", err)
	}
	report := func(msg buffer.Message) { a.report(msg) }

	log := changelog.Disabled()
	if cfg.Log.Enabled {
		log, err = changelog.New(func() (recno.Store, error) {
			return recno.Open(recno.Options{Backend: cfg.Log.Backend, Dir: cfg.Store.Dir, Name: id.String() + "-log"})
		},
			changelog.WithRestart(cfg.Log.Restart),
			changelog.WithReporter(func(msg string) { report(buffer.Message{Text: msg}) }),
		)
		if err != nil {
			logger.Error("change log unavailable", "err", err)
			report(buffer.Message{Text: err.Error(), Error: true})
		}
	}

	opts := []buffer.Option{
		buffer.WithID(id),
		buffer.WithLog(log),
		buffer.WithGate(gate),
		buffer.WithMessages(report),
	}
	var b *buffer.Buffer
	if path == "" {
		b, err = buffer.New(store, opts...)
	} else {
		b, err = buffer.Open(path, store, opts...)
	}
	if err != nil {
		return nil, multierr.Append(err, multierr.Combine(store.Close(), log.Close()))
	}
	logger.Info("buffer opened", "buffer", id, "path", path, "store", cfg.Store.Backend, "log", log.State())
	return b, nil
}
