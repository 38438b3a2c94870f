package app

import (
	"bufio"
	"context"
	"fmt"

	"github.com/kobzarvs/qex/internal/buffer"
	"github.com/kobzarvs/qex/internal/config"
	"github.com/kobzarvs/qex/internal/excmd"
	"github.com/kobzarvs/qex/internal/logger"
	"github.com/kobzarvs/qex/internal/sigblock"
)

// runScript reads commands from stdin until EOF or a quit command. Each
// failing command is reported and the script goes on; the run fails if
// any command did.
func (a *App) runScript(ctx context.Context, cancel context.CancelFunc, cfg config.Config, buf *buffer.Buffer) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-a.sigs:
				if sigblock.IsHangup(sig) {
					logger.Warn("hangup", "signal", sig)
					cancel()
					return
				}
			}
		}
	}()

	ex := excmd.New(buf, excmd.WithOutput(a.stdout), excmd.WithUndoToggle(cfg.Editor.UndoToggle))
	failed := 0
	sc := bufio.NewScanner(a.stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if ctx.Err() != nil {
			break
		}
		if err := a.execute(ctx, ex, sc.Text()); err != nil {
			fmt.Fprintln(a.stderr, "qex:", err)
			failed++
		}
		if ex.Quit() {
			break
		}
	}
	if ex.Inputting() {
		if err := a.execute(ctx, ex, "."); err != nil {
			fmt.Fprintln(a.stderr, "qex:", err)
			failed++
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d commands failed", failed)
	}
	return nil
}

// execute runs one command with a context the interrupt signal cancels.
func (a *App) execute(ctx context.Context, ex *excmd.Executor, line string) error {
	cctx, done := a.intr.Begin(ctx)
	defer done()
	return ex.Execute(cctx, line)
}
