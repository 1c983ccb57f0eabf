package shell

import (
	gocontext "context"
	"errors"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"unitcalc/internal/logger"
	"unitcalc/internal/output"
)

// Run starts the interactive loop. It returns when the user quits or input
// reaches EOF. An interrupt during a long solve cancels the solve, not the
// session.
func Run(p *output.Printer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "calc> ",
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close() //nolint:errcheck

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == ":quit" || trimmed == ":exit" {
			return nil
		}

		goCtx, stop := signal.NotifyContext(gocontext.Background(), os.Interrupt)
		ProcessLine(goCtx, line, p)
		stop()
	}
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		logger.Debug("no cache directory for history", "error", err)
		return ""
	}
	return filepath.Join(dir, "unitcalc_history")
}
