package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Printer writes rendered lines to the terminal with semantic styling.
// Styling degrades to plain text in test mode or when explicitly disabled, so
// golden output stays byte-stable.
type Printer struct {
	mu     sync.Mutex
	writer io.Writer
	plain  bool

	resultStyle lipgloss.Style
	hintStyle   lipgloss.Style
	errorStyle  lipgloss.Style
	infoStyle   lipgloss.Style
}

// Option configures a Printer.
type Option func(*Printer)

// WithWriter redirects output, typically for tests.
func WithWriter(w io.Writer) Option {
	return func(p *Printer) { p.writer = w }
}

// WithPlain disables all styling.
func WithPlain() Option {
	return func(p *Printer) { p.plain = true }
}

// NewPrinter creates a printer writing to stdout unless redirected.
func NewPrinter(options ...Option) *Printer {
	p := &Printer{
		writer:      os.Stdout,
		resultStyle: lipgloss.NewStyle().Bold(true),
		hintStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		errorStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		infoStyle:   lipgloss.NewStyle().Faint(true),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Result prints a computed value.
func (p *Printer) Result(text string) { p.println(p.resultStyle, text) }

// Hint prints one advisory line.
func (p *Printer) Hint(text string) { p.println(p.hintStyle, text) }

// Error prints an error line.
func (p *Printer) Error(text string) { p.println(p.errorStyle, text) }

// Info prints secondary information such as session settings.
func (p *Printer) Info(text string) { p.println(p.infoStyle, text) }

// Printf prints unstyled formatted text.
func (p *Printer) Printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, format, args...) //nolint:errcheck
}

func (p *Printer) println(style lipgloss.Style, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.plain {
		fmt.Fprintln(p.writer, text) //nolint:errcheck
		return
	}
	fmt.Fprintln(p.writer, style.Render(text)) //nolint:errcheck
}
