package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// Console prints notifications as toast-style lines, in red when the
// writer is a terminal.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewConsole returns a Console writing to w. Colour is enabled only when w
// is a terminal and NO_COLOR is unset.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, color: IsTerminal(w) && os.Getenv("NO_COLOR") == ""}
}

// IsTerminal reports whether w is an *os.File attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Notify prints the message on its own line.
func (c *Console) Notify(message, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.color && kind == KindError {
		fmt.Fprintf(c.w, "%s%s: %s%s\n", ansiRed, kind, message, ansiReset)
		return
	}

	fmt.Fprintf(c.w, "%s: %s\n", kind, message)
}
