package output

import (
	"os"
	"strconv"
	"sync/atomic"

	"golang.org/x/term"
)

const defaultWidth = 80

var forcePlain atomic.Bool

// SetPlain forces unstyled output regardless of the terminal.
func SetPlain(v bool) { forcePlain.Store(v) }

// Plain reports whether output should be unstyled: forced, NO_COLOR set,
// or stdout not a terminal.
func Plain() bool {
	if forcePlain.Load() || os.Getenv("NO_COLOR") != "" {
		return true
	}
	return !term.IsTerminal(int(os.Stdout.Fd()))
}

// TerminalWidth returns the current terminal width or a fallback when unavailable.
func TerminalWidth(fallback int) int {
	if fallback <= 0 {
		fallback = defaultWidth
	}

	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}

	if cols := os.Getenv("COLUMNS"); cols != "" {
		if parsed, err := strconv.Atoi(cols); err == nil && parsed > 0 {
			return parsed
		}
	}

	return fallback
}
