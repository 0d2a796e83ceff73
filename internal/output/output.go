// Package output provides styled terminal output helpers (success, error,
// warning, queue and event formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/arcsync/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	kindStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	eventStyles  = map[models.EventKind]lipgloss.Style{
		models.EventStart:          lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.EventTimeout:        lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.EventIgnored:        lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		models.EventMatch:          lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		models.EventDispatch:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.EventDispatchFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// render applies style unless output is plain.
func render(s lipgloss.Style, text string) string {
	if Plain() {
		return text
	}
	return s.Render(text)
}

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(render(successStyle, fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(render(errorStyle, "ERROR: "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(render(warningStyle, "Warning: "+fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

// Notice prints a user-facing status notice at the given level.
func Notice(level slog.Level, msg string) {
	switch {
	case level >= slog.LevelError:
		Error("%s", msg)
	case level >= slog.LevelWarn:
		Warning("%s", msg)
	default:
		Success("%s", msg)
	}
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeUnreachable  = "unreachable"
	ErrCodeDatabase     = "database_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]string{"error": message, "code": code})
	fmt.Println(string(data))
}

// SectionHeader returns a bold section title.
func SectionHeader(title string) string {
	return render(titleStyle, title)
}

// FormatOperation formats a queued operation as one line, truncated to width.
func FormatOperation(op models.PendingOperation, width int) string {
	head := fmt.Sprintf("#%-4d %s %s ", op.ID, render(kindStyle, string(op.Kind)), render(subtleStyle, FormatTimeAgo(op.EnqueuedAt)))
	summary := string(op.Payload)
	if d, err := op.DecodeDevice(); err == nil && op.Kind == models.KindDeviceAdd {
		summary = fmt.Sprintf("%s @ %s (http %d, rtsp %d)", d.Name, d.Address, d.HttpPort, d.RtspPort)
	}
	return head + Truncate(summary, width-lipgloss.Width(head))
}

// FormatEvent formats one event log entry.
func FormatEvent(e models.EventLogEntry) string {
	kind := fmt.Sprintf("%-16s", e.Kind)
	if style, ok := eventStyles[e.Kind]; ok {
		kind = render(style, kind)
	}
	return fmt.Sprintf("%s %s %s", render(subtleStyle, e.Time.Local().Format("2006-01-02 15:04:05")), kind, e.Message)
}

// Truncate shortens s to width cells, marking the cut with "...".
func Truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	if width <= 3 {
		return strings.Repeat(".", width)
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+3 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
