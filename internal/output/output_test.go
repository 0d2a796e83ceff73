package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/marcus/arcsync/internal/models"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, ".."},
		{"line\nbreak", 0, "line break"},
	}
	for _, c := range cases {
		if got := Truncate(c.in, c.width); got != c.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", c.in, c.width, got, c.want)
		}
	}
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Now()
	cases := []struct {
		t    time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-2 * 24 * time.Hour), "2d ago"},
	}
	for _, c := range cases {
		if got := FormatTimeAgo(c.t); got != c.want {
			t.Errorf("FormatTimeAgo(%v) = %q, want %q", c.t, got, c.want)
		}
	}
	old := time.Date(2020, 3, 4, 0, 0, 0, 0, time.Local)
	if got := FormatTimeAgo(old); got != "2020-03-04" {
		t.Errorf("old = %q", got)
	}
}

func TestFormatOperation(t *testing.T) {
	SetPlain(true)
	defer SetPlain(false)

	payload, _ := json.Marshal(models.DevicePayload{Name: "gate", Address: "10.0.0.5", HttpPort: 80, RtspPort: 554, Type: "ipcam"})
	op := models.PendingOperation{ID: 7, Kind: models.KindDeviceAdd, Payload: payload, EnqueuedAt: time.Now()}

	got := FormatOperation(op, 200)
	for _, want := range []string{"#7", "device.add", "gate @ 10.0.0.5", "http 80", "rtsp 554"} {
		if !strings.Contains(got, want) {
			t.Errorf("%q missing %q", got, want)
		}
	}
	if short := FormatOperation(op, 30); len(short) > 30 || !strings.HasSuffix(short, "...") {
		t.Errorf("not truncated to width: %q", short)
	}
}

func TestFormatEvent(t *testing.T) {
	SetPlain(true)
	defer SetPlain(false)

	e := models.EventLogEntry{Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local), Kind: models.EventMatch, Message: "distance 3.0 m"}
	got := FormatEvent(e)
	if !strings.HasPrefix(got, "2026-01-02 03:04:05 match") || !strings.HasSuffix(got, "distance 3.0 m") {
		t.Errorf("FormatEvent = %q", got)
	}
}
