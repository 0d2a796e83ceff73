package sensor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"time"

	"github.com/marcus/arcsync/internal/models"
)

// DefaultGPSDAddr is gpsd's standard listen address.
const DefaultGPSDAddr = "localhost:2947"

const watchCommand = `?WATCH={"enable":true,"json":true}` + "\n"

// GPSD reads fixes from a gpsd daemon using its JSON protocol.
type GPSD struct {
	Addr string
	// FixTimeout bounds Current when ctx has no deadline.
	FixTimeout time.Duration
}

// NewGPSD returns a GPSD sensor for addr (DefaultGPSDAddr if empty).
func NewGPSD(addr string) *GPSD {
	if addr == "" {
		addr = DefaultGPSDAddr
	}
	return &GPSD{Addr: addr, FixTimeout: 10 * time.Second}
}

// tpv is the subset of a gpsd TPV report we use.
type tpv struct {
	Class string    `json:"class"`
	Mode  int       `json:"mode"`
	Time  time.Time `json:"time"`
	Lat   float64   `json:"lat"`
	Lon   float64   `json:"lon"`
	Epx   float64   `json:"epx"`
	Epy   float64   `json:"epy"`
	Eph   float64   `json:"eph"`
}

func (r tpv) sample() models.LocationSample {
	acc := r.Eph
	if acc == 0 {
		acc = math.Max(r.Epx, r.Epy)
	}
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return models.LocationSample{Latitude: r.Lat, Longitude: r.Lon, Accuracy: acc, Timestamp: ts}
}

func (g *GPSD) open(ctx context.Context) (net.Conn, *bufio.Scanner, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", g.Addr)
	if err != nil {
		return nil, nil, classify(fmt.Errorf("dial gpsd %s: %w", g.Addr, err))
	}
	if _, err := io.WriteString(conn, watchCommand); err != nil {
		conn.Close()
		return nil, nil, classify(fmt.Errorf("enable gpsd watch: %w", err))
	}
	return conn, bufio.NewScanner(conn), nil
}

// next returns the next TPV report.
func next(sc *bufio.Scanner) (tpv, error) {
	for sc.Scan() {
		var r tpv
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Class == "TPV" {
			return r, nil
		}
	}
	if err := sc.Err(); err != nil {
		return tpv{}, err
	}
	return tpv{}, io.EOF
}

func noFix(mode int) error {
	return &Error{Code: PositionUnavailable, Err: fmt.Errorf("no fix (mode %d)", mode)}
}

// Current connects, waits for the first TPV report and returns it.
func (g *GPSD) Current(ctx context.Context) (models.LocationSample, error) {
	if _, ok := ctx.Deadline(); !ok && g.FixTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.FixTimeout)
		defer cancel()
	}

	conn, sc, err := g.open(ctx)
	if err != nil {
		return models.LocationSample{}, err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	r, err := next(sc)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return models.LocationSample{}, classify(fmt.Errorf("read gpsd: %w", err))
	}
	if r.Mode < 2 {
		return models.LocationSample{}, noFix(r.Mode)
	}
	return r.sample(), nil
}

// Watch streams fixes until stopped. A report without a fix or a broken
// connection ends the watch through onError.
func (g *GPSD) Watch(ctx context.Context, onSample func(models.LocationSample), onError func(error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		conn, sc, err := g.open(ctx)
		if err != nil {
			if ctx.Err() == nil {
				onError(err)
			}
			return
		}
		defer conn.Close()
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		for {
			r, err := next(sc)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				onError(classify(fmt.Errorf("read gpsd: %w", err)))
				return
			}
			if r.Mode < 2 {
				onError(noFix(r.Mode))
				return
			}
			onSample(r.sample())
		}
	}()
	return cancel
}
