package sensor

import (
	"context"
	"time"

	"github.com/marcus/arcsync/internal/models"
)

// Static reports a fixed coordinate, for bench setups without a receiver.
type Static struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	// Interval between watch samples; 1s if zero.
	Interval time.Duration
}

func (s *Static) sample() models.LocationSample {
	return models.LocationSample{Latitude: s.Latitude, Longitude: s.Longitude, Accuracy: s.Accuracy, Timestamp: time.Now()}
}

func (s *Static) Current(ctx context.Context) (models.LocationSample, error) {
	if err := ctx.Err(); err != nil {
		return models.LocationSample{}, classify(err)
	}
	return s.sample(), nil
}

func (s *Static) Watch(ctx context.Context, onSample func(models.LocationSample), _ func(error)) func() {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				onSample(s.sample())
			}
		}
	}()
	return cancel
}
