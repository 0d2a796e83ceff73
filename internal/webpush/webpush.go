// Package webpush delivers encrypted Web Push messages signed with VAPID.
package webpush

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	wp "github.com/SherClockHolmes/webpush-go"

	"github.com/marcus/arcsync/internal/models"
)

// DefaultTTL is how long the push service keeps an undelivered message.
const DefaultTTL = 24 * 60 * 60

// Sender delivers a payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub models.PushSubscription, payload []byte) error
}

// DeliveryError is a non-2xx response from the push service.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("push service returned %d", e.StatusCode)
}

// Gone reports whether the push service says the subscription no longer exists.
func (e *DeliveryError) Gone() bool {
	return e.StatusCode == http.StatusGone || e.StatusCode == http.StatusNotFound
}

// VAPIDSender sends through webpush-go.
type VAPIDSender struct {
	PublicKey  string
	PrivateKey string
	// Subject identifies the sender to push services, as an email or URL.
	Subject string
	TTL     int
	HTTP    *http.Client
}

// NewVAPIDSender returns a sender for the given key pair.
func NewVAPIDSender(publicKey, privateKey, subject string) (*VAPIDSender, error) {
	if publicKey == "" || privateKey == "" {
		return nil, fmt.Errorf("vapid key pair is required")
	}
	return &VAPIDSender{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		Subject:    subject,
		TTL:        DefaultTTL,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *VAPIDSender) Send(ctx context.Context, sub models.PushSubscription, payload []byte) error {
	opts := &wp.Options{
		Subscriber:      strings.TrimPrefix(s.Subject, "mailto:"),
		TTL:             s.TTL,
		VAPIDPublicKey:  s.PublicKey,
		VAPIDPrivateKey: s.PrivateKey,
	}
	if s.HTTP != nil {
		opts.HTTPClient = s.HTTP
	}
	resp, err := wp.SendNotificationWithContext(ctx, payload, &wp.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     wp.Keys{Auth: sub.Auth, P256dh: sub.P256dh},
	}, opts)
	if err != nil {
		return fmt.Errorf("send push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// GenerateKeys creates a VAPID key pair, base64url encoded.
func GenerateKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = wp.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	return publicKey, privateKey, nil
}
