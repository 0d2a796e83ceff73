// Package notify registers push subscriptions and dispatches notifications
// to the most recent one.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/marcus/arcsync/internal/models"
	"github.com/marcus/arcsync/internal/pushdb"
	"github.com/marcus/arcsync/internal/tracing"
	"github.com/marcus/arcsync/internal/webpush"
)

// Defaults for the delivered notification.
const (
	DefaultTitle = "location match"
	DefaultIcon  = "/assets/icons/icon-72x72.png"

	SentMessage = "Notifications sent successfully"
)

var (
	// ErrNoSubscription is returned by Dispatch when nothing is registered.
	ErrNoSubscription = errors.New("no subscription found")
	// ErrInvalidSubscription is returned by Register for a malformed subscription.
	ErrInvalidSubscription = errors.New("invalid subscription")
)

// DispatchResult reports one dispatch. TotalSent counts attempts.
type DispatchResult struct {
	Message     string `json:"message"`
	TotalSent   int    `json:"totalSent"`
	FailedCount int    `json:"failedCount"`
}

// Options configures a Service.
type Options struct {
	Title  string
	Icon   string
	Badge  string
	Tracer *tracing.Tracer
}

// Service is the registration and dispatch backend.
type Service struct {
	store  pushdb.Store
	sender webpush.Sender
	opts   Options
	log    *slog.Logger
	now    func() time.Time
}

// New creates a Service.
func New(store pushdb.Store, sender webpush.Sender, opts Options) *Service {
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}
	if opts.Icon == "" {
		opts.Icon = DefaultIcon
	}
	if opts.Badge == "" {
		opts.Badge = opts.Icon
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.Default()
	}
	return &Service{
		store:  store,
		sender: sender,
		opts:   opts,
		log:    slog.Default().With("component", "notify"),
		now:    time.Now,
	}
}

// Register validates and stores a subscription. Duplicates get their own id.
func (s *Service) Register(ctx context.Context, endpoint, p256dh, auth string) (int64, error) {
	endpoint = strings.TrimSpace(endpoint)
	u, err := url.Parse(endpoint)
	if err != nil || !u.IsAbs() || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return 0, fmt.Errorf("%w: endpoint must be an absolute http(s) URL", ErrInvalidSubscription)
	}
	if strings.TrimSpace(p256dh) == "" || strings.TrimSpace(auth) == "" {
		return 0, fmt.Errorf("%w: keys.p256dh and keys.auth are required", ErrInvalidSubscription)
	}

	sub := &pushdb.Subscription{Endpoint: endpoint, P256dh: p256dh, Auth: auth, CreatedAt: s.now()}
	id, err := s.store.Create(ctx, sub)
	if err != nil {
		return 0, fmt.Errorf("store subscription: %w", err)
	}
	s.log.Info("subscription registered", "id", id)
	return id, nil
}

// Dispatch sends message to the most recent subscription. A delivery
// failure removes that subscription and is reported in FailedCount.
func (s *Service) Dispatch(ctx context.Context, message string) (*DispatchResult, error) {
	sub, err := s.store.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil {
		return nil, ErrNoSubscription
	}

	payload, err := json.Marshal(models.NotificationPayload{
		Title:     s.opts.Title,
		Body:      message,
		Icon:      s.opts.Icon,
		Badge:     s.opts.Badge,
		Timestamp: s.now().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}

	result := &DispatchResult{Message: SentMessage, TotalSent: 1}

	ctx, span := s.opts.Tracer.StartDispatch(ctx, sub.ID)
	sendErr := s.sender.Send(ctx, *sub, payload)
	tracing.End(span, sendErr)
	if sendErr == nil {
		s.log.Info("notification sent", "subscription", sub.ID)
		return result, nil
	}

	s.log.Warn("notification failed, removing subscription", "subscription", sub.ID, "err", sendErr)
	result.FailedCount = 1
	if err := s.store.Delete(ctx, sub.ID); err != nil && !errors.Is(err, pushdb.ErrNotFound) {
		return nil, fmt.Errorf("remove failed subscription: %w", err)
	}
	return result, nil
}

// Notify dispatches message and reports only hard failures.
func (s *Service) Notify(ctx context.Context, message string) error {
	_, err := s.Dispatch(ctx, message)
	return err
}

// Subscriptions lists every stored subscription, oldest first.
func (s *Service) Subscriptions(ctx context.Context) ([]pushdb.Subscription, error) {
	subs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
