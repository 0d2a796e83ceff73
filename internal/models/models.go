package models

import (
	"encoding/json"
	"time"
)

// OperationKind tags the payload shape of a PendingOperation.
type OperationKind string

const (
	// KindDeviceAdd creates a device on the remote Device API.
	KindDeviceAdd OperationKind = "device.add"
)

// PendingOperation is one deferred write held in the durable queue.
type PendingOperation struct {
	ID         int64           `json:"id"`
	Kind       OperationKind   `json:"kind"`
	Payload    json.RawMessage `json:"data"`
	EnqueuedAt time.Time       `json:"timestamp"`
}

// DecodeDevice decodes the payload of a device.add operation.
func (op PendingOperation) DecodeDevice() (DevicePayload, error) {
	var d DevicePayload
	err := json.Unmarshal(op.Payload, &d)
	return d, err
}

// DevicePayload describes a device to create on the remote Device API.
// Field names match the multipart form fields the API expects.
type DevicePayload struct {
	Name     string `json:"Name"`
	Address  string `json:"Address"`
	HttpPort int    `json:"HttpPort"`
	RtspPort int    `json:"RtspPort"`
	UserName string `json:"UserName"`
	Password string `json:"Password"`
	Type     string `json:"Type"`
}

// GeofenceTarget is the circular region watched by the background monitor.
// Exact disables the coarse rounding pre-filter.
type GeofenceTarget struct {
	Latitude     float64 `json:"latitude" yaml:"latitude"`
	Longitude    float64 `json:"longitude" yaml:"longitude"`
	RadiusMeters float64 `json:"radius" yaml:"radius_m"`
	Exact        bool    `json:"exact,omitempty" yaml:"exact"`
}

// LocationSample is a single sensor fix.
type LocationSample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"-"`
}

// EventKind classifies entries in the diagnostic event log.
type EventKind string

const (
	EventStart          EventKind = "start"
	EventTick           EventKind = "tick"
	EventRequest        EventKind = "request"
	EventUpdate         EventKind = "update"
	EventIgnored        EventKind = "ignored"
	EventTimeout        EventKind = "timeout"
	EventMatch          EventKind = "match"
	EventDispatch       EventKind = "dispatch"
	EventDispatchFailed EventKind = "dispatch_failed"
)

// EventLogEntry is one append-only diagnostic record.
type EventLogEntry struct {
	ID      int64     `json:"id"`
	Time    time.Time `json:"time"`
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
}

// PushSubscription is one registered Web Push endpoint.
type PushSubscription struct {
	ID        int64     `json:"id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationPayload is the JSON body delivered through the push service.
type NotificationPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Icon      string `json:"icon"`
	Badge     string `json:"badge"`
	Timestamp int64  `json:"timestamp"`
}
