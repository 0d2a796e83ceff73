package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType tags a BusMessage.
type MessageType string

const (
	MsgRequestLocation MessageType = "GET_LOCATION"
	MsgStopLocation    MessageType = "STOP_LOCATION"
	MsgLocationUpdate  MessageType = "LOCATION_UPDATE"
)

// BusMessage is the tagged union exchanged between the foreground and
// background contexts. Location is set only for MsgLocationUpdate.
type BusMessage struct {
	ID       string
	Type     MessageType
	Location *LocationSample
}

// RequestLocation builds a GET_LOCATION message.
func RequestLocation(id string) BusMessage {
	return BusMessage{ID: id, Type: MsgRequestLocation}
}

// StopLocation builds a STOP_LOCATION message.
func StopLocation(id string) BusMessage {
	return BusMessage{ID: id, Type: MsgStopLocation}
}

// LocationUpdate builds a LOCATION_UPDATE message carrying s.
func LocationUpdate(id string, s LocationSample) BusMessage {
	return BusMessage{ID: id, Type: MsgLocationUpdate, Location: &s}
}

type wireCoords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

type wireLocation struct {
	Coords    wireCoords `json:"coords"`
	Timestamp int64      `json:"timestamp"`
}

type wireMessage struct {
	ID           string        `json:"id,omitempty"`
	Type         MessageType   `json:"type"`
	LocationData *wireLocation `json:"locationData,omitempty"`
}

// MarshalJSON encodes the message in the broadcast-channel wire shape:
// {"type":"LOCATION_UPDATE","locationData":{"coords":{...},"timestamp":ms}}.
func (m BusMessage) MarshalJSON() ([]byte, error) {
	w := wireMessage{ID: m.ID, Type: m.Type}
	if m.Location != nil {
		w.LocationData = &wireLocation{
			Coords: wireCoords{
				Latitude:  m.Location.Latitude,
				Longitude: m.Location.Longitude,
				Accuracy:  m.Location.Accuracy,
			},
			Timestamp: m.Location.Timestamp.UnixMilli(),
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire shape and rejects unknown types and
// location updates without location data.
func (m *BusMessage) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case MsgRequestLocation, MsgStopLocation:
	case MsgLocationUpdate:
		if w.LocationData == nil {
			return fmt.Errorf("bus message %s: missing locationData", w.Type)
		}
	default:
		return fmt.Errorf("unknown bus message type %q", w.Type)
	}
	*m = BusMessage{ID: w.ID, Type: w.Type}
	if w.LocationData != nil {
		m.Location = &LocationSample{
			Latitude:  w.LocationData.Coords.Latitude,
			Longitude: w.LocationData.Coords.Longitude,
			Accuracy:  w.LocationData.Coords.Accuracy,
			Timestamp: time.UnixMilli(w.LocationData.Timestamp),
		}
	}
	return nil
}
