package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestValidatePayload_DeviceAdd(t *testing.T) {
	good, _ := json.Marshal(DevicePayload{
		Name: "gate-cam", Address: "10.0.0.7", HttpPort: 80, RtspPort: 554, Type: "ipcam",
	})
	if err := ValidatePayload(KindDeviceAdd, good); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"missing name", `{"Address":"a","HttpPort":80,"RtspPort":554,"Type":"x"}`},
		{"empty name", `{"Name":"","Address":"a","HttpPort":80,"RtspPort":554,"Type":"x"}`},
		{"port out of range", `{"Name":"n","Address":"a","HttpPort":70000,"RtspPort":554,"Type":"x"}`},
		{"port as string", `{"Name":"n","Address":"a","HttpPort":"80","RtspPort":554,"Type":"x"}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidatePayload(KindDeviceAdd, []byte(tt.raw)); err == nil {
				t.Errorf("expected error for %s", tt.raw)
			}
		})
	}
}

func TestValidatePayload_UnknownKind(t *testing.T) {
	err := ValidatePayload("device.remove", []byte(`{}`))
	if err == nil || !strings.Contains(err.Error(), "unknown operation kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
	if KnownKind("device.remove") {
		t.Error("device.remove should not be known")
	}
	if !KnownKind(KindDeviceAdd) {
		t.Error("device.add should be known")
	}
}

func TestBusMessage_WireShape(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	msg := LocationUpdate("", LocationSample{Latitude: 22.25, Longitude: 73.18, Accuracy: 12, Timestamp: ts})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"LOCATION_UPDATE","locationData":{"coords":{"latitude":22.25,"longitude":73.18,"accuracy":12},"timestamp":1700000000123}}`
	if string(data) != want {
		t.Errorf("wire shape:\n got %s\nwant %s", data, want)
	}

	var back BusMessage
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Location == nil || back.Location.Latitude != 22.25 || !back.Location.Timestamp.Equal(ts) {
		t.Errorf("decoded location = %+v", back.Location)
	}
}

func TestBusMessage_RejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`{"type":"WHATEVER"}`,
		`{"type":"LOCATION_UPDATE"}`,
	} {
		var m BusMessage
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}

	var m BusMessage
	if err := json.Unmarshal([]byte(`{"type":"GET_LOCATION","id":"abc"}`), &m); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if m.Type != MsgRequestLocation || m.ID != "abc" || m.Location != nil {
		t.Errorf("decoded = %+v", m)
	}
}
