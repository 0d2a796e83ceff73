package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/marcus/arcsync/internal/models"
)

// AddDevicePath is the Device API endpoint for creating a device.
const AddDevicePath = "/api/Device/add"

// AddDevice creates a device as a multipart form POST. A 2xx response
// with an empty body is reported as ErrEmptyResponse.
func (c *Client) AddDevice(ctx context.Context, d models.DevicePayload) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := []struct{ name, value string }{
		{"Name", d.Name},
		{"Address", d.Address},
		{"HttpPort", strconv.Itoa(d.HttpPort)},
		{"RtspPort", strconv.Itoa(d.RtspPort)},
		{"UserName", d.UserName},
		{"Password", d.Password},
		{"Type", d.Type},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", f.name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	body, err := c.doRequest(ctx, http.MethodPost, AddDevicePath, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("add device %q: %w", d.Name, ErrEmptyResponse)
	}
	return body, nil
}
