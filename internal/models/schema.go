package models

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// payloadSchemas holds the JSON schema source for each operation kind.
var payloadSchemas = map[OperationKind]string{
	KindDeviceAdd: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["Name", "Address", "HttpPort", "RtspPort", "Type"],
  "properties": {
    "Name":     {"type": "string", "minLength": 1},
    "Address":  {"type": "string", "minLength": 1},
    "HttpPort": {"type": "integer", "minimum": 1, "maximum": 65535},
    "RtspPort": {"type": "integer", "minimum": 1, "maximum": 65535},
    "UserName": {"type": "string"},
    "Password": {"type": "string"},
    "Type":     {"type": "string", "minLength": 1}
  }
}`,
}

var (
	compileOnce sync.Once
	compiled    map[OperationKind]*jsonschema.Schema
	compileErr  error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	compiled = make(map[OperationKind]*jsonschema.Schema, len(payloadSchemas))
	for kind, src := range payloadSchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			compileErr = fmt.Errorf("parse schema %s: %w", kind, err)
			return
		}
		url := "arcsync://schemas/" + string(kind) + ".json"
		if err := c.AddResource(url, doc); err != nil {
			compileErr = fmt.Errorf("add schema %s: %w", kind, err)
			return
		}
		sch, err := c.Compile(url)
		if err != nil {
			compileErr = fmt.Errorf("compile schema %s: %w", kind, err)
			return
		}
		compiled[kind] = sch
	}
}

// KnownKind reports whether kind has a registered payload schema.
func KnownKind(kind OperationKind) bool {
	_, ok := payloadSchemas[kind]
	return ok
}

// ValidatePayload checks raw JSON against the schema registered for kind.
func ValidatePayload(kind OperationKind, raw []byte) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	sch, ok := compiled[kind]
	if !ok {
		return fmt.Errorf("unknown operation kind %q", kind)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", kind, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("invalid %s payload: %w", kind, err)
	}
	return nil
}
