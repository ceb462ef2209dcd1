package plug

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// DefaultPowerField is the status key holding the relay state.
const DefaultPowerField = "device_on"

// Identity keys the parser lifts out of the controller record.
const (
	fieldDeviceID = "device_id"
	fieldModel    = "model"
	fieldMAC      = "mac"
	fieldError    = "error"
)

// Parser validates controller status output.
//
// The output must be exactly one JSON object with a boolean power field.
// Nothing is coerced: a string "true", a missing field, or a trailing second
// document are all rejected.
type Parser struct {
	identity   Identity
	powerField string
	now        func() time.Time
}

// NewParser creates a parser that fills absent identity fields from identity.
// An empty powerField selects DefaultPowerField.
func NewParser(identity Identity, powerField string) *Parser {
	if powerField == "" {
		powerField = DefaultPowerField
	}
	return &Parser{
		identity:   identity,
		powerField: powerField,
		now:        time.Now,
	}
}

// PowerField returns the key the parser reads the relay state from.
func (p *Parser) PowerField() string {
	return p.powerField
}

// withClock returns a copy of p reading time from now.
func (p *Parser) withClock(now func() time.Time) *Parser {
	cp := *p
	cp.now = now
	return &cp
}

// Parse converts trimmed controller stdout into a live DeviceStatus.
func (p *Parser) Parse(stdout string) (DeviceStatus, error) {
	record, err := decodeRecord(stdout)
	if err != nil {
		return DeviceStatus{}, err
	}

	if msg := record[fieldError]; reportsError(msg) {
		return DeviceStatus{}, &ParseError{Reason: fmt.Sprintf("controller reported error: %v", msg)}
	}

	value, ok := record[p.powerField]
	if !ok {
		return DeviceStatus{}, &ParseError{Reason: fmt.Sprintf("missing power field %q", p.powerField)}
	}
	isOn, ok := value.(bool)
	if !ok {
		return DeviceStatus{}, &ParseError{Reason: fmt.Sprintf("power field %q is %s, want boolean", p.powerField, jsonKind(value))}
	}

	status := DeviceStatus{
		IsOn:       isOn,
		Source:     SourceLive,
		ObservedAt: p.now().UTC(),
	}
	if status.DeviceID, err = identityField(record, fieldDeviceID, p.identity.DeviceID); err != nil {
		return DeviceStatus{}, err
	}
	if status.Model, err = identityField(record, fieldModel, p.identity.Model); err != nil {
		return DeviceStatus{}, err
	}
	if status.MAC, err = identityField(record, fieldMAC, p.identity.MAC); err != nil {
		return DeviceStatus{}, err
	}

	raw := make(map[string]any, len(record))
	for k, v := range record {
		switch k {
		case fieldDeviceID, fieldModel, fieldMAC:
			continue
		}
		raw[k] = v
	}
	status.Raw = raw

	return status, nil
}

// decodeRecord reads exactly one JSON object from s.
func decodeRecord(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &ParseError{Reason: "empty output"}
	}

	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return nil, &ParseError{Reason: "not a JSON object", Err: err}
	}
	if record == nil {
		return nil, &ParseError{Reason: "record is null"}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Reason: "trailing data after record"}
	}
	return record, nil
}

// identityField returns record[key] when present, fallback otherwise.
func identityField(record map[string]any, key, fallback string) (string, error) {
	v, ok := record[key]
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &ParseError{Reason: fmt.Sprintf("field %q is %s, want string", key, jsonKind(v))}
	}
	if s == "" {
		return fallback, nil
	}
	return s, nil
}

// reportsError reports whether an "error" value is truthy. Status records
// may carry "error": false, 0, "" or {} alongside a valid reading.
func reportsError(v any) bool {
	switch e := v.(type) {
	case nil:
		return false
	case bool:
		return e
	case string:
		return e != ""
	case json.Number:
		f, err := e.Float64()
		return err != nil || f != 0
	case []any:
		return len(e) > 0
	case map[string]any:
		return len(e) > 0
	default:
		return true
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
