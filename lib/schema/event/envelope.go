// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// SpecVersion is the envelope format version stamped on every
// outbound message.
const SpecVersion = "1.0"

// ErrMalformedEnvelope is returned by [Decode] when a message is not a
// JSON object or lacks the type or source attribute.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the JSON message exchanged on every connection.
type Envelope struct {
	SpecVersion string `json:"specversion"`
	Type        Type   `json:"type"`
	Source      string `json:"source"`
	ID          ID     `json:"id"`

	// Time is when the event happened at its origin. Job start and end
	// times in the snapshot come from this attribute.
	Time *time.Time `json:"time,omitempty"`

	// Data is the type-specific payload. Absent for control events and
	// for TERMINATED.
	Data json.RawMessage `json:"data,omitempty"`
}

// ID is the envelope id. The evaluator writes integers; workers built
// on other envelope libraries write strings, so decoding accepts both
// and keeps only the numeric value (zero for non-numeric strings).
type ID int64

// UnmarshalJSON accepts a JSON number or a JSON string.
func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		value, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			*id = 0
			return nil
		}
		*id = ID(value)
		return nil
	}
	var value int64
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("envelope id: %w", err)
	}
	*id = ID(value)
	return nil
}

// New builds an outbound envelope. A nil payload produces an envelope
// without a data attribute.
func New(eventType Type, source string, id int64, payload any) (*Envelope, error) {
	envelope := &Envelope{
		SpecVersion: SpecVersion,
		Type:        eventType,
		Source:      source,
		ID:          ID(id),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", eventType, err)
		}
		envelope.Data = data
	}
	return envelope, nil
}

// Encode returns the JSON text of the envelope.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeData unmarshals the payload into target. An absent payload
// leaves target untouched.
func (e *Envelope) DecodeData(target any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return nil
}

// Decode parses one JSON message into an envelope. Type and source are
// required; everything else is optional.
func Decode(message []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if envelope.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	if envelope.Source == "" {
		return nil, fmt.Errorf("%w: missing source", ErrMalformedEnvelope)
	}
	return &envelope, nil
}
