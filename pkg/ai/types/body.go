package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeBody parses a raw fulfillment body produced by an action handler or
// an out-of-band caller into a Fulfillment.
func DecodeBody(body json.RawMessage) (*Fulfillment, error) {
	if len(body) == 0 {
		return nil, errors.New("fulfillment body is empty")
	}

	var f Fulfillment
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("decode fulfillment body: %w", err)
	}

	return &f, nil
}

// StampLanguage fills the payload language when the resolver left it unset.
func StampLanguage(f *Fulfillment, language string) *Fulfillment {
	if f == nil {
		return nil
	}

	if f.Payload.Language == "" {
		f.Payload.Language = language
	}

	return f
}
