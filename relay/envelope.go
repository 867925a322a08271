package relay

import (
	"encoding/json"
	"fmt"

	"github.com/yeremiapane/order-tracker/kds"
)

// envelope is a kds wire message tagged with the instance that produced it.
type envelope struct {
	Origin string `json:"origin"`
	kds.Message
}

func wrap(origin string, e kds.Event) ([]byte, error) {
	raw, err := kds.Encode(e)
	if err != nil {
		return nil, err
	}
	var msg kds.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Origin: origin, Message: msg})
}

func unwrap(b []byte) (string, kds.Event, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", nil, fmt.Errorf("decode envelope: %w", err)
	}
	// kds.Decode ignores the origin field
	e, err := kds.Decode(b)
	if err != nil {
		return env.Origin, nil, err
	}
	return env.Origin, e, nil
}
