// Package payload holds the application-layer shape checks applied to relayed frames.
//
// The relay never interprets payloads; a Validator only decides whether a
// frame is well-formed enough to be forwarded verbatim.
package payload

import (
	"encoding/json"
	"fmt"

	"github.com/uwrealitylabs/humanoid-server/internal/domain"
)

// Validator returns nil when data may be relayed.
type Validator func(data []byte) error

// Object accepts any JSON object.
func Object() Validator {
	return func(data []byte) error {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
		}
		if obj == nil {
			return fmt.Errorf("%w: expected a JSON object", domain.ErrMalformedPayload)
		}
		return nil
	}
}

// Positions accepts hand/robot pose frames: JSON objects carrying a
// "positions" array of exactly n numbers.
// Other fields are allowed and forwarded untouched.
func Positions(n int) Validator {
	return func(data []byte) error {
		var frame struct {
			Positions *[]float64 `json:"positions"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
		}
		if frame.Positions == nil {
			return fmt.Errorf("%w: missing positions", domain.ErrMalformedPayload)
		}
		if got := len(*frame.Positions); got != n {
			return fmt.Errorf("%w: expected %d positions, got %d", domain.ErrMalformedPayload, n, got)
		}
		return nil
	}
}
