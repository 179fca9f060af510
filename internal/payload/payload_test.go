package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uwrealitylabs/humanoid-server/internal/domain"
)

func TestObject(t *testing.T) {
	validate := Object()

	tests := []struct {
		name  string
		data  string
		valid bool
	}{
		{"positions frame", `{"positions":[0,0,0]}`, true},
		{"empty object", `{}`, true},
		{"nested object", `{"type":"ping","meta":{"ts":1}}`, true},
		{"array", `[1,2,3]`, false},
		{"string", `"hello"`, false},
		{"number", `42`, false},
		{"null", `null`, false},
		{"truncated", `{"positions":[0,0`, false},
		{"plain text", `hello`, false},
		{"empty", ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate([]byte(tt.data))
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrMalformedPayload)
		})
	}
}

func TestPositions(t *testing.T) {
	validate := Positions(3)

	tests := []struct {
		name  string
		data  string
		valid bool
	}{
		{"exact length", `{"positions":[0,0,0]}`, true},
		{"extra fields kept", `{"id":7,"positions":[0.1,-2.5,3]}`, true},
		{"too short", `{"positions":[0,0]}`, false},
		{"too long", `{"positions":[0,0,0,0]}`, false},
		{"missing", `{"id":1}`, false},
		{"null positions", `{"positions":null}`, false},
		{"non numeric", `{"positions":["a","b","c"]}`, false},
		{"not an object", `[0,0,0]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate([]byte(tt.data))
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrMalformedPayload)
		})
	}
}
