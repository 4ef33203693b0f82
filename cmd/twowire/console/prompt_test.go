package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromptText(t *testing.T) {
	assert.Equal(t, "reset? [N/y]: ", promptText("reset?", []string{No, Yes}))
}

func TestMatch(t *testing.T) {
	constraints := []string{No, Yes}
	tests := []struct {
		response string
		want     string
	}{
		{"", No},
		{"y", Yes},
		{" Y ", Yes},
		{"n", No},
		{"maybe", No},
	}
	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			assert.Equal(t, tt.want, match(tt.response, constraints))
		})
	}
}
