package gender

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"table hit female", "Maria Clara", "f"},
		{"table hit male", "Carlos Eduardo", "m"},
		{"diacritics stripped", "João Pedro", "m"},
		{"son suffix", "Anderson Silva", "m"},
		{"trailing a", "Vanessa", "f"},
		{"trailing o", "Ricardo", "m"},
		{"consonant ending", "Robert", ""},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"case insensitive", "GABRIELA nunes", "f"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Infer(tt.in))
		})
	}
}
