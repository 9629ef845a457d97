package lead

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		first string
		last  string
	}{
		{"Maria Clara Souza", "Maria", "Clara Souza"},
		{"Carlos", "Carlos", ""},
		{"  Ana   Paula  ", "Ana", "Paula"},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first)
		assert.Equal(t, tt.last, last)
	}
}

func TestBuildFields(t *testing.T) {
	t.Parallel()

	f := BuildFields("Maria Clara", "maria@example.com", "11987654321")
	require.NotNil(t, f)
	assert.Equal(t, "Maria", f.FirstName)
	assert.Equal(t, "Clara", f.LastName)
	assert.Equal(t, "f", f.Gender)
	assert.Equal(t, "maria@example.com", f.Email)
	assert.Equal(t, "11987654321", f.Phone)
}

func TestBuildFields_AllEmpty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, BuildFields("", "", ""))
	assert.Nil(t, BuildFields("   ", "", ""))
}

func TestBuildCookieSnapshot(t *testing.T) {
	t.Parallel()

	c := BuildCookieSnapshot("Carlos Eduardo Lima", "carlos@example.com", "11987654321")
	require.NotNil(t, c)
	assert.Equal(t, "Carlos", c.LeadFirstName)
	assert.Equal(t, "Eduardo Lima", c.LeadLastName)
	assert.Equal(t, "m", c.LeadGenero)

	assert.Nil(t, BuildCookieSnapshot("", "", ""))
}

func TestBuildCookieSnapshot_SingleName(t *testing.T) {
	t.Parallel()

	c := BuildCookieSnapshot("Vanessa", "", "")
	require.NotNil(t, c)
	assert.Equal(t, "Vanessa", c.LeadFirstName)
	assert.Equal(t, "", c.LeadLastName)
	assert.Equal(t, "f", c.LeadGenero)
}

func TestDecodeSnapshot(t *testing.T) {
	t.Parallel()

	got := DecodeSnapshot(`{"name":"Ana","email":"ana@example.com","phone":"11987654321","gender":"f","extra":1}`)
	assert.Equal(t, map[string]any{
		"name":   "Ana",
		"email":  "ana@example.com",
		"phone":  "11987654321",
		"gender": "f",
	}, got)
}

func TestDecodeSnapshot_Malformed(t *testing.T) {
	t.Parallel()

	assert.Empty(t, DecodeSnapshot("{oops"))
	assert.Empty(t, DecodeSnapshot(""))
}

func TestDecodeSnapshot_DropsNonStrings(t *testing.T) {
	t.Parallel()

	got := DecodeSnapshot(`{"name":42,"email":"a@b.c"}`)
	assert.Equal(t, map[string]any{"email": "a@b.c"}, got)
}
