package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already e164", "+972501234567", "+972501234567"},
		{"national format", "050-123-4567", "+972501234567"},
		{"international with spaces", "+972 50 123 4567", "+972501234567"},
		{"garbage passes through", "not-a-number", "not-a-number"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeE164(tt.input, DefaultRegion))
		})
	}
}

func TestVariantsCoverPlusAndNoPlus(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{"972501234567", "+972501234567"},
		Variants("972501234567", DefaultRegion),
	)
	assert.ElementsMatch(t,
		[]string{"+972501234567", "972501234567"},
		Variants("+972501234567", DefaultRegion),
	)
}

func TestVariantsAreExactForms(t *testing.T) {
	variants := Variants("501234567", DefaultRegion)
	assert.NotContains(t, variants, "972501234567")
	assert.NotContains(t, variants, "+972501234567")
}

func TestVariantsEmpty(t *testing.T) {
	assert.Nil(t, Variants("", DefaultRegion))
	assert.Nil(t, Variants("abc", DefaultRegion))
}

func TestWithoutPlus(t *testing.T) {
	assert.Equal(t, "972501234567", WithoutPlus(" +972501234567"))
	assert.Equal(t, "972501234567", WithoutPlus("972501234567"))
}
