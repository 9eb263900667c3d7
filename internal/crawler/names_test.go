package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"GLC Coupe":          "glc_coupe",
		"Mercedes-Benz":      "mercedes_benz",
		"  Range  Rover  ":   "range_rover",
		"Model S (Plaid)!":   "model_s_plaid",
		"already_normalized": "already_normalized",
		"--":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeName(in), in)
	}
}

func TestNewModelKeyAppliesAliases(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ModelKey{Make: "mercedes_benz", Model: "glc_coupe"}, NewModelKey("Mercedes", "GLC Coupe", nil))
	assert.Equal(t, ModelKey{Make: "mercedes_benz", Model: "glc_coupe"}, NewModelKey("Mercedes-Benz", "GLC-Coupe", nil))

	custom := map[string]string{"chevy": "chevrolet"}
	assert.Equal(t, "chevrolet", NewModelKey("Chevy", "Tahoe", custom).Make)
	assert.Equal(t, "mercedes", NewModelKey("Mercedes", "A", custom).Make)
}

func TestModelKeyPath(t *testing.T) {
	t.Parallel()

	key := NewModelKey("Mercedes-Benz", "GLC Coupe", nil)
	assert.Equal(t, "make=mercedes_benz/glc_coupe.json", key.Path())
	assert.True(t, key.Valid())
	assert.False(t, ModelKey{Make: "audi"}.Valid())
}
