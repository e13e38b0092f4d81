package tile_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrx-map/webrx/internal/tile"
)

func TestParseKey_Valid(t *testing.T) {
	tests := []struct {
		s, z, x, y string
		expected   tile.Key
	}{
		{"a", "0", "0", "0", tile.Key{Subdomain: "a", Z: 0, X: 0, Y: 0}},
		{"b", "5", "16", "10", tile.Key{Subdomain: "b", Z: 5, X: 16, Y: 10}},
		{"c", "19", "524287", "524287", tile.Key{Subdomain: "c", Z: 19, X: 524287, Y: 524287}},
	}

	for _, tt := range tests {
		t.Run(tt.expected.String(), func(t *testing.T) {
			key, err := tile.ParseKey(tt.s, tt.z, tt.x, tt.y)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, key)
		})
	}
}

func TestParseKey_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		s, z, x, y string
	}{
		{"unknown subdomain", "d", "1", "0", "0"},
		{"empty subdomain", "", "1", "0", "0"},
		{"zoom too deep", "a", "20", "0", "0"},
		{"negative zoom", "a", "-1", "0", "0"},
		{"x out of range", "a", "1", "2", "0"},
		{"y out of range", "a", "1", "0", "2"},
		{"negative x", "a", "3", "-1", "0"},
		{"non-numeric zoom", "a", "z", "0", "0"},
		{"non-numeric x", "a", "1", "1.5", "0"},
		{"non-numeric y", "a", "1", "0", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tile.ParseKey(tt.s, tt.z, tt.x, tt.y)
			assert.ErrorIs(t, err, tile.ErrInvalidRequest)
		})
	}
}

func TestUpstreamError(t *testing.T) {
	var err error = &tile.UpstreamError{StatusCode: http.StatusNotFound}

	assert.ErrorIs(t, err, tile.ErrTileNotFound)
	assert.Contains(t, err.Error(), "404")

	var upstream *tile.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusNotFound, upstream.StatusCode)
}
