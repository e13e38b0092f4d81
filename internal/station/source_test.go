package station_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrx-map/webrx/internal/station"
)

func TestParseStations_JSON(t *testing.T) {
	stations, err := station.ParseStations([]byte(`[
		{"id": 1, "name": "Amsterdam", "sdrlink": "http://sdr1.example.org:8073"},
		{"id": "rotterdam", "sdrlink": "https://sdr2.example.org/"}
	]`), ".json")
	require.NoError(t, err)

	require.Len(t, stations, 2)
	assert.Equal(t, station.Station{ID: "1", Name: "Amsterdam", URL: "http://sdr1.example.org:8073"}, stations[0])
	assert.Equal(t, station.ID("rotterdam"), stations[1].ID)
}

func TestParseStations_YAML(t *testing.T) {
	stations, err := station.ParseStations([]byte(`
- id: 1
  name: Amsterdam
  sdrlink: http://sdr1.example.org:8073
- id: utrecht
  sdrlink: http://sdr3.example.org
`), ".yml")
	require.NoError(t, err)

	require.Len(t, stations, 2)
	assert.Equal(t, station.ID("1"), stations[0].ID)
	assert.Equal(t, "http://sdr3.example.org", stations[1].URL)
}

func TestParseStations_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "malformed", data: `[{"id": 1,`},
		{name: "missing id", data: `[{"sdrlink": "http://sdr.example.org"}]`},
		{name: "missing url", data: `[{"id": 1}]`},
		{name: "bad scheme", data: `[{"id": 1, "sdrlink": "ftp://sdr.example.org"}]`},
		{name: "no host", data: `[{"id": 1, "sdrlink": "http://"}]`},
		{name: "duplicate id", data: `[
			{"id": 1, "sdrlink": "http://a.example.org"},
			{"id": "1", "sdrlink": "http://b.example.org"}
		]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := station.ParseStations([]byte(tt.data), ".json")
			assert.Error(t, err)
		})
	}
}

func TestFileSource_MissingFile(t *testing.T) {
	src := station.NewFileSource(filepath.Join(t.TempDir(), "missing.json"))

	_, err := src.Stations(context.Background())
	assert.ErrorIs(t, err, station.ErrConfigLoad)
}

func TestFileSource_RereadsOnEveryCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locations.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": 1, "sdrlink": "http://a.example.org"}]`), 0o644))

	src := station.NewFileSource(path)
	stations, err := src.Stations(context.Background())
	require.NoError(t, err)
	assert.Len(t, stations, 1)

	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": 1, "sdrlink": "http://a.example.org"},
		{"id": 2, "sdrlink": "http://b.example.org"}
	]`), 0o644))

	stations, err = src.Stations(context.Background())
	require.NoError(t, err)
	assert.Len(t, stations, 2)
}

func TestFileSource_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locations.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o644))

	_, err := station.NewFileSource(path).Stations(context.Background())
	assert.ErrorIs(t, err, station.ErrConfigLoad)
}

func TestStaticSource_ReturnsCopy(t *testing.T) {
	src := station.StaticSource{{ID: "1", URL: "http://a.example.org"}}

	stations, err := src.Stations(context.Background())
	require.NoError(t, err)
	stations[0].ID = "changed"

	assert.Equal(t, station.ID("1"), src[0].ID)
}
