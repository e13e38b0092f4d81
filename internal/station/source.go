package station

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Source provides the ordered list of stations to poll.
type Source interface {
	Stations(ctx context.Context) ([]Station, error)
}

// FileSource reads stations from a JSON or YAML file on every call, so edits
// to the file are picked up by the next refresh.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading path. Files ending in .yaml or .yml
// are parsed as YAML, everything else as JSON.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the file the source reads.
func (s *FileSource) Path() string {
	return s.path
}

// Stations reads, parses and validates the station file.
func (s *FileSource) Stations(_ context.Context) ([]Station, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigLoad, err)
	}

	stations, err := ParseStations(data, filepath.Ext(s.path))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigLoad, s.path, err)
	}
	return stations, nil
}

// ParseStations decodes a station list. ext selects the format (".yaml",
// ".yml" or anything else for JSON).
func ParseStations(data []byte, ext string) ([]Station, error) {
	var stations []Station

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &stations); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &stations); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	}

	if err := ValidateStations(stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// ValidateStations checks every station and rejects duplicate ids.
func ValidateStations(stations []Station) error {
	seen := make(map[ID]int, len(stations))
	for i, st := range stations {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("station %d: %w", i, err)
		}
		if prev, ok := seen[st.ID]; ok {
			return fmt.Errorf("station %d: duplicate id %q (first seen at %d)", i, st.ID, prev)
		}
		seen[st.ID] = i
	}
	return nil
}

// Validate checks that the station has an id and an absolute http(s) URL.
func (s Station) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ID, validation.Required),
		validation.Field(&s.URL, validation.Required, validation.By(validateBaseURL)),
	)
}

func validateBaseURL(value interface{}) error {
	raw, _ := value.(string)
	u, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "must use http or https")
	}
	if u.Host == "" {
		return validation.NewError("validation_missing_host", "must include a host")
	}
	return nil
}

// StaticSource serves a fixed station list.
type StaticSource []Station

// Stations returns a copy of the list.
func (s StaticSource) Stations(_ context.Context) ([]Station, error) {
	out := make([]Station, len(s))
	copy(out, s)
	return out, nil
}
