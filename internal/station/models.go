// Package station polls the WebRX receiver fleet and keeps the aggregated
// fleet status cached for the public API.
package station

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Station errors.
var (
	ErrUnreachable = errors.New("station unreachable")
	ErrConfigLoad  = errors.New("failed to load station configuration")
	ErrNoSnapshot  = errors.New("no persisted status snapshot")
	ErrNoStations  = errors.New("no stations configured")
)

// LastCheckedLayout is the wire format of Aggregate.LastChecked.
const LastCheckedLayout = "2006-01-02 15:04:05"

// Status classifies a station after a check.
type Status int

const (
	StatusOffline  Status = 0
	StatusDegraded Status = 1 // reachable, but no active receivers
	StatusOnline   Status = 2
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusDegraded:
		return "degraded"
	case StatusOnline:
		return "online"
	default:
		return "unknown"
	}
}

// ID identifies a station. Station files use numeric ids, so integer ids
// are written back as JSON numbers.
type ID string

// MarshalJSON writes canonical integers as numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(string(id)), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("station id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// UnmarshalYAML accepts scalar ids of any YAML type.
func (id *ID) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("station id must be a scalar, line %d", value.Line)
	}
	*id = ID(value.Value)
	return nil
}

// Station describes one receiver whose status endpoint is polled.
type Station struct {
	ID   ID     `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// URL is the base URL of the receiver; "/status.json" is appended.
	URL string `json:"sdrlink" yaml:"sdrlink"`
}

// StatusURL returns the URL of the station's status document.
func (s Station) StatusURL() string {
	return strings.TrimRight(s.URL, "/") + "/status.json"
}

// Result is the outcome of checking a single station.
type Result struct {
	ID          ID        `json:"id"`
	Status      Status    `json:"status"`
	Ping        *int64    `json:"ping"` // milliseconds, nil when unreachable
	Frequencies []float64 `json:"frequencies"`
}

// Unreachable returns the sentinel result for a station that could not be reached.
func Unreachable(id ID) Result {
	return Result{
		ID:          id,
		Status:      StatusOffline,
		Frequencies: []float64{},
	}
}

// PingDuration returns the ping as a duration, or zero when absent.
func (r Result) PingDuration() time.Duration {
	if r.Ping == nil {
		return 0
	}
	return time.Duration(*r.Ping) * time.Millisecond
}

// Aggregate is the status of the whole fleet for one refresh.
type Aggregate struct {
	LastChecked time.Time
	Results     []Result
}

type aggregateJSON struct {
	LastChecked string   `json:"last_checked"`
	Results     []Result `json:"sdr_status"`
}

// MarshalJSON writes the aggregate in the public wire format.
func (a Aggregate) MarshalJSON() ([]byte, error) {
	results := a.Results
	if results == nil {
		results = []Result{}
	}
	out := aggregateJSON{Results: results}
	if !a.LastChecked.IsZero() {
		out.LastChecked = a.LastChecked.UTC().Format(LastCheckedLayout)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads an aggregate from the public wire format.
func (a *Aggregate) UnmarshalJSON(data []byte) error {
	var in aggregateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	a.LastChecked = time.Time{}
	if in.LastChecked != "" {
		t, err := time.ParseInLocation(LastCheckedLayout, in.LastChecked, time.UTC)
		if err != nil {
			return fmt.Errorf("parsing last_checked: %w", err)
		}
		a.LastChecked = t
	}

	a.Results = in.Results
	for i := range a.Results {
		if a.Results[i].Frequencies == nil {
			a.Results[i].Frequencies = []float64{}
		}
	}
	return nil
}

// Summary counts results per status.
type Summary struct {
	Online   int
	Degraded int
	Offline  int
}

// Summarize counts the aggregate's results by status.
func (a *Aggregate) Summarize() Summary {
	var s Summary
	for _, r := range a.Results {
		switch r.Status {
		case StatusOnline:
			s.Online++
		case StatusDegraded:
			s.Degraded++
		default:
			s.Offline++
		}
	}
	return s
}

// FrequencyMHz converts a center frequency in Hz to MHz rounded to 0.1 MHz.
func FrequencyMHz(hz float64) float64 {
	return math.Round(hz/100000) / 10
}

// ExtractFrequencies converts center frequencies in Hz to a sorted MHz list.
func ExtractFrequencies(hz []float64) []float64 {
	out := make([]float64, 0, len(hz))
	for _, f := range hz {
		out = append(out, FrequencyMHz(f))
	}
	sort.Float64s(out)
	return out
}
