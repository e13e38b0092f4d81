package station

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultCheckTimeout bounds a single status request.
	DefaultCheckTimeout = 5 * time.Second

	maxStatusBodySize = 1 << 20 // 1MB
)

// ClientConfig holds configuration for the station status client.
type ClientConfig struct {
	// Timeout bounds one attempt, from sending the request to reading the body.
	// Default: 5 seconds
	Timeout time.Duration

	// HTTPClient is the underlying HTTP client (optional).
	// Its own Timeout is ignored in favour of the per-attempt context.
	HTTPClient *http.Client
}

// Client fetches and classifies the status document of a single station.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

// NewClient creates a new station status client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultCheckTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			// per-attempt timeouts come from the request context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     60 * time.Second,
			},
		}
	}

	return &Client{
		httpClient: httpClient,
		timeout:    timeout,
		now:        time.Now,
	}
}

// CheckOnce performs a single attempt against the station. Failures are
// reported as the unreachable result, never as an error.
func (c *Client) CheckOnce(ctx context.Context, st Station) Result {
	result, err := c.Probe(ctx, st)
	if err != nil {
		return Unreachable(st.ID)
	}
	return result
}

// Probe performs a single attempt against the station. Transport errors,
// timeouts, non-2xx responses and undecodable bodies wrap ErrUnreachable.
func (c *Client) Probe(ctx context.Context, st Station) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, st.StatusURL(), http.NoBody)
	if err != nil {
		return Unreachable(st.ID), fmt.Errorf("%w: creating request: %v", ErrUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.httpClient.Do(req)
	ping := c.now().Sub(start).Milliseconds()
	if err != nil {
		return Unreachable(st.ID), fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Unreachable(st.ID), fmt.Errorf("%w: unexpected status code: %d", ErrUnreachable, resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxStatusBodySize)).Decode(&raw); err != nil {
		return Unreachable(st.ID), fmt.Errorf("%w: decoding status: %v", ErrUnreachable, err)
	}

	return classify(st.ID, ping, raw), nil
}

// statusDocument is the subset of a receiver's status.json that we read.
// Receivers disagree on shapes, so nested fields stay raw until inspected.
type statusDocument struct {
	SDRs json.RawMessage `json:"sdrs"`
}

type sdrUnit struct {
	Profiles json.RawMessage `json:"profiles"`
}

type sdrProfile struct {
	CenterFreq json.RawMessage `json:"center_freq"`
}

// classify turns a decoded status document into a result. Anything that is
// not a JSON object counts as having no units.
func classify(id ID, ping int64, raw json.RawMessage) Result {
	result := Result{
		ID:          id,
		Ping:        &ping,
		Frequencies: []float64{},
	}

	var doc statusDocument
	if isObject(raw) {
		_ = json.Unmarshal(raw, &doc)
	}

	units := members(doc.SDRs)
	if len(units) == 0 {
		result.Status = StatusDegraded
		return result
	}

	var hz []float64
	for _, u := range units {
		var unit sdrUnit
		if !isObject(u) || json.Unmarshal(u, &unit) != nil {
			continue
		}
		for _, p := range members(unit.Profiles) {
			var profile sdrProfile
			if !isObject(p) || json.Unmarshal(p, &profile) != nil {
				continue
			}
			if f, ok := centerFreq(profile.CenterFreq); ok {
				hz = append(hz, f)
			}
		}
	}

	result.Status = StatusOnline
	result.Frequencies = ExtractFrequencies(hz)
	return result
}

// members returns the values of a JSON object or the elements of a JSON
// array. Any other value has no members.
func members(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	switch raw[0] {
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil
		}
		out := make([]json.RawMessage, 0, len(m))
		for _, v := range m {
			out = append(out, v)
		}
		return out
	case '[':
		var out []json.RawMessage
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// centerFreq reads a frequency given as a JSON number or a numeric string.
func centerFreq(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	var f float64
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		f = v
	default:
		if err := json.Unmarshal(raw, &f); err != nil {
			return 0, false
		}
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
