// Package tile proxies map tiles from an upstream tile server and keeps the
// most recently inserted ones in memory.
package tile

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxZoom is the deepest zoom level served.
const MaxZoom = 19

// Subdomains are the upstream load-balancing hosts a tile may be requested from.
var Subdomains = []interface{}{"a", "b", "c"}

// Errors returned by the tile service.
var (
	ErrInvalidRequest = errors.New("invalid tile request")
	ErrTileNotFound   = errors.New("tile not found")
)

// UpstreamError is returned when the tile server answers with a non-2xx
// status. It matches ErrTileNotFound.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("tile not found: upstream returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Is reports whether target is ErrTileNotFound.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrTileNotFound
}

// Key addresses a single tile.
type Key struct {
	Subdomain string
	Z         int
	X         int
	Y         int
}

// ParseKey builds a key from raw path segments and validates it.
func ParseKey(subdomain, z, x, y string) (Key, error) {
	zi, err := strconv.Atoi(z)
	if err != nil {
		return Key{}, fmt.Errorf("%w: zoom %q is not an integer", ErrInvalidRequest, z)
	}
	xi, err := strconv.Atoi(x)
	if err != nil {
		return Key{}, fmt.Errorf("%w: x %q is not an integer", ErrInvalidRequest, x)
	}
	yi, err := strconv.Atoi(y)
	if err != nil {
		return Key{}, fmt.Errorf("%w: y %q is not an integer", ErrInvalidRequest, y)
	}

	k := Key{Subdomain: subdomain, Z: zi, X: xi, Y: yi}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// Validate checks the subdomain and that the coordinates exist at the zoom
// level. Errors wrap ErrInvalidRequest.
func (k Key) Validate() error {
	rules := []*validation.FieldRules{
		validation.Field(&k.Subdomain, validation.Required, validation.In(Subdomains...)),
		validation.Field(&k.Z, validation.Min(0), validation.Max(MaxZoom)),
	}
	if k.Z >= 0 && k.Z <= MaxZoom {
		last := (1 << k.Z) - 1
		rules = append(rules,
			validation.Field(&k.X, validation.Min(0), validation.Max(last)),
			validation.Field(&k.Y, validation.Min(0), validation.Max(last)),
		)
	}

	if err := validation.ValidateStruct(&k, rules...); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// String returns the key as "s/z/x/y".
func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", k.Subdomain, k.Z, k.X, k.Y)
}
