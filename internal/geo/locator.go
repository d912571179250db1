// Package geo provides core.Locator implementations used when an operator
// asks to stamp a new record with the current position.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/localfinder/internal/core"
)

// ErrNoFix is returned when the position service answers without a usable
// position.
var ErrNoFix = errors.New("position service returned no fix")

// HTTPLocator asks a JSON position endpoint for the current location.
// The response must carry "lat" and "lon" (or "latitude" and "longitude").
type HTTPLocator struct {
	url        string
	httpClient *http.Client
}

// NewHTTPLocator returns a locator for url. The timeout is a hard ceiling
// on the request; callers usually bound it further through ctx.
func NewHTTPLocator(url string, timeout time.Duration) *HTTPLocator {
	if timeout <= 0 {
		timeout = core.DefaultLocateTimeout
	}
	return &HTTPLocator{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type positionResponse struct {
	Status    string   `json:"status"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// CurrentPosition implements core.Locator.
func (l *HTTPLocator) CurrentPosition(ctx context.Context) (core.Coordinates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return core.Coordinates{}, fmt.Errorf("build position request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return core.Coordinates{}, fmt.Errorf("position request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.Coordinates{}, fmt.Errorf("position service error %d: %s", resp.StatusCode, string(body))
	}

	var pr positionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return core.Coordinates{}, fmt.Errorf("decode position: %w", err)
	}
	if pr.Status != "" && pr.Status != "success" {
		return core.Coordinates{}, fmt.Errorf("%w: status %q", ErrNoFix, pr.Status)
	}

	lat, lon := pr.Lat, pr.Lon
	if lat == nil || lon == nil {
		lat, lon = pr.Latitude, pr.Longitude
	}
	if lat == nil || lon == nil {
		return core.Coordinates{}, ErrNoFix
	}
	return core.Coordinates{Lat: *lat, Lng: *lon}, nil
}

// Fixed always reports the same position. Useful for sites with a known
// address and for tests.
type Fixed core.Coordinates

// ParseFixed reads a "lat,lng" pair such as "-23.55,-46.63".
func ParseFixed(s string) (Fixed, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return Fixed{}, fmt.Errorf("fixed position %q: want lat,lng", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil || lat < -90 || lat > 90 {
		return Fixed{}, fmt.Errorf("fixed position %q: bad latitude", s)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil || lng < -180 || lng > 180 {
		return Fixed{}, fmt.Errorf("fixed position %q: bad longitude", s)
	}
	return Fixed{Lat: lat, Lng: lng}, nil
}

// CurrentPosition implements core.Locator.
func (f Fixed) CurrentPosition(ctx context.Context) (core.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return core.Coordinates{}, err
	}
	return core.Coordinates(f), nil
}
