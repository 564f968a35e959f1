package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/assetsync/internal/source"
)

// ErrNoAddress is returned when a coordinate resolves to no address
var ErrNoAddress = errors.New("no address for location")

// Geocoder resolves a coordinate to a human-readable place
type Geocoder interface {
	Reverse(ctx context.Context, point source.GeoPoint) (string, error)
}

// HTTPGeocoder reverse-geocodes against a Nominatim-compatible API
type HTTPGeocoder struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewHTTPGeocoder creates a geocoder for the service at baseURL
func NewHTTPGeocoder(baseURL, userAgent string, timeout time.Duration) *HTTPGeocoder {
	return &HTTPGeocoder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

type nominatimResponse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

// Reverse returns the address lines for point joined with ", "
func (g *HTTPGeocoder) Reverse(ctx context.Context, point source.GeoPoint) (string, error) {
	q := url.Values{
		"format": {"jsonv2"},
		"lat":    {strconv.FormatFloat(point.Latitude, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(point.Longitude, 'f', -1, 64)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocoder unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode geocoder response: %w", err)
	}
	if body.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrNoAddress, body.Error)
	}

	if address := formatAddress(body.Address); address != "" {
		return address, nil
	}
	if body.DisplayName != "" {
		return body.DisplayName, nil
	}
	return "", ErrNoAddress
}

// formatAddress renders postal address lines in the usual order and joins
// them with ", ".
func formatAddress(addr map[string]string) string {
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(addr[k]); v != "" {
				return v
			}
		}
		return ""
	}

	lines := []string{
		strings.TrimSpace(first("house_number") + " " + first("road", "pedestrian", "footway")),
		first("suburb", "neighbourhood"),
		strings.TrimSpace(first("city", "town", "village", "hamlet") + " " + first("postcode")),
		first("state", "region"),
		first("country"),
	}

	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, ", ")
}
