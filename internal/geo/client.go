// Package geo talks to a Nominatim-compatible geocoder.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"courtside/internal/observability/metrics"

	"golang.org/x/time/rate"
)

const (
	DefaultUserAgent = "VolleyballCommunity/1.0"
	searchLimit      = 5
)

type Place struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

type Client struct {
	base      string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

// NewClient throttles outgoing calls to rps requests per second.
func NewClient(baseURL string, rps float64, opts ...Option) *Client {
	if rps <= 0 {
		rps = 1
	}
	c := &Client{
		base:      strings.TrimRight(baseURL, "/"),
		userAgent: DefaultUserAgent,
		http:      &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (p nominatimPlace) place() (Place, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return Place{}, fmt.Errorf("geo: bad lat %q", p.Lat)
	}
	lng, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return Place{}, fmt.Errorf("geo: bad lon %q", p.Lon)
	}
	return Place{Lat: lat, Lng: lng, Address: p.DisplayName}, nil
}

// Search returns up to five matches for q. A blank query returns nothing.
func (c *Client) Search(ctx context.Context, q string) (out []Place, err error) {
	defer func() { metrics.GeocoderRequestsTotal.WithLabelValues("search", metrics.Result(err)).Inc() }()

	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	v := url.Values{"format": {"json"}, "q": {q}, "limit": {strconv.Itoa(searchLimit)}}
	var raw []nominatimPlace
	if err := c.get(ctx, "/search", v, &raw); err != nil {
		return nil, err
	}
	out = make([]Place, 0, len(raw))
	for _, r := range raw {
		p, err := r.place()
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Reverse resolves a coordinate to an address.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) (p Place, err error) {
	defer func() { metrics.GeocoderRequestsTotal.WithLabelValues("reverse", metrics.Result(err)).Inc() }()

	v := url.Values{
		"format": {"json"},
		"lat":    {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(lng, 'f', -1, 64)},
	}
	var raw nominatimPlace
	if err := c.get(ctx, "/reverse", v, &raw); err != nil {
		return Place{}, err
	}
	if raw.DisplayName == "" {
		return Place{}, fmt.Errorf("geo: no address for %s", CoordLabel(lat, lng))
	}
	return Place{Lat: lat, Lng: lng, Address: raw.DisplayName}, nil
}

// CoordLabel is the address shown when reverse geocoding fails.
func CoordLabel(lat, lng float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lng)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geo: %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
