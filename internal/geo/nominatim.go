// Package geo resolves free-form place names to coordinates through a
// Nominatim search endpoint.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/datingbot/core/logger"
	"github.com/m3rciful/datingbot/core/netutil"
	"github.com/m3rciful/datingbot/internal/session"
)

// DefaultBaseURL is the public OpenStreetMap Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Options configures a Nominatim client.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// Rate is the maximum number of requests per second. Zero means one.
	Rate   float64
	Client *http.Client
}

// Nominatim looks up places with the /search endpoint.
type Nominatim struct {
	base    *url.URL
	agent   string
	client  *http.Client
	limiter *rate.Limiter
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// New validates opts and creates a Nominatim client.
func New(opts Options) (*Nominatim, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("geo: invalid base url %q", raw)
	}
	agent := strings.TrimSpace(opts.UserAgent)
	if agent == "" {
		return nil, errors.New("geo: user agent is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = netutil.NewHTTPClient(netutil.ClientOptions{Timeout: timeout})
	}
	perSecond := opts.Rate
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Nominatim{
		base:    base,
		agent:   agent,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}, nil
}

// Lookup returns the coordinates of the best match for query. It reports
// false without an error when nothing matches.
func (n *Nominatim) Lookup(ctx context.Context, query string) (session.Location, bool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return session.Location{}, false, nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return session.Location{}, false, fmt.Errorf("geo: wait: %w", err)
	}

	u := n.base.JoinPath("search")
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return session.Location{}, false, fmt.Errorf("geo: build request: %w", err)
	}
	req.Header.Set("User-Agent", n.agent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := n.client.Do(req)
	if err != nil {
		return session.Location{}, false, fmt.Errorf("geo: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return session.Location{}, false, fmt.Errorf("geo: search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return session.Location{}, false, fmt.Errorf("geo: decode: %w", err)
	}

	found := len(places) > 0
	if logger.ShouldSampleDebug() {
		logger.Debug(ctx, "geo", "geo.lookup",
			slog.String("query", logger.SanitizeLimit(query, 64)),
			slog.Bool("found", found),
			slog.Duration("duration", time.Since(start)),
		)
	}
	if !found {
		return session.Location{}, false, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return session.Location{}, false, fmt.Errorf("geo: parse lat %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return session.Location{}, false, fmt.Errorf("geo: parse lon %q: %w", places[0].Lon, err)
	}
	return session.Location{Latitude: lat, Longitude: lon}, true, nil
}
