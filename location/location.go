// Package location resolves the user's approximate position. Explicit GPS
// coordinates supplied by the client always win; otherwise the resolver falls
// back to IP geolocation, and finally to an empty record. Resolution never
// fails the surrounding pipeline: a lookup error degrades to an unknown
// location instead of an error.
package location

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"context"

	"github.com/citysense-ai/citysense/logging"
)

// Source identifies how a location record was obtained.
type Source string

const (
	// SourceGPS marks coordinates supplied directly by the client device.
	SourceGPS Source = "GPS"
	// SourceIP marks a position derived from IP geolocation.
	SourceIP Source = "IP"
	// SourceNone marks a record with no usable position.
	SourceNone Source = "None"
)

// Record is a resolved location. Lat/Lng are pointers so "unknown" is
// distinguishable from coordinate zero; textual fields are empty when unknown.
type Record struct {
	City    string   `json:"city"`
	Region  string   `json:"region"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Source  Source   `json:"source"`
}

// FromCoordinates builds a GPS-sourced record from raw coordinates.
func FromCoordinates(lat, lng float64) Record {
	return Record{Lat: &lat, Lng: &lng, Source: SourceGPS}
}

// Unknown returns the empty record used when every resolution path failed.
func Unknown() Record {
	return Record{Source: SourceNone}
}

// Map renders the record as a generic map, the shape handed to models as a
// tool result and stored in session state.
func (r Record) Map() map[string]any {
	m := map[string]any{
		"city":    nil,
		"region":  nil,
		"country": nil,
		"lat":     nil,
		"lng":     nil,
		"source":  string(r.Source),
	}
	if r.City != "" {
		m["city"] = r.City
	}
	if r.Region != "" {
		m["region"] = r.Region
	}
	if r.Country != "" {
		m["country"] = r.Country
	}
	if r.Lat != nil {
		m["lat"] = *r.Lat
	}
	if r.Lng != nil {
		m["lng"] = *r.Lng
	}
	return m
}

// String renders the record on a single "city=..; region=.." line.
func (r Record) String() string {
	field := func(s string) string {
		if s == "" {
			return "Unknown"
		}
		return s
	}
	coord := func(f *float64) string {
		if f == nil {
			return "Unknown"
		}
		return strconv.FormatFloat(*f, 'f', -1, 64)
	}
	return fmt.Sprintf("city=%s; region=%s; country=%s; lat=%s; lng=%s",
		field(r.City), field(r.Region), field(r.Country), coord(r.Lat), coord(r.Lng))
}

// DefaultEndpoint is the IP geolocation service queried when no explicit
// coordinates are available.
const DefaultEndpoint = "https://ipinfo.io/json"

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// Endpoint is the geolocation URL; defaults to the public ipinfo endpoint.
	Endpoint string
	// Token is an optional bearer token for the geolocation service.
	Token string
	// Timeout bounds the lookup round trip.
	Timeout time.Duration
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Resolver performs IP-based geolocation lookups. Safe for concurrent use.
type Resolver struct {
	endpoint string
	token    string
	client   *http.Client
	logger   logging.Logger
}

// NewResolver constructs a Resolver with a 5 second lookup timeout by default.
func NewResolver(optFns ...func(o *ResolverOptions)) *Resolver {
	opts := ResolverOptions{
		Endpoint: DefaultEndpoint,
		Timeout:  5 * time.Second,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Resolver{
		endpoint: opts.Endpoint,
		token:    opts.Token,
		client:   client,
		logger:   opts.Logger,
	}
}

// ipinfoResponse mirrors the subset of the ipinfo payload we consume. The
// "loc" field packs coordinates as "lat,lng".
type ipinfoResponse struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Loc     string `json:"loc"`
}

// Resolve performs an IP geolocation lookup. Any failure (network, status,
// malformed body) yields the unknown record; Resolve never returns an error.
func (r *Resolver) Resolve(ctx context.Context) Record {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		r.logger.Warn("location.lookup.request_failed", "error", err.Error())
		return Unknown()
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("location.lookup.failed", "error", err.Error())
		return Unknown()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("location.lookup.bad_status", "status", resp.StatusCode)
		return Unknown()
	}

	var body ipinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		r.logger.Warn("location.lookup.decode_failed", "error", err.Error())
		return Unknown()
	}

	rec := Record{
		City:    body.City,
		Region:  body.Region,
		Country: body.Country,
		Source:  SourceIP,
	}
	rec.Lat, rec.Lng = parseLoc(body.Loc)

	return rec
}

// parseLoc splits the packed "lat,lng" coordinate string. Both values must
// parse or neither is kept.
func parseLoc(loc string) (*float64, *float64) {
	parts := strings.Split(loc, ",")
	if len(parts) != 2 {
		return nil, nil
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	return &lat, &lng
}
