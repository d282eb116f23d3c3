package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"netglobe/internal/models"
)

const (
	DefaultBaseURL = "http://ip-api.com/json"
	DefaultTimeout = 10 * time.Second
)

var (
	ErrInvalidPayload = errors.New("invalid geolocation payload")
)

// StatusError is a non-2xx answer from the lookup endpoint.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geolocation endpoint returned HTTP %d", e.Code)
}

// UserAgent identifies this client to the lookup service.
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return "netglobe/" + version + " (+connection-geolocation)"
}

// Client performs a single lookup against GET {baseURL}/{address}.
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = UserAgent("")
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ExpectContinueTimeout: timeout,
				MaxIdleConnsPerHost:   4,
			},
		},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Lookup returns the decoded location. An upstream "fail" answer is returned
// as a Location with Status "fail" and a nil error; transport problems, non-2xx
// statuses and malformed bodies are errors.
func (c *Client) Lookup(ctx context.Context, address string) (models.Location, error) {
	ctx, cancel := context.WithTimeout(ctx, c.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(address), nil)
	if err != nil {
		return models.Location{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return models.Location{}, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Location{}, err
	}
	return DecodeLocation(body)
}

// wireLocation accepts lat/lon as numbers or numeric strings.
type wireLocation struct {
	Status      *string     `json:"status"`
	Country     string      `json:"country"`
	CountryCode string      `json:"countryCode"`
	Region      string      `json:"region"`
	RegionName  string      `json:"regionName"`
	City        string      `json:"city"`
	Zip         string      `json:"zip"`
	Lat         json.Number `json:"lat"`
	Lon         json.Number `json:"lon"`
	Timezone    string      `json:"timezone"`
	ISP         string      `json:"isp"`
	Org         string      `json:"org"`
	AS          string      `json:"as"`
	Query       string      `json:"query"`
	Message     string      `json:"message"`
}

// DecodeLocation validates and converts one lookup response body.
func DecodeLocation(body []byte) (models.Location, error) {
	var w wireLocation
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return models.Location{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if w.Status == nil {
		return models.Location{}, fmt.Errorf("%w: missing status", ErrInvalidPayload)
	}

	loc := models.Location{
		Status:      *w.Status,
		Country:     w.Country,
		CountryCode: w.CountryCode,
		Region:      w.Region,
		RegionName:  w.RegionName,
		City:        w.City,
		Zip:         w.Zip,
		Timezone:    w.Timezone,
		ISP:         w.ISP,
		Org:         w.Org,
		AS:          w.AS,
		Query:       w.Query,
		Message:     w.Message,
	}

	switch loc.Status {
	case models.StatusSuccess:
		lat, err := parseCoord(w.Lat, 90)
		if err != nil {
			return models.Location{}, fmt.Errorf("%w: lat: %v", ErrInvalidPayload, err)
		}
		lon, err := parseCoord(w.Lon, 180)
		if err != nil {
			return models.Location{}, fmt.Errorf("%w: lon: %v", ErrInvalidPayload, err)
		}
		loc.Lat, loc.Lon = lat, lon
	case models.StatusFail:
		loc.Error = w.Message
		if loc.Error == "" {
			loc.Error = "lookup failed"
		}
	default:
		return models.Location{}, fmt.Errorf("%w: status %q", ErrInvalidPayload, loc.Status)
	}
	return loc, nil
}

func parseCoord(n json.Number, limit float64) (float64, error) {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return 0, errors.New("missing")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < -limit || v > limit {
		return 0, fmt.Errorf("%v out of range", v)
	}
	return v, nil
}
