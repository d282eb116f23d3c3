package models

import "time"

// Location is the geolocation record attached to an enriched connection.
// Field names follow the upstream lookup payload.
type Location struct {
	Status      string  `json:"status"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"countryCode,omitempty"`
	Region      string  `json:"region,omitempty"`
	RegionName  string  `json:"regionName,omitempty"`
	City        string  `json:"city,omitempty"`
	Zip         string  `json:"zip,omitempty"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone,omitempty"`
	ISP         string  `json:"isp,omitempty"`
	Org         string  `json:"org,omitempty"`
	AS          string  `json:"as,omitempty"`
	Query       string  `json:"query,omitempty"`
	Message     string  `json:"message,omitempty"`
	Error       string  `json:"error,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// OK reports whether the lookup resolved to a position.
func (l Location) OK() bool {
	return l.Status == StatusSuccess
}

// EnrichedEvent is the record handed to sinks for every accepted connection.
type EnrichedEvent struct {
	Process     string    `json:"process"`
	Category    string    `json:"category"`
	SourceAddr  string    `json:"source_addr"`
	SourcePort  int       `json:"source_port"`
	DestAddr    string    `json:"dest_addr"`
	DestPort    int       `json:"dest_port"`
	Location    Location  `json:"location"`
	CapturedAt  time.Time `json:"captured_at"`
	ResolvedAt  time.Time `json:"resolved_at"`
	CaptureMode string    `json:"capture_mode,omitempty"`
}

// DestGroup groups recent events by destination address.
type DestGroup struct {
	DestAddr string          `json:"dest_addr"`
	Country  string          `json:"country,omitempty"`
	City     string          `json:"city,omitempty"`
	Count    int             `json:"count"`
	Events   []EnrichedEvent `json:"events"` // newest -> oldest
}
