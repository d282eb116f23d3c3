package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"netglobe/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLocation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		check   func(t *testing.T, loc models.Location)
	}{
		{
			name: "numeric coords",
			body: `{"status":"success","country":"Germany","city":"Berlin","lat":52.52,"lon":13.405}`,
			check: func(t *testing.T, loc models.Location) {
				assert.Equal(t, "Berlin", loc.City)
				assert.InDelta(t, 52.52, loc.Lat, 1e-9)
			},
		},
		{
			name: "string coords",
			body: `{"status":"success","lat":"-33.8688","lon":"151.2093"}`,
			check: func(t *testing.T, loc models.Location) {
				assert.InDelta(t, -33.8688, loc.Lat, 1e-9)
				assert.InDelta(t, 151.2093, loc.Lon, 1e-9)
			},
		},
		{
			name: "upstream fail",
			body: `{"status":"fail","message":"private range","query":"10.0.0.1"}`,
			check: func(t *testing.T, loc models.Location) {
				assert.Equal(t, models.StatusFail, loc.Status)
				assert.Equal(t, "private range", loc.Error)
			},
		},
		{name: "missing status", body: `{"lat":1,"lon":2}`, wantErr: true},
		{name: "unknown status", body: `{"status":"pending","lat":1,"lon":2}`, wantErr: true},
		{name: "missing lat", body: `{"status":"success","lon":2}`, wantErr: true},
		{name: "non numeric lat", body: `{"status":"success","lat":"north","lon":2}`, wantErr: true},
		{name: "out of range lon", body: `{"status":"success","lat":1,"lon":200}`, wantErr: true},
		{name: "not json", body: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := DecodeLocation([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPayload))
				return
			}
			require.NoError(t, err)
			tt.check(t, loc)
		})
	}
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/2001:db8::1", r.URL.Path)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/json/", "", time.Second)
	assert.Equal(t, srv.URL+"/json", c.BaseURL())

	_, err := c.Lookup(context.Background(), "2001:db8::1")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "netglobe/1.2.0 (+connection-geolocation)", UserAgent("1.2.0"))
	assert.Equal(t, "netglobe/dev (+connection-geolocation)", UserAgent(""))
}
