package openrouteservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navbridge/extension/internal/routing"
)

// mockHTTPClient wraps http.Client to implement HTTPDoer.
type mockHTTPClient struct {
	client *http.Client
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.client.Do(req)
}

type mockFailingClient struct{}

func (mockFailingClient) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(ClientConfig{
		APIKey:     "mock123",
		BaseURL:    server.URL,
		HTTPClient: &mockHTTPClient{client: server.Client()},
		Logger:     zerolog.Nop(),
	})
}

func twoPoints() []routing.Coordinate {
	return []routing.Coordinate{{Lat: 52.3676, Lon: 4.9041}, {Lat: 52.0907, Lon: 5.1214}}
}

func TestClient_GetDirections_Success(t *testing.T) {
	respBody, err := os.ReadFile("testdata/directions_response.json")
	require.NoError(t, err)

	var sent orsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "mock123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "/v2/directions/driving-car", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &sent))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(respBody)
	}))
	defer server.Close()

	resp, err := newTestClient(server).GetDirections(context.Background(), routing.DirectionsRequest{
		Waypoints: []routing.Coordinate{
			{Lat: 38.5, Lon: -120.2},
			{Lat: 40.7, Lon: -120.95},
			{Lat: 43.252, Lon: -126.453},
		},
		Profile:         routing.ProfileDrive,
		MaxAlternatives: 2,
		Language:        "de",
	})
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{-120.2, 38.5}, {-120.95, 40.7}, {-126.453, 43.252}}, sent.Coordinates)
	assert.Nil(t, sent.AlternativeRoutes, "alternatives only apply to two waypoints")
	assert.Equal(t, "de", sent.Language)

	require.Len(t, resp.Routes, 1)
	route := resp.Routes[0]
	assert.Equal(t, 12345.6, route.DistanceMeters)
	assert.Equal(t, 2456.2, route.DurationSeconds)
	require.Len(t, route.Path, 3)
	assert.InDelta(t, -120.2, route.Path[0].Lon(), 1e-6)
	assert.InDelta(t, 38.5, route.Path[0].Lat(), 1e-6)
	require.NotNil(t, route.BoundingBox)
	require.Len(t, route.Instructions, 4)
	assert.Equal(t, 0, route.Instructions[1].Leg)
	assert.Equal(t, 1, route.Instructions[2].Leg)
	assert.Equal(t, "Main Street", route.Summary)
	assert.Equal(t, ProviderName, resp.Provider)
}

func TestClient_GetDirections_Alternatives(t *testing.T) {
	respBody, err := os.ReadFile("testdata/directions_response.json")
	require.NoError(t, err)

	var sent orsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &sent)
		_, _ = w.Write(respBody)
	}))
	defer server.Close()

	_, err = newTestClient(server).GetDirections(context.Background(), routing.DirectionsRequest{
		Waypoints:       twoPoints(),
		Profile:         routing.ProfileBike,
		MaxAlternatives: 2,
	})
	require.NoError(t, err)
	require.NotNil(t, sent.AlternativeRoutes)
	assert.Equal(t, 3, sent.AlternativeRoutes.TargetCount)
	assert.Equal(t, "en", sent.Language)
}

func TestClient_GetDirections_ErrorMapping(t *testing.T) {
	notFound, err := os.ReadFile("testdata/error_response.json")
	require.NoError(t, err)

	tests := []struct {
		name   string
		status int
		body   string
		code   string
		want   error
	}{
		{"ors no route", http.StatusBadRequest, string(notFound), "NO_ROUTE", routing.ErrNoRouteFound},
		{"bad request", http.StatusBadRequest, `{"error":{"code":2003,"message":"bad"}}`, "BAD_REQUEST", routing.ErrInvalidCoordinates},
		{"not found", http.StatusNotFound, `{}`, "NO_ROUTE", routing.ErrNoRouteFound},
		{"rate limited", http.StatusTooManyRequests, `{}`, "RATE_LIMIT", routing.ErrRateLimitExceeded},
		{"forbidden", http.StatusForbidden, `not json`, "FORBIDDEN", routing.ErrProviderUnavailable},
		{"server error", http.StatusServiceUnavailable, `{}`, "SERVER_503", routing.ErrProviderUnavailable},
		{"teapot", http.StatusTeapot, `{}`, "HTTP_418", routing.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server).GetDirections(context.Background(), routing.DirectionsRequest{
				Waypoints: twoPoints(),
				Profile:   routing.ProfileDrive,
			})
			require.ErrorIs(t, err, tt.want)

			var routingErr *routing.Error
			require.True(t, errors.As(err, &routingErr))
			assert.Equal(t, tt.code, routingErr.Code)
			assert.Equal(t, ProviderName, routingErr.Provider)
		})
	}
}

func TestClient_GetDirections_EmptyRoutes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"routes":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server).GetDirections(context.Background(), routing.DirectionsRequest{Waypoints: twoPoints()})
	assert.ErrorIs(t, err, routing.ErrNoRouteFound)
}

func TestClient_GetDirections_InvalidCoordinates(t *testing.T) {
	client := NewClient(ClientConfig{APIKey: "mock123", HTTPClient: mockFailingClient{}, Logger: zerolog.Nop()})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Waypoints: []routing.Coordinate{{Lat: 91, Lon: 0}, {Lat: 0, Lon: 0}},
	})
	assert.ErrorIs(t, err, routing.ErrInvalidCoordinates)

	_, err = client.GetDirections(context.Background(), routing.DirectionsRequest{
		Waypoints: []routing.Coordinate{{Lat: 0, Lon: 0}},
	})
	assert.ErrorIs(t, err, routing.ErrInvalidCoordinates)
}

func TestClient_GetDirections_NetworkError(t *testing.T) {
	client := NewClient(ClientConfig{APIKey: "mock123", HTTPClient: mockFailingClient{}, Logger: zerolog.Nop()})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{Waypoints: twoPoints()})
	require.ErrorIs(t, err, routing.ErrProviderUnavailable)

	var routingErr *routing.Error
	require.True(t, errors.As(err, &routingErr))
	assert.True(t, routingErr.IsRetryable())
}

func TestClient_NameAndProfiles(t *testing.T) {
	client := NewClient(ClientConfig{Logger: zerolog.Nop()})
	assert.Equal(t, ProviderName, client.Name())
	assert.Contains(t, client.SupportedProfiles(), routing.ProfileDrive)
}
