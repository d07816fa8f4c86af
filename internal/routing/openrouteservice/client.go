// Package openrouteservice is a directions client for the OpenRouteService API.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/navbridge/extension/internal/provider/resilience"
	"github.com/navbridge/extension/internal/routing"
	"github.com/navbridge/extension/pkg/polyline"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// HTTPClient defaults to a resilient client.
	HTTPClient HTTPDoer

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ routing.Provider = (*Client)(nil)

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// SupportedProfiles returns the supported routing profiles.
func (c *Client) SupportedProfiles() []routing.RouteProfile {
	return []routing.RouteProfile{routing.ProfileWalk, routing.ProfileBike, routing.ProfileDrive}
}

// GetDirections retrieves a route through the waypoints.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if len(req.Waypoints) < 2 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "TOO_FEW_WAYPOINTS",
			Message:  "at least two waypoints are required",
			Err:      routing.ErrInvalidCoordinates,
		}
	}

	// ORS uses [lon, lat] order
	coords := make([][]float64, 0, len(req.Waypoints))
	for i, wp := range req.Waypoints {
		if err := routing.ValidateCoordinate(wp); err != nil {
			return nil, &routing.Error{
				Provider: ProviderName,
				Code:     "INVALID_WAYPOINT",
				Message:  fmt.Sprintf("invalid coordinates for waypoint %d", i),
				Err:      routing.ErrInvalidCoordinates,
			}
		}
		coords = append(coords, []float64{wp.Lon, wp.Lat})
	}

	orsReq := orsRequest{
		Coordinates:  coords,
		Instructions: true,
		Geometry:     true,
		Units:        "m",
		Language:     languageOrDefault(req.Language),
	}
	// ORS only computes alternatives between exactly two points.
	if req.MaxAlternatives > 0 && len(coords) == 2 {
		orsReq.AlternativeRoutes = &alternativeRoutesOpts{TargetCount: req.MaxAlternatives + 1}
	}

	body, err := json.Marshal(orsReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, req.Profile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	c.logger.Debug().
		Str("profile", string(req.Profile)).
		Int("waypoints", len(coords)).
		Msg("requesting directions")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var orsResp orsResponse
	if err := json.Unmarshal(respBody, &orsResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	result, err := toDirectionsResponse(&orsResp)
	if err != nil {
		return nil, err
	}
	if len(result.Routes) == 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "provider returned no routes",
			Err:      routing.ErrNoRouteFound,
		}
	}

	c.logger.Debug().
		Int("route_count", len(result.Routes)).
		Float64("distance", result.Routes[0].DistanceMeters).
		Msg("received directions")

	return result, nil
}

func languageOrDefault(lang string) string {
	if lang == "" {
		return "en"
	}
	return lang
}

// handleErrorResponse maps ORS error responses to routing errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var orsErr orsErrorResponse
	_ = json.Unmarshal(body, &orsErr)
	message := orsErr.Error.Message
	if message == "" {
		message = fmt.Sprintf("routing provider returned status %d", statusCode)
	}

	c.logger.Warn().Int("status", statusCode).Int("ors_code", orsErr.Error.Code).Msg(message)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &routing.Error{Provider: ProviderName, Code: "RATE_LIMIT", Message: "API rate limit exceeded, please try again later", Err: routing.ErrRateLimitExceeded}
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return &routing.Error{Provider: ProviderName, Code: "FORBIDDEN", Message: "API access denied, check the API key", Err: routing.ErrProviderUnavailable}
	case statusCode == http.StatusNotFound:
		return &routing.Error{Provider: ProviderName, Code: "NO_ROUTE", Message: "no route found between the given points", Err: routing.ErrNoRouteFound}
	case statusCode == http.StatusBadRequest && orsErr.Error.Code == orsErrorCodeNotFound:
		return &routing.Error{Provider: ProviderName, Code: "NO_ROUTE", Message: message, Err: routing.ErrNoRouteFound}
	case statusCode == http.StatusBadRequest:
		return &routing.Error{Provider: ProviderName, Code: "BAD_REQUEST", Message: message, Err: routing.ErrInvalidCoordinates}
	case statusCode >= 500:
		return &routing.Error{Provider: ProviderName, Code: fmt.Sprintf("SERVER_%d", statusCode), Message: "routing provider is temporarily unavailable", Err: routing.ErrProviderUnavailable}
	default:
		return &routing.Error{Provider: ProviderName, Code: fmt.Sprintf("HTTP_%d", statusCode), Message: message, Err: routing.ErrProviderUnavailable}
	}
}

func toDirectionsResponse(resp *orsResponse) (*routing.DirectionsResponse, error) {
	routes := make([]routing.Route, 0, len(resp.Routes))

	for i := range resp.Routes {
		raw := &resp.Routes[i]
		path, err := polyline.Decode(raw.Geometry)
		if err != nil {
			return nil, fmt.Errorf("decoding geometry of route %d: %w", i, err)
		}
		route := routing.Route{
			Path:            path,
			DistanceMeters:  raw.Summary.Distance,
			DurationSeconds: raw.Summary.Duration,
		}

		if len(raw.BBox) >= 4 {
			route.BoundingBox = &orb.Bound{
				Min: orb.Point{raw.BBox[0], raw.BBox[1]},
				Max: orb.Point{raw.BBox[2], raw.BBox[3]},
			}
		}

		for leg := range raw.Segments {
			for _, step := range raw.Segments[leg].Steps {
				route.Instructions = append(route.Instructions, routing.Instruction{
					Text:           step.Instruction,
					DistanceMeters: step.Distance,
					DurationSecs:   step.Duration,
					Type:           step.Type,
					Leg:            leg,
				})
				if route.Summary == "" && step.Distance > 500 && step.Name != "" && step.Name != "-" {
					route.Summary = step.Name
				}
			}
		}

		routes = append(routes, route)
	}

	return &routing.DirectionsResponse{
		Routes:    routes,
		Provider:  ProviderName,
		FetchedAt: time.Now(),
	}, nil
}
