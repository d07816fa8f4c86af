package navigation

// Options are the session options of startNavigation and startFreeDrive.
type Options struct {
	// Mode is walking, cycling, driving or drivingWithTraffic.
	Mode string

	Alternatives                bool
	SimulateRoute               bool
	AllowsUTurnsAtWayPoints     bool
	EnableOnMapTapCallback      bool
	Language                    string
	VoiceInstructionsEnabled    bool
	BannerInstructionsEnabled   bool
	// Units is imperial or metric.
	Units                       string

	MapStyleURLDay              string
	MapStyleURLNight            string
	LongPressDestinationEnabled bool
}

// DefaultOptions returns the options used for keys a caller leaves out.
func DefaultOptions() Options {
	return Options{
		Mode:                        "drivingWithTraffic",
		Alternatives:                true,
		Language:                    "en",
		VoiceInstructionsEnabled:    true,
		BannerInstructionsEnabled:   true,
		Units:                       "metric",
		LongPressDestinationEnabled: true,
	}
}

// WayPoint is a stop of the route.
type WayPoint struct {
	Name      string  `json:"Name"`
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
	IsSilent  bool    `json:"IsSilent"`
}

// WayPointsResult is the outcome of adding waypoints to a session.
type WayPointsResult struct {
	Success        bool   `json:"success"`
	WaypointsAdded int    `json:"waypointsAdded"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
}
