package config

import "github.com/arceye/vlsdk/logging"

// Settings are the user facing options of a session. They are folded into a Config with
// ApplySettings.
type Settings struct {
	URLs            []VLURL   `json:"urls"`
	GPSGuide        bool      `json:"gps_guide"`
	LocationGeoJSON string    `json:"location_geojson,omitempty"`
	IntervalInitial int       `json:"vl_interval_initial_ms"`
	IntervalPassed  int       `json:"vl_interval_passed_ms"`
	Quality         VLQuality `json:"vl_quality"`

	InitialPoseCount  int     `json:"initial_pose_count"`
	InitialPoseDegree float64 `json:"initial_pose_degree"`

	FailureCountToNotRecognized int `json:"failure_count_to_not_recognized"`
	FailureCountToFail          int `json:"failure_count_to_fail"`
	FailureCountToReset         int `json:"failure_count_to_reset"`

	FaceBlurring bool          `json:"face_blurring"`
	LogLevel     logging.Level `json:"log_level"`

	// TestMode disables the pose filters and interpolation.
	TestMode bool `json:"test_mode,omitempty"`
}

// DefaultSettings mirrors the defaults of DefaultConfig.
func DefaultSettings() Settings {
	tc := DefaultTrackerConfig()
	return Settings{
		GPSGuide:                    tc.UseGPSGuide,
		IntervalInitial:             tc.RequestIntervalBeforeLocalization,
		IntervalPassed:              tc.RequestIntervalAfterLocalization,
		Quality:                     tc.VLQuality,
		InitialPoseCount:            tc.OriginPoseCount,
		InitialPoseDegree:           tc.OriginPoseDegree,
		FailureCountToNotRecognized: tc.FailureCountToNotRecognized,
		FailureCountToFail:          tc.FailureCountToFail,
		FailureCountToReset:         tc.FailureCountToReset,
		LogLevel:                    logging.DEBUG,
	}
}

// ApplySettings copies s onto c. Settings without URLs leave c untouched and return false.
func (c *Config) ApplySettings(s Settings) bool {
	if len(s.URLs) == 0 {
		return false
	}
	c.Tracker.RequestIntervalBeforeLocalization = s.IntervalInitial
	c.Tracker.RequestIntervalAfterLocalization = s.IntervalPassed
	c.Tracker.UseGPSGuide = s.GPSGuide
	c.Tracker.UseFaceBlurring = s.FaceBlurring
	c.Tracker.VLQuality = s.Quality

	c.Tracker.FailureCountToNotRecognized = s.FailureCountToNotRecognized
	c.Tracker.FailureCountToFail = s.FailureCountToFail
	c.Tracker.FailureCountToReset = s.FailureCountToReset

	c.Tracker.OriginPoseCount = s.InitialPoseCount
	c.Tracker.OriginPoseDegree = s.InitialPoseDegree

	if s.TestMode {
		c.Tracker.UseTranslationFilter = false
		c.Tracker.UseRotationFilter = false
		c.Tracker.UseInterpolation = false
	}

	c.LogLevel = s.LogLevel
	c.URLs = append([]VLURL(nil), s.URLs...)
	c.AreaGeoJSON = s.LocationGeoJSON
	return true
}
