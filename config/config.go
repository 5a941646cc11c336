// Package config defines the configuration of a localization session.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"

	"github.com/arceye/vlsdk/logging"
)

// Request interval bounds in milliseconds.
const (
	MinIntervalInitial = 250
	MaxIntervalInitial = 3000
	MinIntervalPassed  = 500
	MaxIntervalPassed  = 3000
)

// EmptyLocation is handed to the core in place of an empty URL location.
const EmptyLocation = "_"

// VLQuality trades how often responses are accepted against how often an accepted pose is wrong.
type VLQuality int

const (
	// QualityLow accepts more responses.
	QualityLow VLQuality = iota
	QualityMedium
	// QualityHigh accepts fewer, more reliable responses.
	QualityHigh
)

func (q VLQuality) String() string {
	switch q {
	case QualityLow:
		return "LOW"
	case QualityMedium:
		return "MEDIUM"
	case QualityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON writes the quality name.
func (q VLQuality) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// UnmarshalJSON accepts LOW, MEDIUM or HIGH.
func (q *VLQuality) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "vl quality must be a string")
	}
	switch strings.ToUpper(s) {
	case "LOW":
		*q = QualityLow
	case "MEDIUM":
		*q = QualityMedium
	case "HIGH":
		*q = QualityHigh
	default:
		return errors.Errorf("unknown vl quality %q", s)
	}
	return nil
}

// VLURL is a localization service endpoint.
type VLURL struct {
	Location  string `json:"location"`
	InvokeURL string `json:"invoke_url"`
	SecretKey string `json:"secret_key"`
	Inactive  bool   `json:"inactive,omitempty"`
}

// TrackerConfig is the configuration handed to the native core.
type TrackerConfig struct {
	PreviewWidth  int `json:"preview_width"`
	PreviewHeight int `json:"preview_height"`

	// ResetByDevicePose resets the session when the device is turned upside down.
	ResetByDevicePose bool `json:"reset_by_device_pose"`

	UseTranslationFilter bool `json:"use_translation_filter"`
	UseRotationFilter    bool `json:"use_rotation_filter"`
	UseInterpolation     bool `json:"use_interpolation"`
	UseGPSGuide          bool `json:"use_gps_guide"`
	UseWithGlobal        bool `json:"use_with_global"`
	UseFaceBlurring      bool `json:"use_face_blurring"`

	ConfidenceLow    float64 `json:"confidence_low,omitempty"`
	ConfidenceMedium float64 `json:"confidence_medium,omitempty"`
	ConfidenceHigh   float64 `json:"confidence_high,omitempty"`

	RequestIntervalBeforeLocalization int `json:"request_interval_before_localization_ms"`
	RequestIntervalAfterLocalization  int `json:"request_interval_after_localization_ms"`

	VLQuality     VLQuality `json:"vl_quality"`
	VLSearchRange int       `json:"vl_search_range"`

	OriginPoseCount  int     `json:"origin_pose_count"`
	OriginPoseDegree float64 `json:"origin_pose_degree"`

	FailureCountToNotRecognized int `json:"failure_count_to_not_recognized"`
	FailureCountToFail          int `json:"failure_count_to_fail"`
	FailureCountToReset         int `json:"failure_count_to_reset"`
}

// DefaultTrackerConfig returns the tracker configuration used when nothing is configured.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		PreviewWidth:                      640,
		PreviewHeight:                     360,
		ResetByDevicePose:                 true,
		UseTranslationFilter:              true,
		UseRotationFilter:                 true,
		UseInterpolation:                  true,
		UseGPSGuide:                       true,
		VLSearchRange:                     10,
		OriginPoseCount:                   1,
		OriginPoseDegree:                  10,
		RequestIntervalBeforeLocalization: 250,
		RequestIntervalAfterLocalization:  1000,
		VLQuality:                         QualityMedium,
		FailureCountToNotRecognized:       5,
		FailureCountToFail:                40,
		FailureCountToReset:               100,
	}
}

// IntervalBefore is the request interval while not localized.
func (tc TrackerConfig) IntervalBefore() time.Duration {
	return time.Duration(tc.RequestIntervalBeforeLocalization) * time.Millisecond
}

// IntervalAfter is the request interval once localized.
func (tc TrackerConfig) IntervalAfter() time.Duration {
	return time.Duration(tc.RequestIntervalAfterLocalization) * time.Millisecond
}

// PreviewMajorAxis is the longer preview side.
func (tc TrackerConfig) PreviewMajorAxis() int {
	if tc.PreviewWidth > tc.PreviewHeight {
		return tc.PreviewWidth
	}
	return tc.PreviewHeight
}

// Validate checks that the tracker config is usable.
func (tc *TrackerConfig) Validate(path string) error {
	if tc.PreviewWidth <= 0 || tc.PreviewHeight <= 0 {
		return errors.Errorf("%s: preview size must be positive, got %dx%d", path, tc.PreviewWidth, tc.PreviewHeight)
	}
	if tc.RequestIntervalBeforeLocalization < MinIntervalInitial || tc.RequestIntervalBeforeLocalization > MaxIntervalInitial {
		return errors.Errorf("%s: request_interval_before_localization_ms must be within [%d, %d], got %d",
			path, MinIntervalInitial, MaxIntervalInitial, tc.RequestIntervalBeforeLocalization)
	}
	if tc.RequestIntervalAfterLocalization < MinIntervalPassed || tc.RequestIntervalAfterLocalization > MaxIntervalPassed {
		return errors.Errorf("%s: request_interval_after_localization_ms must be within [%d, %d], got %d",
			path, MinIntervalPassed, MaxIntervalPassed, tc.RequestIntervalAfterLocalization)
	}
	if tc.FailureCountToNotRecognized < 0 || tc.FailureCountToFail < 0 || tc.FailureCountToReset < 0 {
		return errors.Errorf("%s: failure counts must not be negative", path)
	}
	if tc.OriginPoseCount < 1 {
		return errors.Errorf("%s: origin_pose_count must be at least 1, got %d", path, tc.OriginPoseCount)
	}
	return nil
}

// Config is the full configuration of a localization session.
type Config struct {
	Tracker     TrackerConfig `json:"tracker"`
	LogLevel    logging.Level `json:"log_level"`
	URLs        []VLURL       `json:"urls"`
	AreaGeoJSON string        `json:"area_geojson,omitempty"`

	// RequestWithPosition lets requests carry odometry and the last pose.
	RequestWithPosition bool `json:"request_with_position"`

	QueueCapacity    int           `json:"queue_capacity"`
	QueueGracePeriod time.Duration `json:"-"`

	SaveQueryImages bool   `json:"save_query_images,omitempty"`
	QueryImageDir   string `json:"query_image_dir,omitempty"`

	// FrameInterval is how often the frame loop ticks.
	FrameInterval time.Duration `json:"-"`

	// ConfigFilePath is where the config was read from, if anywhere.
	ConfigFilePath string `json:"-"`
}

// DefaultConfig returns a config with default tracker settings and no URLs.
func DefaultConfig() *Config {
	return &Config{
		Tracker:             DefaultTrackerConfig(),
		LogLevel:            logging.DEBUG,
		RequestWithPosition: true,
		QueueCapacity:       20,
		QueueGracePeriod:    5 * time.Second,
		FrameInterval:       33 * time.Millisecond,
	}
}

// Validate checks the config and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.Tracker.Validate("tracker"); err != nil {
		return err
	}
	if c.QueueCapacity <= 0 {
		return errors.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity)
	}
	if len(c.ActiveURLs()) == 0 {
		return errors.New("at least one active url is required")
	}
	for i, u := range c.URLs {
		if u.Inactive {
			continue
		}
		if u.InvokeURL == "" {
			return errors.Errorf("urls.%d: invoke_url is required", i)
		}
	}
	if c.SaveQueryImages && c.QueryImageDir == "" {
		return errors.New("query_image_dir is required when save_query_images is set")
	}
	return nil
}

// ActiveURLs returns the URLs that are not inactive, with empty locations replaced by EmptyLocation.
func (c *Config) ActiveURLs() []VLURL {
	active := make([]VLURL, 0, len(c.URLs))
	for _, u := range c.URLs {
		if u.Inactive {
			continue
		}
		if u.Location == "" {
			u.Location = EmptyLocation
		}
		active = append(active, u)
	}
	return active
}

// URLTable prints out a table of the configured URLs with columns of location, url and whether the
// URL is used. Secret keys are never printed.
func (c *Config) URLTable() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Location", "URL", "Active"})
	for i, u := range c.URLs {
		location := u.Location
		if location == "" {
			location = EmptyLocation
		}
		t.AppendRow(table.Row{fmt.Sprintf("%d", i+1), location, u.InvokeURL, !u.Inactive})
	}
	return t.Render()
}
