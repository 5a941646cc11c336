package config

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/a8m/envsubst"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// Read reads a config from the given file. ${VAR} placeholders are expanded from the environment
// before decoding.
func Read(filePath string, logger golog.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
// Fields missing from the input keep their defaults.
func FromReader(originalPath string, r io.Reader, logger golog.Logger) (*Config, error) {
	cfg := DefaultConfig()
	cfg.ConfigFilePath = originalPath

	type alias Config
	aux := struct {
		*alias
		QueueGracePeriod string `json:"queue_grace_period"`
		FrameInterval    string `json:"frame_interval"`
	}{alias: (*alias)(cfg)}
	if err := json.NewDecoder(r).Decode(&aux); err != nil {
		return nil, errors.Wrapf(err, "failed to decode Config from json")
	}
	if aux.QueueGracePeriod != "" {
		d, err := time.ParseDuration(aux.QueueGracePeriod)
		if err != nil {
			return nil, errors.Wrap(err, "queue_grace_period")
		}
		cfg.QueueGracePeriod = d
	}
	if aux.FrameInterval != "" {
		d, err := time.ParseDuration(aux.FrameInterval)
		if err != nil {
			return nil, errors.Wrap(err, "frame_interval")
		}
		cfg.FrameInterval = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "failed to validate Config")
	}
	for _, u := range cfg.URLs {
		if u.Inactive {
			logger.Debugw("skipping inactive url", "location", u.Location, "url", u.InvokeURL)
		}
	}
	return cfg, nil
}
