package director

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WriteTrack writes a track to a YAML file
func WriteTrack(track *Track, path string) error {
	data, err := yaml.Marshal(track)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadTrack reads and validates a track from a YAML file
func ReadTrack(path string) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var track Track
	if err := yaml.Unmarshal(data, &track); err != nil {
		return nil, fmt.Errorf("parse track %s: %w", path, err)
	}
	if err := track.Validate(); err != nil {
		return nil, err
	}

	return &track, nil
}

// LoadTrack returns the track at path, or DefaultTrack when path is empty.
func LoadTrack(path string) (*Track, error) {
	if path == "" {
		return DefaultTrack(), nil
	}
	return ReadTrack(path)
}
