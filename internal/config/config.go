// Package config loads the camera metadata descriptor the host hands
// to the streamer on start. The streamer core treats the descriptor as
// an opaque blob for the container header; this package gives the demo
// binary and golden-frame tests a human-editable YAML form of it.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CameraMetadata describes the sensor, in the shape the container
// header's metadata blob carries: arrangement, levels, color matrices
// and lens shading map geometry.
type CameraMetadata struct {
	SensorArrangement string `yaml:"sensorArrangement"`

	BlackLevel []float32 `yaml:"blackLevel,omitempty"`
	WhiteLevel float32   `yaml:"whiteLevel"`

	ColorMatrix1   []float32 `yaml:"colorMatrix1,omitempty"`
	ColorMatrix2   []float32 `yaml:"colorMatrix2,omitempty"`
	ForwardMatrix1 []float32 `yaml:"forwardMatrix1,omitempty"`
	ForwardMatrix2 []float32 `yaml:"forwardMatrix2,omitempty"`

	LensShadingMapWidth  int `yaml:"lensShadingMapWidth"`
	LensShadingMapHeight int `yaml:"lensShadingMapHeight"`

	Apertures    []float32 `yaml:"apertures,omitempty"`
	FocalLengths []float32 `yaml:"focalLengths,omitempty"`
}

// ParseCameraMetadata decodes a YAML camera descriptor.
func ParseCameraMetadata(data []byte) (*CameraMetadata, error) {
	var meta CameraMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("config: unmarshal camera metadata: %w", err)
	}
	return &meta, nil
}

// LoadCameraMetadata reads and decodes a YAML camera descriptor file.
func LoadCameraMetadata(path string) (*CameraMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return ParseCameraMetadata(data)
}

// Marshal serializes m back to YAML, the form the container header
// stores it in.
func (m *CameraMetadata) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("config: marshal camera metadata: %w", err)
	}
	return data, nil
}
