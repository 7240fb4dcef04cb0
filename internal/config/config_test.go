package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
sensorArrangement: RGGB
blackLevel: [64, 64, 64, 64]
whiteLevel: 1023
colorMatrix1: [1.0, 0.0, 0.0, 0.0, 1.0, 0.0, 0.0, 0.0, 1.0]
lensShadingMapWidth: 17
lensShadingMapHeight: 13
apertures: [1.8]
focalLengths: [4.38]
`

func TestParseCameraMetadata(t *testing.T) {
	meta, err := ParseCameraMetadata([]byte(sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "RGGB", meta.SensorArrangement)
	require.Equal(t, []float32{64, 64, 64, 64}, meta.BlackLevel)
	require.Equal(t, float32(1023), meta.WhiteLevel)
	require.Len(t, meta.ColorMatrix1, 9)
	require.Equal(t, 17, meta.LensShadingMapWidth)
	require.Equal(t, 13, meta.LensShadingMapHeight)
}

func TestParseCameraMetadataInvalid(t *testing.T) {
	_, err := ParseCameraMetadata([]byte("whiteLevel: [not, a, number]"))
	require.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	meta, err := ParseCameraMetadata([]byte(sampleYAML))
	require.NoError(t, err)

	data, err := meta.Marshal()
	require.NoError(t, err)

	got, err := ParseCameraMetadata(data)
	require.NoError(t, err)
	require.Equal(t, meta, got)
}

func TestLoadCameraMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camera.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	meta, err := LoadCameraMetadata(path)
	require.NoError(t, err)
	require.Equal(t, "RGGB", meta.SensorArrangement)

	_, err = LoadCameraMetadata(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
