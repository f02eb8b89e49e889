package videoinfo

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbe = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1080, "height": 1920, "duration": "14.966667"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "sample_rate": "44100", "channels": 2, "duration": "15.023000"}
  ],
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "15.023000", "size": "2483021", "bit_rate": "1322245"}
}`

func TestNewProbeInfo(t *testing.T) {
	p, err := NewProbeInfo([]byte(sampleProbe))
	require.NoError(t, err)

	assert.True(t, p.HasAudio())
	assert.Len(t, p.VideoStreams(), 1)
	assert.InDelta(t, 15.023, p.DurationSeconds(), 0.0001)
	w, h := p.Dimensions()
	assert.Equal(t, 1080, w)
	assert.Equal(t, 1920, h)
}

func TestNewProbeInfoErrors(t *testing.T) {
	_, err := NewProbeInfo([]byte(`not json`))
	assert.Error(t, err)

	_, err = NewProbeInfo([]byte(`{"streams": [], "format": {}}`))
	assert.ErrorContains(t, err, "no streams")
}

func TestDurationFallsBackToStreams(t *testing.T) {
	p, err := NewProbeInfo([]byte(`{"streams":[
		{"codec_type":"video","duration":"9.5"},
		{"codec_type":"video","duration":"N/A"}
	],"format":{"duration":""}}`))
	require.NoError(t, err)
	assert.False(t, p.HasAudio())
	assert.Equal(t, 9.5, p.DurationSeconds())
	w, h := p.Dimensions()
	assert.Zero(t, w)
	assert.Zero(t, h)
}

func TestProberMissingFile(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	_, err := Prober{}.Probe(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	assert.Error(t, err)
}
