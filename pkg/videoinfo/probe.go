// Package videoinfo reads stream metadata from media files with ffprobe.
package videoinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"thirdcoast.systems/mediaqueue/pkg/command"
)

// ProbeInfo is the parsed ffprobe output.
type ProbeInfo struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream represents a single stream from ffprobe output.
type ProbeStream struct {
	Index      int               `json:"index"`
	CodecType  string            `json:"codec_type"`
	CodecName  string            `json:"codec_name"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	SampleRate string            `json:"sample_rate"`
	Channels   int               `json:"channels"`
	BitRate    string            `json:"bit_rate"`
	Duration   string            `json:"duration"`
	Tags       map[string]string `json:"tags"`
}

// ProbeFormat represents ffprobe format-level metadata.
type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// NewProbeInfo parses raw ffprobe JSON. Output without any stream is an
// error: ffprobe could open the file but found nothing playable in it.
func NewProbeInfo(data []byte) (*ProbeInfo, error) {
	var p ProbeInfo
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(p.Streams) == 0 {
		return nil, fmt.Errorf("ffprobe found no streams")
	}
	return &p, nil
}

// VideoStreams returns all video-type streams.
func (p *ProbeInfo) VideoStreams() []ProbeStream {
	return p.streamsOfType("video")
}

// AudioStreams returns all audio-type streams.
func (p *ProbeInfo) AudioStreams() []ProbeStream {
	return p.streamsOfType("audio")
}

func (p *ProbeInfo) streamsOfType(codecType string) []ProbeStream {
	var out []ProbeStream
	for _, s := range p.Streams {
		if s.CodecType == codecType {
			out = append(out, s)
		}
	}
	return out
}

// HasAudio reports whether the file carries at least one audio stream.
func (p *ProbeInfo) HasAudio() bool {
	return len(p.AudioStreams()) > 0
}

// DurationSeconds returns the container duration, falling back to the
// longest stream duration. 0 means unknown.
func (p *ProbeInfo) DurationSeconds() float64 {
	if d := parseSeconds(p.Format.Duration); d > 0 {
		return d
	}
	var longest float64
	for _, s := range p.Streams {
		if d := parseSeconds(s.Duration); d > longest {
			longest = d
		}
	}
	return longest
}

// Dimensions returns the width and height of the first video stream.
func (p *ProbeInfo) Dimensions() (int, int) {
	for _, s := range p.VideoStreams() {
		if s.Width > 0 && s.Height > 0 {
			return s.Width, s.Height
		}
	}
	return 0, 0
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// Prober runs ffprobe.
type Prober struct {
	// Binary is the ffprobe executable; "ffprobe" from PATH when empty.
	Binary string
}

// Probe returns the streams and container format of the file at path.
func (p Prober) Probe(ctx context.Context, path string) (*ProbeInfo, error) {
	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}
	out, err := command.Output(ctx, bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, err
	}
	return NewProbeInfo(out)
}
