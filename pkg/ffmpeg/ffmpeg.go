// Package ffmpeg provides a composable API for building and executing ffmpeg commands.
package ffmpeg

import (
	"context"
	"strconv"

	"thirdcoast.systems/mediaqueue/pkg/command"
)

// Command represents an ffmpeg command being built.
type Command struct {
	input     string
	output    string
	preInput  []string // args before -i
	postInput []string // args after -i
}

// Option modifies a Command. Options are composable and order-independent
// (ffmpeg will receive args in correct order regardless of option order).
type Option interface {
	Apply(cmd *Command)
}

// OptionFunc is a function that implements Option.
type OptionFunc func(cmd *Command)

// Apply implements Option.
func (f OptionFunc) Apply(cmd *Command) { f(cmd) }

// NewCommand creates a command with input/output and applies options.
func NewCommand(input, output string, opts ...Option) *Command {
	cmd := &Command{
		input:  input,
		output: output,
	}
	for _, opt := range opts {
		opt.Apply(cmd)
	}
	return cmd
}

// Build returns the complete ffmpeg argument list.
func (c *Command) Build() []string {
	args := []string{"-hide_banner", "-y"}

	args = append(args, c.preInput...)
	args = append(args, "-i", c.input)
	args = append(args, c.postInput...)
	args = append(args, c.output)

	return args
}

// Runner executes commands with a configurable ffmpeg binary.
type Runner struct {
	// Binary is the ffmpeg executable; "ffmpeg" from PATH when empty.
	Binary string
}

func (r Runner) binary() string {
	if r.Binary == "" {
		return "ffmpeg"
	}
	return r.Binary
}

// Run executes cmd and waits for it. A non-zero exit is a *command.ExitError
// carrying the tail of ffmpeg's stderr.
func (r Runner) Run(ctx context.Context, cmd *Command) error {
	return command.Run(ctx, r.binary(), cmd.Build()...)
}

// ExtractAudio strips the video stream from input and writes a mono 16kHz
// 64kbps MP3 to output, which is the shape speech-to-text services accept
// cheaply.
func (r Runner) ExtractAudio(ctx context.Context, input, output string) error {
	return r.Run(ctx, AudioOnlyCommand(input, output))
}

// AudioOnlyCommand builds the audio extraction command used by ExtractAudio.
// Only errors are logged so a failure's stderr excerpt is the error itself
// rather than stream banners and progress lines.
func AudioOnlyCommand(input, output string) *Command {
	return NewCommand(input, output,
		LogLevel("error"),
		NoVideo,
		AudioCodec("libmp3lame"),
		AudioBitrate("64k"),
		AudioChannels(1),
		AudioSampleRate(16000),
	)
}

// --- Audio Codec Options ---

// AudioCodec sets the audio codec (-c:a).
func AudioCodec(codec string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-c:a", codec)
	})
}

// AudioBitrate sets the audio bitrate (-b:a).
func AudioBitrate(bitrate string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-b:a", bitrate)
	})
}

// AudioChannels sets the number of audio channels (-ac).
func AudioChannels(n int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-ac", itoa(n))
	})
}

// AudioSampleRate sets the audio sample rate (-ar).
func AudioSampleRate(hz int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-ar", itoa(hz))
	})
}

// --- Stream Options (variables, not functions) ---

// NoVideo disables video in output (-vn).
var NoVideo Option = OptionFunc(func(cmd *Command) {
	cmd.postInput = append(cmd.postInput, "-vn")
})

// --- Misc ---

// LogLevel sets the logging level.
func LogLevel(level string) Option {
	return OptionFunc(func(cmd *Command) {
		// Insert at beginning of preInput so it's early in args
		cmd.preInput = append([]string{"-loglevel", level}, cmd.preInput...)
	})
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
