package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

const (
	CodecPCM16   = "pcm_s16le"
	CodecUnknown = "unknown"

	TargetSampleRate = 16000
	TargetChannels   = 1
)

// Format describes the first audio stream of a file.
type Format struct {
	Codec         string
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// IsPCM16Mono16k reports whether the stream already satisfies the provider
// contract: signed 16-bit little-endian PCM, one channel, 16 kHz.
func (f Format) IsPCM16Mono16k() bool {
	return f.Codec == CodecPCM16 && f.SampleRate == TargetSampleRate && f.Channels == TargetChannels
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch", f.Codec, f.SampleRate, f.Channels)
}

// Prober inspects an audio file without modifying it.
type Prober interface {
	Probe(ctx context.Context, path string) (Format, error)
}

// HeaderProber reads the WAV fmt chunk directly.
type HeaderProber struct{}

func (HeaderProber) Probe(_ context.Context, path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, err
	}
	defer f.Close()

	return ReadWAVFormat(f)
}

// FFprobeProber asks ffprobe for the stream layout. It understands every
// container ffmpeg does, not just WAV.
type FFprobeProber struct {
	path string
}

func NewFFprobeProber(binary string) *FFprobeProber {
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFprobeProber{path: binary}
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType     string `json:"codec_type"`
		CodecName     string `json:"codec_name"`
		SampleRate    string `json:"sample_rate"`
		Channels      int    `json:"channels"`
		BitsPerSample int    `json:"bits_per_sample"`
	} `json:"streams"`
}

func (p *FFprobeProber) Probe(ctx context.Context, path string) (Format, error) {
	out, err := exec.CommandContext(ctx, p.path,
		"-v", "error",
		"-show_streams",
		"-of", "json",
		path,
	).Output()
	if err != nil {
		return Format{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	return parseFFprobe(out)
}

func parseFFprobe(out []byte) (Format, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return Format{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	for _, s := range probe.Streams {
		if s.CodecType != "audio" {
			continue
		}
		rate, _ := strconv.Atoi(s.SampleRate)
		return Format{
			Codec:         s.CodecName,
			SampleRate:    rate,
			Channels:      s.Channels,
			BitsPerSample: s.BitsPerSample,
		}, nil
	}
	return Format{Codec: CodecUnknown}, nil
}
