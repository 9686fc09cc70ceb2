package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func sineSamples(sampleRate, channels int, seconds float64) []int16 {
	frames := int(float64(sampleRate) * seconds)
	samples := make([]int16, 0, frames*channels)
	for i := 0; i < frames; i++ {
		v := int16(16383 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		for c := 0; c < channels; c++ {
			samples = append(samples, v)
		}
	}
	return samples
}

func writeWAV(t *testing.T, dir string, sampleRate, channels int) string {
	t.Helper()
	data, err := EncodeWAV(sineSamples(sampleRate, channels, 0.1), sampleRate, channels)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	path := filepath.Join(dir, "input.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestEncodeWAVRoundTripsThroughProbe(t *testing.T) {
	data, err := EncodeWAV(sineSamples(16000, 1, 0.1), 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := 44 + 1600*2
	if len(data) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(data))
	}

	format, err := ReadWAVFormat(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadWAVFormat failed: %v", err)
	}
	if !format.IsPCM16Mono16k() {
		t.Errorf("Expected compliant format, got %s", format)
	}
}

func TestEncodeWAVRejectsBadInput(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000, 1); err == nil {
		t.Error("Expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1}, 0, 1); err == nil {
		t.Error("Expected error for zero sample rate")
	}
	if _, err := EncodeWAV([]int16{1}, 16000, 0); err == nil {
		t.Error("Expected error for zero channels")
	}
}

func TestReadWAVFormatSkipsLeadingChunks(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")
	// odd-sized LIST chunk needs a pad byte
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0})
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint32(44100))
	binary.Write(&buf, binary.LittleEndian, uint32(44100*4))
	binary.Write(&buf, binary.LittleEndian, uint16(4))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	format, err := ReadWAVFormat(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadWAVFormat failed: %v", err)
	}
	if format.Codec != CodecPCM16 || format.SampleRate != 44100 || format.Channels != 2 {
		t.Errorf("Unexpected format %s", format)
	}
	if format.IsPCM16Mono16k() {
		t.Error("Stereo 44.1kHz must not be compliant")
	}
}

func TestReadWAVFormatExtensible(t *testing.T) {
	body := make([]byte, 40)
	binary.LittleEndian.PutUint16(body[0:2], wavFormatExtensible)
	binary.LittleEndian.PutUint16(body[2:4], 1)
	binary.LittleEndian.PutUint32(body[4:8], 16000)
	binary.LittleEndian.PutUint16(body[14:16], 16)
	binary.LittleEndian.PutUint16(body[24:26], wavFormatPCM)

	format := parseFmtChunk(body)
	if !format.IsPCM16Mono16k() {
		t.Errorf("Expected extensible PCM to be compliant, got %s", format)
	}
}

func TestReadWAVFormatOversizedFmtChunk(t *testing.T) {
	header := func(fmtSize uint32, body []byte) []byte {
		var buf bytes.Buffer
		buf.WriteString("RIFF")
		binary.Write(&buf, binary.LittleEndian, uint32(4+8+len(body)))
		buf.WriteString("WAVEfmt ")
		binary.Write(&buf, binary.LittleEndian, fmtSize)
		buf.Write(body)
		return buf.Bytes()
	}

	pcm := make([]byte, 40)
	binary.LittleEndian.PutUint16(pcm[0:2], wavFormatPCM)
	binary.LittleEndian.PutUint16(pcm[2:4], 1)
	binary.LittleEndian.PutUint32(pcm[4:8], 16000)
	binary.LittleEndian.PutUint16(pcm[14:16], 16)

	tests := map[string]struct {
		data  []byte
		codec string
	}{
		"truncated": {data: header(0xFFFFFFF0, nil), codec: CodecUnknown},
		"body":      {data: header(0xFFFFFFF0, pcm), codec: CodecPCM16},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)
			format, err := ReadWAVFormat(bytes.NewReader(tt.data))
			runtime.ReadMemStats(&after)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if format.Codec != tt.codec {
				t.Errorf("Expected codec %s, got %s", tt.codec, format.Codec)
			}
			if delta := after.TotalAlloc - before.TotalAlloc; delta > 1<<20 {
				t.Errorf("Expected bounded allocation, got %d bytes", delta)
			}
		})
	}
}

func TestReadWAVFormatNonWAV(t *testing.T) {
	tests := map[string][]byte{
		"empty": {},
		"mp3":   []byte("ID3\x03\x00\x00\x00\x00\x00\x00some mp3 frames"),
		"short": []byte("RIFF"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			format, err := ReadWAVFormat(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if format.Codec != CodecUnknown {
				t.Errorf("Expected unknown codec, got %s", format.Codec)
			}
		})
	}
}

func TestHeaderProber(t *testing.T) {
	path := writeWAV(t, t.TempDir(), 8000, 2)

	format, err := HeaderProber{}.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if format.SampleRate != 8000 || format.Channels != 2 {
		t.Errorf("Unexpected format %s", format)
	}

	if _, err := (HeaderProber{}).Probe(context.Background(), filepath.Join(t.TempDir(), "missing.wav")); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestParseFFprobe(t *testing.T) {
	out := []byte(`{"streams":[
		{"codec_type":"video","codec_name":"mjpeg"},
		{"codec_type":"audio","codec_name":"pcm_s16le","sample_rate":"16000","channels":1,"bits_per_sample":16}
	]}`)

	format, err := parseFFprobe(out)
	if err != nil {
		t.Fatalf("parseFFprobe failed: %v", err)
	}
	if !format.IsPCM16Mono16k() {
		t.Errorf("Expected compliant format, got %s", format)
	}

	format, err = parseFFprobe([]byte(`{"streams":[]}`))
	if err != nil {
		t.Fatalf("parseFFprobe failed: %v", err)
	}
	if format.Codec != CodecUnknown {
		t.Errorf("Expected unknown codec, got %s", format.Codec)
	}
}
