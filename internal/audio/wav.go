package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// WAV format tags from the fmt chunk.
const (
	wavFormatPCM        = 0x0001
	wavFormatIEEEFloat  = 0x0003
	wavFormatALaw       = 0x0006
	wavFormatMuLaw      = 0x0007
	wavFormatExtensible = 0xFFFE
)

// wavHeader is the canonical 44-byte header of a PCM WAV file
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodeWAV encodes interleaved PCM-16 samples into a WAV file.
func EncodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	numChannels := uint16(channels)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	return buf.Bytes(), nil
}

// maxFmtChunk covers WAVE_FORMAT_EXTENSIBLE including its sub-format GUID.
const maxFmtChunk uint32 = 40

// ReadWAVFormat walks the RIFF chunk list until it finds the fmt chunk.
// Input that is not RIFF/WAVE yields a Format with codec "unknown" and no
// error; only I/O failures are returned as errors.
func ReadWAVFormat(r io.ReadSeeker) (Format, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Format{Codec: CodecUnknown}, nil
		}
		return Format{}, err
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{Codec: CodecUnknown}, nil
	}

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return Format{Codec: CodecUnknown}, nil
			}
			return Format{}, err
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		if id != "fmt " {
			// chunks are word aligned
			skip := int64(size) + int64(size&1)
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return Format{}, err
			}
			continue
		}

		if size < 16 {
			return Format{Codec: CodecUnknown}, nil
		}
		// The declared size is untrusted; only the first maxFmtChunk bytes
		// carry fields we read.
		n := min(size, maxFmtChunk)
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return Format{Codec: CodecUnknown}, nil
			}
			return Format{}, err
		}
		return parseFmtChunk(body), nil
	}
}

func parseFmtChunk(body []byte) Format {
	tag := binary.LittleEndian.Uint16(body[0:2])
	channels := int(binary.LittleEndian.Uint16(body[2:4]))
	sampleRate := int(binary.LittleEndian.Uint32(body[4:8]))
	bits := int(binary.LittleEndian.Uint16(body[14:16]))

	// WAVE_FORMAT_EXTENSIBLE keeps the real tag in the first two bytes of
	// the sub-format GUID at offset 24.
	if tag == wavFormatExtensible && len(body) >= 26 {
		tag = binary.LittleEndian.Uint16(body[24:26])
	}

	return Format{
		Codec:         codecName(tag, bits),
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: bits,
	}
}

func codecName(tag uint16, bits int) string {
	switch tag {
	case wavFormatPCM:
		switch bits {
		case 8:
			return "pcm_u8"
		case 16:
			return CodecPCM16
		case 24:
			return "pcm_s24le"
		case 32:
			return "pcm_s32le"
		}
	case wavFormatIEEEFloat:
		if bits == 64 {
			return "pcm_f64le"
		}
		return "pcm_f32le"
	case wavFormatALaw:
		return "pcm_alaw"
	case wavFormatMuLaw:
		return "pcm_mulaw"
	}
	return fmt.Sprintf("wav_0x%04x", tag)
}
