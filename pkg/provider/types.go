package provider

import "time"

// Capability identifies what a provider does.
type Capability string

const (
	CapabilitySTT Capability = "stt"
	CapabilityAI  Capability = "ai"
	CapabilityTTS Capability = "tts"
)

// Encoding represents audio encoding types.
type Encoding string

const (
	// PCM formats (raw audio)
	EncodingPCM16 Encoding = "pcm_16000" // 16kHz mono PCM16
	EncodingPCM22 Encoding = "pcm_22050" // 22.05kHz mono PCM16
	EncodingPCM24 Encoding = "pcm_24000" // 24kHz mono PCM16
	EncodingPCM44 Encoding = "pcm_44100" // 44.1kHz mono PCM16

	// Compressed formats
	EncodingMP3  Encoding = "mp3_44100_128" // MP3 128kbps
	EncodingOpus Encoding = "opus"          // Opus codec
)

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM24:
		return 24000
	case EncodingPCM44, EncodingMP3:
		return 44100
	default:
		return 16000
	}
}

// AudioBuffer is an opaque audio payload plus the metadata needed to hand
// it to a provider or back to a caller. The core never inspects the bytes.
type AudioBuffer struct {
	Data       []byte
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Empty reports whether the buffer carries no audio.
func (b *AudioBuffer) Empty() bool {
	return b == nil || len(b.Data) == 0
}

// Duration estimates playback length for raw PCM16 buffers.
// Returns zero for compressed encodings.
func (b *AudioBuffer) Duration() time.Duration {
	if b.Empty() || b.SampleRate <= 0 {
		return 0
	}
	switch b.Encoding {
	case EncodingPCM16, EncodingPCM22, EncodingPCM24, EncodingPCM44:
		channels := b.Channels
		if channels == 0 {
			channels = 1
		}
		samples := len(b.Data) / (2 * channels)
		return time.Duration(samples) * time.Second / time.Duration(b.SampleRate)
	default:
		return 0
	}
}

// Transcript is the result of a speech-to-text call.
type Transcript struct {
	// Text is the recognized speech.
	Text string

	// Confidence is normalized to 0..1. Providers that do not report
	// confidence use 1 for accepted transcriptions.
	Confidence float64

	// Provider identifies which backend produced the transcript.
	Provider string
}
