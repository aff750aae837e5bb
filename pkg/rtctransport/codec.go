package rtctransport

import (
	"github.com/pion/webrtc/v4"
)

// Codec clock rates and opus defaults (spec §4.6 "Codec policy").
const (
	AudioClockRateHz    = 48000
	VideoClockRateHz    = 90000
	DefaultAudioKbps    = 64
	DefaultOpusComplex  = 10
	OpusFrameSamples    = 960 // 20ms @ 48kHz
)

// newMediaEngine registers codecs in the spec's preference order: VP9
// primary, H.264 fallback for video; Opus for audio. SDP offer/answer
// negotiation then picks the first mutually supported entry.
func newMediaEngine() (*webrtc.MediaEngine, error) {
	m := &webrtc.MediaEngine{}

	videoCodecs := []webrtc.RTPCodecParameters{
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:  webrtc.MimeTypeVP9,
				ClockRate: VideoClockRateHz,
				SDPFmtpLine: "profile-id=0",
			},
			PayloadType: 98,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeH264,
				ClockRate:   VideoClockRateHz,
				SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			},
			PayloadType: 96,
		},
	}
	for _, c := range videoCodecs {
		if err := m.RegisterCodec(c, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, err
		}
	}

	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: AudioClockRateHz,
			Channels:  2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}

	return m, nil
}
