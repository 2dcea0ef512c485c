package engine

import (
	"github.com/pion/webrtc/v4"

	"github.com/confplane/signaling-core/internal/core"
)

// registerCodecs wires the fixed codec list spec.md §4.3 names: Opus 48kHz
// stereo, VP8 90kHz, and H264 90kHz with baseline parameters. Every room
// router negotiates against exactly these.
func registerCodecs(m *webrtc.MediaEngine) error {
	videoFeedback := []webrtc.RTCPFeedback{
		{Type: "goog-remb"},
		{Type: "ccm", Parameter: "fir"},
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
	}

	codecs := []struct {
		kind webrtc.RTPCodecType
		cap  webrtc.RTPCodecCapability
		pt   webrtc.PayloadType
	}{
		{
			kind: webrtc.RTPCodecTypeAudio,
			cap: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeOpus,
				ClockRate:   48000,
				Channels:    2,
				SDPFmtpLine: "minptime=10;useinbandfec=1",
			},
			pt: 111,
		},
		{
			kind: webrtc.RTPCodecTypeVideo,
			cap: webrtc.RTPCodecCapability{
				MimeType:     webrtc.MimeTypeVP8,
				ClockRate:    90000,
				RTCPFeedback: videoFeedback,
			},
			pt: 96,
		},
		{
			kind: webrtc.RTPCodecTypeVideo,
			cap: webrtc.RTPCodecCapability{
				MimeType:     webrtc.MimeTypeH264,
				ClockRate:    90000,
				SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
				RTCPFeedback: videoFeedback,
			},
			pt: 102,
		},
	}

	for _, c := range codecs {
		params := webrtc.RTPCodecParameters{RTPCodecCapability: c.cap, PayloadType: c.pt}
		if err := m.RegisterCodec(params, c.kind); err != nil {
			return err
		}
	}
	return nil
}

// routerRTPCapabilities returns the capability set advertised to clients as
// routerRtpCapabilities in sfu.transportCreated.
func routerRTPCapabilities() core.RTPCapabilities {
	return core.RTPCapabilities{
		Codecs: []webrtc.RTPCodecCapability{
			{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		},
	}
}

// canConsume reports whether caps offers a codec compatible with kind. The
// real capability-matching algorithm mediasoup implements (profile-level-id,
// fmtp parameter comparison) is out of scope per spec.md's non-goals; this
// checks mime-type compatibility only.
func canConsume(caps core.RTPCapabilities, kind string) bool {
	for _, c := range caps.Codecs {
		switch kind {
		case "audio":
			if c.MimeType == webrtc.MimeTypeOpus {
				return true
			}
		case "video":
			if c.MimeType == webrtc.MimeTypeVP8 || c.MimeType == webrtc.MimeTypeH264 {
				return true
			}
		}
	}
	return false
}
