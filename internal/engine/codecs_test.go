package engine

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/confplane/signaling-core/internal/core"
	"github.com/confplane/signaling-core/internal/domain"
)

func TestRegisterCodecs_RegistersTheFixedSet(t *testing.T) {
	m := &webrtc.MediaEngine{}
	require.NoError(t, registerCodecs(m))

	codecs := m.GetCodecsByKind(webrtc.RTPCodecTypeAudio)
	require.NotEmpty(t, codecs)
	codecs = m.GetCodecsByKind(webrtc.RTPCodecTypeVideo)
	require.Len(t, codecs, 2)
}

func TestCanConsume_MatchesOnMimeTypeOnly(t *testing.T) {
	opusCaps := core.RTPCapabilities{Codecs: []webrtc.RTPCodecCapability{{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000}}}
	vp8Caps := core.RTPCapabilities{Codecs: []webrtc.RTPCodecCapability{{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}}}
	emptyCaps := core.RTPCapabilities{}

	require.True(t, canConsume(opusCaps, "audio"))
	require.False(t, canConsume(opusCaps, "video"))
	require.True(t, canConsume(vp8Caps, "video"))
	require.False(t, canConsume(emptyCaps, "audio"))
}

func TestCodecForKind_SelectsVP8ForVideoAndOpusOtherwise(t *testing.T) {
	require.Equal(t, webrtc.MimeTypeVP8, codecForKind(domain.KindVideo).MimeType)
	require.Equal(t, webrtc.MimeTypeOpus, codecForKind(domain.KindAudio).MimeType)
}
