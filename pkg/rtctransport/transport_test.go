package rtctransport

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTransportConfigValidateRejectsOutOfRangeBitrate(t *testing.T) {
	cfg := DefaultTransportConfig()
	cfg.TargetBitrateKbps = 5
	require.Error(t, cfg.Validate())
}

func TestTransportConfigValidateRejectsUnknownResolution(t *testing.T) {
	cfg := DefaultTransportConfig()
	cfg.MaxVideoResolution = "4k"
	require.Error(t, cfg.Validate())
}

func TestTransportConfigValidateRejectsJitterBufferOutOfRange(t *testing.T) {
	cfg := DefaultTransportConfig()
	cfg.JitterBufferSize = 10 * time.Millisecond // below the 50ms floor
	require.Error(t, cfg.Validate())
}

func TestNewTransportRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultTransportConfig()
	cfg.VideoFramerateFPS = 200
	_, err := NewTransport(cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestTransportPeerLimitEnforced(t *testing.T) {
	cfg := DefaultTransportConfig()
	cfg.MaxPeers = 0
	tr, err := NewTransport(cfg, zerolog.Nop())
	require.NoError(t, err)

	_, err = tr.ConnectPeer("peer-1", Capabilities{Audio: true})
	require.Error(t, err)
}

func TestTransportDisconnectUnknownPeerFails(t *testing.T) {
	tr, err := NewTransport(DefaultTransportConfig(), zerolog.Nop())
	require.NoError(t, err)
	require.Error(t, tr.DisconnectPeer("ghost"))
}

func TestTransportListPeersEmptyInitially(t *testing.T) {
	tr, err := NewTransport(DefaultTransportConfig(), zerolog.Nop())
	require.NoError(t, err)
	require.Empty(t, tr.ListPeers())
}

func TestTransportBroadcastWithNoPeersReturnsZeroTotal(t *testing.T) {
	tr, err := NewTransport(DefaultTransportConfig(), zerolog.Nop())
	require.NoError(t, err)
	result := tr.Broadcast([]byte("x"), true, false)
	require.Equal(t, 0, result.Total)
}
