package ipcchannel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediarun/pipeline-runtime/pkg/ipcchannel"
)

func TestChannelNameFormat(t *testing.T) {
	name := ipcchannel.ChannelName("sess-1", "node-a", ipcchannel.DirectionInput)
	require.Equal(t, "sess-1_node-a_input", name)
}

func TestValidateChannelNameRejectsCrossSession(t *testing.T) {
	name := ipcchannel.ChannelName("sess-1", "node-a", ipcchannel.DirectionOutput)
	require.NoError(t, ipcchannel.ValidateChannelName(name, "sess-1"))
	require.Error(t, ipcchannel.ValidateChannelName(name, "sess-2"))
}

func TestValidateChannelNameRejectsUnknownDirection(t *testing.T) {
	require.Error(t, ipcchannel.ValidateChannelName("sess-1_node-a_sideways", "sess-1"))
}

func TestSessionFilePrefix(t *testing.T) {
	require.Equal(t, "sess-1_", ipcchannel.SessionFilePrefix("sess-1"))
}
