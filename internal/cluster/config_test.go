package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgsHappyPath(t *testing.T) {
	cfg, err := ParseArgs([]string{"9000", "A", "B", "C", "D", "E"})
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.SimPort)
	require.Equal(t, "A", cfg.Self)
	require.Equal(t, []string{"B", "C", "D", "E"}, cfg.Peers)
	require.Equal(t, 5, cfg.Size())
	require.Equal(t, 3, cfg.Quorum())
}

func TestParseArgsRejectsTooFewArgs(t *testing.T) {
	_, err := ParseArgs([]string{"9000", "A"})
	require.Error(t, err)
}

func TestParseArgsRejectsBadPort(t *testing.T) {
	_, err := ParseArgs([]string{"nine-thousand", "A", "B"})
	require.Error(t, err)
}

func TestParseArgsRejectsBroadcastCollision(t *testing.T) {
	_, err := ParseArgs([]string{"9000", "FFFF", "B"})
	require.Error(t, err)

	_, err = ParseArgs([]string{"9000", "A", "FFFF"})
	require.Error(t, err)
}

func TestParseArgsRejectsDuplicatePeer(t *testing.T) {
	_, err := ParseArgs([]string{"9000", "A", "B", "B"})
	require.Error(t, err)
}
