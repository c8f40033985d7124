package cluster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticReturnsConfiguredLeaderAndServers(t *testing.T) {
	c := NewStatic("127.0.0.1:666", []string{"1.2.3.4:666", "5.6.7.8:666"})

	leader, err := c.Leader(context.Background())
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:666", leader)

	servers, err := c.Servers(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"1.2.3.4:666", "5.6.7.8:666"}, servers)
}

func TestServersReturnsACopy(t *testing.T) {
	c := NewStatic("leader", []string{"a", "b"})
	servers, err := c.Servers(context.Background())
	require.NoError(t, err)
	servers[0] = "mutated"

	again, err := c.Servers(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a", again[0])
}

func TestLoadStaticParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("leader: 127.0.0.1:666\nservers:\n  - 1.2.3.4:666\n  - 5.6.7.8:666\n"), 0o644))

	c, err := LoadStatic(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:666", c.LeaderAddr)
	require.Equal(t, []string{"1.2.3.4:666", "5.6.7.8:666"}, c.ServerList)
}
