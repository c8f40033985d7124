// Package cluster is the membership lookup the gateway's HELO and
// HEARTBEAT handlers consume: leader address and server list (§4.7). The
// real cluster/consensus implementation is out of scope (§1's external
// collaborators); Static provides a fixed-answer implementation so those
// two request types are exercisable end-to-end, the same supporting role
// the ocx pack member's config.Manager plays for its tenant/master split.
package cluster

import "context"

// Cluster is the interface the gateway drives; it never interprets the
// returned strings beyond forwarding them.
type Cluster interface {
	// Leader returns the current leader's "host:port".
	Leader(ctx context.Context) (string, error)
	// Servers returns every known server's "host:port".
	Servers(ctx context.Context) ([]string, error)
}

// Static is a fixed-answer Cluster, configured once at startup from
// internal/config's optional YAML file and never changing thereafter.
type Static struct {
	LeaderAddr string
	ServerList []string
}

// NewStatic returns a Static cluster reporting leader as the leader and
// servers as the full membership list.
func NewStatic(leader string, servers []string) *Static {
	return &Static{LeaderAddr: leader, ServerList: servers}
}

func (s *Static) Leader(ctx context.Context) (string, error) {
	return s.LeaderAddr, nil
}

func (s *Static) Servers(ctx context.Context) ([]string, error) {
	out := make([]string, len(s.ServerList))
	copy(out, s.ServerList)
	return out, nil
}
