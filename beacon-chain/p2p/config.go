package p2p

import "time"

const (
	// DefaultPingInterval is the interval at which a quiet peer is pinged.
	DefaultPingInterval = 30 * time.Second
	// DefaultStatusInterval is the interval at which a peer's chain status is
	// re-requested.
	DefaultStatusInterval = 5 * time.Minute
	// DefaultHeartbeatInterval is the maintenance tick of the peer manager.
	DefaultHeartbeatInterval = 30 * time.Second
	// DefaultDialTimeout bounds how long a peer may sit in the dialing state
	// before it is considered disconnected.
	DefaultDialTimeout = 2 * time.Minute
)

// Config holds the tunables of the peer manager.
type Config struct {
	// TargetPeers is the desired number of connected-or-dialing peers.
	TargetPeers int
	// TCPPort is the port this node's libp2p host listens on. External
	// address updates reported by discovery are rebuilt against it.
	TCPPort uint

	PingInterval      time.Duration
	StatusInterval    time.Duration
	HeartbeatInterval time.Duration
	DialTimeout       time.Duration
}

// withDefaults returns a copy of the config with zero values filled in.
func (c *Config) withDefaults() *Config {
	cfg := *c
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &cfg
}
