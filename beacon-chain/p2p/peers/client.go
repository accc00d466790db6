package peers

import "strings"

// ClientKind identifies a known consensus-layer client implementation.
type ClientKind int

const (
	// ClientUnknown is an unrecognized client.
	ClientUnknown ClientKind = iota
	// ClientLighthouse is Sigma Prime's Lighthouse.
	ClientLighthouse
	// ClientPrysm is Prysmatic Labs' Prysm.
	ClientPrysm
	// ClientTeku is ConsenSys' Teku.
	ClientTeku
	// ClientNimbus is Status' Nimbus.
	ClientNimbus
	// ClientLodestar is ChainSafe's Lodestar.
	ClientLodestar
)

// String returns the canonical client name.
func (k ClientKind) String() string {
	switch k {
	case ClientLighthouse:
		return "Lighthouse"
	case ClientPrysm:
		return "Prysm"
	case ClientTeku:
		return "Teku"
	case ClientNimbus:
		return "Nimbus"
	case ClientLodestar:
		return "Lodestar"
	default:
		return "Unknown"
	}
}

// Client is the best-effort identity of the software a remote peer runs,
// parsed from its identify agent string.
type Client struct {
	Kind    ClientKind
	Version string
	// Agent is the raw agent string the identification was parsed from.
	Agent string
}

// ClientFromAgentVersion parses an identify agent-version string such as
// "Lighthouse/v0.1.2-34d5e2a2/x86_64-linux" into a client identity. An
// unrecognized agent yields ClientUnknown with the raw string preserved.
func ClientFromAgentVersion(agent string) Client {
	c := Client{Kind: ClientUnknown, Agent: agent}
	parts := strings.Split(agent, "/")
	if len(parts) == 0 || parts[0] == "" {
		return c
	}
	switch strings.ToLower(parts[0]) {
	case "lighthouse":
		c.Kind = ClientLighthouse
	case "prysm":
		c.Kind = ClientPrysm
	case "teku":
		c.Kind = ClientTeku
	case "nimbus":
		c.Kind = ClientNimbus
	case "lodestar", "js-libp2p":
		c.Kind = ClientLodestar
	default:
		return c
	}
	if len(parts) > 1 {
		c.Version = parts[1]
	}
	return c
}

// String returns a printable client identity for logs.
func (c Client) String() string {
	if c.Version == "" {
		return c.Kind.String()
	}
	return c.Kind.String() + "/" + c.Version
}
