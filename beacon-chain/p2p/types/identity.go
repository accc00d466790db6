package types

import ma "github.com/multiformats/go-multiaddr"

// IdentifyInfo carries the subset of the libp2p identify exchange the peer
// manager consumes. The identify protocol itself runs in the network
// behaviour; this is the payload it hands over.
type IdentifyInfo struct {
	ProtocolVersion string
	AgentVersion    string
	ListenAddrs     []ma.Multiaddr
}
