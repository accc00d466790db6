package p2p

import (
	"net"
	"time"

	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/libp2p/go-libp2p-core/peer"
)

// DiscoveryEvent is a notification pushed by the discovery service into the
// peer manager.
type DiscoveryEvent interface {
	isDiscoveryEvent()
}

// SocketUpdatedEvent reports that discovery observed a new external UDP
// socket for this node.
type SocketUpdatedEvent struct {
	Addr *net.UDPAddr
}

// QueryResultEvent carries the nodes returned by a discovery query, together
// with the pin the requester asked for, if any.
type QueryResultEvent struct {
	MinTTL *time.Time
	Nodes  []*enode.Node
}

func (SocketUpdatedEvent) isDiscoveryEvent() {}
func (QueryResultEvent) isDiscoveryEvent()   {}

// Discovery is the surface of the discv5 service the peer manager consumes.
// Query internals, routing tables and the UDP transport live behind it.
type Discovery interface {
	// Events is the stream of discovery notifications. The manager drains it
	// without blocking during a poll.
	Events() <-chan DiscoveryEvent
	// DiscoverPeers queues a generic search for more peers. Discovery only
	// adds a new query if one isn't already queued.
	DiscoverPeers()
	// DiscoverSubnetPeers queues a search for peers on the given subnet.
	DiscoverSubnetPeers(subnet uint64, minTTL *time.Time)
	// NodeOfPeer resolves a peer id to its node record, if the routing table
	// knows it.
	NodeOfPeer(pid peer.ID) *enode.Node
}
