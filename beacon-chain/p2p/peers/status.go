// Package peers provides information about peers at the Ethereum consensus
// protocol level. "Protocol level" is the level above the network level, so
// this layer never sees or interacts with hosts that are uncontactable due to
// being down, firewalled, etc. Instead, this works with peers that are
// contactable but may or may not be banned, out of sync, or surplus to the
// target peer count.
//
// A peer can have one of a number of states:
//
// - connected if we are able to talk to the remote peer
// - dialing if we are attempting to open a connection to the remote peer
// - disconnected if we are not able to talk to the remote peer
// - banned if the peer's reputation dropped below the ban threshold
//
// Peer information is persistent for the run of the service. This allows for
// collection of useful long-term statistics such as reputation, giving the
// basis for decisions to not talk to known-bad peers.
package peers

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"

	"github.com/chrysalis-labs/chrysalis/beacon-chain/p2p/types"
)

// PeerConnectionState is the state of the connection.
type PeerConnectionState int

const (
	// PeerDisconnected means there is no connection to the peer.
	PeerDisconnected PeerConnectionState = iota
	// PeerDialing means there is an on-going attempt to connect to the peer.
	PeerDialing
	// PeerConnected means the peer has an active connection.
	PeerConnected
	// PeerBanned means the peer's reputation fell below the ban threshold and
	// it should not be communicated with.
	PeerBanned
)

const (
	// MaxReputation is the upper bound of a peer's reputation.
	MaxReputation = 100
	// DefaultReputation is the reputation a peer starts out with.
	DefaultReputation = 90
	// MinRepBeforeBan is the inclusive lower bound for remaining unbanned. A
	// peer whose reputation drops strictly below this value is banned; a
	// banned peer whose reputation climbs back to it is unbanned.
	MinRepBeforeBan = 10
)

// ErrPeerUnknown is returned when there is an attempt to obtain data from a
// peer that is not known.
var ErrPeerUnknown = errors.New("peer unknown")

// Status is the structure holding the peer status information. It is shared
// between the peer manager, the network behaviour and read-only sidecars such
// as metrics; a single reader-writer lock protects it. Every mutator is one
// bounded critical section performing only in-memory transitions.
type Status struct {
	lock      sync.RWMutex
	status    map[peer.ID]*peerStatus
	connected int
	dialing   int
}

// peerStatus is the status of an individual peer at the protocol level.
type peerStatus struct {
	peerState             PeerConnectionState
	direction             network.Direction
	stateSince            time.Time
	reputation            int
	client                Client
	listeningAddresses    []ma.Multiaddr
	metaData              *types.MetaData
	chainState            *ChainState
	chainStateLastUpdated time.Time
	minTTL                time.Time
	subnets               map[uint64]bool
}

// NewStatus creates a new status entity.
func NewStatus() *Status {
	return &Status{
		status: make(map[peer.ID]*peerStatus),
	}
}

// ConnectionState gets the connection state of the given remote peer.
// This will error if the peer does not exist.
func (p *Status) ConnectionState(pid peer.ID) (PeerConnectionState, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if status, ok := p.status[pid]; ok {
		return status.peerState, nil
	}
	return PeerDisconnected, ErrPeerUnknown
}

// Direction returns the direction of the given remote peer.
// This will error if the peer does not exist.
func (p *Status) Direction(pid peer.ID) (network.Direction, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if status, ok := p.status[pid]; ok {
		return status.direction, nil
	}
	return network.DirUnknown, ErrPeerUnknown
}

// Reputation returns the current reputation of the given remote peer.
// This will error if the peer does not exist.
func (p *Status) Reputation(pid peer.ID) (int, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if status, ok := p.status[pid]; ok {
		return status.reputation, nil
	}
	return 0, ErrPeerUnknown
}

// Client returns the identity of the client the given remote peer runs.
// This will error if the peer does not exist.
func (p *Status) Client(pid peer.ID) (Client, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if status, ok := p.status[pid]; ok {
		return status.client, nil
	}
	return Client{}, ErrPeerUnknown
}

// ListeningAddresses returns the addresses the given remote peer advertises.
// This will error if the peer does not exist.
func (p *Status) ListeningAddresses(pid peer.ID) ([]ma.Multiaddr, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if status, ok := p.status[pid]; ok {
		addrs := make([]ma.Multiaddr, len(status.listeningAddresses))
		copy(addrs, status.listeningAddresses)
		return addrs, nil
	}
	return nil, ErrPeerUnknown
}

// Metadata returns a copy of the last metadata received from the given remote
// peer, or nil if none was received yet.
// This will error if the peer does not exist.
func (p *Status) Metadata(pid peer.ID) (*types.MetaData, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if status, ok := p.status[pid]; ok {
		return status.metaData.Copy(), nil
	}
	return nil, ErrPeerUnknown
}

// ChainState gets the chain state of the given remote peer.
// This can return nil if there is no known chain state for the peer.
// This will error if the peer does not exist.
func (p *Status) ChainState(pid peer.ID) (*ChainState, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if status, ok := p.status[pid]; ok {
		return status.chainState, nil
	}
	return nil, ErrPeerUnknown
}

// ChainStateLastUpdated gets the last time the chain state of the given remote
// peer was updated.
// This will error if the peer does not exist.
func (p *Status) ChainStateLastUpdated(pid peer.ID) (time.Time, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if status, ok := p.status[pid]; ok {
		return status.chainStateLastUpdated, nil
	}
	return time.Time{}, ErrPeerUnknown
}

// MinTTL returns the instant until which the given remote peer is pinned due
// to a subnet obligation. The zero time means no pin.
// This will error if the peer does not exist.
func (p *Status) MinTTL(pid peer.ID) (time.Time, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if status, ok := p.status[pid]; ok {
		return status.minTTL, nil
	}
	return time.Time{}, ErrPeerUnknown
}

// IsConnectedOrDialing states if the peer is currently connected or being
// dialed. An unknown peer returns false.
func (p *Status) IsConnectedOrDialing(pid peer.ID) bool {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if status, ok := p.status[pid]; ok {
		return status.peerState == PeerConnected || status.peerState == PeerDialing
	}
	return false
}

// IsBanned states if the peer is banned. An unknown peer returns false.
func (p *Status) IsBanned(pid peer.ID) bool {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if status, ok := p.status[pid]; ok {
		return status.peerState == PeerBanned
	}
	return false
}

// ConnectedCount returns the number of currently connected peers.
func (p *Status) ConnectedCount() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.connected
}

// ConnectedOrDialingCount returns the number of peers that are connected or
// being dialed. A dialing peer is counted exactly once no matter how many
// times DialingPeer was called for it.
func (p *Status) ConnectedOrDialingCount() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.connected + p.dialing
}

// Connected returns the peers that are connected.
func (p *Status) Connected() []peer.ID {
	p.lock.RLock()
	defer p.lock.RUnlock()
	peers := make([]peer.ID, 0)
	for pid, status := range p.status {
		if status.peerState == PeerConnected {
			peers = append(peers, pid)
		}
	}
	return peers
}

// All returns all the peers regardless of state.
func (p *Status) All() []peer.ID {
	p.lock.RLock()
	defer p.lock.RUnlock()
	pids := make([]peer.ID, 0, len(p.status))
	for pid := range p.status {
		pids = append(pids, pid)
	}
	return pids
}

// OnSubnet returns the connected peers known to serve the given subnet.
func (p *Status) OnSubnet(subnet uint64) []peer.ID {
	p.lock.RLock()
	defer p.lock.RUnlock()
	peers := make([]peer.ID, 0)
	for pid, status := range p.status {
		if status.peerState == PeerConnected && status.subnets[subnet] {
			peers = append(peers, pid)
		}
	}
	return peers
}

// DialingPeer records that a connection attempt to the given remote peer has
// started. Calling this repeatedly for a peer already dialing is a no-op, so
// the peer is only counted toward the dialing total once.
func (p *Status) DialingPeer(pid peer.ID) {
	p.lock.Lock()
	defer p.lock.Unlock()

	status := p.fetch(pid)
	if status.peerState == PeerDialing {
		return
	}
	p.setState(status, PeerDialing)
}

// ConnectIngoing records that the given remote peer dialed us and the
// connection is established.
func (p *Status) ConnectIngoing(pid peer.ID) {
	p.lock.Lock()
	defer p.lock.Unlock()

	status := p.fetch(pid)
	p.setState(status, PeerConnected)
	status.direction = network.DirInbound
}

// ConnectOutgoing records that our dial to the given remote peer succeeded.
func (p *Status) ConnectOutgoing(pid peer.ID) {
	p.lock.Lock()
	defer p.lock.Unlock()

	status := p.fetch(pid)
	p.setState(status, PeerConnected)
	status.direction = network.DirOutbound
}

// Disconnect records that the connection to the given remote peer is gone.
func (p *Status) Disconnect(pid peer.ID) {
	p.lock.Lock()
	defer p.lock.Unlock()

	status := p.fetch(pid)
	if status.peerState == PeerBanned {
		// A banned peer stays banned through a disconnect.
		return
	}
	p.setState(status, PeerDisconnected)
}

// Ban moves the given remote peer to the banned state. The stored reputation
// is lowered below the ban threshold if needed so that banned state and
// reputation stay consistent.
func (p *Status) Ban(pid peer.ID) {
	p.lock.Lock()
	defer p.lock.Unlock()

	status := p.fetch(pid)
	if status.reputation >= MinRepBeforeBan {
		status.reputation = MinRepBeforeBan - 1
	}
	if status.peerState != PeerBanned {
		p.setState(status, PeerBanned)
	}
}

// AddReputation applies a reputation delta to the given remote peer, clamping
// the result to [0, MaxReputation]. Crossing the ban threshold flips the
// connection state within the same critical section: dropping strictly below
// MinRepBeforeBan bans the peer, climbing back to it moves a banned peer to
// disconnected. The second return value reports whether this change banned
// the peer; the caller reconciles any disconnect directive.
func (p *Status) AddReputation(pid peer.ID, delta int) (int, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	status := p.fetch(pid)
	rep := status.reputation + delta
	if rep > MaxReputation {
		rep = MaxReputation
	}
	if rep < 0 {
		rep = 0
	}
	status.reputation = rep

	becameBanned := false
	if rep < MinRepBeforeBan && status.peerState != PeerBanned {
		p.setState(status, PeerBanned)
		becameBanned = true
	} else if rep >= MinRepBeforeBan && status.peerState == PeerBanned {
		p.setState(status, PeerDisconnected)
	}
	return rep, becameBanned
}

// UpdateMinTTL extends the pin on the given remote peer. The pin is only ever
// moved forward in time.
func (p *Status) UpdateMinTTL(pid peer.ID, minTTL time.Time) {
	p.lock.Lock()
	defer p.lock.Unlock()

	status := p.fetch(pid)
	if minTTL.After(status.minTTL) {
		status.minTTL = minTTL
	}
}

// ExtendPeersOnSubnet extends the pin of every connected peer known to serve
// the given subnet.
func (p *Status) ExtendPeersOnSubnet(subnet uint64, minTTL time.Time) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for _, status := range p.status {
		if status.peerState == PeerConnected && status.subnets[subnet] && minTTL.After(status.minTTL) {
			status.minTTL = minTTL
		}
	}
}

// SetMetadata stores metadata received from the given remote peer. The stored
// sequence number is monotonically non-decreasing: stale updates are dropped
// and reported with a false return value. The peer's known subnets are
// rebuilt from the attnets bitfield on every accepted update.
// This will error if the peer does not exist.
func (p *Status) SetMetadata(pid peer.ID, md *types.MetaData) (bool, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	status, ok := p.status[pid]
	if !ok {
		return false, ErrPeerUnknown
	}
	if status.metaData != nil && md.SeqNumber <= status.metaData.SeqNumber {
		return false, nil
	}
	status.metaData = md.Copy()
	status.subnets = make(map[uint64]bool)
	if md.Attnets != nil {
		for i := uint64(0); i < md.Attnets.Len(); i++ {
			if md.Attnets.BitAt(i) {
				status.subnets[i] = true
			}
		}
	}
	return true, nil
}

// SetChainState sets the chain state of the given remote peer.
func (p *Status) SetChainState(pid peer.ID, chainState *ChainState) {
	p.lock.Lock()
	defer p.lock.Unlock()

	status := p.fetch(pid)
	status.chainState = chainState
	status.chainStateLastUpdated = time.Now()
}

// UpdateIdentity updates the client identity and listening addresses learned
// from an identify exchange. Unlike other mutators this does not insert a
// record: identify data for a peer we never saw is a protocol-level anomaly
// the caller reports.
func (p *Status) UpdateIdentity(pid peer.ID, client Client, addrs []ma.Multiaddr) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	status, ok := p.status[pid]
	if !ok {
		return ErrPeerUnknown
	}
	status.client = client
	status.listeningAddresses = make([]ma.Multiaddr, len(addrs))
	copy(status.listeningAddresses, addrs)
	return nil
}

// TimeoutDialing demotes peers that have been dialing for longer than the
// given duration to disconnected, and returns their ids.
func (p *Status) TimeoutDialing(timeout time.Duration) []peer.ID {
	p.lock.Lock()
	defer p.lock.Unlock()

	deadline := time.Now().Add(-timeout)
	var expired []peer.ID
	for pid, status := range p.status {
		if status.peerState == PeerDialing && status.stateSince.Before(deadline) {
			p.setState(status, PeerDisconnected)
			expired = append(expired, pid)
		}
	}
	return expired
}

// fetch is a helper function that fetches a peer status, possibly creating it.
// Lock must be held by the caller.
func (p *Status) fetch(pid peer.ID) *peerStatus {
	if _, ok := p.status[pid]; !ok {
		p.status[pid] = &peerStatus{
			peerState:  PeerDisconnected,
			direction:  network.DirUnknown,
			stateSince: time.Now(),
			reputation: DefaultReputation,
		}
	}
	return p.status[pid]
}

// setState moves a peer to a new connection state and keeps the aggregate
// counters in step. Lock must be held by the caller.
func (p *Status) setState(status *peerStatus, state PeerConnectionState) {
	if status.peerState == state {
		status.stateSince = time.Now()
		return
	}
	switch status.peerState {
	case PeerConnected:
		p.connected--
	case PeerDialing:
		p.dialing--
	}
	switch state {
	case PeerConnected:
		p.connected++
	case PeerDialing:
		p.dialing++
	}
	status.peerState = state
	status.stateSince = time.Now()
}
