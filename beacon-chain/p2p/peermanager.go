// Package p2p contains the peer management core of the beacon node's
// networking stack: it decides which peers the node should be connected to,
// when to dial, ping, status and disconnect them, and how their misbehavior
// affects their standing. The wire protocol, discovery queries and the
// libp2p host itself live in collaborating services; this package only
// consumes their notifications and emits directives for them to act on.
package p2p

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"

	"github.com/chrysalis-labs/chrysalis/async/hashsetdelay"
	"github.com/chrysalis-labs/chrysalis/beacon-chain/p2p/peers"
	"github.com/chrysalis-labs/chrysalis/beacon-chain/p2p/types"
)

// EventKind discriminates the directives the peer manager emits.
type EventKind int

const (
	// EventDial asks the network behaviour to dial a peer.
	EventDial EventKind = iota
	// EventSocketUpdated informs libp2p that our external address changed.
	EventSocketUpdated
	// EventStatus asks the behaviour to send a STATUS to a peer.
	EventStatus
	// EventPing asks the behaviour to send a PING to a peer.
	EventPing
	// EventMetaData asks the behaviour to request METADATA from a peer.
	EventMetaData
	// EventDisconnectPeer asks the behaviour to disconnect a peer.
	EventDisconnectPeer
)

// String returns the directive name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventDial:
		return "dial"
	case EventSocketUpdated:
		return "socket_updated"
	case EventStatus:
		return "status"
	case EventPing:
		return "ping"
	case EventMetaData:
		return "metadata"
	case EventDisconnectPeer:
		return "disconnect_peer"
	default:
		return "unknown"
	}
}

// Event is a directive emitted by the peer manager for the network behaviour
// to act on. PeerID is set for every kind except EventSocketUpdated, which
// carries the new external multiaddr instead.
type Event struct {
	Kind      EventKind
	PeerID    peer.ID
	Multiaddr ma.Multiaddr
}

type connectingType int

const (
	connDialing connectingType = iota
	connIngoing
	connOutgoing
)

// PeerManager ingests notifications from the network behaviour, discovery and
// its own timers, mutates the peer database and produces an ordered stream of
// directives. A single consumer drains the stream via Poll or Next.
type PeerManager struct {
	cfg       *Config
	peers     *peers.Status
	discovery Discovery

	mu          sync.Mutex
	events      []*Event
	pingPeers   *hashsetdelay.Set[peer.ID]
	statusPeers *hashsetdelay.Set[peer.ID]

	heartbeat *time.Ticker
	// kick wakes a blocked Next when an input method queued a directive.
	kick chan struct{}
}

// NewPeerManager creates a peer manager over the shared peer database and the
// given discovery service, and queues an initial peer search.
func NewPeerManager(cfg *Config, db *peers.Status, discovery Discovery) *PeerManager {
	cfg = cfg.withDefaults()
	pm := &PeerManager{
		cfg:         cfg,
		peers:       db,
		discovery:   discovery,
		pingPeers:   hashsetdelay.New[peer.ID](cfg.PingInterval),
		statusPeers: hashsetdelay.New[peer.ID](cfg.StatusInterval),
		heartbeat:   time.NewTicker(cfg.HeartbeatInterval),
		kick:        make(chan struct{}, 1),
	}
	discovery.DiscoverPeers()
	return pm
}

// Peers returns the shared peer database.
func (pm *PeerManager) Peers() *peers.Status {
	return pm.peers
}

// Stop stops the heartbeat ticker. Ping and status deadlines stay armed and
// still yield directives on later polls; pending directives remain drainable.
func (pm *PeerManager) Stop() {
	pm.heartbeat.Stop()
}

/* Inputs, called by the network behaviour. */

// DiscoverSubnetPeers forwards a subnet discovery request. If minTTL is set,
// the pin is first extended on every connected peer already known to serve
// the subnet.
func (pm *PeerManager) DiscoverSubnetPeers(subnet uint64, minTTL *time.Time) {
	if minTTL != nil {
		pm.peers.ExtendPeersOnSubnet(subnet, *minTTL)
	}
	pm.discovery.DiscoverSubnetPeers(subnet, minTTL)
}

// ConnectIngoing registers a peer that dialed us. It reports whether the peer
// was accepted; a banned peer is rejected.
func (pm *PeerManager) ConnectIngoing(pid peer.ID) bool {
	return pm.connectPeer(pid, connIngoing)
}

// ConnectOutgoing registers a peer we successfully dialed. It reports whether
// the peer was accepted; a banned peer is rejected.
func (pm *PeerManager) ConnectOutgoing(pid peer.ID) bool {
	return pm.connectPeer(pid, connOutgoing)
}

// DialingPeer records that the behaviour started dialing a peer. It reports
// whether the peer was accepted; a banned peer is rejected.
func (pm *PeerManager) DialingPeer(pid peer.ID) bool {
	return pm.connectPeer(pid, connDialing)
}

func (pm *PeerManager) connectPeer(pid peer.ID, conn connectingType) bool {
	if pm.peers.IsBanned(pid) {
		log.WithField("peer", pid.String()).Debug("Refusing connection with banned peer")
		return false
	}

	switch conn {
	case connDialing:
		pm.peers.DialingPeer(pid)
		return true
	case connIngoing:
		pm.peers.ConnectIngoing(pid)
	case connOutgoing:
		pm.peers.ConnectOutgoing(pid)
	}

	// Start the ping and status timers for the now connected peer.
	pm.mu.Lock()
	pm.pingPeers.Insert(pid)
	pm.statusPeers.Insert(pid)
	pm.mu.Unlock()

	peerConnectEventCount.Inc()
	connectedPeersCount.Set(float64(pm.peers.ConnectedCount()))
	return true
}

// NotifyDisconnect records that the connection to a peer is gone and disarms
// its timers.
func (pm *PeerManager) NotifyDisconnect(pid peer.ID) {
	pm.peers.Disconnect(pid)

	pm.mu.Lock()
	pm.pingPeers.Remove(pid)
	pm.statusPeers.Remove(pid)
	pm.mu.Unlock()

	peerDisconnectEventCount.Inc()
	connectedPeersCount.Set(float64(pm.peers.ConnectedCount()))
}

// StatusReceived records that a STATUS message arrived from the peer and
// resets its status timer.
func (pm *PeerManager) StatusReceived(pid peer.ID) {
	pm.mu.Lock()
	pm.statusPeers.Insert(pid)
	pm.mu.Unlock()
}

// PingRequest handles a received ping. The ping timer is reset, and if the
// carried sequence number is ahead of the peer's known metadata a METADATA
// request is queued.
func (pm *PeerManager) PingRequest(pid peer.ID, seq uint64) {
	md, err := pm.peers.Metadata(pid)
	if err != nil {
		log.WithField("peer", pid.String()).Error("Received a PING from an unknown peer")
		return
	}
	log.WithFields(logrus.Fields{"peer": pid.String(), "seq_no": seq}).Debug("Received a ping request")

	pm.mu.Lock()
	pm.pingPeers.Insert(pid)
	pm.mu.Unlock()

	pm.requestMetadataIfStale(pid, md, seq)
}

// PongResponse handles a returned pong, with the same metadata freshness
// check as PingRequest but no ping-timer reset.
func (pm *PeerManager) PongResponse(pid peer.ID, seq uint64) {
	md, err := pm.peers.Metadata(pid)
	if err != nil {
		log.WithField("peer", pid.String()).Error("Received a PONG from an unknown peer")
		return
	}
	pm.requestMetadataIfStale(pid, md, seq)
}

func (pm *PeerManager) requestMetadataIfStale(pid peer.ID, md *types.MetaData, seq uint64) {
	if md != nil && md.SeqNumber >= seq {
		return
	}
	if md == nil {
		log.WithField("peer", pid.String()).Debug("Requesting first metadata from peer")
	} else {
		log.WithFields(logrus.Fields{
			"peer":         pid.String(),
			"known_seq_no": md.SeqNumber,
			"ping_seq_no":  seq,
		}).Debug("Requesting new metadata from peer")
	}
	pm.mu.Lock()
	pm.events = append(pm.events, &Event{Kind: EventMetaData, PeerID: pid})
	pm.mu.Unlock()
	pm.wake()
}

// MetaDataResponse stores a received metadata response. Stale responses are
// dropped.
func (pm *PeerManager) MetaDataResponse(pid peer.ID, md *types.MetaData) {
	updated, err := pm.peers.SetMetadata(pid, md)
	if err != nil {
		log.WithField("peer", pid.String()).Error("Received METADATA from an unknown peer")
		return
	}
	if !updated {
		log.WithFields(logrus.Fields{"peer": pid.String(), "new_seq_no": md.SeqNumber}).Debug("Received old metadata")
		return
	}
	log.WithFields(logrus.Fields{"peer": pid.String(), "new_seq_no": md.SeqNumber}).Debug("Updated peer's metadata")
}

// Identify updates the peer's client identity and listening addresses from an
// identify exchange.
func (pm *PeerManager) Identify(pid peer.ID, info *types.IdentifyInfo) {
	client := peers.ClientFromAgentVersion(info.AgentVersion)
	if err := pm.peers.UpdateIdentity(pid, client, info.ListenAddrs); err != nil {
		log.WithField("peer", pid.String()).Error("Received an Identify response from an unknown peer")
	}
}

// HandleRPCError maps an RPC-layer failure on the given protocol to a peer
// action and reports it. Failures that are our own fault leave the remote's
// standing untouched.
func (pm *PeerManager) HandleRPCError(pid peer.ID, protocol types.Protocol, rpcErr *types.RPCError) {
	client, _ := pm.peers.Client(pid)
	log.WithFields(logrus.Fields{
		"peer":     pid.String(),
		"protocol": protocol.String(),
		"err":      rpcErr.Error(),
		"client":   client.String(),
	}).Debug("RPC error")

	action, ok := peerActionFor(protocol, rpcErr)
	if !ok {
		return
	}
	pm.ReportPeer(pid, action)
}

// ReportPeer applies the reputation delta of the given action. A peer banned
// by the change gets a disconnect directive queued.
func (pm *PeerManager) ReportPeer(pid peer.ID, action PeerAction) {
	rep, banned := pm.peers.AddReputation(pid, action.RepChange())
	log.WithFields(logrus.Fields{
		"peer":       pid.String(),
		"action":     action.String(),
		"reputation": rep,
	}).Debug("Reported peer")

	if !banned {
		return
	}
	peerBanEventCount.Inc()
	log.WithField("peer", pid.String()).Info("Peer banned")
	pm.mu.Lock()
	pm.events = append(pm.events, &Event{Kind: EventDisconnectPeer, PeerID: pid})
	pm.mu.Unlock()
	pm.wake()
}

// AddressesOfPeer returns the peer's advertised multiaddrs with UDP entries
// removed; those belong to the discovery transport, not libp2p.
func (pm *PeerManager) AddressesOfPeer(pid peer.ID) []ma.Multiaddr {
	node := pm.discovery.NodeOfPeer(pid)
	if node == nil {
		return nil
	}
	return filterUDPAddrs(multiAddrsFromNode(node))
}

/* Output side. */

// Poll performs one non-blocking pass over the manager's inputs and yields
// the next pending directive, if any. Passes run in fixed order: heartbeat
// ticks, discovery events, ping expirations, status expirations; the queue is
// FIFO across polls.
func (pm *PeerManager) Poll() (*Event, bool) {
	for drained := false; !drained; {
		select {
		case <-pm.heartbeat.C:
			pm.runHeartbeat()
		default:
			drained = true
		}
	}

	for drained := false; !drained; {
		select {
		case ev := <-pm.discovery.Events():
			pm.handleDiscoveryEvent(ev)
		default:
			drained = true
		}
	}

	pm.mu.Lock()
	for {
		pid, ok := pm.pingPeers.Pop()
		if !ok {
			break
		}
		pm.pingPeers.Insert(pid)
		pm.events = append(pm.events, &Event{Kind: EventPing, PeerID: pid})
	}
	for {
		pid, ok := pm.statusPeers.Pop()
		if !ok {
			break
		}
		pm.statusPeers.Insert(pid)
		pm.events = append(pm.events, &Event{Kind: EventStatus, PeerID: pid})
	}

	var head *Event
	if len(pm.events) > 0 {
		head = pm.events[0]
		pm.events = pm.events[1:]
	}
	pm.mu.Unlock()

	return head, head != nil
}

// Next blocks until the manager produces its next directive or the context is
// done.
func (pm *PeerManager) Next(ctx context.Context) (*Event, error) {
	for {
		if ev, ok := pm.Poll(); ok {
			return ev, nil
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		pm.mu.Lock()
		next, ok := pm.pingPeers.NextDeadline()
		if sd, sok := pm.statusPeers.NextDeadline(); sok && (!ok || sd.Before(next)) {
			next, ok = sd, true
		}
		pm.mu.Unlock()
		if ok {
			timer = time.NewTimer(time.Until(next))
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, ctx.Err()
		case <-pm.heartbeat.C:
			pm.runHeartbeat()
		case ev := <-pm.discovery.Events():
			pm.handleDiscoveryEvent(ev)
		case <-pm.kick:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (pm *PeerManager) wake() {
	select {
	case pm.kick <- struct{}{}:
	default:
	}
}

/* Internal passes. */

func (pm *PeerManager) handleDiscoveryEvent(ev DiscoveryEvent) {
	switch ev := ev.(type) {
	case SocketUpdatedEvent:
		pm.socketUpdated(ev.Addr)
	case QueryResultEvent:
		pm.peersDiscovered(ev.MinTTL, ev.Nodes)
	}
}

// socketUpdated translates a new external UDP socket reported by discovery
// into an external TCP multiaddr, using the node's own configured TCP listen
// port. Proper NAT handling of the TCP port is an open question.
func (pm *PeerManager) socketUpdated(addr *net.UDPAddr) {
	maddr, err := multiAddrFromIPPort(addr.IP, "tcp", pm.cfg.TCPPort)
	if err != nil {
		log.WithError(err).Error("Could not build external multiaddr")
		return
	}
	pm.mu.Lock()
	pm.events = append(pm.events, &Event{Kind: EventSocketUpdated, Multiaddr: maddr})
	pm.mu.Unlock()
}

// peersDiscovered dials suitable peers returned by a discovery query, up to
// the target peer count.
//
// Dialing is by peer id, not multiaddr: libp2p resolves the multiaddr itself,
// which avoids racing the discovery routing table.
func (pm *PeerManager) peersDiscovered(minTTL *time.Time, nodes []*enode.Node) {
	budget := pm.cfg.TargetPeers - pm.peers.ConnectedOrDialingCount()
	var dials []*Event
	for _, node := range nodes {
		if len(dials) >= budget {
			break
		}
		pid, err := peerIDFromNode(node)
		if err != nil {
			log.WithError(err).Debug("Could not derive peer id from discovered node")
			continue
		}
		if pm.peers.IsConnectedOrDialing(pid) || pm.peers.IsBanned(pid) {
			continue
		}
		if minTTL != nil {
			pm.peers.UpdateMinTTL(pid, *minTTL)
		}
		log.WithField("peer", pid.String()).Debug("Dialing discovered peer")
		dials = append(dials, &Event{Kind: EventDial, PeerID: pid})
	}
	if len(dials) == 0 {
		return
	}
	pm.mu.Lock()
	pm.events = append(pm.events, dials...)
	pm.mu.Unlock()
}

// runHeartbeat maintains the peer count: if more peers are needed a discovery
// search is queued, and peers stuck dialing past the deadline are demoted.
func (pm *PeerManager) runHeartbeat() {
	if pm.peers.ConnectedOrDialingCount() < pm.cfg.TargetPeers {
		pm.discovery.DiscoverPeers()
	}

	for _, pid := range pm.peers.TimeoutDialing(pm.cfg.DialTimeout) {
		log.WithField("peer", pid.String()).Warn("Peer has been dialing for too long")
	}

	connectedPeersCount.Set(float64(pm.peers.ConnectedCount()))

	// TODO: decay the reputation of long-disconnected peers (and slowly
	// forgive banned ones), and evict surplus peers not pinned by min_ttl.
}
