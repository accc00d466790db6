package p2p

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/prysmaticlabs/go-bitfield"
	"github.com/sirupsen/logrus"
	logTest "github.com/sirupsen/logrus/hooks/test"

	"github.com/chrysalis-labs/chrysalis/beacon-chain/p2p/peers"
	"github.com/chrysalis-labs/chrysalis/beacon-chain/p2p/types"
	"github.com/chrysalis-labs/chrysalis/testing/assert"
	"github.com/chrysalis-labs/chrysalis/testing/require"
)

type mockDiscovery struct {
	mu             sync.Mutex
	events         chan DiscoveryEvent
	searches       int
	subnetSearches []uint64
	nodes          map[peer.ID]*enode.Node
}

func newMockDiscovery() *mockDiscovery {
	return &mockDiscovery{
		events: make(chan DiscoveryEvent, 16),
		nodes:  make(map[peer.ID]*enode.Node),
	}
}

func (m *mockDiscovery) Events() <-chan DiscoveryEvent {
	return m.events
}

func (m *mockDiscovery) DiscoverPeers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches++
}

func (m *mockDiscovery) DiscoverSubnetPeers(subnet uint64, _ *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subnetSearches = append(m.subnetSearches, subnet)
}

func (m *mockDiscovery) NodeOfPeer(pid peer.ID) *enode.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[pid]
}

func (m *mockDiscovery) searchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searches
}

// testNode builds a node record with fresh keys and the given ports.
func testNode(t *testing.T, tcp, udp int) (*enode.Node, peer.ID) {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	node := enode.NewV4(&key.PublicKey, net.ParseIP("127.0.0.1"), tcp, udp)
	pid, err := peerIDFromNode(node)
	require.NoError(t, err)
	return node, pid
}

// quietConfig keeps every timer far away so tests control each pass.
func quietConfig() *Config {
	return &Config{
		TargetPeers:       50,
		TCPPort:           13000,
		PingInterval:      time.Hour,
		StatusInterval:    time.Hour,
		HeartbeatInterval: time.Hour,
	}
}

func drain(pm *PeerManager) []*Event {
	var events []*Event
	for {
		ev, ok := pm.Poll()
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

func TestHeartbeatTriggersDiscovery(t *testing.T) {
	cfg := quietConfig()
	cfg.HeartbeatInterval = 20 * time.Millisecond
	disc := newMockDiscovery()
	pm := NewPeerManager(cfg, peers.NewStatus(), disc)
	defer pm.Stop()

	// The constructor queues one search up front.
	require.Equal(t, 1, disc.searchCount())

	time.Sleep(50 * time.Millisecond)
	events := drain(pm)
	assert.Equal(t, 0, len(events), "heartbeat alone must not emit directives")
	if disc.searchCount() < 2 {
		t.Errorf("expected the heartbeat to queue a search, got %d searches", disc.searchCount())
	}
}

func TestHeartbeatSkipsDiscoveryAtTarget(t *testing.T) {
	cfg := quietConfig()
	cfg.TargetPeers = 1
	cfg.HeartbeatInterval = 20 * time.Millisecond
	disc := newMockDiscovery()
	pm := NewPeerManager(cfg, peers.NewStatus(), disc)
	defer pm.Stop()

	pm.ConnectIngoing(peer.ID("peer1"))
	before := disc.searchCount()
	time.Sleep(50 * time.Millisecond)
	drain(pm)
	assert.Equal(t, before, disc.searchCount(), "search queued while at target")
}

func TestDiscoveredPeerIsDialedOnce(t *testing.T) {
	disc := newMockDiscovery()
	pm := NewPeerManager(quietConfig(), peers.NewStatus(), disc)
	defer pm.Stop()

	node, pid := testNode(t, 13000, 12000)
	disc.events <- QueryResultEvent{Nodes: []*enode.Node{node}}

	ev, ok := pm.Poll()
	require.Equal(t, true, ok)
	assert.Equal(t, EventDial, ev.Kind)
	assert.Equal(t, pid, ev.PeerID)

	// A second immediate poll yields no second dial.
	_, ok = pm.Poll()
	assert.Equal(t, false, ok)
}

func TestDiscoveredPeersRespectTarget(t *testing.T) {
	cfg := quietConfig()
	cfg.TargetPeers = 1
	disc := newMockDiscovery()
	pm := NewPeerManager(cfg, peers.NewStatus(), disc)
	defer pm.Stop()

	nodeA, _ := testNode(t, 13000, 12000)
	nodeB, _ := testNode(t, 13001, 12001)
	disc.events <- QueryResultEvent{Nodes: []*enode.Node{nodeA, nodeB}}

	events := drain(pm)
	assert.Equal(t, 1, len(events), "dials exceeded the target peer count")
}

func TestDiscoveredBannedPeerNotDialed(t *testing.T) {
	disc := newMockDiscovery()
	db := peers.NewStatus()
	pm := NewPeerManager(quietConfig(), db, disc)
	defer pm.Stop()

	node, pid := testNode(t, 13000, 12000)
	db.ConnectIngoing(pid)
	db.Ban(pid)
	disc.events <- QueryResultEvent{Nodes: []*enode.Node{node}}

	events := drain(pm)
	assert.Equal(t, 0, len(events), "banned peer was dialed")
}

func TestDiscoveredPeerMinTTL(t *testing.T) {
	disc := newMockDiscovery()
	db := peers.NewStatus()
	pm := NewPeerManager(quietConfig(), db, disc)
	defer pm.Stop()

	node, pid := testNode(t, 13000, 12000)
	minTTL := time.Now().Add(time.Hour)
	disc.events <- QueryResultEvent{MinTTL: &minTTL, Nodes: []*enode.Node{node}}

	events := drain(pm)
	require.Equal(t, 1, len(events))
	got, err := db.MinTTL(pid)
	require.NoError(t, err)
	assert.Equal(t, minTTL, got)
}

func TestSocketUpdated(t *testing.T) {
	disc := newMockDiscovery()
	pm := NewPeerManager(quietConfig(), peers.NewStatus(), disc)
	defer pm.Stop()

	disc.events <- SocketUpdatedEvent{Addr: &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 9000}}

	ev, ok := pm.Poll()
	require.Equal(t, true, ok)
	assert.Equal(t, EventSocketUpdated, ev.Kind)
	require.NotNil(t, ev.Multiaddr)
	// The directive embeds our TCP listen port, not the discovery UDP port.
	assert.Equal(t, "/ip4/1.2.3.4/tcp/13000", ev.Multiaddr.String())
}

func TestConnectArmsTimers(t *testing.T) {
	disc := newMockDiscovery()
	pm := NewPeerManager(quietConfig(), peers.NewStatus(), disc)
	defer pm.Stop()

	pid := peer.ID("peer1")
	require.Equal(t, true, pm.ConnectOutgoing(pid))
	assert.Equal(t, true, pm.pingPeers.Contains(pid))
	assert.Equal(t, true, pm.statusPeers.Contains(pid))

	state, err := pm.Peers().ConnectionState(pid)
	require.NoError(t, err)
	assert.Equal(t, peers.PeerConnected, state)
}

func TestDialingDoesNotArmTimers(t *testing.T) {
	disc := newMockDiscovery()
	pm := NewPeerManager(quietConfig(), peers.NewStatus(), disc)
	defer pm.Stop()

	pid := peer.ID("peer1")
	require.Equal(t, true, pm.DialingPeer(pid))
	assert.Equal(t, false, pm.pingPeers.Contains(pid))
	assert.Equal(t, false, pm.statusPeers.Contains(pid))
}

func TestBannedPeerRejected(t *testing.T) {
	disc := newMockDiscovery()
	db := peers.NewStatus()
	pm := NewPeerManager(quietConfig(), db, disc)
	defer pm.Stop()

	pid := peer.ID("peer1")
	db.ConnectIngoing(pid)
	db.Ban(pid)
	db.Disconnect(pid)

	assert.Equal(t, false, pm.ConnectIngoing(pid))
	assert.Equal(t, false, pm.ConnectOutgoing(pid))
	assert.Equal(t, false, pm.DialingPeer(pid))
	assert.Equal(t, false, pm.pingPeers.Contains(pid))
}

func TestNotifyDisconnectDisarmsTimers(t *testing.T) {
	disc := newMockDiscovery()
	pm := NewPeerManager(quietConfig(), peers.NewStatus(), disc)
	defer pm.Stop()

	pid := peer.ID("peer1")
	pm.ConnectIngoing(pid)
	require.Equal(t, 1, pm.Peers().ConnectedCount())

	pm.NotifyDisconnect(pid)
	assert.Equal(t, false, pm.pingPeers.Contains(pid))
	assert.Equal(t, false, pm.statusPeers.Contains(pid))
	assert.Equal(t, 0, pm.Peers().ConnectedCount())
}

func TestPingRequestsStaleMetadata(t *testing.T) {
	disc := newMockDiscovery()
	db := peers.NewStatus()
	pm := NewPeerManager(quietConfig(), db, disc)
	defer pm.Stop()

	pid := peer.ID("peer2")
	pm.ConnectIngoing(pid)
	_, err := db.SetMetadata(pid, &types.MetaData{SeqNumber: 5, Attnets: bitfield.NewBitvector64()})
	require.NoError(t, err)

	pm.PingRequest(pid, 7)

	ev, ok := pm.Poll()
	require.Equal(t, true, ok)
	assert.Equal(t, EventMetaData, ev.Kind)
	assert.Equal(t, pid, ev.PeerID)
	assert.Equal(t, true, pm.pingPeers.Contains(pid), "ping timer not re-armed")
}

func TestPingFreshMetadataNoRequest(t *testing.T) {
	disc := newMockDiscovery()
	db := peers.NewStatus()
	pm := NewPeerManager(quietConfig(), db, disc)
	defer pm.Stop()

	pid := peer.ID("peer2")
	pm.ConnectIngoing(pid)
	_, err := db.SetMetadata(pid, &types.MetaData{SeqNumber: 7, Attnets: bitfield.NewBitvector64()})
	require.NoError(t, err)

	pm.PingRequest(pid, 7)
	_, ok := pm.Poll()
	assert.Equal(t, false, ok, "fresh metadata still requested")
}

func TestPongRequestsMissingMetadata(t *testing.T) {
	disc := newMockDiscovery()
	pm := NewPeerManager(quietConfig(), peers.NewStatus(), disc)
	defer pm.Stop()

	pid := peer.ID("peer2")
	pm.ConnectIngoing(pid)
	pm.PongResponse(pid, 1)

	ev, ok := pm.Poll()
	require.Equal(t, true, ok)
	assert.Equal(t, EventMetaData, ev.Kind)
}

func TestFatalRPCErrorBansAndDisconnects(t *testing.T) {
	disc := newMockDiscovery()
	db := peers.NewStatus()
	pm := NewPeerManager(quietConfig(), db, disc)
	defer pm.Stop()

	pid := peer.ID("peer3")
	pm.ConnectIngoing(pid)
	db.AddReputation(pid, -70) // down to 20

	pm.HandleRPCError(pid, types.ProtocolStatus, &types.RPCError{Kind: types.RPCSSZDecodeError})

	rep, err := db.Reputation(pid)
	require.NoError(t, err)
	assert.Equal(t, 0, rep)
	assert.Equal(t, true, db.IsBanned(pid))

	ev, ok := pm.Poll()
	require.Equal(t, true, ok)
	assert.Equal(t, EventDisconnectPeer, ev.Kind)
	assert.Equal(t, pid, ev.PeerID)
}

func TestOurFaultRPCErrorIgnored(t *testing.T) {
	disc := newMockDiscovery()
	db := peers.NewStatus()
	pm := NewPeerManager(quietConfig(), db, disc)
	defer pm.Stop()

	pid := peer.ID("peer3")
	pm.ConnectIngoing(pid)

	pm.HandleRPCError(pid, types.ProtocolStatus, &types.RPCError{Kind: types.RPCInternalError})
	pm.HandleRPCError(pid, types.ProtocolPing, &types.RPCError{Kind: types.RPCHandlerRejected})

	rep, err := db.Reputation(pid)
	require.NoError(t, err)
	assert.Equal(t, peers.DefaultReputation, rep)
	_, ok := pm.Poll()
	assert.Equal(t, false, ok)
}

func TestStatusTimerEmitsOnceAndRearms(t *testing.T) {
	cfg := quietConfig()
	cfg.StatusInterval = 30 * time.Millisecond
	disc := newMockDiscovery()
	pm := NewPeerManager(cfg, peers.NewStatus(), disc)
	defer pm.Stop()

	pid := peer.ID("peer4")
	pm.ConnectIngoing(pid)

	time.Sleep(50 * time.Millisecond)
	events := drain(pm)
	require.Equal(t, 1, len(events))
	assert.Equal(t, EventStatus, events[0].Kind)
	assert.Equal(t, pid, events[0].PeerID)
	assert.Equal(t, true, pm.statusPeers.Contains(pid), "status timer not re-armed")

	// The fresh deadline produces the next expiration on schedule.
	time.Sleep(50 * time.Millisecond)
	events = drain(pm)
	require.Equal(t, 1, len(events))
	assert.Equal(t, EventStatus, events[0].Kind)
}

func TestPingTimerEmits(t *testing.T) {
	cfg := quietConfig()
	cfg.PingInterval = 30 * time.Millisecond
	disc := newMockDiscovery()
	pm := NewPeerManager(cfg, peers.NewStatus(), disc)
	defer pm.Stop()

	pid := peer.ID("peer4")
	pm.ConnectIngoing(pid)

	time.Sleep(50 * time.Millisecond)
	events := drain(pm)
	require.Equal(t, 1, len(events))
	assert.Equal(t, EventPing, events[0].Kind)
	assert.Equal(t, pid, events[0].PeerID)
	assert.Equal(t, true, pm.pingPeers.Contains(pid))
}

func TestStatusReceivedResetsTimer(t *testing.T) {
	cfg := quietConfig()
	cfg.StatusInterval = 60 * time.Millisecond
	disc := newMockDiscovery()
	pm := NewPeerManager(cfg, peers.NewStatus(), disc)
	defer pm.Stop()

	pid := peer.ID("peer4")
	pm.ConnectIngoing(pid)

	// Keep refreshing the timer; no status directive should fire.
	for i := 0; i < 3; i++ {
		time.Sleep(30 * time.Millisecond)
		pm.StatusReceived(pid)
		events := drain(pm)
		assert.Equal(t, 0, len(events), "status fired despite recent STATUS from peer")
	}
}

func TestDirectiveOrderWithinPoll(t *testing.T) {
	cfg := quietConfig()
	cfg.PingInterval = 20 * time.Millisecond
	disc := newMockDiscovery()
	pm := NewPeerManager(cfg, peers.NewStatus(), disc)
	defer pm.Stop()

	connected := peer.ID("peer1")
	pm.ConnectIngoing(connected)

	node, dialed := testNode(t, 13000, 12000)
	time.Sleep(40 * time.Millisecond)
	disc.events <- QueryResultEvent{Nodes: []*enode.Node{node}}

	events := drain(pm)
	require.Equal(t, 2, len(events))
	// Discovery-derived directives come before timer-derived ones.
	assert.Equal(t, EventDial, events[0].Kind)
	assert.Equal(t, dialed, events[0].PeerID)
	assert.Equal(t, EventPing, events[1].Kind)
	assert.Equal(t, connected, events[1].PeerID)
}

func TestUnknownPeerEventsAreAbsorbed(t *testing.T) {
	hook := logTest.NewGlobal()
	disc := newMockDiscovery()
	pm := NewPeerManager(quietConfig(), peers.NewStatus(), disc)
	defer pm.Stop()

	ghost := peer.ID("ghost")

	pm.MetaDataResponse(ghost, &types.MetaData{SeqNumber: 1, Attnets: bitfield.NewBitvector64()})
	require.LogsContain(t, hook, "Received METADATA from an unknown peer")

	pm.PingRequest(ghost, 1)
	require.LogsContain(t, hook, "Received a PING from an unknown peer")

	pm.PongResponse(ghost, 1)
	require.LogsContain(t, hook, "Received a PONG from an unknown peer")

	pm.Identify(ghost, &types.IdentifyInfo{AgentVersion: "Lighthouse/v0.1.2/x86_64-linux"})
	require.LogsContain(t, hook, "Received an Identify response from an unknown peer")

	_, ok := pm.Poll()
	assert.Equal(t, false, ok, "unknown-peer events produced directives")
	assert.Equal(t, 0, len(pm.Peers().All()), "unknown-peer events created records")
}

func TestStaleMetadataDropped(t *testing.T) {
	// Stale metadata is logged at debug level; let the hook see it.
	level := logrus.GetLevel()
	logrus.SetLevel(logrus.DebugLevel)
	defer logrus.SetLevel(level)
	hook := logTest.NewGlobal()
	disc := newMockDiscovery()
	db := peers.NewStatus()
	pm := NewPeerManager(quietConfig(), db, disc)
	defer pm.Stop()

	pid := peer.ID("peer1")
	pm.ConnectIngoing(pid)
	pm.MetaDataResponse(pid, &types.MetaData{SeqNumber: 5, Attnets: bitfield.NewBitvector64()})
	pm.MetaDataResponse(pid, &types.MetaData{SeqNumber: 3, Attnets: bitfield.NewBitvector64()})
	require.LogsContain(t, hook, "Received old metadata")

	md, err := db.Metadata(pid)
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Equal(t, uint64(5), md.SeqNumber)
}

func TestIdentifyUpdatesPeer(t *testing.T) {
	disc := newMockDiscovery()
	db := peers.NewStatus()
	pm := NewPeerManager(quietConfig(), db, disc)
	defer pm.Stop()

	pid := peer.ID("peer1")
	pm.ConnectIngoing(pid)
	pm.Identify(pid, &types.IdentifyInfo{AgentVersion: "Prysm/v1.0.0/abcdef"})

	client, err := db.Client(pid)
	require.NoError(t, err)
	assert.Equal(t, peers.ClientPrysm, client.Kind)
}

func TestDiscoverSubnetPeersExtendsAndForwards(t *testing.T) {
	disc := newMockDiscovery()
	db := peers.NewStatus()
	pm := NewPeerManager(quietConfig(), db, disc)
	defer pm.Stop()

	pid := peer.ID("peer1")
	pm.ConnectIngoing(pid)
	attnets := bitfield.NewBitvector64()
	attnets.SetBitAt(4, true)
	_, err := db.SetMetadata(pid, &types.MetaData{SeqNumber: 1, Attnets: attnets})
	require.NoError(t, err)

	minTTL := time.Now().Add(time.Hour)
	pm.DiscoverSubnetPeers(4, &minTTL)

	got, err := db.MinTTL(pid)
	require.NoError(t, err)
	assert.Equal(t, minTTL, got)
	assert.DeepEqual(t, []uint64{4}, disc.subnetSearches)
}

func TestAddressesOfPeerFiltersUDP(t *testing.T) {
	disc := newMockDiscovery()
	pm := NewPeerManager(quietConfig(), peers.NewStatus(), disc)
	defer pm.Stop()

	node, pid := testNode(t, 13000, 12000)
	disc.nodes[pid] = node

	addrs := pm.AddressesOfPeer(pid)
	require.Equal(t, 1, len(addrs))
	assert.Equal(t, "/ip4/127.0.0.1/tcp/13000", addrs[0].String())

	// An unknown peer resolves to no addresses.
	assert.Equal(t, 0, len(pm.AddressesOfPeer(peer.ID("ghost"))))
}

func TestNextBlocksUntilDirective(t *testing.T) {
	disc := newMockDiscovery()
	pm := NewPeerManager(quietConfig(), peers.NewStatus(), disc)
	defer pm.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	node, pid := testNode(t, 13000, 12000)
	go func() {
		time.Sleep(20 * time.Millisecond)
		disc.events <- QueryResultEvent{Nodes: []*enode.Node{node}}
	}()

	ev, err := pm.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventDial, ev.Kind)
	assert.Equal(t, pid, ev.PeerID)
}

func TestNextHonorsContext(t *testing.T) {
	disc := newMockDiscovery()
	pm := NewPeerManager(quietConfig(), peers.NewStatus(), disc)
	defer pm.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pm.Next(ctx)
	assert.ErrorContains(t, context.DeadlineExceeded.Error(), err)
}

func TestHeartbeatTimesOutDialingPeers(t *testing.T) {
	cfg := quietConfig()
	cfg.HeartbeatInterval = 30 * time.Millisecond
	cfg.DialTimeout = 10 * time.Millisecond
	disc := newMockDiscovery()
	db := peers.NewStatus()
	pm := NewPeerManager(cfg, db, disc)
	defer pm.Stop()

	pid := peer.ID("peer1")
	pm.DialingPeer(pid)
	time.Sleep(60 * time.Millisecond)
	drain(pm)

	state, err := db.ConnectionState(pid)
	require.NoError(t, err)
	assert.Equal(t, peers.PeerDisconnected, state)
}

func TestPeerActionMapping(t *testing.T) {
	tests := []struct {
		name     string
		protocol types.Protocol
		err      *types.RPCError
		action   PeerAction
		reported bool
	}{
		{name: "incomplete stream", protocol: types.ProtocolStatus, err: &types.RPCError{Kind: types.RPCIncompleteStream}, action: PeerActionMidToleranceError, reported: true},
		{name: "internal error", protocol: types.ProtocolStatus, err: &types.RPCError{Kind: types.RPCInternalError}, reported: false},
		{name: "handler rejected", protocol: types.ProtocolPing, err: &types.RPCError{Kind: types.RPCHandlerRejected}, reported: false},
		{name: "invalid data", protocol: types.ProtocolGoodbye, err: &types.RPCError{Kind: types.RPCInvalidData}, action: PeerActionFatal, reported: true},
		{name: "io error", protocol: types.ProtocolStatus, err: &types.RPCError{Kind: types.RPCIoError}, action: PeerActionHighToleranceError, reported: true},
		{name: "error response unknown", protocol: types.ProtocolStatus, err: &types.RPCError{Kind: types.RPCErrorResponse, Code: types.CodeUnknown}, action: PeerActionHighToleranceError, reported: true},
		{name: "error response server error", protocol: types.ProtocolStatus, err: &types.RPCError{Kind: types.RPCErrorResponse, Code: types.CodeServerError}, action: PeerActionMidToleranceError, reported: true},
		{name: "error response invalid request", protocol: types.ProtocolStatus, err: &types.RPCError{Kind: types.RPCErrorResponse, Code: types.CodeInvalidRequest}, action: PeerActionLowToleranceError, reported: true},
		{name: "ssz decode error", protocol: types.ProtocolMetaData, err: &types.RPCError{Kind: types.RPCSSZDecodeError}, action: PeerActionFatal, reported: true},
		{name: "negotiation timeout", protocol: types.ProtocolStatus, err: &types.RPCError{Kind: types.RPCNegotiationTimeout}, action: PeerActionHighToleranceError, reported: true},
		{name: "unsupported ping", protocol: types.ProtocolPing, err: &types.RPCError{Kind: types.RPCUnsupportedProtocol}, action: PeerActionFatal, reported: true},
		{name: "unsupported metadata", protocol: types.ProtocolMetaData, err: &types.RPCError{Kind: types.RPCUnsupportedProtocol}, action: PeerActionLowToleranceError, reported: true},
		{name: "unsupported status", protocol: types.ProtocolStatus, err: &types.RPCError{Kind: types.RPCUnsupportedProtocol}, action: PeerActionLowToleranceError, reported: true},
		{name: "unsupported blocks by range", protocol: types.ProtocolBlocksByRange, err: &types.RPCError{Kind: types.RPCUnsupportedProtocol}, reported: false},
		{name: "unsupported blocks by root", protocol: types.ProtocolBlocksByRoot, err: &types.RPCError{Kind: types.RPCUnsupportedProtocol}, reported: false},
		{name: "unsupported goodbye", protocol: types.ProtocolGoodbye, err: &types.RPCError{Kind: types.RPCUnsupportedProtocol}, reported: false},
		{name: "stream timeout ping", protocol: types.ProtocolPing, err: &types.RPCError{Kind: types.RPCStreamTimeout}, action: PeerActionLowToleranceError, reported: true},
		{name: "stream timeout blocks by range", protocol: types.ProtocolBlocksByRange, err: &types.RPCError{Kind: types.RPCStreamTimeout}, action: PeerActionMidToleranceError, reported: true},
		{name: "stream timeout blocks by root", protocol: types.ProtocolBlocksByRoot, err: &types.RPCError{Kind: types.RPCStreamTimeout}, action: PeerActionMidToleranceError, reported: true},
		{name: "stream timeout goodbye", protocol: types.ProtocolGoodbye, err: &types.RPCError{Kind: types.RPCStreamTimeout}, reported: false},
		{name: "stream timeout metadata", protocol: types.ProtocolMetaData, err: &types.RPCError{Kind: types.RPCStreamTimeout}, reported: false},
		{name: "stream timeout status", protocol: types.ProtocolStatus, err: &types.RPCError{Kind: types.RPCStreamTimeout}, reported: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, reported := peerActionFor(tt.protocol, tt.err)
			require.Equal(t, tt.reported, reported)
			if tt.reported {
				assert.Equal(t, tt.action, action)
			}
		})
	}
}

func TestRepChange(t *testing.T) {
	assert.Equal(t, -peers.MaxReputation, PeerActionFatal.RepChange())
	assert.Equal(t, -15, PeerActionLowToleranceError.RepChange())
	assert.Equal(t, -8, PeerActionMidToleranceError.RepChange())
	assert.Equal(t, -5, PeerActionHighToleranceError.RepChange())
	assert.Equal(t, 2, PeerActionValidMessage.RepChange())
}
