package p2p

import (
	"github.com/chrysalis-labs/chrysalis/beacon-chain/p2p/peers"
	"github.com/chrysalis-labs/chrysalis/beacon-chain/p2p/types"
)

// PeerAction is a qualitative event a peer performed which adjusts its
// reputation. The number of variants stays low and somewhat generic so the
// effect of reputation changes remains easy to assess.
type PeerAction int

const (
	// PeerActionFatal bans the peer outright.
	PeerActionFatal PeerAction = iota
	// PeerActionLowToleranceError is an error we tolerate only a few times.
	PeerActionLowToleranceError
	// PeerActionMidToleranceError is an error we tolerate around ten times.
	PeerActionMidToleranceError
	// PeerActionHighToleranceError is an error we tolerate around fifteen
	// times.
	PeerActionHighToleranceError
	// PeerActionValidMessage rewards an expected, well-formed message.
	PeerActionValidMessage
)

// String returns the action name used in logs.
func (a PeerAction) String() string {
	switch a {
	case PeerActionFatal:
		return "fatal"
	case PeerActionLowToleranceError:
		return "low_tolerance_error"
	case PeerActionMidToleranceError:
		return "mid_tolerance_error"
	case PeerActionHighToleranceError:
		return "high_tolerance_error"
	case PeerActionValidMessage:
		return "valid_message"
	default:
		return "unknown"
	}
}

// RepChange returns the reputation delta associated with the action. Fatal
// saturates the reputation to zero.
func (a PeerAction) RepChange() int {
	switch a {
	case PeerActionFatal:
		return -peers.MaxReputation
	case PeerActionLowToleranceError:
		return -15
	case PeerActionMidToleranceError:
		return -8
	case PeerActionHighToleranceError:
		return -5
	case PeerActionValidMessage:
		return 2
	default:
		return 0
	}
}

// peerActionFor maps an RPC-layer failure to the action it warrants. The
// second return value is false when the error carries no blame for the remote
// (our fault, or a protocol/error pairing we ignore).
func peerActionFor(protocol types.Protocol, rpcErr *types.RPCError) (PeerAction, bool) {
	switch rpcErr.Kind {
	case types.RPCIncompleteStream:
		// They closed early, this could mean poor connection.
		return PeerActionMidToleranceError, true
	case types.RPCInternalError, types.RPCHandlerRejected:
		// Our fault. Do nothing.
		return 0, false
	case types.RPCInvalidData:
		// The peer is not complying with the protocol.
		return PeerActionFatal, true
	case types.RPCIoError:
		// This could be their fault or ours, so we tolerate this.
		return PeerActionHighToleranceError, true
	case types.RPCErrorResponse:
		switch rpcErr.Code {
		case types.CodeServerError:
			return PeerActionMidToleranceError, true
		case types.CodeInvalidRequest:
			return PeerActionLowToleranceError, true
		default:
			return PeerActionHighToleranceError, true
		}
	case types.RPCSSZDecodeError:
		return PeerActionFatal, true
	case types.RPCNegotiationTimeout:
		return PeerActionHighToleranceError, true
	case types.RPCUnsupportedProtocol:
		// Not supporting a protocol isn't malicious in general, but a peer
		// that cannot answer a PING is unfit to keep talking to.
		switch protocol {
		case types.ProtocolPing:
			return PeerActionFatal, true
		case types.ProtocolMetaData, types.ProtocolStatus:
			return PeerActionLowToleranceError, true
		default:
			return 0, false
		}
	case types.RPCStreamTimeout:
		switch protocol {
		case types.ProtocolPing:
			return PeerActionLowToleranceError, true
		case types.ProtocolBlocksByRange, types.ProtocolBlocksByRoot:
			return PeerActionMidToleranceError, true
		default:
			return 0, false
		}
	default:
		return 0, false
	}
}
