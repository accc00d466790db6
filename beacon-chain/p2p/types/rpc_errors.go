package types

import "fmt"

// Protocol enumerates the Eth2 req/resp protocols an RPC stream can be
// negotiated for. The peer manager never formats these messages; it only uses
// the protocol to weigh RPC failures.
type Protocol int

const (
	// ProtocolStatus is the chain status handshake.
	ProtocolStatus Protocol = iota
	// ProtocolGoodbye is the disconnection notice.
	ProtocolGoodbye
	// ProtocolBlocksByRange requests a range of blocks.
	ProtocolBlocksByRange
	// ProtocolBlocksByRoot requests blocks by their roots.
	ProtocolBlocksByRoot
	// ProtocolPing is the liveness check.
	ProtocolPing
	// ProtocolMetaData requests a peer's metadata.
	ProtocolMetaData
)

// String returns the protocol identifier used in logs.
func (p Protocol) String() string {
	switch p {
	case ProtocolStatus:
		return "status"
	case ProtocolGoodbye:
		return "goodbye"
	case ProtocolBlocksByRange:
		return "beacon_blocks_by_range"
	case ProtocolBlocksByRoot:
		return "beacon_blocks_by_root"
	case ProtocolPing:
		return "ping"
	case ProtocolMetaData:
		return "metadata"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// RPCErrorKind classifies a failure observed on an RPC stream.
type RPCErrorKind int

const (
	// RPCIncompleteStream means the remote closed the stream before the
	// message was complete.
	RPCIncompleteStream RPCErrorKind = iota
	// RPCInternalError is a local handler failure. Our fault.
	RPCInternalError
	// RPCHandlerRejected means the local handler refused the stream. Our fault.
	RPCHandlerRejected
	// RPCInvalidData means the remote sent data violating the protocol.
	RPCInvalidData
	// RPCIoError is a transport-level read or write failure.
	RPCIoError
	// RPCErrorResponse means the remote answered with an error response code.
	RPCErrorResponse
	// RPCSSZDecodeError means the payload could not be SSZ-decoded.
	RPCSSZDecodeError
	// RPCNegotiationTimeout means protocol negotiation timed out.
	RPCNegotiationTimeout
	// RPCUnsupportedProtocol means the remote does not speak the protocol.
	RPCUnsupportedProtocol
	// RPCStreamTimeout means the stream timed out awaiting a message.
	RPCStreamTimeout
)

// ErrorResponseCode is the code carried by an RPCErrorResponse.
type ErrorResponseCode int

const (
	// CodeUnknown is an unrecognized response code.
	CodeUnknown ErrorResponseCode = iota
	// CodeServerError signals a failure on the remote's side.
	CodeServerError
	// CodeInvalidRequest signals the remote judged our request malformed.
	CodeInvalidRequest
)

// RPCError describes a failure on an RPC stream as reported by the RPC layer.
type RPCError struct {
	Kind RPCErrorKind
	// Code is meaningful only when Kind is RPCErrorResponse.
	Code ErrorResponseCode
	// Err is the underlying error, when one exists.
	Err error
}

// Error satisfies the error interface.
func (e *RPCError) Error() string {
	var kind string
	switch e.Kind {
	case RPCIncompleteStream:
		kind = "incomplete stream"
	case RPCInternalError:
		kind = "internal error"
	case RPCHandlerRejected:
		kind = "handler rejected"
	case RPCInvalidData:
		kind = "invalid data"
	case RPCIoError:
		kind = "io error"
	case RPCErrorResponse:
		switch e.Code {
		case CodeServerError:
			kind = "error response: server error"
		case CodeInvalidRequest:
			kind = "error response: invalid request"
		default:
			kind = "error response: unknown"
		}
	case RPCSSZDecodeError:
		kind = "ssz decode error"
	case RPCNegotiationTimeout:
		kind = "negotiation timeout"
	case RPCUnsupportedProtocol:
		kind = "unsupported protocol"
	case RPCStreamTimeout:
		kind = "stream timeout"
	default:
		kind = fmt.Sprintf("unknown(%d)", int(e.Kind))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", kind, e.Err)
	}
	return kind
}
