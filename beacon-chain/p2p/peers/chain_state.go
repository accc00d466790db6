package peers

// ChainState is the latest chain status reported by a peer through the STATUS
// handshake. The wire representation belongs to the RPC layer; this is the
// decoded view the manager stores.
type ChainState struct {
	ForkDigest     [4]byte
	HeadSlot       uint64
	HeadRoot       [32]byte
	FinalizedEpoch uint64
	FinalizedRoot  [32]byte
}
