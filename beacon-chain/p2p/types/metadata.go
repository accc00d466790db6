package types

import "github.com/prysmaticlabs/go-bitfield"

// MetaData mirrors the Eth2 METADATA response: a sequence number that the
// remote bumps whenever its metadata changes, and the bitfield of attestation
// subnets it serves.
type MetaData struct {
	SeqNumber uint64
	Attnets   bitfield.Bitvector64
}

// Copy returns a deep copy of the metadata.
func (m *MetaData) Copy() *MetaData {
	if m == nil {
		return nil
	}
	attnets := bitfield.Bitvector64{}
	if m.Attnets != nil {
		attnets = make(bitfield.Bitvector64, len(m.Attnets))
		copy(attnets, m.Attnets)
	}
	return &MetaData{
		SeqNumber: m.SeqNumber,
		Attnets:   attnets,
	}
}
