package p2p

import (
	"crypto/ecdsa"
	"fmt"
	"net"

	btcec "github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
)

// peerIDFromNode derives the libp2p peer id from a discovered node record's
// secp256k1 public key.
func peerIDFromNode(node *enode.Node) (peer.ID, error) {
	pubkey, err := convertToInterfacePubkey(node.Pubkey())
	if err != nil {
		return "", err
	}
	return peer.IDFromPublicKey(pubkey)
}

func convertToInterfacePubkey(pubkey *ecdsa.PublicKey) (crypto.PubKey, error) {
	xVal, yVal := new(btcec.FieldVal), new(btcec.FieldVal)
	if xVal.SetByteSlice(pubkey.X.Bytes()) {
		return nil, errors.Errorf("X value overflows")
	}
	if yVal.SetByteSlice(pubkey.Y.Bytes()) {
		return nil, errors.Errorf("Y value overflows")
	}
	return crypto.UnmarshalSecp256k1PublicKey(btcec.NewPublicKey(xVal, yVal).SerializeUncompressed())
}

// multiAddrsFromNode builds the multiaddrs a node record advertises. Both the
// TCP and UDP endpoints are produced; callers filter what their transport can
// use.
func multiAddrsFromNode(node *enode.Node) []ma.Multiaddr {
	if node.IP() == nil {
		return nil
	}
	var addrs []ma.Multiaddr
	if node.TCP() != 0 {
		addr, err := multiAddrFromIPPort(node.IP(), "tcp", uint(node.TCP()))
		if err == nil {
			addrs = append(addrs, addr)
		} else {
			log.WithError(err).Debug("Could not build tcp multiaddr from node record")
		}
	}
	if node.UDP() != 0 {
		addr, err := multiAddrFromIPPort(node.IP(), "udp", uint(node.UDP()))
		if err == nil {
			addrs = append(addrs, addr)
		} else {
			log.WithError(err).Debug("Could not build udp multiaddr from node record")
		}
	}
	return addrs
}

// multiAddrFromIPPort builds a multiaddr from an IP, a transport name and a
// port.
func multiAddrFromIPPort(ip net.IP, transport string, port uint) (ma.Multiaddr, error) {
	ipType := "ip4"
	if ip.To4() == nil {
		ipType = "ip6"
	}
	return ma.NewMultiaddr(fmt.Sprintf("/%s/%s/%s/%d", ipType, ip.String(), transport, port))
}

// filterUDPAddrs drops every multiaddr containing a UDP component. UDP
// endpoints belong to the discv5 transport and would mislead the TCP-based
// libp2p dialer.
func filterUDPAddrs(addrs []ma.Multiaddr) []ma.Multiaddr {
	filtered := make([]ma.Multiaddr, 0, len(addrs))
	for _, addr := range addrs {
		if _, err := addr.ValueForProtocol(ma.P_UDP); err == nil {
			continue
		}
		filtered = append(filtered, addr)
	}
	return filtered
}
