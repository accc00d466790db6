// Package main provides a standalone discv5 bootnode. It answers discovery
// queries so that fresh nodes can populate their routing tables, and speaks
// no other protocol.
package main

import (
	"context"
	"crypto/ecdsa"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p/discover"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/chrysalis-labs/chrysalis/async"
)

var log = logrus.WithField("prefix", "bootnode")

var (
	listenAddrFlag = &cli.StringFlag{
		Name:  "listen-address",
		Usage: "The address the bootnode will listen for UDP connections",
		Value: "0.0.0.0",
	}
	portFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "The UDP port to listen on",
		Value: 9000,
	}
	bootNodesFlag = &cli.StringFlag{
		Name:  "boot-nodes",
		Usage: "One or more comma-delimited ENR strings of peers to initially add to the local routing table",
	}
	enrAddressFlag = &cli.StringFlag{
		Name:  "enr-address",
		Usage: "The external IP address to broadcast to other peers on how to reach this node",
	}
	enrPortFlag = &cli.IntFlag{
		Name:  "enr-port",
		Usage: "The UDP port of the boot node's ENR. Set this only if the external port differs from the listening port",
	}
	enrAutoUpdateFlag = &cli.BoolFlag{
		Name:  "enable-enr-auto-update",
		Usage: "Let discovery update the node's ENR with the external IP address and port as seen by other peers on the network",
	}
	privateKeyFlag = &cli.StringFlag{
		Name:  "private-key",
		Usage: "Hex-encoded secp256k1 private key. A new key is generated when omitted",
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info, warn, error)",
		Value: "info",
	}
)

func main() {
	app := &cli.App{
		Name:  "bootnode",
		Usage: "Run a discv5 bootnode for the beacon network",
		Flags: []cli.Flag{
			listenAddrFlag,
			portFlag,
			bootNodesFlag,
			enrAddressFlag,
			enrPortFlag,
			enrAutoUpdateFlag,
			privateKeyFlag,
			verbosityFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("Bootnode failed")
	}
}

func run(cliCtx *cli.Context) error {
	formatter := new(prefixed.TextFormatter)
	formatter.TimestampFormat = "2006-01-02 15:04:05"
	formatter.FullTimestamp = true
	logrus.SetFormatter(formatter)
	level, err := logrus.ParseLevel(cliCtx.String(verbosityFlag.Name))
	if err != nil {
		return errors.Wrap(err, "could not parse verbosity")
	}
	logrus.SetLevel(level)

	privKey, err := privateKey(cliCtx.String(privateKeyFlag.Name))
	if err != nil {
		return err
	}

	db, err := enode.OpenDB("")
	if err != nil {
		return errors.Wrap(err, "could not open node database")
	}
	defer db.Close()
	localNode := enode.NewLocalNode(db, privKey)

	if addr := cliCtx.String(enrAddressFlag.Name); addr != "" {
		ip := net.ParseIP(addr)
		if ip == nil {
			return errors.Errorf("invalid enr-address %q", addr)
		}
		if cliCtx.Bool(enrAutoUpdateFlag.Name) {
			localNode.SetFallbackIP(ip)
		} else {
			localNode.SetStaticIP(ip)
		}
	}
	if enrPort := cliCtx.Int(enrPortFlag.Name); enrPort != 0 {
		localNode.SetFallbackUDP(enrPort)
	} else {
		localNode.SetFallbackUDP(cliCtx.Int(portFlag.Name))
	}

	listenIP := net.ParseIP(cliCtx.String(listenAddrFlag.Name))
	if listenIP == nil {
		return errors.Errorf("invalid listen-address %q", cliCtx.String(listenAddrFlag.Name))
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: listenIP, Port: cliCtx.Int(portFlag.Name)})
	if err != nil {
		return errors.Wrap(err, "could not listen for UDP")
	}

	bootNodes, err := parseBootNodes(cliCtx.String(bootNodesFlag.Name))
	if err != nil {
		return err
	}

	listener, err := discover.ListenV5(conn, localNode, discover.Config{
		PrivateKey: privKey,
		Bootnodes:  bootNodes,
	})
	if err != nil {
		return errors.Wrap(err, "could not start discv5 listener")
	}
	defer listener.Close()

	log.WithFields(logrus.Fields{
		"enr":  localNode.Node().String(),
		"id":   localNode.ID().String(),
		"addr": conn.LocalAddr().String(),
	}).Info("Bootnode started")

	ctx, cancel := context.WithCancel(cliCtx.Context)
	defer cancel()
	async.RunEvery(ctx, 30*time.Second, func() {
		log.WithField("count", len(listener.AllNodes())).Debug("Nodes in routing table")
	})

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info("Shutting down")
	return nil
}

func privateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		key, err := gethcrypto.GenerateKey()
		if err != nil {
			return nil, errors.Wrap(err, "could not generate private key")
		}
		return key, nil
	}
	key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "could not parse private key")
	}
	return key, nil
}

func parseBootNodes(list string) ([]*enode.Node, error) {
	if list == "" {
		return nil, nil
	}
	var nodes []*enode.Node
	for _, record := range strings.Split(list, ",") {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		node, err := enode.Parse(enode.ValidSchemes, record)
		if err != nil {
			return nil, errors.Wrapf(err, "could not parse boot node record %q", record)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
