// Package bootstrap parses the configured bootstrap peers and dials them.
// Only addresses that pin a peer ID are used, so the security handshake can
// verify the remote identity.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

var log = logging.Logger("sdn-trust-bootstrap")

// Dialer connects to a peer.
type Dialer interface {
	Connect(ctx context.Context, ai peer.AddrInfo) error
}

// ParseAddress parses one bootstrap multiaddr. It fails when the address
// is malformed or carries no /p2p/ component.
func ParseAddress(addr string) (peer.AddrInfo, error) {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("invalid multiaddr: %w", err)
	}
	if !hasPeerID(addr) {
		return peer.AddrInfo{}, fmt.Errorf("bootstrap address %s lacks peer ID: use %s/p2p/<PEER_ID>", addr, addr)
	}
	ai, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("failed to parse peer info: %w", err)
	}
	return *ai, nil
}

// ParseAddresses parses every address, logging and skipping the ones that
// cannot be used. Addresses for the same peer are merged.
func ParseAddresses(addrs []string) []peer.AddrInfo {
	infos := make([]peer.AddrInfo, 0, len(addrs))
	index := make(map[peer.ID]int)
	for _, addr := range addrs {
		ai, err := ParseAddress(addr)
		if err != nil {
			log.Warnf("Skipping bootstrap address: %v", err)
			continue
		}
		if i, ok := index[ai.ID]; ok {
			infos[i].Addrs = append(infos[i].Addrs, ai.Addrs...)
			continue
		}
		index[ai.ID] = len(infos)
		infos = append(infos, ai)
	}
	return infos
}

func hasPeerID(addr string) bool {
	return strings.Contains(addr, "/p2p/") || strings.Contains(addr, "/ipfs/")
}

// Result is the outcome of one bootstrap dial.
type Result struct {
	PeerID peer.ID
	Err    error
}

// ConnectAll dials every peer concurrently and returns one result per peer,
// in input order.
func ConnectAll(ctx context.Context, d Dialer, peers []peer.AddrInfo) []Result {
	results := make([]Result, len(peers))
	var wg sync.WaitGroup
	for i, ai := range peers {
		wg.Add(1)
		go func(i int, ai peer.AddrInfo) {
			defer wg.Done()
			err := d.Connect(ctx, ai)
			if err != nil {
				log.Warnf("Failed to connect to bootstrap peer %s: %v", ai.ID, err)
			} else {
				log.Infof("Connected to bootstrap peer %s (peer ID verified)", ai.ID)
			}
			results[i] = Result{PeerID: ai.ID, Err: err}
		}(i, ai)
	}
	wg.Wait()
	return results
}
