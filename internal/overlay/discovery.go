package overlay

import (
	"context"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
)

// rediscoverAfter suppresses repeated answers for the same peer.
const rediscoverAfter = time.Minute

// discovery turns mDNS answers and DHT rendezvous results into
// PeersDiscovered events. A peer is reported again once it disconnects or
// rediscoverAfter has passed.
type discovery struct {
	h       host.Host
	service mdns.Service
	emit    func(Event)
	now     func() time.Time

	mu   sync.Mutex
	seen map[peer.ID]time.Time

	notifiee *network.NotifyBundle
}

func newDiscovery(h host.Host, emit func(Event)) *discovery {
	d := &discovery{
		h:    h,
		emit: emit,
		now:  time.Now,
		seen: make(map[peer.ID]time.Time),
	}
	d.notifiee = &network.NotifyBundle{
		DisconnectedF: func(_ network.Network, conn network.Conn) {
			d.forget(conn.RemotePeer())
		},
	}
	h.Network().Notify(d.notifiee)
	return d
}

func (d *discovery) startMDNS(serviceName string) error {
	d.service = mdns.NewMdnsService(d.h, serviceName, d)
	if err := d.service.Start(); err != nil {
		d.service = nil
		return err
	}
	return nil
}

// rendezvous advertises ns through the DHT and polls it for other peers
// until ctx is done.
func (d *discovery) rendezvous(ctx context.Context, rd *drouting.RoutingDiscovery, ns string, interval time.Duration) {
	dutil.Advertise(ctx, rd, ns)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			peerChan, err := rd.FindPeers(ctx, ns)
			if err != nil {
				log.Debugf("Rendezvous lookup for %s failed: %v", ns, err)
				continue
			}
			for pi := range peerChan {
				d.HandlePeerFound(pi)
			}
		}
	}
}

func (d *discovery) close() error {
	d.h.Network().StopNotify(d.notifiee)
	if d.service == nil {
		return nil
	}
	return d.service.Close()
}

// HandlePeerFound implements mdns.Notifee.
func (d *discovery) HandlePeerFound(pi peer.AddrInfo) {
	if ev, ok := d.found(pi); ok {
		d.emit(ev)
	}
}

func (d *discovery) found(pi peer.AddrInfo) (PeersDiscovered, bool) {
	if pi.ID == d.h.ID() || len(pi.Addrs) == 0 {
		return PeersDiscovered{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if last, ok := d.seen[pi.ID]; ok && now.Sub(last) < rediscoverAfter {
		return PeersDiscovered{}, false
	}
	d.seen[pi.ID] = now

	log.Debugf("Discovered peer: %s", pi.ID)
	ev := PeersDiscovered{Peers: make([]PeerAddr, 0, len(pi.Addrs))}
	for _, a := range pi.Addrs {
		ev.Peers = append(ev.Peers, PeerAddr{ID: pi.ID, Addr: a})
	}
	return ev, true
}

func (d *discovery) forget(id peer.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}
