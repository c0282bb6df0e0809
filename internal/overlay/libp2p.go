package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ipfs/go-cid"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	libp2ptls "github.com/libp2p/go-libp2p/p2p/security/tls"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/libp2p/go-libp2p/p2p/transport/websocket"
	"github.com/multiformats/go-multiaddr"
	mh "github.com/multiformats/go-multihash"

	"github.com/spacedatanetwork/sdn-trust/internal/record"
)

var log = logging.Logger("sdn-trust-overlay")

// eventBuffer bounds how far the network may run ahead of the consumer.
const eventBuffer = 256

const (
	defaultProtocolPrefix = "/sdn-trust"
	defaultQueryTimeout   = 30 * time.Second
	defaultMaxConns       = 400
	defaultRendezvousPoll = 30 * time.Second
)

// Options configures a Libp2p overlay.
type Options struct {
	ListenAddrs     []string
	MaxConns        int
	ProtocolPrefix  string
	MDNSServiceName string
	BootstrapPeers  []peer.AddrInfo
	QueryTimeout    time.Duration
	RecordMaxAge    time.Duration

	// Rendezvous is a namespace advertised through the DHT so peers outside
	// the local network find each other. Empty disables it.
	Rendezvous         string
	RendezvousInterval time.Duration

	// PublishRetry bounds how long replication keeps retrying while no
	// peers are reachable. Zero disables retrying.
	PublishRetry time.Duration
}

// Libp2p is an Overlay backed by a libp2p host, a Kademlia DHT in server
// mode and mDNS local discovery.
type Libp2p struct {
	host   host.Host
	dht    *dht.IpfsDHT
	store  *RecordStore
	opts   Options
	listen []multiaddr.Multiaddr

	events chan Event
	disc   *discovery

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var (
	_ Overlay = (*Libp2p)(nil)
	_ Querier = (*Libp2p)(nil)
)

// NewLibp2p builds the host and DHT. Nothing listens until Listen is called.
func NewLibp2p(ctx context.Context, privKey crypto.PrivKey, opts Options) (*Libp2p, error) {
	if opts.ProtocolPrefix == "" {
		opts.ProtocolPrefix = defaultProtocolPrefix
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = defaultMaxConns
	}
	if opts.RendezvousInterval <= 0 {
		opts.RendezvousInterval = defaultRendezvousPoll
	}

	listenAddrs := make([]multiaddr.Multiaddr, 0, len(opts.ListenAddrs))
	for _, addr := range opts.ListenAddrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid listen address %s: %v", ErrSetup, addr, err)
		}
		listenAddrs = append(listenAddrs, ma)
	}

	lowWater := opts.MaxConns / 2
	connMgr, err := connmgr.NewConnManager(lowWater, opts.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("%w: connection manager: %v", ErrSetup, err)
	}

	octx, cancel := context.WithCancel(ctx)
	l := &Libp2p{
		opts:   opts,
		listen: listenAddrs,
		events: make(chan Event, eventBuffer),
		ctx:    octx,
		cancel: cancel,
	}

	store := dssync.MutexWrap(ds.NewMapDatastore())
	l.store = NewRecordStore(store, opts.RecordMaxAge)

	l.host, err = libp2p.New(
		libp2p.Identity(privKey),
		libp2p.NoListenAddrs,
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Transport(websocket.New),
		libp2p.Security(libp2ptls.ID, libp2ptls.New),
		libp2p.Security(noise.ID, noise.New),
		libp2p.ConnectionManager(connMgr),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: libp2p host: %v", ErrSetup, err)
	}

	// A custom prefix is required: the DHT refuses extra validators on the
	// public /ipfs network.
	dhtOpts := []dht.Option{
		dht.Mode(dht.ModeServer),
		dht.ProtocolPrefix(protocol.ID(opts.ProtocolPrefix)),
		dht.Datastore(store),
		dht.NamespacedValidator(Namespace, Validator{}),
		dht.BootstrapPeers(opts.BootstrapPeers...),
	}
	if opts.RecordMaxAge > 0 {
		dhtOpts = append(dhtOpts, dht.MaxRecordAge(opts.RecordMaxAge))
	}
	l.dht, err = dht.New(octx, l.host, dhtOpts...)
	if err != nil {
		_ = l.host.Close()
		cancel()
		return nil, fmt.Errorf("%w: dht: %v", ErrSetup, err)
	}

	return l, nil
}

// Listen binds the configured addresses and starts discovery. Every bound
// address is reported as a ListenAddrBound event.
func (l *Libp2p) Listen(ctx context.Context) error {
	notifiee := &network.NotifyBundle{
		ListenF: func(_ network.Network, addr multiaddr.Multiaddr) {
			l.emit(ListenAddrBound{Addr: addr})
		},
	}
	l.host.Network().Notify(notifiee)

	if err := l.host.Network().Listen(l.listen...); err != nil {
		l.host.Network().StopNotify(notifiee)
		return fmt.Errorf("%w: listen: %v", ErrSetup, err)
	}

	if err := l.dht.Bootstrap(ctx); err != nil {
		return fmt.Errorf("%w: dht bootstrap: %v", ErrSetup, err)
	}

	l.disc = newDiscovery(l.host, l.emit)
	if l.opts.MDNSServiceName != "" {
		if err := l.disc.startMDNS(l.opts.MDNSServiceName); err != nil {
			log.Warnf("Failed to start mDNS service: %v", err)
		} else {
			log.Infof("mDNS discovery started with service name: %s", l.opts.MDNSServiceName)
		}
	}
	if l.opts.Rendezvous != "" {
		rd := drouting.NewRoutingDiscovery(l.dht)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.disc.rendezvous(l.ctx, rd, l.opts.Rendezvous, l.opts.RendezvousInterval)
		}()
		log.Infof("DHT rendezvous started on %s", l.opts.Rendezvous)
	}
	return nil
}

// emit delivers ev unless the overlay is shutting down.
func (l *Libp2p) emit(ev Event) {
	select {
	case l.events <- ev:
	case <-l.ctx.Done():
	}
}

// Events implements Overlay.
func (l *Libp2p) Events() <-chan Event {
	return l.events
}

// RegisterPeerAddress implements Overlay. The DHT adds the peer to its
// routing table once the connection is up.
func (l *Libp2p) RegisterPeerAddress(id peer.ID, addr multiaddr.Multiaddr) {
	if id == l.host.ID() || l.ctx.Err() != nil {
		return
	}
	l.host.Peerstore().AddAddr(id, addr, peerstore.PermanentAddrTTL)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(l.ctx, l.opts.QueryTimeout)
		defer cancel()
		if err := l.host.Connect(ctx, peer.AddrInfo{ID: id, Addrs: []multiaddr.Multiaddr{addr}}); err != nil {
			log.Debugf("Failed to connect to %s at %s: %v", id, addr, err)
		}
	}()
}

// PublishRecord implements Overlay. The record is validated and stored
// locally before returning; replication happens in the background.
func (l *Libp2p) PublishRecord(ctx context.Context, key, value []byte, q Quorum) error {
	if l.ctx.Err() != nil {
		return ErrClosed
	}
	k := DHTKey(key)
	if err := (Validator{}).Validate(k, value); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	if err := l.store.Put(ctx, key, value); err != nil {
		return fmt.Errorf("%w: local store: %v", ErrPublish, err)
	}

	key = append([]byte(nil), key...)
	value = append([]byte(nil), value...)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.replicate(k, value, q); err != nil {
			l.emit(QueryCompleted{Result: QueryFailed{Op: "put", Key: key, Err: err}})
			return
		}
		l.emit(QueryCompleted{Result: PutAck{Key: key}})
	}()
	return nil
}

// replicate pushes the record to the closest peers. The DHT has no
// put-side quorum; a successful PutValue means the closest peers were
// found and sent the record, which satisfies QuorumOne.
func (l *Libp2p) replicate(k string, value []byte, q Quorum) error {
	if q != QuorumOne {
		log.Debugf("Quorum %s requested, replicating with DHT defaults", q)
	}
	op := func() error {
		ctx, cancel := context.WithTimeout(l.ctx, l.opts.QueryTimeout)
		defer cancel()
		err := l.dht.PutValue(ctx, k, value)
		if err != nil && l.ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	if l.opts.PublishRetry <= 0 {
		return op()
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = l.opts.PublishRetry
	return backoff.RetryNotify(op, backoff.WithContext(b, l.ctx), func(err error, d time.Duration) {
		log.Debugf("Replication failed, retrying in %s: %v", d, err)
	})
}

// LocalRecords implements Overlay.
func (l *Libp2p) LocalRecords(ctx context.Context) ([]record.Record, error) {
	return l.store.Records(ctx)
}

// GetRecord implements Querier.
func (l *Libp2p) GetRecord(ctx context.Context, key []byte) {
	l.query(ctx, "get", key, func(ctx context.Context) (QueryResult, error) {
		val, err := l.dht.GetValue(ctx, DHTKey(key))
		if err != nil {
			return nil, err
		}
		return RecordFound{Records: []record.Record{{Key: key, Value: val}}}, nil
	})
}

// FindProviders implements Querier.
func (l *Libp2p) FindProviders(ctx context.Context, key []byte) {
	l.query(ctx, "find-providers", key, func(ctx context.Context) (QueryResult, error) {
		c, err := ProviderCID(key)
		if err != nil {
			return nil, err
		}
		infos, err := l.dht.FindProviders(ctx, c)
		if err != nil {
			return nil, err
		}
		ids := make([]peer.ID, 0, len(infos))
		for _, ai := range infos {
			ids = append(ids, ai.ID)
		}
		return ProvidersFound{Key: key, Providers: ids}, nil
	})
}

// StartProviding implements Querier.
func (l *Libp2p) StartProviding(ctx context.Context, key []byte) {
	l.query(ctx, "provide", key, func(ctx context.Context) (QueryResult, error) {
		c, err := ProviderCID(key)
		if err != nil {
			return nil, err
		}
		if err := l.dht.Provide(ctx, c, true); err != nil {
			return nil, err
		}
		return ProvideAck{Key: key}, nil
	})
}

func (l *Libp2p) query(ctx context.Context, op string, key []byte, fn func(context.Context) (QueryResult, error)) {
	if l.ctx.Err() != nil {
		return
	}
	key = append([]byte(nil), key...)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		qctx, cancel := context.WithTimeout(ctx, l.opts.QueryTimeout)
		defer cancel()
		res, err := fn(qctx)
		if err != nil {
			res = QueryFailed{Op: op, Key: key, Err: err}
		}
		l.emit(QueryCompleted{Result: res})
	}()
}

// ProviderCID derives the content ID used to advertise a raw key.
func ProviderCID(key []byte) (cid.Cid, error) {
	hash, err := mh.Sum(key, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, hash), nil
}

// Connect dials a known peer, used for bootstrap peers.
func (l *Libp2p) Connect(ctx context.Context, ai peer.AddrInfo) error {
	return l.host.Connect(ctx, ai)
}

// ID returns the local peer ID.
func (l *Libp2p) ID() peer.ID {
	return l.host.ID()
}

// Addrs returns the addresses the host is listening on.
func (l *Libp2p) Addrs() []multiaddr.Multiaddr {
	return l.host.Addrs()
}

// Close stops discovery, the DHT and the host.
func (l *Libp2p) Close() error {
	l.cancel()
	if l.disc != nil {
		if err := l.disc.close(); err != nil {
			log.Warnf("Error closing discovery: %v", err)
		}
	}
	l.wg.Wait()

	var errs []error
	if err := l.dht.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close dht: %w", err))
	}
	if err := l.host.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close host: %w", err))
	}
	return errors.Join(errs...)
}
