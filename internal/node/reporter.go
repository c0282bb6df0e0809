package node

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/spacedatanetwork/sdn-trust/internal/overlay"
	"github.com/spacedatanetwork/sdn-trust/internal/record"
)

// Reporter receives everything the orchestrator observes. Reporting is
// informational only and never changes orchestrator state.
type Reporter interface {
	ListenAddr(addr multiaddr.Multiaddr)
	ProvidersFound(key []byte, providers []peer.ID)
	RecordFound(rec record.Record)
	PutAck(key []byte)
	ProvideAck(key []byte)
	Diagnostic(result overlay.QueryResult)
	LocalRecords(recs []record.Record)
}

// LogReporter writes reports to the node logger.
type LogReporter struct{}

var _ Reporter = LogReporter{}

func (LogReporter) ListenAddr(addr multiaddr.Multiaddr) {
	log.Infof("Listening on %s", addr)
}

func (LogReporter) ProvidersFound(key []byte, providers []peer.ID) {
	for _, p := range providers {
		log.Infof("Peer %s provides key %x", p, key)
	}
}

func (LogReporter) RecordFound(rec record.Record) {
	log.Infof("Got record %x %x", rec.Key, rec.Value)
}

func (LogReporter) PutAck(key []byte) {
	log.Infof("Successfully put record %x", key)
}

func (LogReporter) ProvideAck(key []byte) {
	log.Infof("Successfully put provider record %x", key)
}

func (LogReporter) Diagnostic(result overlay.QueryResult) {
	log.Warnf("Other query result: %s", describe(result))
}

func (LogReporter) LocalRecords(recs []record.Record) {
	log.Infof("Num local records %d", len(recs))
	for _, r := range recs {
		log.Debugf("Local record: key=%x value=%x publisher=%s expires=%s", r.Key, r.Value, r.Publisher, r.Expires)
	}
}

func describe(result overlay.QueryResult) string {
	if s, ok := result.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%#v", result)
}

// MultiReporter fans every report out to each of its members in order.
type MultiReporter []Reporter

var _ Reporter = MultiReporter(nil)

func (m MultiReporter) ListenAddr(addr multiaddr.Multiaddr) {
	for _, r := range m {
		r.ListenAddr(addr)
	}
}

func (m MultiReporter) ProvidersFound(key []byte, providers []peer.ID) {
	for _, r := range m {
		r.ProvidersFound(key, providers)
	}
}

func (m MultiReporter) RecordFound(rec record.Record) {
	for _, r := range m {
		r.RecordFound(rec)
	}
}

func (m MultiReporter) PutAck(key []byte) {
	for _, r := range m {
		r.PutAck(key)
	}
}

func (m MultiReporter) ProvideAck(key []byte) {
	for _, r := range m {
		r.ProvideAck(key)
	}
}

func (m MultiReporter) Diagnostic(result overlay.QueryResult) {
	for _, r := range m {
		r.Diagnostic(result)
	}
}

func (m MultiReporter) LocalRecords(recs []record.Record) {
	for _, r := range m {
		r.LocalRecords(recs)
	}
}
