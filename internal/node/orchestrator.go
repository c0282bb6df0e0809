// Package node ties overlay events to record publication: it publishes the
// node's trust record whenever peers are discovered and reports the outcome
// of every overlay query.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	logging "github.com/ipfs/go-log/v2"

	"github.com/spacedatanetwork/sdn-trust/internal/metrics"
	"github.com/spacedatanetwork/sdn-trust/internal/overlay"
	"github.com/spacedatanetwork/sdn-trust/internal/record"
)

var log = logging.Logger("sdn-trust-node")

// ErrNoQuerier is returned by lookups when the overlay cannot run queries.
var ErrNoQuerier = errors.New("overlay does not support queries")

// State is the orchestrator lifecycle position. There is no terminal state.
type State int32

const (
	// Starting is the state before any address is bound.
	Starting State = iota
	// Listening means at least one listen address is bound.
	Listening
	// Active means the record has been published to discovered peers.
	Active
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// RecordSink stores records the node observes.
type RecordSink interface {
	Observe(rec record.Record, source string) error
}

// Orchestrator drives publication and discovery over an Overlay. Events are
// handled one at a time, in arrival order, by Run.
type Orchestrator struct {
	overlay  overlay.Overlay
	key      record.IdentityKey
	value    record.TrustValue
	rec      record.Record
	reporter Reporter
	sink     RecordSink
	metrics  *metrics.Metrics

	state atomic.Int32
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReporter replaces the default LogReporter.
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithRecordSink archives every record returned by a lookup.
func WithRecordSink(s RecordSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithMetrics records counters in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an orchestrator publishing key/value through ov.
func New(ov overlay.Overlay, key record.IdentityKey, value record.TrustValue, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		overlay:  ov,
		key:      key,
		value:    value,
		rec:      record.NewRecord(key, value),
		reporter: LogReporter{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Key returns the node's identity key.
func (o *Orchestrator) Key() record.IdentityKey {
	return o.key
}

// Value returns the node's current trust value.
func (o *Orchestrator) Value() record.TrustValue {
	return o.value
}

// Setup starts listening and stores the node record locally. Any error here
// is fatal to the node.
func (o *Orchestrator) Setup(ctx context.Context) error {
	if err := o.overlay.Listen(ctx); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := o.publish(ctx); err != nil {
		return fmt.Errorf("initial publish: %w", err)
	}
	log.Infof("Publishing identity key %s", o.key)
	return nil
}

// Run handles overlay events until ctx is cancelled or the event channel
// closes. Failures while handling an event are reported, never returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	events := o.overlay.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent processes a single overlay event.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev overlay.Event) {
	switch e := ev.(type) {
	case overlay.ListenAddrBound:
		o.reporter.ListenAddr(e.Addr)
		o.state.CompareAndSwap(int32(Starting), int32(Listening))

	case overlay.PeersDiscovered:
		for _, p := range e.Peers {
			o.overlay.RegisterPeerAddress(p.ID, p.Addr)
		}
		if o.metrics != nil {
			o.metrics.PeersDiscovered.Add(float64(len(e.Peers)))
		}
		if err := o.publish(ctx); err != nil {
			log.Warnf("Failed to publish record after discovering %d peer addresses: %v", len(e.Peers), err)
		}
		o.state.Store(int32(Active))

	case overlay.QueryCompleted:
		o.handleResult(e.Result)
		o.inspectLocal(ctx)

	default:
		log.Debugf("Ignoring overlay event %T", ev)
	}
}

func (o *Orchestrator) handleResult(result overlay.QueryResult) {
	kind := "other"
	switch r := result.(type) {
	case overlay.ProvidersFound:
		kind = "providers_found"
		o.reporter.ProvidersFound(r.Key, r.Providers)
	case overlay.RecordFound:
		kind = "record_found"
		for _, rec := range r.Records {
			o.reporter.RecordFound(rec)
			o.observe(rec)
		}
	case overlay.PutAck:
		kind = "put_ack"
		o.reporter.PutAck(r.Key)
	case overlay.ProvideAck:
		kind = "provide_ack"
		o.reporter.ProvideAck(r.Key)
	default:
		o.reporter.Diagnostic(result)
	}
	if o.metrics != nil {
		o.metrics.QueryResults.WithLabelValues(kind).Inc()
	}
}

// observe decodes and archives a record returned by a lookup. Malformed
// records are logged and still archived; the archive flags them invalid.
func (o *Orchestrator) observe(rec record.Record) {
	k, v, err := rec.Decode()
	if err != nil {
		log.Warnf("Record %x does not decode: %v", rec.Key, err)
		if o.metrics != nil {
			o.metrics.DecodeFailures.Inc()
		}
	} else {
		log.Debugf("Trust value for %s: neighbours=[%s %s] scores=%v", k, v.Neighbours[0], v.Neighbours[1], v.Scores)
	}
	if o.sink != nil {
		if err := o.sink.Observe(rec, "lookup"); err != nil {
			log.Warnf("Failed to archive record %x: %v", rec.Key, err)
		}
	}
}

func (o *Orchestrator) inspectLocal(ctx context.Context) {
	recs, err := o.overlay.LocalRecords(ctx)
	if err != nil {
		log.Warnf("Failed to read local records: %v", err)
		return
	}
	o.reporter.LocalRecords(recs)
	if o.metrics != nil {
		o.metrics.LocalRecords.Set(float64(len(recs)))
	}
}

func (o *Orchestrator) publish(ctx context.Context) error {
	err := o.overlay.PublishRecord(ctx, o.rec.Key, o.rec.Value, overlay.QuorumOne)
	if o.metrics != nil {
		if err != nil {
			o.metrics.PublishFailures.Inc()
		} else {
			o.metrics.Published.Inc()
		}
	}
	return err
}

func (o *Orchestrator) querier() (overlay.Querier, error) {
	q, ok := o.overlay.(overlay.Querier)
	if !ok {
		return nil, ErrNoQuerier
	}
	return q, nil
}

// Lookup asks the overlay for the record stored under key. The result
// arrives as a QueryCompleted event.
func (o *Orchestrator) Lookup(ctx context.Context, key record.IdentityKey) error {
	q, err := o.querier()
	if err != nil {
		return err
	}
	q.GetRecord(ctx, key.Bytes())
	return nil
}

// FindProviders asks the overlay which peers provide key.
func (o *Orchestrator) FindProviders(ctx context.Context, key record.IdentityKey) error {
	q, err := o.querier()
	if err != nil {
		return err
	}
	q.FindProviders(ctx, key.Bytes())
	return nil
}

// StartProviding advertises the node's own key as locally provided.
func (o *Orchestrator) StartProviding(ctx context.Context) error {
	q, err := o.querier()
	if err != nil {
		return err
	}
	q.StartProviding(ctx, o.rec.Key)
	return nil
}
