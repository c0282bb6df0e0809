package overlay

import (
	"context"
	"fmt"
	"strings"
	"time"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"github.com/multiformats/go-base32"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/spacedatanetwork/sdn-trust/internal/record"
)

// providersPrefix is where the DHT keeps provider records in the same datastore.
const providersPrefix = "/providers"

// timeFormat matches the DHT's TimeReceived encoding.
const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

// Field numbers of the DHT Record message.
const (
	fieldKey          protowire.Number = 1
	fieldValue        protowire.Number = 2
	fieldTimeReceived protowire.Number = 5
)

// storedRecord is the DHT's on-disk Record message.
type storedRecord struct {
	key          []byte
	value        []byte
	timeReceived string
}

func (r storedRecord) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	b = protowire.AppendBytes(b, r.key)
	b = protowire.AppendTag(b, fieldValue, protowire.BytesType)
	b = protowire.AppendBytes(b, r.value)
	b = protowire.AppendTag(b, fieldTimeReceived, protowire.BytesType)
	b = protowire.AppendString(b, r.timeReceived)
	return b
}

func unmarshalStoredRecord(b []byte) (storedRecord, error) {
	var r storedRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return storedRecord{}, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return storedRecord{}, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return storedRecord{}, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldKey:
			r.key = append([]byte(nil), v...)
		case fieldValue:
			r.value = append([]byte(nil), v...)
		case fieldTimeReceived:
			r.timeReceived = string(v)
		}
	}
	return r, nil
}

// RecordStore reads and writes trust records in the datastore shared with
// the DHT, using the DHT's own key and record encoding so both see the same
// entries.
type RecordStore struct {
	ds     ds.Datastore
	maxAge time.Duration
	now    func() time.Time
}

// NewRecordStore wraps d. maxAge is used to report record expiry.
func NewRecordStore(d ds.Datastore, maxAge time.Duration) *RecordStore {
	return &RecordStore{ds: d, maxAge: maxAge, now: time.Now}
}

func dsKey(dhtKey string) ds.Key {
	return ds.NewKey(base32.RawStdEncoding.EncodeToString([]byte(dhtKey)))
}

// Put stores value under the raw key, replacing any earlier value.
func (s *RecordStore) Put(ctx context.Context, key, value []byte) error {
	k := DHTKey(key)
	rec := storedRecord{
		key:          []byte(k),
		value:        value,
		timeReceived: time.Now().UTC().Format(timeFormat),
	}
	return s.ds.Put(ctx, dsKey(k), rec.marshal())
}

// Records returns every live trust-namespace record held locally. Entries
// that fail to parse, or are older than maxAge, are skipped; the DHT only
// evicts stale records when they are read through it.
func (s *RecordStore) Records(ctx context.Context) ([]record.Record, error) {
	res, err := s.ds.Query(ctx, query.Query{})
	if err != nil {
		return nil, fmt.Errorf("query datastore: %w", err)
	}
	defer res.Close()

	now := s.now()
	var out []record.Record
	for e := range res.Next() {
		if e.Error != nil {
			return nil, fmt.Errorf("query datastore: %w", e.Error)
		}
		if strings.HasPrefix(e.Key, providersPrefix) {
			continue
		}
		rec, ok := s.parse(e.Key, e.Value)
		if !ok {
			continue
		}
		if !rec.Expires.IsZero() && now.After(rec.Expires) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RecordStore) parse(key string, data []byte) (record.Record, bool) {
	name, err := base32.RawStdEncoding.DecodeString(strings.TrimPrefix(key, "/"))
	if err != nil {
		return record.Record{}, false
	}
	raw, err := SplitDHTKey(string(name))
	if err != nil {
		return record.Record{}, false
	}
	stored, err := unmarshalStoredRecord(data)
	if err != nil {
		log.Debugf("skipping unreadable local record %s: %v", key, err)
		return record.Record{}, false
	}
	rec := record.Record{Key: raw, Value: stored.value}
	if t, err := time.Parse(timeFormat, stored.timeReceived); err == nil && s.maxAge > 0 {
		rec.Expires = t.Add(s.maxAge)
	}
	return rec, true
}
