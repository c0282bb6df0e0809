package overlay

import (
	"errors"
	"fmt"
	"strings"

	lprecord "github.com/libp2p/go-libp2p-record"

	"github.com/spacedatanetwork/sdn-trust/internal/record"
)

// Namespace is the DHT key namespace trust records are stored under.
const Namespace = "trust"

var errWrongNamespace = errors.New("key is not in the trust namespace")

// DHTKey maps raw IdentityKey bytes to the namespaced DHT key.
func DHTKey(key []byte) string {
	return "/" + Namespace + "/" + string(key)
}

// SplitDHTKey recovers the raw key bytes from a namespaced DHT key.
func SplitDHTKey(k string) ([]byte, error) {
	ns, rest, err := lprecord.SplitKey(k)
	if err != nil {
		return nil, err
	}
	if ns != Namespace {
		return nil, errWrongNamespace
	}
	return []byte(rest), nil
}

// Validator checks that DHT records in the trust namespace carry a
// well-formed IdentityKey and TrustValue. Signatures are not verified.
type Validator struct{}

var _ lprecord.Validator = Validator{}

// Validate implements lprecord.Validator.
func (Validator) Validate(key string, value []byte) error {
	raw, err := SplitDHTKey(key)
	if err != nil {
		return err
	}
	if _, err := record.DecodeIdentityKey(raw); err != nil {
		return err
	}
	if _, err := record.DecodeTrustValue(value); err != nil {
		return err
	}
	return nil
}

// Select implements lprecord.Validator. A later publication supersedes an
// earlier one, so the first well-formed value (the incoming one) wins.
func (v Validator) Select(key string, values [][]byte) (int, error) {
	var errs []string
	for i, val := range values {
		err := v.Validate(key, val)
		if err == nil {
			return i, nil
		}
		errs = append(errs, err.Error())
	}
	return 0, fmt.Errorf("no valid trust value among %d: %s", len(values), strings.Join(errs, "; "))
}
