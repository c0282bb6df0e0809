// Package keys loads and persists the node's libp2p identity key.
package keys

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/crypto"
)

var log = logging.Logger("sdn-trust-keys")

// LoadOrCreate reads the Ed25519 key at path, generating and saving a new
// one when the file is missing or unreadable.
func LoadOrCreate(path string) (crypto.PrivKey, error) {
	if keyData, err := os.ReadFile(path); err == nil {
		privKey, err := crypto.UnmarshalPrivateKey(keyData)
		if err == nil {
			log.Infof("Loaded existing node identity from %s", path)
			return privKey, nil
		}
		log.Warnf("Failed to unmarshal existing key, generating new one: %v", err)
	}

	return generate(path)
}

func generate(path string) (crypto.PrivKey, error) {
	privKey, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	keyData, err := crypto.MarshalPrivateKey(privKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	if err := os.WriteFile(path, keyData, 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	log.Infof("Generated and saved new node identity to %s", path)
	return privKey, nil
}

// Seed returns the raw private key bytes, used to derive records
// deterministically from the node identity.
func Seed(k crypto.PrivKey) ([]byte, error) {
	raw, err := k.Raw()
	if err != nil {
		return nil, fmt.Errorf("failed to read raw key: %w", err)
	}
	return raw, nil
}
