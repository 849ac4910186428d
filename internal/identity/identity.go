// Package identity manages the node's keypair and the peer id derived
// from it. The id is stable across restarts because the keypair is
// persisted under the node's home directory.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/sha3"
)

const (
	pubFile  = "pub.hex"
	privFile = "priv.hex"

	idDomain = "peerscope:peerid:v1"
	idPrefix = "12D"
)

// Identity is the local node's keypair plus its derived peer id.
type Identity struct {
	PeerID  string
	PubKey  ed25519.PublicKey
	PrivKey ed25519.PrivateKey
}

// Load reads the keypair from home, generating and persisting a fresh one
// on first run.
func Load(home string) (*Identity, error) {
	if err := os.MkdirAll(home, 0700); err != nil {
		return nil, err
	}
	pub, priv, err := loadKeypair(home)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		pub, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		if err := saveKeypair(home, pub, priv); err != nil {
			return nil, err
		}
	}
	return &Identity{
		PeerID:  DerivePeerID(pub),
		PubKey:  pub,
		PrivKey: priv,
	}, nil
}

// DerivePeerID maps a public key to the protocol-addressing id other
// nodes use to name this node.
func DerivePeerID(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, len(idDomain)+len(pub))
	buf = append(buf, []byte(idDomain)...)
	buf = append(buf, pub...)
	sum := sha3.Sum256(buf)
	return idPrefix + hex.EncodeToString(sum[:])
}

func saveKeypair(dir string, pub ed25519.PublicKey, priv ed25519.PrivateKey) error {
	if len(pub) == 0 || len(priv) == 0 {
		return errors.New("empty key")
	}
	if err := os.WriteFile(filepath.Join(dir, pubFile), []byte(hex.EncodeToString(pub)), 0600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, privFile), []byte(hex.EncodeToString(priv)), 0600)
}

func loadKeypair(dir string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pubHex, err := os.ReadFile(filepath.Join(dir, pubFile))
	if err != nil {
		return nil, nil, err
	}
	privHex, err := os.ReadFile(filepath.Join(dir, privFile))
	if err != nil {
		return nil, nil, err
	}
	pub, err := hex.DecodeString(string(pubHex))
	if err != nil {
		return nil, nil, fmt.Errorf("bad %s", pubFile)
	}
	priv, err := hex.DecodeString(string(privHex))
	if err != nil {
		return nil, nil, fmt.Errorf("bad %s", privFile)
	}
	if len(pub) != ed25519.PublicKeySize || len(priv) != ed25519.PrivateKeySize {
		return nil, nil, errors.New("corrupt keypair")
	}
	return ed25519.PublicKey(pub), ed25519.PrivateKey(priv), nil
}
