package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrInvalidKey is returned for malformed or inconsistent secret keys.
var ErrInvalidKey = errors.New("invalid secret key")

// Keypair is a wallet signing key.
type Keypair struct {
	private ed25519.PrivateKey
}

// ParseKeypair decodes a 64-byte secret key given as base58 (Phantom export)
// or as a JSON byte array (solana-keygen file contents). The public half must
// match the seed.
func ParseKeypair(s string) (*Keypair, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	var raw []byte
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: byte %d out of range", ErrInvalidKey, i)
			}
			raw[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		raw = decoded
	}

	return KeypairFromBytes(raw)
}

// KeypairFromBytes builds a keypair from seed(32) || public key(32).
func KeypairFromBytes(raw []byte) (*Keypair, error) {
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, ed25519.PrivateKeySize, len(raw))
	}

	seed, pub := raw[:ed25519.SeedSize], raw[ed25519.SeedSize:]
	derived, err := publicFromSeed(seed)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(derived, pub) {
		return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidKey)
	}

	return &Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// publicFromSeed derives the Ed25519 public key: clamp SHA-512(seed)[:32] and
// multiply the base point.
func publicFromSeed(seed []byte) ([]byte, error) {
	h := sha512.Sum512(seed)
	s, err := edwards25519.NewScalar().SetBytesWithClamping(h[:32])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return new(edwards25519.Point).ScalarBaseMult(s).Bytes(), nil
}

// PublicKey returns the wallet address.
func (k *Keypair) PublicKey() string {
	return base58.Encode(k.publicBytes())
}

func (k *Keypair) publicBytes() []byte {
	return k.private.Public().(ed25519.PublicKey)
}

// Sign signs message bytes.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}

// IsOnCurve reports whether a base58 address is a valid curve point. Program
// derived addresses are off-curve and cannot sign.
func IsOnCurve(address string) bool {
	b, err := base58.Decode(address)
	if err != nil || len(b) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(b)
	return err == nil
}
