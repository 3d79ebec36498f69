package solana

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	signatureSize = 64
	pubkeySize    = 32
)

// ErrMalformedTx is returned when transaction bytes cannot be parsed.
var ErrMalformedTx = errors.New("malformed transaction")

// SignTransaction signs a serialized transaction (legacy or v0) returned by a
// swap router. The signature is written into the slot of the keypair's public
// key among the required signers. Returns the signed transaction in base64
// and the transaction signature in base58.
func SignTransaction(txBase64 string, kp *Keypair) (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}

	numSigs, n, err := decodeShortVec(raw)
	if err != nil {
		return "", "", err
	}
	sigStart := n
	msgStart := sigStart + numSigs*signatureSize
	if numSigs == 0 || msgStart > len(raw) {
		return "", "", fmt.Errorf("%w: %d signature slots in %d bytes", ErrMalformedTx, numSigs, len(raw))
	}
	message := raw[msgStart:]

	signers, err := requiredSigners(message)
	if err != nil {
		return "", "", err
	}
	if len(signers) != numSigs {
		return "", "", fmt.Errorf("%w: header wants %d signers, found %d slots", ErrMalformedTx, len(signers), numSigs)
	}

	pub := kp.publicBytes()
	slot := -1
	for i, s := range signers {
		if bytes.Equal(s, pub) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return "", "", fmt.Errorf("wallet %s is not a required signer", kp.PublicKey())
	}

	sig := kp.Sign(message)
	signed := make([]byte, len(raw))
	copy(signed, raw)
	copy(signed[sigStart+slot*signatureSize:], sig)

	first := signed[sigStart : sigStart+signatureSize]
	return base64.StdEncoding.EncodeToString(signed), base58.Encode(first), nil
}

// requiredSigners returns the public keys of the message's required signers.
func requiredSigners(message []byte) ([][]byte, error) {
	i := 0
	if len(message) > 0 && message[0]&0x80 != 0 {
		// Versioned message prefix
		i = 1
	}
	if len(message) < i+3 {
		return nil, fmt.Errorf("%w: short message header", ErrMalformedTx)
	}
	numRequired := int(message[i])
	i += 3

	numKeys, n, err := decodeShortVec(message[i:])
	if err != nil {
		return nil, err
	}
	i += n
	if numRequired > numKeys || len(message) < i+numKeys*pubkeySize {
		return nil, fmt.Errorf("%w: %d account keys truncated", ErrMalformedTx, numKeys)
	}

	signers := make([][]byte, numRequired)
	for k := 0; k < numRequired; k++ {
		signers[k] = message[i+k*pubkeySize : i+(k+1)*pubkeySize]
	}
	return signers, nil
}

// decodeShortVec reads a compact-u16 length prefix.
func decodeShortVec(b []byte) (value int, size int, err error) {
	for size < 3 {
		if size >= len(b) {
			return 0, 0, fmt.Errorf("%w: truncated length prefix", ErrMalformedTx)
		}
		c := b[size]
		value |= int(c&0x7f) << (7 * size)
		size++
		if c&0x80 == 0 {
			return value, size, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: length prefix too long", ErrMalformedTx)
}
