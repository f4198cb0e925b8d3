package storage

import (
	"fmt"

	"github.com/productinfo/stitch-js-sdk/internal/util"
)

const (
	// SchemeRaw stores the payload unencrypted in Ciphertext.
	SchemeRaw = "raw"
	// SchemeAES256GCM stores an AES-256-GCM sealed payload.
	SchemeAES256GCM = "aes256gcm"

	envelopeVer = 1
)

// Envelope is a stored record. Version is the CAS version and is opaque to
// the payload.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce,omitempty"`
	Ciphertext []byte `json:"ciphertext"`
	Version    uint64 `json:"version,omitempty"`
}

// RawRecord wraps plaintext in an unsealed Envelope.
func RawRecord(plaintext []byte, version uint64) *Envelope {
	return &Envelope{
		Ver:        envelopeVer,
		Scheme:     SchemeRaw,
		Ciphertext: util.CopyBytes(plaintext),
		Version:    version,
	}
}

// SealRecord encrypts plaintext into an Envelope using the given record key and AAD.
func SealRecord(recordKey, plaintext, aad []byte, version uint64) (*Envelope, error) {
	cipher, err := util.EncryptAESWithAAD(plaintext, recordKey, aad)
	if err != nil {
		return nil, err
	}

	// util.EncryptAESWithAAD returns nonce || ciphertext.
	return &Envelope{
		Ver:        envelopeVer,
		Scheme:     SchemeAES256GCM,
		Nonce:      cipher[:12],
		Ciphertext: cipher[12:],
		Version:    version,
	}, nil
}

// OpenRecord returns the payload of an Envelope. A nil recordKey only opens
// raw envelopes; sealed envelopes require the key they were sealed with.
func OpenRecord(recordKey []byte, envelope *Envelope, aad []byte) ([]byte, error) {
	if envelope.Ver != envelopeVer {
		return nil, fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	switch envelope.Scheme {
	case SchemeRaw:
		if recordKey != nil {
			return nil, fmt.Errorf("refusing unsealed envelope when a record key is configured")
		}
		return util.CopyBytes(envelope.Ciphertext), nil
	case SchemeAES256GCM:
		if recordKey == nil {
			return nil, fmt.Errorf("sealed envelope requires a record key")
		}
	default:
		return nil, fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}

	// Reconstruct nonce || ciphertext without mutating envelope fields.
	fullCipher := make([]byte, len(envelope.Nonce)+len(envelope.Ciphertext))
	copy(fullCipher, envelope.Nonce)
	copy(fullCipher[len(envelope.Nonce):], envelope.Ciphertext)

	return util.DecryptAESWithAAD(fullCipher, recordKey, aad)
}
