// Package icrypto holds key derivation and AAD construction for sealed
// session records.
package icrypto

import (
	"encoding/binary"
	"errors"
)

const aadRecord = "SESSION-RECORD"

var errInvalidMasterKey = errors.New("master key must be 32 bytes")

// RecordAAD binds a sealed payload to its storage address and envelope
// version so records cannot be swapped between users or namespaces.
func RecordAAD(namespace, recordType, recordID string, ver int) []byte {
	return buildAAD(aadRecord, namespace, recordType, recordID, ver)
}

func buildAAD(parts ...any) []byte {
	var res []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			res = appendLenPrefix(res, []byte(v))
		case []byte:
			res = appendLenPrefix(res, v)
		case int:
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, uint32(v))
			res = append(res, b...)
		}
	}
	return res
}

func appendLenPrefix(b, data []byte) []byte {
	l := make([]byte, 4)
	binary.BigEndian.PutUint32(l, uint32(len(data)))
	b = append(b, l...)
	b = append(b, data...)
	return b
}
