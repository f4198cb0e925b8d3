package icrypto

import "github.com/productinfo/stitch-js-sdk/internal/util"

const storeKeyInfo = "session-store:record-key:v1"

// DeriveStoreKey derives the namespace-specific key used to seal persisted
// session records.
func DeriveStoreKey(masterKey []byte, namespace string) ([]byte, error) {
	if len(masterKey) != util.AESKeySize {
		return nil, errInvalidMasterKey
	}
	return util.HKDF(masterKey, []byte(namespace), []byte(storeKeyInfo))
}
