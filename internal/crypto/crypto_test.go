package icrypto

import (
	"bytes"
	"testing"

	"github.com/productinfo/stitch-js-sdk/internal/util"
)

func TestRecordAAD(t *testing.T) {
	aad1 := RecordAAD("app-1", "USER", "u1", 1)
	aad2 := RecordAAD("app-1", "USER", "u1", 1)
	if !bytes.Equal(aad1, aad2) {
		t.Error("RecordAAD should be deterministic")
	}

	if bytes.Equal(aad1, RecordAAD("app-1", "USER", "u2", 1)) {
		t.Error("RecordAAD should differ for different record ids")
	}
	if bytes.Equal(aad1, RecordAAD("app-2", "USER", "u1", 1)) {
		t.Error("RecordAAD should differ for different namespaces")
	}
	// Length prefixes keep shifted boundaries distinct.
	if bytes.Equal(RecordAAD("ab", "c", "d", 1), RecordAAD("a", "bc", "d", 1)) {
		t.Error("RecordAAD should not be ambiguous across field boundaries")
	}
}

func TestDeriveStoreKey(t *testing.T) {
	master, err := util.NewAESKey()
	if err != nil {
		t.Fatal(err)
	}

	k1, err := DeriveStoreKey(master, "app-1")
	if err != nil {
		t.Fatalf("DeriveStoreKey failed: %v", err)
	}
	if len(k1) != util.AESKeySize {
		t.Errorf("expected %d byte key, got %d", util.AESKeySize, len(k1))
	}

	k1again, _ := DeriveStoreKey(master, "app-1")
	if !bytes.Equal(k1, k1again) {
		t.Error("DeriveStoreKey should be deterministic")
	}

	k2, _ := DeriveStoreKey(master, "app-2")
	if bytes.Equal(k1, k2) {
		t.Error("namespaces should derive different keys")
	}

	if _, err := DeriveStoreKey([]byte("short"), "app-1"); err == nil {
		t.Error("expected error for short master key")
	}
}
