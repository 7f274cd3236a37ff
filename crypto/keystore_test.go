package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptedKeyStore_CategoryTableRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	password := []byte("category-password")

	ks, err := NewEncryptedKeyStore(tempDir, password)
	if err != nil {
		t.Fatal(err)
	}
	defer ks.Close()

	table := map[string][]byte{
		"1111.0|3333.0": []byte("session-bytes"),
		"1111.0|4444.0": {1},
	}

	if err := ks.WriteCategoryTable("session", table); err != nil {
		t.Fatalf("WriteCategoryTable: %v", err)
	}

	got, ok, err := ks.ReadCategoryTable("session")
	if err != nil {
		t.Fatalf("ReadCategoryTable: %v", err)
	}
	if !ok {
		t.Fatal("expected category to exist after write")
	}
	if len(got) != len(table) {
		t.Fatalf("got %d keys, want %d", len(got), len(table))
	}
	for k, v := range table {
		if !bytes.Equal(got[k], v) {
			t.Errorf("key %s: got %x, want %x", k, got[k], v)
		}
	}
}

func TestEncryptedKeyStore_CategoryTableMissingIsNotAnError(t *testing.T) {
	tempDir := t.TempDir()
	password := []byte("category-password")

	ks, err := NewEncryptedKeyStore(tempDir, password)
	if err != nil {
		t.Fatal(err)
	}
	defer ks.Close()

	table, ok, err := ks.ReadCategoryTable("pre-key")
	if err != nil {
		t.Fatalf("unexpected error for unwritten category: %v", err)
	}
	if ok {
		t.Error("expected ok=false for a category never written")
	}
	if table != nil {
		t.Error("expected a nil table for a category never written")
	}
}

func TestEncryptedKeyStore_CategoryTableOverwrite(t *testing.T) {
	tempDir := t.TempDir()
	password := []byte("category-password")

	ks, err := NewEncryptedKeyStore(tempDir, password)
	if err != nil {
		t.Fatal(err)
	}
	defer ks.Close()

	if err := ks.WriteCategoryTable("creds", map[string][]byte{"self": []byte("v1")}); err != nil {
		t.Fatal(err)
	}
	if err := ks.WriteCategoryTable("creds", map[string][]byte{"self": []byte("v2")}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := ks.ReadCategoryTable("creds")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected category to exist")
	}
	if !bytes.Equal(got["self"], []byte("v2")) {
		t.Errorf("got %s, want v2", got["self"])
	}
}
