package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashPassphraseDeterministic(t *testing.T) {
	h1 := HashPassphrase("correct")
	h2 := HashPassphrase("correct")
	if h1 != h2 {
		t.Error("same passphrase must hash to same digest")
	}
	if len(h1) != DigestLen {
		t.Errorf("digest length %d, want %d", len(h1), DigestLen)
	}
}

func TestHashPassphraseDistinct(t *testing.T) {
	if HashPassphrase("correct") == HashPassphrase("Correct") {
		t.Error("case variants must hash differently")
	}
	if HashPassphrase("") == HashPassphrase(" ") {
		t.Error("empty and space must hash differently")
	}
}

func TestVerifyPassphrase(t *testing.T) {
	digest := HashPassphrase("hunter2")

	if !VerifyPassphrase("hunter2", digest) {
		t.Error("correct passphrase should verify")
	}
	if VerifyPassphrase("hunter3", digest) {
		t.Error("wrong passphrase should not verify")
	}
	if VerifyPassphrase("hunter", digest) {
		t.Error("prefix should not verify")
	}
	if VerifyPassphrase("hunter2", "") {
		t.Error("empty digest should never verify")
	}
	if VerifyPassphrase("hunter2", strings.Repeat("z", DigestLen)) {
		t.Error("garbage digest should never verify")
	}
}

func TestVerifyPassphraseUnicode(t *testing.T) {
	pass := "пароль 密码 🔒"
	digest := HashPassphrase(pass)
	if !VerifyPassphrase(pass, digest) {
		t.Error("unicode passphrase should verify")
	}
	if VerifyPassphrase("пароль 密码", digest) {
		t.Error("truncated unicode passphrase should not verify")
	}
}

func TestDigestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "digest")
	store := NewDigestStore(path)

	digest := HashPassphrase("roundtrip")
	if err := store.Save(digest); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != digest {
		t.Errorf("loaded %q, want %q", got, digest)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("digest file mode %04o, want 0600", mode)
	}
	if err := store.CheckPermissions(); err != nil {
		t.Errorf("CheckPermissions: %v", err)
	}
}

func TestDigestStoreMissing(t *testing.T) {
	store := NewDigestStore(filepath.Join(t.TempDir(), "never-written"))
	if _, err := store.Load(); err != ErrNoDigest {
		t.Errorf("Load missing = %v, want ErrNoDigest", err)
	}
}

func TestDigestStoreRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest")
	store := NewDigestStore(path)

	if err := store.Save("short"); err != ErrInvalidDigest {
		t.Errorf("Save short = %v, want ErrInvalidDigest", err)
	}

	if err := os.WriteFile(path, []byte("corrupted\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); err != ErrInvalidDigest {
		t.Errorf("Load corrupted = %v, want ErrInvalidDigest", err)
	}
}

func TestDigestStoreOverwrite(t *testing.T) {
	store := NewDigestStore(filepath.Join(t.TempDir(), "digest"))

	first := HashPassphrase("first")
	second := HashPassphrase("second")

	if err := store.Save(first); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(second); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != second {
		t.Error("Save should replace the previous digest")
	}
}
