package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("round trip = %s, want %s", got, testKeyHex)
	}

	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Error("DecryptKey succeeded with wrong password")
	}
}

func TestEncryptKeyValidation(t *testing.T) {
	if _, err := EncryptKey(testKeyHex, ""); err == nil {
		t.Error("EncryptKey accepted empty password")
	}
	if _, err := EncryptKey("zz", "pw"); err == nil {
		t.Error("EncryptKey accepted non-hex key")
	}
	if _, err := EncryptKey("abcd", "pw"); err == nil {
		t.Error("EncryptKey accepted short key")
	}
}

func TestLoadKey(t *testing.T) {
	t.Run("raw key wins", func(t *testing.T) {
		got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
		if err != nil {
			t.Fatalf("LoadKey: %v", err)
		}
		if got != testKeyHex {
			t.Errorf("LoadKey = %s, want %s", got, testKeyHex)
		}
	})

	t.Run("encrypted file", func(t *testing.T) {
		blob, err := EncryptKey(testKeyHex, "pw")
		if err != nil {
			t.Fatalf("EncryptKey: %v", err)
		}
		path := filepath.Join(t.TempDir(), "owner.key.json")
		if err := os.WriteFile(path, blob, 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
		if err != nil {
			t.Fatalf("LoadKey: %v", err)
		}
		if got != testKeyHex {
			t.Errorf("LoadKey = %s, want %s", got, testKeyHex)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		if _, err := LoadKey(KeyConfig{}); err == nil || !strings.Contains(err.Error(), "no private key") {
			t.Errorf("LoadKey err = %v, want no-key error", err)
		}
	})
}
