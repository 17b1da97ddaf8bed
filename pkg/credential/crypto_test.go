package credential

import "testing"

func TestCryptorRoundTrip(t *testing.T) {
	c := newCryptor("test-master-key")

	tests := []string{
		"",
		"short",
		`{"api_token":"nlfy_abc123","site_id":"xyz"}`,
	}

	for _, plaintext := range tests {
		sealed, err := c.encrypt([]byte(plaintext))
		if err != nil {
			t.Fatalf("encrypt(%q): %v", plaintext, err)
		}
		opened, err := c.decrypt(sealed)
		if err != nil {
			t.Fatalf("decrypt(%q): %v", plaintext, err)
		}
		if string(opened) != plaintext {
			t.Errorf("round trip = %q, want %q", opened, plaintext)
		}
	}
}

func TestCryptorNonceVaries(t *testing.T) {
	c := newCryptor("test-master-key")

	a, err := c.encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := c.encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if a == b {
		t.Fatal("encrypting the same plaintext twice produced identical ciphertexts; nonce is not fresh")
	}
}

func TestCryptorRejectsTamperedCiphertext(t *testing.T) {
	c := newCryptor("test-master-key")

	sealed, err := c.encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	tampered := sealed[:len(sealed)-2] + "ff"
	if _, err := c.decrypt(tampered); err == nil {
		t.Fatal("decrypt of tampered ciphertext should fail authentication")
	}
}

func TestCryptorRejectsWrongKey(t *testing.T) {
	a := newCryptor("key-one")
	b := newCryptor("key-two")

	sealed, err := a.encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := b.decrypt(sealed); err == nil {
		t.Fatal("decrypt with a different master key should fail")
	}
}

func TestCryptorRejectsMalformedInput(t *testing.T) {
	c := newCryptor("test-master-key")

	for _, bad := range []string{"", "no-separator", "zz:zz", "aabb:zznotahex"} {
		if _, err := c.decrypt(bad); err == nil {
			t.Errorf("decrypt(%q) should have failed", bad)
		}
	}
}
