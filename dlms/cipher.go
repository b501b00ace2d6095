package dlms

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"strings"
)

// Key is an AES-128 key, such as the global unicast encryption key.
type Key [16]byte

// ParseKey decodes a key given as 32 hex digits.
func ParseKey(s string) (Key, error) {
	var k Key
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return k, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != len(k) {
		return k, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

// String hides the key so it does not end up in logs.
func (k Key) String() string {
	return "Key(redacted)"
}

// Decrypter opens general-glo-ciphering APDUs.
type Decrypter struct {
	Key Key
	// AuthKey is only needed for authenticated APDUs
	AuthKey []byte
}

// Decrypt parses info as a ciphered APDU and returns the APDU it carries.
// Failures past the envelope are returned as *PayloadError.
func (d *Decrypter) Decrypt(info []byte) (APDU, error) {
	a, err := ParseAPDU(info)
	if err != nil {
		return nil, err
	}
	g, ok := a.(*GeneralGloCiphering)
	if !ok {
		return nil, ErrNotCiphered
	}
	plain, err := d.Open(g)
	if err != nil {
		return nil, &PayloadError{Err: err}
	}
	inner, err := ParseAPDU(plain)
	if err != nil {
		return nil, &PayloadError{Err: err}
	}
	if _, ok := inner.(*GeneralGloCiphering); ok {
		return nil, &PayloadError{Err: fmt.Errorf("nested ciphering: %w", ErrInvalidFormat)}
	}
	return inner, nil
}

// Open returns the plaintext of g, verifying the tag if it is authenticated.
func (d *Decrypter) Open(g *GeneralGloCiphering) ([]byte, error) {
	sc := g.SecurityControl
	if sc&securityCompressed != 0 {
		return nil, fmt.Errorf("security control 0x%02x: %w", sc, ErrUnsupportedSecurity)
	}
	iv, err := initVector(g.SystemTitle, g.InvocationCounter)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(d.Key[:])
	if err != nil {
		return nil, err
	}

	encrypted := sc&securityEncrypted != 0
	if sc&securityAuthenticated == 0 {
		if !encrypted {
			return g.Ciphertext, nil
		}
		out := make([]byte, len(g.Ciphertext))
		cipher.NewCTR(block, counterBlock(iv)).XORKeyStream(out, g.Ciphertext)
		return out, nil
	}

	if len(d.AuthKey) == 0 {
		return nil, ErrAuthKeyRequired
	}
	if len(g.Ciphertext) < authTagSize {
		return nil, &IncompleteError{Needed: authTagSize - len(g.Ciphertext)}
	}
	gcm, err := cipher.NewGCMWithTagSize(block, authTagSize)
	if err != nil {
		return nil, err
	}

	if encrypted {
		out, err := gcm.Open(nil, iv, g.Ciphertext, d.aad(sc, nil))
		if err != nil {
			return nil, ErrAuthentication
		}
		return out, nil
	}

	// Authentication only: the plaintext is sent in the clear and is part of the AAD
	n := len(g.Ciphertext) - authTagSize
	plain, tag := g.Ciphertext[:n], g.Ciphertext[n:]
	if _, err := gcm.Open(nil, iv, tag, d.aad(sc, plain)); err != nil {
		return nil, ErrAuthentication
	}
	return plain, nil
}

// Seal builds a ciphered APDU around plaintext. Meters do this; it is
// used to produce test input and simulated traffic.
func (d *Decrypter) Seal(systemTitle []byte, sc uint8, ic uint32, plaintext []byte) (*GeneralGloCiphering, error) {
	if sc&securityCompressed != 0 {
		return nil, ErrUnsupportedSecurity
	}
	iv, err := initVector(systemTitle, ic)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(d.Key[:])
	if err != nil {
		return nil, err
	}

	g := &GeneralGloCiphering{
		SystemTitle:       systemTitle,
		SecurityControl:   sc,
		InvocationCounter: ic,
	}
	encrypted := sc&securityEncrypted != 0
	if sc&securityAuthenticated == 0 {
		if !encrypted {
			g.Ciphertext = append([]byte(nil), plaintext...)
			return g, nil
		}
		g.Ciphertext = make([]byte, len(plaintext))
		cipher.NewCTR(block, counterBlock(iv)).XORKeyStream(g.Ciphertext, plaintext)
		return g, nil
	}

	if len(d.AuthKey) == 0 {
		return nil, ErrAuthKeyRequired
	}
	gcm, err := cipher.NewGCMWithTagSize(block, authTagSize)
	if err != nil {
		return nil, err
	}
	if encrypted {
		g.Ciphertext = gcm.Seal(nil, iv, plaintext, d.aad(sc, nil))
		return g, nil
	}
	tag := gcm.Seal(nil, iv, nil, d.aad(sc, plaintext))
	g.Ciphertext = append(append([]byte(nil), plaintext...), tag...)
	return g, nil
}

func (d *Decrypter) aad(sc uint8, plain []byte) []byte {
	aad := make([]byte, 0, 1+len(d.AuthKey)+len(plain))
	aad = append(aad, sc)
	aad = append(aad, d.AuthKey...)
	return append(aad, plain...)
}

func initVector(systemTitle []byte, ic uint32) ([]byte, error) {
	if len(systemTitle) != systemTitleLength {
		return nil, fmt.Errorf("system title of %d bytes: %w", len(systemTitle), ErrInvalidFormat)
	}
	iv := make([]byte, 0, 12)
	iv = append(iv, systemTitle...)
	return order.AppendUint32(iv, ic), nil
}

// counterBlock is the first GCM counter block used for payload data
func counterBlock(iv []byte) []byte {
	cb := make([]byte, aes.BlockSize)
	copy(cb, iv)
	cb[aes.BlockSize-1] = 2
	return cb
}
