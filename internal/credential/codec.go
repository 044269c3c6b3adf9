// Package credential produces the opaque code printed on a booking receipt
// as barcode/QR payload, and resolves a scanned code back to the booking id.
// The transform is reversible and deterministic: the code is re-derived for
// display without being persisted, so the same id must always yield the same
// string.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidCode is returned when a scanned code is malformed or was not
// produced by this codec.
var ErrInvalidCode = errors.New("credential: code not recognized")

// Codec encrypts booking ids with AES-256-CBC. The IV is the leading bytes
// of the configured secret, which keeps encoding deterministic.
type Codec struct {
	block cipher.Block
	iv    []byte
}

// New builds a codec from the application secret. The secret must be at
// least one cipher block long; a shorter secret is a configuration error
// the caller should treat as fatal at startup.
func New(secret string) (*Codec, error) {
	if len(secret) < aes.BlockSize {
		return nil, fmt.Errorf("credential: secret shorter than cipher IV length (%d < %d)", len(secret), aes.BlockSize)
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("credential: init cipher: %w", err)
	}

	return &Codec{
		block: block,
		iv:    []byte(secret[:aes.BlockSize]),
	}, nil
}

// Encode turns a booking id into its opaque receipt code.
func (c *Codec) Encode(id int64) string {
	plain := pad([]byte(strconv.FormatInt(id, 10)))
	enc := make([]byte, len(plain))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(enc, plain)
	return base64.URLEncoding.EncodeToString(enc)
}

// Decode resolves a scanned code back to the booking id. Malformed or
// tampered input yields ErrInvalidCode, never a panic.
func (c *Codec) Decode(code string) (int64, error) {
	raw, err := base64.URLEncoding.DecodeString(code)
	if err != nil || len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return 0, ErrInvalidCode
	}

	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(plain, raw)

	unpadded, err := unpad(plain)
	if err != nil {
		return 0, ErrInvalidCode
	}

	id, err := strconv.ParseInt(string(unpadded), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidCode
	}
	return id, nil
}

// pad applies PKCS#7 padding to a full block multiple.
func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrInvalidCode
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrInvalidCode
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrInvalidCode
		}
	}
	return b[:len(b)-n], nil
}
