// Package crypt is the symmetric codec used for store files.
//
// The key is the password's UTF-8 bytes copied into a 16-byte buffer,
// zero-padded or truncated, and the same buffer doubles as the CBC
// initialization vector. Existing files were written this way and must
// stay readable.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/twofish"
)

// BlockSize is the block size of both cipher variants.
const BlockSize = 16

// KeySize is the size of the derived key and IV.
const KeySize = 16

// ErrGarbled is returned for ciphertext that cannot be a valid encryption
// under any key.
var ErrGarbled = errors.New("crypt: garbled ciphertext")

// Variant selects the block cipher.
type Variant int

const (
	// Primary is AES-128 in CBC mode. New files are always written with it.
	Primary Variant = iota
	// Legacy is Twofish-128 in CBC mode, kept for reading older files.
	Legacy
)

// Variants lists the variants in the order a reader should try them.
var Variants = []Variant{Primary, Legacy}

func (v Variant) String() string {
	switch v {
	case Primary:
		return "primary"
	case Legacy:
		return "legacy"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// DeriveKey returns the 16-byte key for password.
func DeriveKey(password string) []byte {
	key := make([]byte, KeySize)
	copy(key, password)
	return key
}

func newBlock(v Variant, key []byte) (cipher.Block, error) {
	switch v {
	case Primary:
		return aes.NewCipher(key)
	case Legacy:
		return twofish.NewCipher(key)
	}
	return nil, fmt.Errorf("crypt: unknown variant %d", int(v))
}

// Encrypt encrypts plain under password with the primary variant.
func Encrypt(plain []byte, password string) ([]byte, error) {
	return EncryptWith(Primary, plain, password)
}

// EncryptWith encrypts plain under password with variant v. The plaintext
// is zero-padded to a whole number of blocks.
func EncryptWith(v Variant, plain []byte, password string) ([]byte, error) {
	key := DeriveKey(password)
	block, err := newBlock(v, key)
	if err != nil {
		return nil, err
	}
	n := len(plain)
	if rem := n % BlockSize; rem != 0 || n == 0 {
		n += BlockSize - rem
	}
	buf := make([]byte, n)
	copy(buf, plain)
	cipher.NewCBCEncrypter(block, key).CryptBlocks(buf, buf)
	return buf, nil
}

// Decrypt decrypts ciphertext under password with variant v. The zero
// padding added by EncryptWith is left in place; the caller knows where
// its document ends.
func Decrypt(ciphertext []byte, password string, v Variant) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%BlockSize != 0 {
		return nil, ErrGarbled
	}
	key := DeriveKey(password)
	block, err := newBlock(v, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, key).CryptBlocks(out, ciphertext)
	return out, nil
}
