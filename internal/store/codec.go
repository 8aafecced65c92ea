package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/starford/sumi/internal/apperr"
	"github.com/starford/sumi/internal/crypt"
	"github.com/starford/sumi/internal/markup"
	"github.com/starford/sumi/internal/tree"
)

// KeyLength is the only accepted length of a non-empty password.
const KeyLength = 8

// CheckKeyLength accepts an empty password (plain store) or one of
// exactly KeyLength characters.
func CheckKeyLength(password string) error {
	n := len([]rune(password))
	if n != 0 && n != KeyLength {
		return fmt.Errorf("store: password must be empty or %d characters: %w", KeyLength, apperr.ErrIncorrectPassword)
	}
	return nil
}

// Encode renders root and encrypts it under password with the primary
// cipher. An empty password leaves the document in plain text.
func Encode(root *tree.Node, password string) ([]byte, error) {
	doc, err := markup.Render(root)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return doc, nil
	}
	return crypt.Encrypt(doc, password)
}

// Decode turns stored bytes back into a tree. Encrypted data is tried
// with each cipher variant in turn; legacy reports whether the legacy
// variant was the one that worked.
func Decode(data []byte, password string) (root *tree.Node, legacy bool, err error) {
	if len(data) == 0 {
		return nil, false, fmt.Errorf("store: decode: %w", apperr.ErrStorageEmpty)
	}
	if password == "" {
		root, err := markup.Parse(data)
		if err != nil {
			if errors.Is(err, markup.ErrMalformed) {
				return nil, false, fmt.Errorf("store: decode: %v: %w", err, apperr.ErrIncorrectPassword)
			}
			return nil, false, err
		}
		if err := checkEcho(root, password); err != nil {
			return nil, false, err
		}
		return root, false, nil
	}

	// A variant that decrypts to a well-formed document without a usable
	// cabinet explains the failure better than a password error.
	var content error
	for _, v := range crypt.Variants {
		plain, err := crypt.Decrypt(data, password, v)
		if err != nil {
			continue
		}
		root, err := markup.Parse(plain)
		if err != nil {
			if content == nil && !errors.Is(err, markup.ErrMalformed) && looksLikeXML(plain) {
				content = err
			}
			continue
		}
		if checkEcho(root, password) != nil {
			continue
		}
		return root, v == crypt.Legacy, nil
	}
	if content != nil {
		return nil, false, fmt.Errorf("store: decode: %w", content)
	}
	return nil, false, fmt.Errorf("store: decode: %w", apperr.ErrIncorrectPassword)
}

// looksLikeXML reports whether plain starts with markup once leading
// whitespace and a byte order mark are skipped.
func looksLikeXML(plain []byte) bool {
	plain = bytes.TrimPrefix(bytes.TrimLeft(plain, " \t\r\n"), []byte("\xef\xbb\xbf"))
	return len(plain) > 0 && plain[0] == '<'
}

// checkEcho rejects a tree whose embedded password disagrees with the
// one used to read it.
func checkEcho(root *tree.Node, password string) error {
	if p := root.Password(); p != "" && p != password {
		return fmt.Errorf("store: embedded password mismatch: %w", apperr.ErrIncorrectPassword)
	}
	return nil
}

// Verify decodes data with password and requires the result to be
// structurally equal to expected.
func Verify(data []byte, password string, expected *tree.Node) error {
	got, _, err := Decode(data, password)
	if err != nil {
		return fmt.Errorf("store: verify: %v: %w", err, apperr.ErrIntegrityCheckFailed)
	}
	if !tree.Equal(got, expected) {
		return fmt.Errorf("store: written tree differs: %w", apperr.ErrIntegrityCheckFailed)
	}
	return nil
}
