// Package crypto decrypts the provider tokens stored in the connection-state
// documents. Tokens are encrypted elsewhere with AES-256-CBC and stored as
// base64 "iv:ciphertext".
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"
)

const keySize = 32

// DecryptToken decrypts an "iv:ciphertext" token using AES-256-CBC with
// PKCS#7 padding. The key is zero-padded or truncated to 32 bytes, matching
// the writer's behavior.
func DecryptToken(encrypted, key string) (string, error) {
	ivPart, dataPart, found := strings.Cut(encrypted, ":")
	if !found {
		return "", fmt.Errorf("invalid encrypted token format")
	}

	iv, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(dataPart)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(iv) != block.BlockSize() {
		return "", fmt.Errorf("iv length %d does not match block size", len(iv))
	}
	if len(data) == 0 || len(data)%block.BlockSize() != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of block size", len(data))
	}

	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)

	return string(stripPadding(plain)), nil
}

func normalizeKey(key string) []byte {
	b := []byte(key)
	if len(b) >= keySize {
		return b[:keySize]
	}
	padded := make([]byte, keySize)
	copy(padded, b)
	return padded
}

func stripPadding(plain []byte) []byte {
	n := int(plain[len(plain)-1])
	if n > 0 && n <= aes.BlockSize && n <= len(plain) {
		return plain[:len(plain)-n]
	}
	return plain
}
