// Package aes 提供本地会话凭证的落盘加解密
// 使用 AES-256-GCM，密钥由 HKDF-SHA256 从配置口令派生
package aes

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize AES-256 密钥长度
const KeySize = 32

var errCiphertextTooShort = errors.New("aes: ciphertext too short")

// DeriveKey 从口令和盐派生固定长度密钥
// info 用于区分用途，同一口令在不同用途下得到不同密钥
func DeriveKey(secret, salt, info string) ([]byte, error) {
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(secret), []byte(salt), []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt 加密并返回 base64(nonce || ciphertext)
func Encrypt(data []byte, key []byte) (string, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return "", err
	}

	// 每次加密都生成新的随机 Nonce
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	// Nonce 附加在密文头部
	ciphertext := aesGCM.Seal(nonce, nonce, data, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt Encrypt 的逆操作
func Decrypt(encoded string, key []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	size := aesGCM.NonceSize()
	if len(raw) < size {
		return nil, errCiphertextTooShort
	}
	return aesGCM.Open(nil, raw[:size], raw[size:], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
