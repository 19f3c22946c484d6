package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"chat-sanitizer/internal/constants"
)

// ErrInvalidFormat 密文格式錯誤（前綴、base64 或長度）.
var ErrInvalidFormat = errors.New("invalid ciphertext format")

// AESCTREncryption AES-256-CTR 加解密
// 格式: "aes256ctr:" + base64(IV + ciphertext)
type AESCTREncryption struct {
	key []byte // 256-bit (32 bytes) key
}

// NewAESCTREncryption 創建 AES-256-CTR 加密實例
func NewAESCTREncryption(key []byte) (*AESCTREncryption, error) {
	if len(key) != constants.MasterKeyLength {
		return nil, fmt.Errorf("key must be %d bytes, got %d bytes", constants.MasterKeyLength, len(key))
	}

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	return &AESCTREncryption{key: keyCopy}, nil
}

// Encrypt 加密數據
func (e *AESCTREncryption) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext cannot be empty")
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	// IV 在前，長度等於 block size
	out := make([]byte, aes.BlockSize+len(plaintext))
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	cipher.NewCTR(block, iv).XORKeyStream(out[aes.BlockSize:], []byte(plaintext))

	return constants.EncryptedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt 解密數據。CTR 沒有完整性檢查，錯誤的密鑰會得到亂碼而不是錯誤.
func (e *AESCTREncryption) Decrypt(encryptedText string) (string, error) {
	if !IsEncrypted(encryptedText) {
		return "", fmt.Errorf("%w: missing %q prefix", ErrInvalidFormat, constants.EncryptedPrefix)
	}

	data, err := base64.StdEncoding.DecodeString(encryptedText[len(constants.EncryptedPrefix):])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	// 至少要有 IV 和一個字節
	if len(data) <= aes.BlockSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrInvalidFormat)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext := make([]byte, len(data)-aes.BlockSize)
	cipher.NewCTR(block, data[:aes.BlockSize]).XORKeyStream(plaintext, data[aes.BlockSize:])

	return string(plaintext), nil
}

// IsEncrypted 檢查文本是否為 AES-CTR 密文格式
func IsEncrypted(text string) bool {
	return strings.HasPrefix(text, constants.EncryptedPrefix)
}
