package encryption

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"chat-sanitizer/internal/constants"

	"golang.org/x/crypto/hkdf"
)

// 解密失敗時回傳的佔位文字，分類器會視為錯誤訊息.
const (
	FailedToDecryptText  = "[Failed to decrypt]"
	DecryptionFailedText = "[Decryption failed]"
)

// 聊天閘道停用加密時寫入的明文前綴（"plaintext:" + 內容），不論本服務是否啟用解密都要剝除
const plaintextPrefix = "plaintext:"

// MessageEncryption 訊息內容解密服務
// 每個對話的密鑰由主密鑰經 HKDF-SHA256 導出，不落地保存
type MessageEncryption struct {
	enabled   bool
	masterKey []byte

	mu      sync.Mutex
	ciphers map[string]*AESCTREncryption
}

// NewMessageEncryption 創建訊息加密服務. 停用時 masterKey 可為 nil.
func NewMessageEncryption(enabled bool, masterKey []byte) (*MessageEncryption, error) {
	m := &MessageEncryption{
		enabled: enabled,
		ciphers: make(map[string]*AESCTREncryption),
	}
	if !enabled {
		return m, nil
	}

	if len(masterKey) != constants.MasterKeyLength {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", constants.MasterKeyLength, len(masterKey))
	}
	m.masterKey = make([]byte, len(masterKey))
	copy(m.masterKey, masterKey)
	return m, nil
}

// LoadMasterKey 從環境變量 MASTER_KEY 讀取 base64 編碼的 32 bytes 密鑰
// 未設置時 found 為 false
func LoadMasterKey() (key []byte, found bool, err error) {
	raw := os.Getenv("MASTER_KEY")
	if raw == "" {
		return nil, false, nil
	}

	key, err = base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, true, fmt.Errorf("invalid master key encoding: %w", err)
	}
	if len(key) != constants.MasterKeyLength {
		return nil, true, fmt.Errorf("invalid master key length: expected %d, got %d", constants.MasterKeyLength, len(key))
	}
	return key, true, nil
}

// DeriveConversationKey 導出對話密鑰
func DeriveConversationKey(masterKey []byte, conversationID string) ([]byte, error) {
	r := hkdf.New(sha256.New, masterKey, nil, []byte("conversation:"+conversationID))
	key := make([]byte, constants.MasterKeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive conversation key: %w", err)
	}
	return key, nil
}

// IsEnabled 是否啟用解密
func (m *MessageEncryption) IsEnabled() bool {
	return m != nil && m.enabled
}

// EncryptMessage 以對話密鑰加密內容（種子資料與測試用）
func (m *MessageEncryption) EncryptMessage(conversationID, content string) (string, error) {
	if !m.IsEnabled() {
		return content, nil
	}

	c, err := m.cipherFor(conversationID)
	if err != nil {
		return "", err
	}
	return c.Encrypt(content)
}

// Reveal 回傳用於判斷的文字
// 未加密內容原樣回傳，無法解密時回傳佔位文字而不是錯誤
func (m *MessageEncryption) Reveal(conversationID, stored string) string {
	if strings.HasPrefix(stored, plaintextPrefix) {
		return stored[len(plaintextPrefix):]
	}
	if !m.IsEnabled() || !IsEncrypted(stored) {
		return stored
	}

	c, err := m.cipherFor(conversationID)
	if err != nil {
		return FailedToDecryptText
	}

	plain, err := c.Decrypt(stored)
	if err != nil {
		return FailedToDecryptText
	}
	// 密鑰錯誤通常會得到非 UTF-8 的位元組
	if !utf8.ValidString(plain) {
		return DecryptionFailedText
	}
	return plain
}

func (m *MessageEncryption) cipherFor(conversationID string) (*AESCTREncryption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.ciphers[conversationID]; ok {
		return c, nil
	}

	key, err := DeriveConversationKey(m.masterKey, conversationID)
	if err != nil {
		return nil, err
	}
	c, err := NewAESCTREncryption(key)
	if err != nil {
		return nil, err
	}
	m.ciphers[conversationID] = c
	return c, nil
}
