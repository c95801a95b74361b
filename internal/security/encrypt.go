package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/fernet/fernet-go"

	"groupchat/internal/domain"
)

// Encryptor seals message content at rest with AES-256-GCM. Values written
// by older deployments with Fernet keys can still be opened.
type Encryptor struct {
	aead       cipher.AEAD
	fernetKeys []*fernet.Key
}

// NewEncryptor derives the AES key from key with SHA-256, so secrets of any
// length are accepted. key itself and legacyKeys are also tried as Fernet
// keys for decryption only.
func NewEncryptor(key []byte, legacyKeys []string) (*Encryptor, error) {
	if len(key) == 0 {
		return nil, errors.New("encryption key must not be empty")
	}
	sum := sha256.Sum256(key)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	fernetKeys := make([]*fernet.Key, 0, len(legacyKeys)+1)
	for _, raw := range append([]string{string(key)}, legacyKeys...) {
		if fk := parseFernetKey(raw); fk != nil {
			fernetKeys = append(fernetKeys, fk)
		}
	}
	return &Encryptor{aead: aead, fernetKeys: fernetKeys}, nil
}

func parseFernetKey(raw string) *fernet.Key {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	key, err := fernet.DecodeKey(trimmed)
	if err != nil {
		return nil
	}
	return key
}

func (e *Encryptor) Encrypt(plain string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *Encryptor) Decrypt(enc string) (string, error) {
	if raw, err := base64.StdEncoding.DecodeString(enc); err == nil && len(raw) >= e.aead.NonceSize() {
		n := e.aead.NonceSize()
		if plain, err := e.aead.Open(nil, raw[:n], raw[n:], nil); err == nil {
			return string(plain), nil
		}
	}
	if len(e.fernetKeys) > 0 {
		if plain := fernet.VerifyAndDecrypt([]byte(enc), 0*time.Second, e.fernetKeys); plain != nil {
			return string(plain), nil
		}
	}
	return "", errors.New("failed to decrypt message payload")
}

// SealMessage encrypts the content of m in place. Empty content stays empty
// so system and file-only messages remain readable without a key.
func (e *Encryptor) SealMessage(m *domain.Message) error {
	if m.Content == "" {
		return nil
	}
	enc, err := e.Encrypt(m.Content)
	if err != nil {
		return err
	}
	m.Content = enc
	return nil
}

// OpenMessage reverses SealMessage.
func (e *Encryptor) OpenMessage(m *domain.Message) error {
	if m.Content == "" {
		return nil
	}
	plain, err := e.Decrypt(m.Content)
	if err != nil {
		return err
	}
	m.Content = plain
	return nil
}

// SealConversation encrypts every message body and the last-message summary.
func (e *Encryptor) SealConversation(c *domain.Conversation) error {
	for i := range c.Messages {
		if err := e.SealMessage(&c.Messages[i]); err != nil {
			return err
		}
	}
	if c.LastMessage != nil && c.LastMessage.Content != "" {
		enc, err := e.Encrypt(c.LastMessage.Content)
		if err != nil {
			return err
		}
		c.LastMessage.Content = enc
	}
	return nil
}

// OpenConversation reverses SealConversation.
func (e *Encryptor) OpenConversation(c *domain.Conversation) error {
	for i := range c.Messages {
		if err := e.OpenMessage(&c.Messages[i]); err != nil {
			return err
		}
	}
	if c.LastMessage != nil && c.LastMessage.Content != "" {
		plain, err := e.Decrypt(c.LastMessage.Content)
		if err != nil {
			return err
		}
		c.LastMessage.Content = plain
	}
	return nil
}
