package store

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"io"

	"chatflow-works/engine/internal/notify"
)

// SMTPStore persists per-user SMTP configurations. Passwords are encrypted
// with AES-256-GCM before they touch the database; the nonce is prepended to
// the ciphertext and the result stored base64-encoded. It satisfies the
// notifier's ConfigSource interface.
type SMTPStore struct {
	db  *sql.DB
	key []byte // 32-byte AES-256 key
}

// NewSMTPStore creates an SMTPStore backed by the provided DB connection and
// 32-byte AES-256 key. Returns an error if the key length is wrong.
func NewSMTPStore(db *sql.DB, key []byte) (*SMTPStore, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("smtp store: AES key must be exactly 32 bytes, got %d", len(key))
	}
	return &SMTPStore{db: db, key: key}, nil
}

var _ notify.ConfigSource = (*SMTPStore)(nil)

// Save upserts the user's SMTP configuration.
func (s *SMTPStore) Save(ctx context.Context, userID string, cfg notify.SMTPConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	sealed, err := s.encrypt([]byte(cfg.Password))
	if err != nil {
		return fmt.Errorf("smtp store: encrypt password: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO smtp_configs (user_id, host, port, username, password, secure, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id) DO UPDATE
		  SET host       = EXCLUDED.host,
		      port       = EXCLUDED.port,
		      username   = EXCLUDED.username,
		      password   = EXCLUDED.password,
		      secure     = EXCLUDED.secure,
		      updated_at = NOW()
	`, userID, cfg.Host, cfg.Port, cfg.Username, sealed, cfg.Secure)
	if err != nil {
		return fmt.Errorf("smtp store: save config for user %s: %w", userID, err)
	}
	return nil
}

// SMTPConfig loads and decrypts the user's SMTP configuration.
func (s *SMTPStore) SMTPConfig(ctx context.Context, userID string) (notify.SMTPConfig, error) {
	var (
		cfg    notify.SMTPConfig
		sealed string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT host, port, username, password, secure
		FROM smtp_configs WHERE user_id = $1`,
		userID).Scan(&cfg.Host, &cfg.Port, &cfg.Username, &sealed, &cfg.Secure)
	if err == sql.ErrNoRows {
		return notify.SMTPConfig{}, ErrNotFound
	}
	if err != nil {
		return notify.SMTPConfig{}, err
	}
	plain, err := s.decrypt(sealed)
	if err != nil {
		return notify.SMTPConfig{}, fmt.Errorf("smtp store: decrypt password for user %s: %w", userID, err)
	}
	cfg.Password = string(plain)
	return cfg, nil
}

// Delete removes the user's SMTP configuration.
func (s *SMTPStore) Delete(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM smtp_configs WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SMTPStore) encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, plaintext, nil)), nil
}

// decrypt reverses encrypt. It expects the nonce to be prepended to the ciphertext.
func (s *SMTPStore) decrypt(sealed string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
