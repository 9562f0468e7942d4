package config

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// tokenKey is the credentials row holding the Readwise token.
const tokenKey = "readwise_token"

// ErrEmptyToken is returned when storing a blank token.
var ErrEmptyToken = errors.New("token must not be empty")

// TokenStore keeps the Readwise access token in SQLite.
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore opens (or creates) the token database at dbPath.
func NewTokenStore(dbPath string) (*TokenStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &TokenStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the credentials table if it doesn't exist.
func (s *TokenStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *TokenStore) Close() error {
	return s.db.Close()
}

// GetToken returns the stored token, or "" when none is stored.
func (s *TokenStore) GetToken() (string, error) {
	query := "SELECT value FROM credentials WHERE key = ?"

	var token string
	err := s.db.QueryRow(query, tokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query token: %w", err)
	}

	return token, nil
}

// HasToken reports whether a token is stored.
func (s *TokenStore) HasToken() (bool, error) {
	token, err := s.GetToken()
	if err != nil {
		return false, err
	}
	return token != "", nil
}

// SetToken stores token, replacing any previous one. Surrounding
// whitespace is dropped.
func (s *TokenStore) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}

	query := "INSERT OR REPLACE INTO credentials (key, value) VALUES (?, ?)"
	if _, err := s.db.Exec(query, tokenKey, token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// DeleteToken removes the stored token. Deleting when nothing is stored is
// not an error.
func (s *TokenStore) DeleteToken() error {
	query := "DELETE FROM credentials WHERE key = ?"
	if _, err := s.db.Exec(query, tokenKey); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
