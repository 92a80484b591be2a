// Package auth owns user accounts and the bearer tokens the API server
// hands out. Passwords are bcrypt-hashed; tokens are HS256 JWTs.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Registry stores users in a JSON file, mirroring the transcript store's
// snapshot-and-rename persistence.
type Registry struct {
	path string

	mu      sync.Mutex
	byEmail map[string]User
}

func OpenRegistry(path string) (*Registry, error) {
	r := &Registry{
		path:    path,
		byEmail: make(map[string]User),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user registry %s: %w", path, err)
	}

	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("parse user registry %s: %w", path, err)
	}
	for _, u := range users {
		r.byEmail[u.Email] = u
	}
	return r, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *Registry) Register(name, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		return nil, ErrEmailTaken
	}

	user := User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	r.byEmail[email] = user

	if err := r.persistLocked(); err != nil {
		delete(r.byEmail, email)
		return nil, err
	}
	return &user, nil
}

func (r *Registry) Authenticate(email, password string) (*User, error) {
	email = normalizeEmail(email)

	r.mu.Lock()
	user, exists := r.byEmail[email]
	r.mu.Unlock()

	if !exists {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (r *Registry) persistLocked() error {
	users := make([]User, 0, len(r.byEmail))
	for _, u := range r.byEmail {
		users = append(users, u)
	}

	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal user registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write user registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace user registry: %w", err)
	}
	return nil
}
