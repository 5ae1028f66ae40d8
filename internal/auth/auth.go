// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

// Package auth holds the process-wide bearer token, persisted across runs in
// a token file.
package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/StepanNazar/city-report/internal/http"
	"github.com/StepanNazar/city-report/internal/logger"
)

// Store is the persisted session token. An empty token means signed out.
type Store struct {
	mu     sync.Mutex
	path   string
	token  string
	logger *logger.Logger
}

// NewStore loads the token file at path. A missing file is a signed-out
// store, not an error.
func NewStore(path string, log *logger.Logger) (*Store, error) {
	store := &Store{path: path, logger: log}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return store, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	store.token = strings.TrimSpace(string(data))
	return store, nil
}

// Token returns the current bearer token, empty when signed out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Set persists the token with owner-only permissions.
func (s *Store) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	s.token = token
	return nil
}

// Clear signs out: drops the in-memory token and removes the token file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// Refresh rotates the session token via the backend's refresh endpoint. A
// signed-out store is a no-op; a rejected token signs the store out.
func (s *Store) Refresh(ctx context.Context, client *http.Client, baseURL string) error {
	token := s.Token()
	if token == "" {
		return nil
	}

	var response struct {
		Token string `json:"token"`
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	status, err := client.Post(ctx, strings.TrimSuffix(baseURL, "/")+"/auth/refresh",
		&response, nil, headers)
	// A rejection signs the store out regardless of whether its body decoded,
	// the backend is free to answer 401/403 with an empty or non-JSON body.
	if status == 401 || status == 403 {
		s.logger.Warn("session token rejected, signing out", "status", status)
		return s.Clear()
	}
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("token refresh failed with HTTP status %d", status)
	}
	if response.Token == "" {
		return fmt.Errorf("token refresh response carries no token")
	}
	return s.Set(response.Token)
}
