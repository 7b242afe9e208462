package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/certflow/certflow/core/certorder"
)

// Store is a file-backed implementation of certorder.Store. All state
// lives in memory; every mutation rewrites the state file atomically.
type Store struct {
	path string

	mu        sync.RWMutex
	orders    map[string]*certorder.CertificateOrder
	providers map[string]*certorder.DNSProviderConfig
}

type stateFile struct {
	Version   int                            `json:"version"`
	Orders    []*certorder.CertificateOrder  `json:"orders"`
	Providers []*certorder.DNSProviderConfig `json:"providers"`
}

const stateVersion = 1

// Open loads the state file at path, creating an empty store when the
// file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path:      path,
		orders:    make(map[string]*certorder.CertificateOrder),
		providers: make(map[string]*certorder.DNSProviderConfig),
	}

	payload, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state stateFile
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", path, err)
	}
	for _, order := range state.Orders {
		s.orders[order.ID] = order
	}
	for _, cfg := range state.Providers {
		s.providers[cfg.ID] = cfg
	}
	return s, nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*certorder.CertificateOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, certorder.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (s *Store) SaveOrder(_ context.Context, order *certorder.CertificateOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[order.ID] = order.Clone()
	return s.flush()
}

// DeleteOrder removes an order from the store. Deleting a missing order is
// not an error.
func (s *Store) DeleteOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return nil
	}
	delete(s.orders, orderID)
	return s.flush()
}

// ListOrders returns every order owned by a user, newest first.
func (s *Store) ListOrders(_ context.Context, ownerID string) ([]*certorder.CertificateOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*certorder.CertificateOrder
	for _, order := range s.orders {
		if order.OwnerID == ownerID {
			out = append(out, order.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListDueForRenewal(_ context.Context, notBefore, notAfter time.Time) ([]*certorder.CertificateOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*certorder.CertificateOrder
	for _, order := range s.orders {
		if !order.PersistForRenewal || order.ExpiresAt.IsZero() {
			continue
		}
		if order.ExpiresAt.Before(notBefore) || order.ExpiresAt.After(notAfter) {
			continue
		}
		out = append(out, order.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (s *Store) GetProviderConfig(_ context.Context, providerID string) (*certorder.DNSProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.providers[providerID]
	if !ok {
		return nil, certorder.ErrProviderConfigNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (s *Store) ListProviderConfigs(_ context.Context, ownerID string) ([]*certorder.DNSProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*certorder.DNSProviderConfig
	for _, cfg := range s.providers {
		if cfg.OwnerID == ownerID {
			cp := *cfg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

// SaveProviderConfig inserts or replaces a DNS provider configuration.
func (s *Store) SaveProviderConfig(_ context.Context, cfg *certorder.DNSProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *cfg
	s.providers[cfg.ID] = &cp
	return s.flush()
}

// DeleteProviderConfig removes a DNS provider configuration. Deleting a
// missing configuration is not an error.
func (s *Store) DeleteProviderConfig(_ context.Context, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[providerID]; !ok {
		return nil
	}
	delete(s.providers, providerID)
	return s.flush()
}

// flush writes the full state atomically: temp file in the same directory,
// fsync, then rename over the old file. Callers must hold the write lock.
func (s *Store) flush() error {
	state := stateFile{Version: stateVersion}
	for _, order := range s.orders {
		state.Orders = append(state.Orders, order)
	}
	for _, cfg := range s.providers {
		state.Providers = append(state.Providers, cfg)
	}
	sort.Slice(state.Orders, func(i, j int) bool { return state.Orders[i].ID < state.Orders[j].ID })
	sort.Slice(state.Providers, func(i, j int) bool { return state.Providers[i].ID < state.Providers[j].ID })

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
