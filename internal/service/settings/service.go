// Package settings owns the endpoint configuration lifecycle: persisted on
// explicit save, snapshotted per dispatch, reset with everything else.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Config is the user-facing endpoint configuration. AvailableModels is a
// cache refreshed by explicit discovery; its presence does not imply
// ModelName is valid.
type Config struct {
	BaseURL         string
	APIKey          string
	ModelName       string
	AvailableModels []string
}

func (c Config) clone() Config {
	out := c
	out.AvailableModels = append([]string(nil), c.AvailableModels...)
	return out
}

// Persister is the slice of the storage layer the settings service needs.
type Persister interface {
	SetSetting(ctx context.Context, key, value string) error
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

const (
	keyBaseURL   = "llm.base_url"
	keyAPIKey    = "llm.api_key"
	keyModelName = "llm.model"
	keyModels    = "llm.available_models"
)

// Service guards the live configuration. Reads during dispatch take value
// snapshots; saves only affect requests dispatched afterwards.
type Service struct {
	mu       sync.RWMutex
	cfg      Config
	defaults Config
	persist  Persister
}

// NewService seeds the service with env-derived defaults; persisted values
// override them once Load runs.
func NewService(persist Persister, defaults Config) *Service {
	return &Service{
		cfg:      defaults.clone(),
		defaults: defaults.clone(),
		persist:  persist,
	}
}

// Load overlays persisted values onto the defaults. Call once at startup.
func (s *Service) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range []struct {
		key  string
		dest *string
	}{
		{keyBaseURL, &s.cfg.BaseURL},
		{keyAPIKey, &s.cfg.APIKey},
		{keyModelName, &s.cfg.ModelName},
	} {
		value, ok, err := s.persist.GetSetting(ctx, item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.dest = value
		}
	}

	raw, ok, err := s.persist.GetSetting(ctx, keyModels)
	if err != nil {
		return err
	}
	if ok {
		var models []string
		if err := json.Unmarshal([]byte(raw), &models); err != nil {
			return fmt.Errorf("decode cached model list: %w", err)
		}
		s.cfg.AvailableModels = models
	}
	return nil
}

// Snapshot returns a value copy for one dispatch.
func (s *Service) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

// Save stores the settings the user confirmed in the settings flow.
func (s *Service) Save(ctx context.Context, apiKey, baseURL, modelName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persist != nil {
		for key, value := range map[string]string{
			keyAPIKey:    apiKey,
			keyBaseURL:   baseURL,
			keyModelName: modelName,
		} {
			if err := s.persist.SetSetting(ctx, key, value); err != nil {
				return err
			}
		}
	}

	s.cfg.APIKey = apiKey
	s.cfg.BaseURL = baseURL
	s.cfg.ModelName = modelName
	return nil
}

// SetAvailableModels replaces the cached discovery result.
func (s *Service) SetAvailableModels(ctx context.Context, models []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persist != nil {
		encoded, err := json.Marshal(models)
		if err != nil {
			return fmt.Errorf("encode model list: %w", err)
		}
		if err := s.persist.SetSetting(ctx, keyModels, string(encoded)); err != nil {
			return err
		}
	}
	s.cfg.AvailableModels = append([]string(nil), models...)
	return nil
}

// Reset reverts to the startup defaults. The persisted rows are wiped by the
// storage-level reset that accompanies this call.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = s.defaults.clone()
}
