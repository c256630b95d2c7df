// Package catalog serves subsidy program records fetched from the external
// program registry. Programs are read-only from the scheduler's perspective
// and cached locally so the app keeps working offline.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/gochang/agrialimi/internal/model"
	"github.com/gochang/agrialimi/internal/store"
)

// ErrNotFound is returned when a program id is unknown to the catalog.
var ErrNotFound = errors.New("program not found")

const cacheKey = "programs"

// Config holds catalog service configuration.
type Config struct {
	URL string        // remote catalog endpoint; empty disables fetching
	TTL time.Duration // cache freshness window
}

// Service fetches, caches, and serves Program records.
type Service struct {
	config Config
	client *http.Client
	kv     *store.KV
	logger *slog.Logger

	mu        sync.RWMutex
	programs  []model.Program
	byID      map[string]model.Program
	lastFetch time.Time
}

// NewService creates a catalog service. Any previously cached programs are
// loaded from the store so lookups work before the first fetch.
func NewService(cfg Config, kv *store.KV, logger *slog.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	s := &Service{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		kv:     kv,
		logger: logger,
		byID:   make(map[string]model.Program),
	}

	var cached []model.Program
	if ok, err := kv.Get(store.NSCatalog, cacheKey, &cached); err != nil {
		logger.Warn("load cached catalog", "error", err)
	} else if ok {
		s.index(cached)
	}
	return s
}

// List returns all known programs, refreshing the cache when stale. A refresh
// failure is only an error when there is no cached catalog to fall back on.
func (s *Service) List(ctx context.Context) ([]model.Program, error) {
	refreshErr := s.refreshIfStale(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if refreshErr != nil {
		if len(s.programs) == 0 {
			return nil, refreshErr
		}
		s.logger.Warn("catalog refresh failed, serving cached", "error", refreshErr)
	}
	out := make([]model.Program, len(s.programs))
	copy(out, s.programs)
	return out, nil
}

// GetByID returns one program.
func (s *Service) GetByID(ctx context.Context, id string) (model.Program, error) {
	if err := s.refreshIfStale(ctx); err != nil {
		s.logger.Warn("catalog refresh failed, serving cached", "error", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return model.Program{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// Refresh forces a fetch regardless of cache age.
func (s *Service) Refresh(ctx context.Context) error {
	if s.config.URL == "" {
		return nil
	}
	programs, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	s.store(programs)
	return nil
}

func (s *Service) refreshIfStale(ctx context.Context) error {
	if s.config.URL == "" {
		return nil
	}

	s.mu.RLock()
	fresh := time.Since(s.lastFetch) < s.config.TTL && len(s.programs) > 0
	s.mu.RUnlock()
	if fresh {
		return nil
	}
	return s.Refresh(ctx)
}

// fetch downloads the program list with bounded exponential backoff. The
// cached catalog stays untouched on failure.
func (s *Service) fetch(ctx context.Context) ([]model.Program, error) {
	var programs []model.Program

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL, nil)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("catalog request: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("catalog returned status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("catalog returned status %d", resp.StatusCode)
		}

		programs = programs[:0]
		if err := json.NewDecoder(resp.Body).Decode(&programs); err != nil {
			return fmt.Errorf("decode catalog response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return programs, nil
}

func (s *Service) store(programs []model.Program) {
	if err := s.kv.Set(store.NSCatalog, cacheKey, programs); err != nil {
		s.logger.Warn("cache catalog", "error", err)
	}
	s.index(programs)
}

func (s *Service) index(programs []model.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs = programs
	s.byID = make(map[string]model.Program, len(programs))
	for _, p := range programs {
		s.byID[p.ID] = p
	}
	s.lastFetch = time.Now()
}

// Seed replaces the catalog contents directly, bypassing the remote fetch.
// Used by tests and by deployments that ship a bundled program list.
func (s *Service) Seed(programs []model.Program) {
	s.store(programs)
}
