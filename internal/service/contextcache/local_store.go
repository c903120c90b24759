package contextcache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LocalStore in-process fallback, когда Redis недоступен.
// Та же семантика cap/TTL, что у RedisStore; истёкшие окна
// убирает фоновый sweep (Redis истекает ключи сам, карта — нет).
type LocalStore struct {
	windows       map[string]*localWindow
	mu            sync.RWMutex
	sweepInterval time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

type localWindow struct {
	turns     []Turn
	expiresAt time.Time
}

func NewLocalStore(sweepInterval time.Duration, logger *zap.Logger) *LocalStore {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &LocalStore{
		windows:       make(map[string]*localWindow),
		sweepInterval: sweepInterval,
		now:           time.Now,
		logger:        logger.With(zap.String("component", "local_turn_store")),
	}
}

// Run запускает периодическую очистку истёкших окон до отмены ctx
func (s *LocalStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.sweep()
			if removed > 0 {
				s.logger.Debug("Swept expired context windows", zap.Int("removed", removed))
			}
		}
	}
}

func (s *LocalStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, window := range s.windows {
		if now.After(window.expiresAt) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

func (s *LocalStore) Append(ctx context.Context, key string, turn Turn, capacity int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	window, exists := s.windows[key]
	if !exists || now.After(window.expiresAt) {
		window = &localWindow{}
		s.windows[key] = window
	}

	window.turns = append(window.turns, turn)
	// FIFO-усечение: выживают последние capacity ходов
	if len(window.turns) > capacity {
		window.turns = window.turns[len(window.turns)-capacity:]
	}
	window.expiresAt = now.Add(ttl)

	return nil
}

func (s *LocalStore) GetRecent(ctx context.Context, key string, capacity int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window, exists := s.windows[key]
	if !exists || s.now().After(window.expiresAt) {
		return nil, nil
	}

	turns := window.turns
	if len(turns) > capacity {
		turns = turns[len(turns)-capacity:]
	}

	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *LocalStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, key)
	return nil
}

func (s *LocalStore) TTLRemaining(ctx context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window, exists := s.windows[key]
	if !exists {
		return 0, nil
	}

	remaining := window.expiresAt.Sub(s.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

func (s *LocalStore) Ping(ctx context.Context) error {
	return nil
}

func (s *LocalStore) Name() string {
	return "local"
}

// Verify interface implementation
var _ TurnStore = (*LocalStore)(nil)
