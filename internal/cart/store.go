package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/otel"
)

const keyCartSnapshot = "storefront:cart:%s"

type snapshot struct {
	Items   []LineItem `json:"items"`
	SavedAt time.Time  `json:"saved_at"`
}

// SnapshotStore persists the cart as a redis JSON document per session. It is
// a durability aid, not a source of truth: the persisted prices may be stale
// until the cart is revalidated.
//
// Writes go through a background saver (Enqueue/Run) so the event loop never
// waits on redis; only the newest pending snapshot matters, an unsaved older
// one is replaced.
type SnapshotStore struct {
	cache   *redis.Client
	pending chan snapshotRequest
}

type snapshotRequest struct {
	sessionID string
	items     []LineItem
}

func NewSnapshotStore(cache *redis.Client) *SnapshotStore {
	return &SnapshotStore{cache: cache, pending: make(chan snapshotRequest, 1)}
}

// Enqueue hands a snapshot to the background saver without blocking.
func (s *SnapshotStore) Enqueue(sessionID string, items []LineItem) {
	req := snapshotRequest{sessionID: sessionID, items: items}
	for {
		select {
		case s.pending <- req:
			return
		default:
			select {
			case <-s.pending:
			default:
			}
		}
	}
}

// Run drains pending snapshots until the context ends.
func (s *SnapshotStore) Run(c context.Context) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "SnapshotStore Run").
		Logger()
	c = logger.WithContext(c)

	logger.Info().Msg("starting snapshot saver")
	for {
		select {
		case <-c.Done():
			logger.Info().Msg("stopping snapshot saver")
			return
		case req := <-s.pending:
			if err := s.Save(c, req.sessionID, req.items); err != nil {
				logger.Warn().Err(err).Msg("failed persisting cart snapshot")
			}
		}
	}
}

func (s *SnapshotStore) Save(c context.Context, sessionID string, items []LineItem) error {
	c, span := otel.Tracer.Start(c, "SnapshotStore Save")
	defer span.End()

	cacheKey := fmt.Sprintf(keyCartSnapshot, sessionID)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "SnapshotStore Save").
		Str(log.KeyCacheKey, cacheKey).
		Logger()

	err := s.cache.JSONSet(c, cacheKey, "$", snapshot{Items: items, SavedAt: time.Now()}).Err()
	if err != nil {
		err = fmt.Errorf("failed saving cart snapshot with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Debug().Int("lineCount", len(items)).Msg("saved cart snapshot")
	return nil
}

func (s *SnapshotStore) Load(c context.Context, sessionID string) ([]LineItem, error) {
	c, span := otel.Tracer.Start(c, "SnapshotStore Load")
	defer span.End()

	cacheKey := fmt.Sprintf(keyCartSnapshot, sessionID)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "SnapshotStore Load").
		Str(log.KeyCacheKey, cacheKey).
		Logger()

	jsonCache, err := s.cache.JSONGet(c, cacheKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			logger.Info().Msg("no cart snapshot found")
			return nil, nil
		}
		err = fmt.Errorf("failed loading cart snapshot with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	if jsonCache == "" {
		logger.Info().Msg("no cart snapshot found")
		return nil, nil
	}

	snap := snapshot{}
	err = json.Unmarshal([]byte(jsonCache), &snap)
	if err != nil {
		err = fmt.Errorf("failed unmarshaling cart snapshot with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Int("lineCount", len(snap.Items)).Msg("loaded cart snapshot")
	return snap.Items, nil
}

func (s *SnapshotStore) Delete(c context.Context, sessionID string) error {
	c, span := otel.Tracer.Start(c, "SnapshotStore Delete")
	defer span.End()

	cacheKey := fmt.Sprintf(keyCartSnapshot, sessionID)
	err := s.cache.JSONDel(c, cacheKey, "$").Err()
	if err != nil {
		err = fmt.Errorf("failed deleting cart snapshot with error=%w", err)
		otel.RecordError(err, span)
		zerolog.Ctx(c).Error().Err(err).Msg(err.Error())
		return err
	}
	return nil
}
