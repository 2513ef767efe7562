package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookgpt/backend/internal/agent/deps"
	errx "bookgpt/backend/internal/core/error"
	"bookgpt/backend/internal/model"
	logx "bookgpt/backend/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps history in Redis. Recent books are a sorted set of
// storage keys scored by open time plus a hash of book payloads; characters
// and portraits are plain keys that expire after ttl.
type RedisStore struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, prefix: "bookgpt"}
}

func (r *RedisStore) recentKey() string      { return r.prefix + ":recent" }
func (r *RedisStore) recentBooksKey() string { return r.prefix + ":recent:books" }

func (r *RedisStore) charactersKey(book model.Book) string {
	return fmt.Sprintf("%s:characters:%s", r.prefix, book.StorageKey())
}

func (r *RedisStore) portraitKey(book model.Book, character model.BookCharacter) string {
	return fmt.Sprintf("%s:portrait:%s", r.prefix, model.PortraitKey(book, character))
}

func (r *RedisStore) LoadRecentBooks(ctx context.Context) ([]model.Book, error) {
	keys, err := r.rdb.ZRevRange(ctx, r.recentKey(), 0, MaxRecentBooks-1).Result()
	if err != nil {
		logx.Error().Err(err).Msg("failed to load recent book keys from redis")
		return nil, errx.WrapStore(err)
	}
	if len(keys) == 0 {
		return []model.Book{}, nil
	}

	values, err := r.rdb.HMGet(ctx, r.recentBooksKey(), keys...).Result()
	if err != nil {
		logx.Error().Err(err).Msg("failed to load recent books from redis")
		return nil, errx.WrapStore(err)
	}

	books := make([]model.Book, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var b model.Book
		if err := json.Unmarshal([]byte(s), &b); err != nil {
			logx.Warn().Err(err).Str("key", keys[i]).Msg("skipping malformed recent book")
			continue
		}
		books = append(books, b)
	}
	return books, nil
}

func (r *RedisStore) AddRecentBook(ctx context.Context, book model.Book) error {
	b, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("marshal book: %w", err)
	}
	key := book.StorageKey()

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, r.recentKey(), redis.Z{Score: float64(time.Now().UnixNano()), Member: key})
		pipe.HSet(ctx, r.recentBooksKey(), key, b)
		pipe.ZRemRangeByRank(ctx, r.recentKey(), 0, -MaxRecentBooks-1)
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("book", key).Msg("failed to add recent book to redis")
		return errx.WrapStore(err)
	}

	// drop payloads whose keys fell out of the sorted set
	kept, err := r.rdb.ZRange(ctx, r.recentKey(), 0, -1).Result()
	if err != nil {
		return errx.WrapStore(err)
	}
	all, err := r.rdb.HKeys(ctx, r.recentBooksKey()).Result()
	if err != nil {
		return errx.WrapStore(err)
	}
	keep := make(map[string]struct{}, len(kept))
	for _, k := range kept {
		keep[k] = struct{}{}
	}
	var stale []string
	for _, k := range all {
		if _, ok := keep[k]; !ok {
			stale = append(stale, k)
		}
	}
	if len(stale) > 0 {
		if err := r.rdb.HDel(ctx, r.recentBooksKey(), stale...).Err(); err != nil {
			return errx.WrapStore(err)
		}
	}
	return nil
}

func (r *RedisStore) LoadCachedCharacters(ctx context.Context, book model.Book) ([]model.BookCharacter, bool, error) {
	raw, err := r.rdb.Get(ctx, r.charactersKey(book)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errx.WrapStore(err)
	}

	var characters []model.BookCharacter
	if err := json.Unmarshal(raw, &characters); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached characters: %w", err)
	}
	if len(characters) == 0 {
		return nil, false, nil
	}
	return characters, true, nil
}

func (r *RedisStore) SaveCharacters(ctx context.Context, characters []model.BookCharacter, book model.Book) error {
	b, err := json.Marshal(characters)
	if err != nil {
		return fmt.Errorf("marshal characters: %w", err)
	}
	if err := r.rdb.Set(ctx, r.charactersKey(book), b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("book", book.StorageKey()).Msg("failed to cache characters in redis")
		return errx.WrapStore(err)
	}
	return nil
}

func (r *RedisStore) LoadPortrait(ctx context.Context, book model.Book, character model.BookCharacter) ([]byte, bool, error) {
	data, err := r.rdb.Get(ctx, r.portraitKey(book, character)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errx.WrapStore(err)
	}
	return data, true, nil
}

func (r *RedisStore) SavePortrait(ctx context.Context, data []byte, book model.Book, character model.BookCharacter) error {
	if err := r.rdb.Set(ctx, r.portraitKey(book, character), data, r.ttl).Err(); err != nil {
		return errx.WrapStore(err)
	}
	return nil
}

var _ deps.HistoryStore = (*RedisStore)(nil)
