// Package cache keeps assembled retrieval results in Redis so repeated
// questions against the same material skip embedding and search.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"elearning-platform/internal/rag"
	"elearning-platform/utils"
)

const (
	keyPrefix   = "ragctx:"
	scopePrefix = "ragctx:scope:"
	// unscopedToken tags entries whose query had no scope; every write to
	// any subject invalidates them.
	unscopedToken = "_all"
)

// ContextCache stores QueryResults compressed with brotli. Each entry is also
// registered in a per-scope set so an ingestion can invalidate exactly the
// entries it may have changed.
type ContextCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewContextCache(rdb redis.Cmdable, ttl time.Duration) *ContextCache {
	return &ContextCache{rdb: rdb, ttl: ttl}
}

// Key derives a stable cache key from every field that affects the result.
func Key(req rag.QueryRequest) string {
	scope := ""
	if req.Scope != nil {
		scope = req.Scope.Key + "=" + req.Scope.Value
	}
	normalized := strings.Join(strings.Fields(strings.ToLower(req.QueryText)), " ")
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%d", normalized, scope, req.Limit, req.MaxContextLength)))
	return keyPrefix + hex.EncodeToString(sum[:16])
}

func scopeToken(scope *rag.Scope) string {
	if scope == nil || scope.Key == "" {
		return unscopedToken
	}
	return scope.Key + "=" + scope.Value
}

func (c *ContextCache) Get(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(req)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	res, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (c *ContextCache) Set(ctx context.Context, req rag.QueryRequest, res *rag.QueryResult) error {
	payload, err := encode(res)
	if err != nil {
		return err
	}

	key := Key(req)
	setKey := scopePrefix + scopeToken(req.Scope)
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, key, payload, c.ttl)
	pipe.SAdd(ctx, setKey, key)
	pipe.Expire(ctx, setKey, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateScope drops entries cached for the scope and all unscoped entries.
func (c *ContextCache) InvalidateScope(ctx context.Context, scope *rag.Scope) error {
	tokens := []string{unscopedToken}
	if t := scopeToken(scope); t != unscopedToken {
		tokens = append(tokens, t)
	}

	for _, t := range tokens {
		setKey := scopePrefix + t
		keys, err := c.rdb.SMembers(ctx, setKey).Result()
		if err != nil {
			return err
		}
		keys = append(keys, setKey)
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Entries are "<algorithm>\n<payload>".
func encode(res *rag.QueryResult) ([]byte, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	packed, algo, err := utils.CompressText(string(data))
	if err != nil {
		return nil, err
	}
	return append([]byte(string(algo)+"\n"), packed...), nil
}

func decode(raw []byte) (*rag.QueryResult, error) {
	algo, payload, ok := strings.Cut(string(raw), "\n")
	if !ok {
		return nil, fmt.Errorf("cache: malformed entry")
	}
	data, err := utils.DecompressData([]byte(payload), utils.CompressionAlgorithm(algo))
	if err != nil {
		return nil, err
	}
	var res rag.QueryResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
