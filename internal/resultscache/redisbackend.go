package resultscache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/buildmesh/enginecore/internal/core"
)

// RedisBackend is the Standard-profile RemoteBackend, built on a
// Redis-backed cache client.
type RedisBackend struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
}

// NewRedisBackend wraps client. prefix namespaces keys (e.g. by cluster
// or environment); ttl of zero means entries never expire.
func NewRedisBackend(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}
}

func (b *RedisBackend) key(id core.ConfigurationId) string {
	return fmt.Sprintf("%sresultscache:%s", b.prefix, strconv.Itoa(int(id)))
}

type redisResultRecord struct {
	ConfigurationID       int32
	GlobalRequestID       int64
	ParentGlobalRequestID int64
	NodeRequestID         int64
	SubmissionID          string
	InitialTargets        []string
	DefaultTargets        []string
	CircularDependency    bool
	ExceptionMessage      string
	HasException          bool
	BuiltWithFlags        uint32
	Targets               []redisTargetRecord
}

type redisTargetRecord struct {
	Name       string
	ResultCode int
	ActionCode int
}

// Load fetches and decodes the cached result for id, reporting (nil,
// false, nil) on a cache miss. The Redis tier intentionally stores only
// enough of BuildResult to answer satisfy_request's target-presence and
// result-code checks for cross-node reuse; full item/metadata fidelity
// still lives with the node that produced the result.
func (b *RedisBackend) Load(id core.ConfigurationId) (*core.BuildResult, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := b.client.Get(ctx, b.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("resultscache: redis load %d: %w", id, err)
	}

	var rec redisResultRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, false, fmt.Errorf("resultscache: decode redis entry %d: %w", id, err)
	}

	out := core.NewBuildResult(core.ConfigurationId(rec.ConfigurationID))
	out.GlobalRequestID = core.GlobalRequestId(rec.GlobalRequestID)
	out.ParentGlobalRequestID = core.GlobalRequestId(rec.ParentGlobalRequestID)
	out.NodeRequestID = rec.NodeRequestID
	out.SubmissionID = rec.SubmissionID
	out.InitialTargets = rec.InitialTargets
	out.DefaultTargets = rec.DefaultTargets
	out.CircularDependency = rec.CircularDependency
	out.BuiltWithFlags = core.RequestFlags(rec.BuiltWithFlags)
	if rec.HasException {
		out.Exception = core.NewInternalError("%s", rec.ExceptionMessage)
	}
	for _, t := range rec.Targets {
		out.AddTargetResult(t.Name, &core.TargetResult{WorkUnitResult: core.WorkUnitResult{
			ResultCode: core.ResultCode(t.ResultCode),
			ActionCode: core.ActionCode(t.ActionCode),
		}})
	}
	return out, true, nil
}

// Store encodes and writes result under its configuration id.
func (b *RedisBackend) Store(id core.ConfigurationId, result *core.BuildResult) error {
	rec := redisResultRecord{
		ConfigurationID:       int32(result.ConfigurationID),
		GlobalRequestID:       int64(result.GlobalRequestID),
		ParentGlobalRequestID: int64(result.ParentGlobalRequestID),
		NodeRequestID:         result.NodeRequestID,
		SubmissionID:          result.SubmissionID,
		InitialTargets:        result.InitialTargets,
		DefaultTargets:        result.DefaultTargets,
		CircularDependency:    result.CircularDependency,
		BuiltWithFlags:        uint32(result.BuiltWithFlags),
	}
	if result.Exception != nil {
		rec.HasException = true
		rec.ExceptionMessage = result.Exception.Message
	}
	for _, name := range result.TargetNames() {
		tr, _ := result.TargetResult(name)
		rec.Targets = append(rec.Targets, redisTargetRecord{
			Name:       name,
			ResultCode: int(tr.ResultCode()),
			ActionCode: int(tr.WorkUnitResult.ActionCode),
		})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("resultscache: encode redis entry %d: %w", id, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.client.Set(ctx, b.key(id), buf.Bytes(), b.ttl).Err(); err != nil {
		return fmt.Errorf("resultscache: redis store %d: %w", id, err)
	}
	return nil
}

// Delete removes the cached entry for id, if any.
func (b *RedisBackend) Delete(id core.ConfigurationId) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.client.Del(ctx, b.key(id)).Err(); err != nil {
		return fmt.Errorf("resultscache: redis delete %d: %w", id, err)
	}
	return nil
}
