package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "avatarsynth/internal/pkg/errors"
)

const (
	jobKeyPrefix    = "avatar:job:"
	resultKeyPrefix = "avatar:result:"
)

// RedisStore keeps jobs as JSON strings under avatar:job:{id}, each with a TTL.
// Succeeded results are indexed under avatar:result:{sha256(url)}.
type RedisStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func jobKey(id string) string { return jobKeyPrefix + id }

func (s *RedisStore) Create(ctx context.Context, j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return apperrors.Wrap(err, "jobs.create", "encode job")
	}

	ok, err := s.rdb.SetNX(ctx, jobKey(j.ID), data, s.ttl).Result()
	if err != nil {
		return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "jobs.create", "job store unavailable")
	}
	if !ok {
		return apperrors.Newf(apperrors.CodeConflict, "job already exists: %s", j.ID).
			WithField("job_id", j.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound("job", id)
	}
	if err != nil {
		return nil, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "jobs.get", "job store unavailable")
	}

	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, apperrors.Wrap(err, "jobs.get", "decode job")
	}
	return &j, nil
}

func (s *RedisStore) Update(ctx context.Context, j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return apperrors.Wrap(err, "jobs.update", "encode job")
	}

	var setCmd *redis.BoolCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setCmd = pipe.SetXX(ctx, jobKey(j.ID), data, s.ttl)
		if j.Succeeded() {
			pipe.Set(ctx, resultKeyPrefix+resultDigest(j.ResultURL), j.ID, s.ttl)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "jobs.update", "job store unavailable")
	}
	if !setCmd.Val() {
		return apperrors.NotFound("job", j.ID)
	}
	return nil
}

func (s *RedisStore) FindByResult(ctx context.Context, resultURL string) (*Job, error) {
	id, err := s.rdb.Get(ctx, resultKeyPrefix+resultDigest(resultURL)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound("video", resultURL)
	}
	if err != nil {
		return nil, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "jobs.find_by_result", "job store unavailable")
	}

	j, err := s.Get(ctx, id)
	if apperrors.IsNotFound(err) {
		return nil, apperrors.NotFound("video", resultURL)
	}
	if err != nil {
		return nil, err
	}
	if !j.Succeeded() || j.ResultURL != resultURL {
		return nil, apperrors.NotFound("video", resultURL)
	}
	return j, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
