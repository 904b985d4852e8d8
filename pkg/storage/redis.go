package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tannerhat/botjobs/pkg/core"
	"github.com/tannerhat/botjobs/pkg/security"
)

// Key layout:
//
//	botjobs:job:<id>    hash holding the job record
//	botjobs:pending     zset of pending job IDs, score = due time (ms)
//	botjobs:in_flight   zset of in-flight job IDs, score = claimed_at (ms)
//	botjobs:completed   zset of completed job IDs, score = completed_at (ms)
//	botjobs:failed      zset of failed job IDs, score = completed_at (ms)
const (
	redisJobPrefix = "botjobs:job:"
	redisStatusPre = "botjobs:"
)

func redisJobKey(id string) string { return redisJobPrefix + id }

func redisStatusKey(s core.JobStatus) string { return redisStatusPre + string(s) }

// claimScript moves eligible jobs into the in-flight set and stamps
// their hashes, all inside one script so no two claimants can both win
// the same job. Stale in-flight claims are recovered first (they are
// the oldest work), then due pending jobs oldest-first.
var claimScript = redis.NewScript(`
local pending = KEYS[1]
local inflight = KEYS[2]
local limit = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local stale_before = ARGV[3]
local claimant = ARGV[4]
local prefix = ARGV[5]

local claimed = {}

local stale = redis.call('ZRANGEBYSCORE', inflight, '-inf', '(' .. stale_before, 'LIMIT', 0, limit)
for _, id in ipairs(stale) do
  redis.call('ZADD', inflight, now, id)
  redis.call('HSET', prefix .. id, 'status', 'in_flight', 'claimed_at', now, 'claimed_by', claimant)
  redis.call('HINCRBY', prefix .. id, 'attempts', 1)
  claimed[#claimed + 1] = id
end

local remaining = limit - #claimed
if remaining > 0 then
  local due = redis.call('ZRANGEBYSCORE', pending, '-inf', now, 'LIMIT', 0, remaining)
  for _, id in ipairs(due) do
    redis.call('ZREM', pending, id)
    redis.call('ZADD', inflight, now, id)
    redis.call('HSET', prefix .. id, 'status', 'in_flight', 'claimed_at', now, 'claimed_by', claimant)
    redis.call('HINCRBY', prefix .. id, 'attempts', 1)
    claimed[#claimed + 1] = id
  end
end

return claimed
`)

// terminalScript writes a terminal status guarded on the claimant still
// holding the claim. Returns 0 when the claim was lost.
var terminalScript = redis.NewScript(`
local inflight = KEYS[1]
local dest = KEYS[2]
local id = ARGV[1]
local claimant = ARGV[2]
local now = ARGV[3]
local status = ARGV[4]
local reason = ARGV[5]
local prefix = ARGV[6]

local key = prefix .. id
if redis.call('HGET', key, 'status') ~= 'in_flight' then
  return 0
end
if redis.call('HGET', key, 'claimed_by') ~= claimant then
  return 0
end
redis.call('HSET', key, 'status', status, 'completed_at', now)
if reason ~= '' then
  redis.call('HSET', key, 'last_error', reason)
end
redis.call('ZREM', inflight, id)
redis.call('ZADD', dest, tonumber(now), id)
return 1
`)

// RedisStore implements core.Store backed by Redis. Claim and terminal
// transitions run as Lua scripts, which makes them atomic conditional
// updates without client-side locking.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a new Redis-backed job store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Migrate is a no-op for Redis; keys are created on first write.
func (s *RedisStore) Migrate(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Enqueue adds a new pending job.
func (s *RedisStore) Enqueue(ctx context.Context, job *core.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = core.StatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	due := job.CreatedAt
	if job.NotBefore != nil && job.NotBefore.After(due) {
		due = *job.NotBefore
	}

	fields := map[string]any{
		"kind":       job.Kind,
		"payload":    job.Payload,
		"status":     string(job.Status),
		"attempts":   job.Attempts,
		"created_at": job.CreatedAt.UnixMilli(),
	}
	if job.NotBefore != nil {
		fields["not_before"] = job.NotBefore.UnixMilli()
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, redisJobKey(job.ID), fields)
	pipe.ZAdd(ctx, redisStatusKey(core.StatusPending), redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("botjobs: redis enqueue: %w", err)
	}
	return nil
}

// ClaimBatch claims up to limit eligible jobs via the claim script.
func (s *RedisStore) ClaimBatch(ctx context.Context, claimant string, limit int, staleness time.Duration, now time.Time) ([]*core.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := claimScript.Run(ctx, s.rdb,
		[]string{redisStatusKey(core.StatusPending), redisStatusKey(core.StatusInFlight)},
		limit,
		now.UnixMilli(),
		now.Add(-staleness).UnixMilli(),
		claimant,
		redisJobPrefix,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("botjobs: redis claim: %w", err)
	}

	claimed := make([]*core.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job != nil {
			claimed = append(claimed, job)
		}
	}
	return claimed, nil
}

// Complete marks a job as successfully completed.
func (s *RedisStore) Complete(ctx context.Context, jobID, claimant string, now time.Time) error {
	return s.writeTerminal(ctx, jobID, claimant, core.StatusCompleted, "", now)
}

// Fail marks a job as failed with a sanitized reason.
func (s *RedisStore) Fail(ctx context.Context, jobID, claimant string, reason string, now time.Time) error {
	reason = security.SanitizeErrorMessage(reason)
	if reason == "" {
		reason = "unknown failure"
	}
	return s.writeTerminal(ctx, jobID, claimant, core.StatusFailed, reason, now)
}

func (s *RedisStore) writeTerminal(ctx context.Context, jobID, claimant string, status core.JobStatus, reason string, now time.Time) error {
	n, err := terminalScript.Run(ctx, s.rdb,
		[]string{redisStatusKey(core.StatusInFlight), redisStatusKey(status)},
		jobID,
		claimant,
		now.UnixMilli(),
		string(status),
		reason,
		redisJobPrefix,
	).Int()
	if err != nil {
		return fmt.Errorf("botjobs: redis terminal write: %w", err)
	}
	if n == 0 {
		return core.ErrClaimLost
	}
	return nil
}

// GetJob retrieves a job by ID, or nil if absent.
func (s *RedisStore) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	fields, err := s.rdb.HGetAll(ctx, redisJobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("botjobs: redis get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return parseRedisJob(jobID, fields), nil
}

// GetJobsByStatus retrieves jobs by status, oldest first.
func (s *RedisStore) GetJobsByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, redisStatusKey(status), &redis.ZRangeBy{
		Min: "-inf", Max: "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("botjobs: redis list by status: %w", err)
	}

	jobList := make([]*core.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		// A job may have moved status between the range read and the
		// hash read; report only those still in the requested status.
		if job != nil && job.Status == status {
			jobList = append(jobList, job)
		}
	}
	return jobList, nil
}

// CountByStatus returns job counts keyed by status.
func (s *RedisStore) CountByStatus(ctx context.Context) (map[core.JobStatus]int64, error) {
	statuses := []core.JobStatus{
		core.StatusPending, core.StatusInFlight, core.StatusCompleted, core.StatusFailed,
	}

	pipe := s.rdb.Pipeline()
	cmds := make(map[core.JobStatus]*redis.IntCmd, len(statuses))
	for _, st := range statuses {
		cmds[st] = pipe.ZCard(ctx, redisStatusKey(st))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("botjobs: redis count: %w", err)
	}

	counts := make(map[core.JobStatus]int64, len(statuses))
	for st, cmd := range cmds {
		counts[st] = cmd.Val()
	}
	return counts, nil
}

func parseRedisJob(id string, fields map[string]string) *core.Job {
	job := &core.Job{
		ID:        id,
		Kind:      fields["kind"],
		Payload:   []byte(fields["payload"]),
		Status:    core.JobStatus(fields["status"]),
		LastError: fields["last_error"],
		ClaimedBy: fields["claimed_by"],
	}
	if v, err := strconv.Atoi(fields["attempts"]); err == nil {
		job.Attempts = v
	}
	if t := parseRedisMillis(fields["created_at"]); t != nil {
		job.CreatedAt = *t
	}
	job.NotBefore = parseRedisMillis(fields["not_before"])
	job.ClaimedAt = parseRedisMillis(fields["claimed_at"])
	job.CompletedAt = parseRedisMillis(fields["completed_at"])
	return job
}

func parseRedisMillis(v string) *time.Time {
	if v == "" {
		return nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
