// Package redisreminderstore keeps reminders in Redis.
//
// Every reminder is a hash. Pending reminders are indexed in a sorted set
// scored by due instant, in-flight reminders in a sorted set scored by
// claim instant, and each owner has a sorted set of its non-terminal
// reminders. State transitions run as Lua scripts so a claim is atomic
// for all clients of one Redis node.
package redisreminderstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"repeatme/internal/core/domain/clock"
	c "repeatme/internal/core/domain/common"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/reminder"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DEFAULT_PREFIX = "repeatme"

var claimScript = redis.NewScript(`
local limit = tonumber(ARGV[3])
local prefix = ARGV[4]
local candidates = {}
local seen = {}

local function add(id)
  if seen[id] then
    return
  end
  seen[id] = true
  local due = redis.call('HGET', prefix .. id, 'due_at')
  if due then
    table.insert(candidates, {id = id, due = tonumber(due)})
  end
end

local pending = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'WITHSCORES', 'LIMIT', 0, limit)
for i = 1, #pending, 2 do
  add(pending[i])
end
if #pending == 2 * limit then
  local last = pending[#pending]
  for _, id in ipairs(redis.call('ZRANGEBYSCORE', KEYS[1], last, last)) do
    add(id)
  end
end
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[2], 'WITHSCORES', 'LIMIT', 0, limit)
for i = 1, #expired, 2 do
  add(expired[i])
end
if #expired == 2 * limit then
  local last = expired[#expired]
  for _, id in ipairs(redis.call('ZRANGEBYSCORE', KEYS[2], last, last)) do
    add(id)
  end
end

table.sort(candidates, function(a, b)
  if a.due == b.due then
    return tonumber(a.id) < tonumber(b.id)
  end
  return a.due < b.due
end)

local claimed = {}
for i = 1, math.min(limit, #candidates) do
  local id = candidates[i].id
  local key = prefix .. id
  redis.call('HSET', key, 'state', 'in_flight', 'claimed_at', ARGV[1])
  redis.call('HINCRBY', key, 'attempts', 1)
  redis.call('ZREM', KEYS[1], id)
  redis.call('ZADD', KEYS[2], ARGV[1], id)
  table.insert(claimed, redis.call('HGETALL', key))
end
return claimed
`)

var finalizeScript = redis.NewScript(`
local key = ARGV[1] .. ARGV[2]
if redis.call('HGET', key, 'state') ~= 'in_flight' then
  return 0
end
local owner = redis.call('HGET', key, 'owner_id')
redis.call('HSET', key, 'state', ARGV[3])
redis.call('HDEL', key, 'claimed_at')
if ARGV[3] == 'sent' then
  local due = redis.call('HGET', key, 'due_at')
  local sent = ARGV[4]
  if tonumber(sent) < tonumber(due) then
    sent = due
  end
  redis.call('HSET', key, 'sent_at', sent)
end
redis.call('ZREM', KEYS[1], ARGV[2])
redis.call('ZREM', ARGV[5] .. owner .. ARGV[6], ARGV[2])
return 1
`)

var cancelScript = redis.NewScript(`
local key = ARGV[1] .. ARGV[2]
local state = redis.call('HGET', key, 'state')
if not state then
  return false
end
if state == 'pending' or state == 'in_flight' then
  local owner = redis.call('HGET', key, 'owner_id')
  redis.call('HSET', key, 'state', 'failed')
  redis.call('HDEL', key, 'claimed_at')
  redis.call('ZREM', KEYS[1], ARGV[2])
  redis.call('ZREM', KEYS[2], ARGV[2])
  redis.call('ZREM', ARGV[3] .. owner .. ARGV[4], ARGV[2])
end
return redis.call('HGETALL', key)
`)

type RedisReminderStore struct {
	client redis.UniversalClient
	prefix string
}

func New(client redis.UniversalClient, prefix string) *RedisReminderStore {
	if client == nil {
		panic(e.NewNilArgumentError("client"))
	}
	if prefix == "" {
		prefix = DEFAULT_PREFIX
	}
	return &RedisReminderStore{client: client, prefix: prefix}
}

func (s *RedisReminderStore) seqKey() string {
	return s.prefix + ":reminder:seq"
}

func (s *RedisReminderStore) reminderPrefix() string {
	return s.prefix + ":reminder:"
}

func (s *RedisReminderStore) reminderKey(id reminder.ID) string {
	return s.reminderPrefix() + strconv.FormatInt(int64(id), 10)
}

func (s *RedisReminderStore) pendingKey() string {
	return s.prefix + ":reminders:pending"
}

func (s *RedisReminderStore) inFlightKey() string {
	return s.prefix + ":reminders:in_flight"
}

func (s *RedisReminderStore) ownerPrefix() string {
	return s.prefix + ":owner:"
}

const ownerSuffix = ":reminders"

func (s *RedisReminderStore) ownerKey(owner reminder.OwnerID) string {
	return s.ownerPrefix() + string(owner) + ownerSuffix
}

func (s *RedisReminderStore) CreateReminders(
	ctx context.Context,
	input reminder.CreateInput,
) ([]reminder.Reminder, error) {
	input.CreatedAt = clock.Normalize(input.CreatedAt)
	created := input.NewReminders()
	if len(created) == 0 {
		return created, nil
	}

	last, err := s.client.IncrBy(ctx, s.seqKey(), int64(len(created))).Result()
	if err != nil {
		return nil, fmt.Errorf("could not allocate reminder ids: %w", err)
	}
	first := last - int64(len(created)) + 1
	for ix := range created {
		created[ix].ID = reminder.ID(first + int64(ix))
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range created {
			member := strconv.FormatInt(int64(r.ID), 10)
			score := float64(r.DueAt.UnixMilli())
			pipe.HSet(ctx, s.reminderKey(r.ID), encode(r))
			pipe.ZAdd(ctx, s.pendingKey(), redis.Z{Score: score, Member: member})
			pipe.ZAdd(ctx, s.ownerKey(r.OwnerID), redis.Z{Score: score, Member: member})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not create reminders: %w", err)
	}
	return created, nil
}

func (s *RedisReminderStore) GetByID(ctx context.Context, id reminder.ID) (reminder.Reminder, error) {
	fields, err := s.client.HGetAll(ctx, s.reminderKey(id)).Result()
	if err != nil {
		return reminder.Reminder{}, fmt.Errorf("could not get reminder: %w", err)
	}
	if len(fields) == 0 {
		return reminder.Reminder{}, reminder.ErrReminderDoesNotExist
	}
	return decode(fields)
}

func (s *RedisReminderStore) ListPending(ctx context.Context, owner reminder.OwnerID) ([]reminder.Reminder, error) {
	members, err := s.client.ZRange(ctx, s.ownerKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("could not list reminders: %w", err)
	}
	return s.load(ctx, members)
}

func (s *RedisReminderStore) NextPending(
	ctx context.Context,
	owner reminder.OwnerID,
) (c.Optional[reminder.Reminder], error) {
	none := c.None[reminder.Reminder]()
	head, err := s.client.ZRangeWithScores(ctx, s.ownerKey(owner), 0, 0).Result()
	if err != nil {
		return none, fmt.Errorf("could not get next reminder: %w", err)
	}
	if len(head) == 0 {
		return none, nil
	}

	// Members sharing the earliest due instant sort by string, not by id.
	score := strconv.FormatFloat(head[0].Score, 'f', -1, 64)
	members, err := s.client.ZRangeByScore(ctx, s.ownerKey(owner), &redis.ZRangeBy{Min: score, Max: score}).Result()
	if err != nil {
		return none, fmt.Errorf("could not get next reminder: %w", err)
	}
	reminders, err := s.load(ctx, members)
	if err != nil {
		return none, err
	}
	if len(reminders) == 0 {
		return none, nil
	}
	return c.NewOptional(reminders[0], true), nil
}

func (s *RedisReminderStore) ClaimDue(ctx context.Context, input reminder.ClaimInput) ([]reminder.Reminder, error) {
	if input.Limit == 0 {
		return []reminder.Reminder{}, nil
	}
	now := clock.Normalize(input.Now)
	expiredBefore := reminder.LeaseExpiredBefore(now, input.Lease)

	keys := []string{s.pendingKey(), s.inFlightKey()}
	result, err := claimScript.Run(
		ctx,
		s.client,
		keys,
		now.UnixMilli(),
		expiredBefore.UnixMilli(),
		input.Limit,
		s.reminderPrefix(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("could not claim reminders: %w", err)
	}

	claimed := make([]reminder.Reminder, 0, len(result))
	for _, item := range result {
		fields, err := pairs(item)
		if err != nil {
			return nil, err
		}
		r, err := decode(fields)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, r)
	}
	return claimed, nil
}

func (s *RedisReminderStore) Finalize(ctx context.Context, input reminder.FinalizeInput) (bool, error) {
	now := clock.Normalize(input.Now)
	state := input.Outcome.State()
	if !state.IsTerminal() {
		return false, fmt.Errorf("finalize reminder %d: %w", input.ID, reminder.ErrParseOutcome)
	}
	changed, err := finalizeScript.Run(
		ctx,
		s.client,
		[]string{s.inFlightKey()},
		s.reminderPrefix(),
		int64(input.ID),
		state.String(),
		now.UnixMilli(),
		s.ownerPrefix(),
		ownerSuffix,
	).Int()
	if err != nil {
		return false, fmt.Errorf("could not finalize reminder: %w", err)
	}
	return changed == 1, nil
}

func (s *RedisReminderStore) Cancel(ctx context.Context, id reminder.ID, now time.Time) (reminder.Reminder, error) {
	result, err := cancelScript.Run(
		ctx,
		s.client,
		[]string{s.pendingKey(), s.inFlightKey()},
		s.reminderPrefix(),
		int64(id),
		s.ownerPrefix(),
		ownerSuffix,
	).Result()
	if errors.Is(err, redis.Nil) {
		return reminder.Reminder{}, reminder.ErrReminderDoesNotExist
	}
	if err != nil {
		return reminder.Reminder{}, fmt.Errorf("could not cancel reminder: %w", err)
	}
	fields, err := pairs(result)
	if err != nil {
		return reminder.Reminder{}, err
	}
	return decode(fields)
}

func (s *RedisReminderStore) load(ctx context.Context, members []string) ([]reminder.Reminder, error) {
	reminders := make([]reminder.Reminder, 0, len(members))
	if len(members) == 0 {
		return reminders, nil
	}

	cmds := make([]*redis.MapStringStringCmd, 0, len(members))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range members {
			cmds = append(cmds, pipe.HGetAll(ctx, s.reminderPrefix()+m))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not load reminders: %w", err)
	}

	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		r, err := decode(fields)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	sort.Slice(reminders, func(i, j int) bool {
		return reminder.Less(reminders[i], reminders[j])
	})
	return reminders, nil
}

func encode(r reminder.Reminder) map[string]interface{} {
	return map[string]interface{}{
		"id":            int64(r.ID),
		"owner_id":      string(r.OwnerID),
		"submission_id": r.SubmissionID.String(),
		"payload":       r.Payload,
		"offset_ms":     r.Offset.Milliseconds(),
		"due_at":        r.DueAt.UnixMilli(),
		"state":         r.State.String(),
		"attempts":      r.Attempts,
		"created_at":    r.CreatedAt.UnixMilli(),
	}
}

func pairs(value interface{}) (map[string]string, error) {
	items, ok := value.([]interface{})
	if !ok || len(items)%2 != 0 {
		return nil, fmt.Errorf("unexpected reminder reply %T", value)
	}
	fields := make(map[string]string, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		k, _ := items[i].(string)
		v, _ := items[i+1].(string)
		fields[k] = v
	}
	return fields, nil
}

func decode(fields map[string]string) (reminder.Reminder, error) {
	var r reminder.Reminder

	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil {
		return r, fmt.Errorf("invalid reminder id: %w", err)
	}
	submissionID, err := uuid.Parse(fields["submission_id"])
	if err != nil {
		return r, fmt.Errorf("invalid reminder submission id: %w", err)
	}
	offset, err := millis(fields, "offset_ms")
	if err != nil {
		return r, err
	}
	dueAt, err := millis(fields, "due_at")
	if err != nil {
		return r, err
	}
	createdAt, err := millis(fields, "created_at")
	if err != nil {
		return r, err
	}
	attempts, err := strconv.ParseUint(fields["attempts"], 10, 32)
	if err != nil {
		return r, fmt.Errorf("invalid reminder attempts: %w", err)
	}
	state, err := reminder.ParseState(fields["state"])
	if err != nil {
		return r, err
	}

	r = reminder.Reminder{
		ID:           reminder.ID(id),
		OwnerID:      reminder.OwnerID(fields["owner_id"]),
		SubmissionID: submissionID,
		Payload:      fields["payload"],
		Offset:       reminder.OffsetFromMilliseconds(offset),
		DueAt:        clock.FromUnixMilli(dueAt),
		State:        state,
		Attempts:     uint32(attempts),
		CreatedAt:    clock.FromUnixMilli(createdAt),
	}
	if _, ok := fields["claimed_at"]; ok {
		ms, err := millis(fields, "claimed_at")
		if err != nil {
			return r, err
		}
		r.ClaimedAt = c.NewOptional(clock.FromUnixMilli(ms), true)
	}
	if _, ok := fields["sent_at"]; ok {
		ms, err := millis(fields, "sent_at")
		if err != nil {
			return r, err
		}
		r.SentAt = c.NewOptional(clock.FromUnixMilli(ms), true)
	}
	return r, nil
}

func millis(fields map[string]string, name string) (int64, error) {
	v, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid reminder %s: %w", name, err)
	}
	return v, nil
}
