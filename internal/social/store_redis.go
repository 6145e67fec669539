package social

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "social:state:"

// markInUseScript hace el check-and-set pending→in_use en un único round
// trip. Dos callbacks casi simultáneos no pueden pasar los dos por la rama
// 'pending'. Devuelve {code, record_json}; el código se convierte a
// Transition acá y en ningún otro lado.
var markInUseScript = rdb.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return {'not_found', ''}
end
local rec = cjson.decode(v)
if rec.status == 'pending' then
  rec.status = 'in_use'
  rec.in_use_at = tonumber(ARGV[1])
  local enc = cjson.encode(rec)
  local ttl = redis.call('TTL', KEYS[1])
  if ttl > 0 then
    redis.call('SET', KEYS[1], enc, 'EX', ttl)
  else
    redis.call('SET', KEYS[1], enc)
  end
  return {'ok', enc}
end
if rec.status == 'in_use' then
  local at = tonumber(rec.in_use_at) or 0
  if tonumber(ARGV[1]) - at <= tonumber(ARGV[2]) then
    return {'retry', v}
  end
  return {'window_expired', ''}
end
return {'terminal', ''}
`)

// RedisStateStore implementa StateStore sobre Redis. Es la implementación de
// producción: el core corre en N instancias contra el mismo Redis.
type RedisStateStore struct {
	Client *rdb.Client
}

func NewRedisStateStore(client *rdb.Client) *RedisStateStore {
	return &RedisStateStore{Client: client}
}

func (s *RedisStateStore) key(token string) string { return stateKeyPrefix + token }

func (s *RedisStateStore) Create(ctx context.Context, token string, rec Record, ttl time.Duration) (bool, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	return s.Client.SetNX(ctx, s.key(token), string(b), ttl).Result()
}

func (s *RedisStateStore) MarkInUse(ctx context.Context, token string, now int64, window time.Duration) (Transition, Record, error) {
	res, err := markInUseScript.Run(ctx, s.Client, []string{s.key(token)},
		now, int64(window.Seconds())).Result()
	if err != nil {
		return TransitionNotFound, Record{}, fmt.Errorf("social: mark in_use: %w", err)
	}

	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return TransitionNotFound, Record{}, fmt.Errorf("social: unexpected script reply %T", res)
	}
	code, _ := arr[0].(string)
	payload, _ := arr[1].(string)

	var tr Transition
	switch code {
	case "ok":
		tr = TransitionOK
	case "retry":
		tr = TransitionRetry
	case "not_found":
		return TransitionNotFound, Record{}, nil
	case "window_expired":
		return TransitionWindowExpired, Record{}, nil
	case "terminal":
		return TransitionTerminal, Record{}, nil
	default:
		return TransitionNotFound, Record{}, fmt.Errorf("social: unknown transition code %q", code)
	}

	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return tr, Record{}, fmt.Errorf("social: decode record: %w", err)
	}
	return tr, rec, nil
}

func (s *RedisStateStore) Delete(ctx context.Context, token string) (bool, error) {
	_, err := s.Client.GetDel(ctx, s.key(token)).Result()
	if err == rdb.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStateStore) Get(ctx context.Context, token string) (Record, bool, error) {
	v, err := s.Client.Get(ctx, s.key(token)).Result()
	if err == rdb.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(v), &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}
