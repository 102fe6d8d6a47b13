package repository

import "github.com/redis/go-redis/v9"

// All scripts take KEYS[1] = record hash, KEYS[2] = per-dashboard index set,
// KEYS[3] = global index set. Records and both indexes change together.

var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
redis.call('SADD', KEYS[2], KEYS[1])
redis.call('SADD', KEYS[3], KEYS[1])
return 1
`)

// ARGV[1] is the expected version, ARGV[2] the identity field and ARGV[3] its
// expected value. The rest are field/value pairs.
var replaceScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'version', ARGV[2])
if not cur[1] then
  return -1
end
if cur[1] ~= ARGV[1] or cur[2] ~= ARGV[3] then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 4))
return 1
`)

// ARGV as for replaceScript, without field/value pairs.
var deleteIfScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'version', ARGV[2])
if not cur[1] then
  return -1
end
if cur[1] ~= ARGV[1] or cur[2] ~= ARGV[3] then
  return 0
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], KEYS[1])
redis.call('SREM', KEYS[3], KEYS[1])
return 1
`)

var deleteScript = redis.NewScript(`
local n = redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], KEYS[1])
redis.call('SREM', KEYS[3], KEYS[1])
return n
`)

// KEYS[1] = per-dashboard index set, KEYS[2] = global index set.
var deleteIndexedScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
for _, k in ipairs(members) do
  redis.call('DEL', k)
  redis.call('SREM', KEYS[2], k)
end
redis.call('DEL', KEYS[1])
return #members
`)

// ARGV: session_id, now, dashboard_id, user_id, user_name, user_email, client_info.
var upsertSessionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1], 'session_id', ARGV[1], 'connected_at', ARGV[2],
    'dashboard_id', ARGV[3], 'user_id', ARGV[4], 'version', 0)
  redis.call('SADD', KEYS[2], KEYS[1])
  redis.call('SADD', KEYS[3], KEYS[1])
end
redis.call('HSET', KEYS[1], 'user_name', ARGV[5], 'last_activity', ARGV[2])
if ARGV[6] ~= '' then
  redis.call('HSET', KEYS[1], 'user_email', ARGV[6])
end
if ARGV[7] ~= '' then
  redis.call('HSET', KEYS[1], 'client_info', ARGV[7])
end
redis.call('HINCRBY', KEYS[1], 'version', 1)
return redis.call('HGETALL', KEYS[1])
`)

var touchSessionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
redis.call('HSET', KEYS[1], 'last_activity', ARGV[1])
redis.call('HINCRBY', KEYS[1], 'version', 1)
return redis.call('HGETALL', KEYS[1])
`)
