package redis

// historyTTLSeconds bounds how long completed-break days are retained
// (90 days). Retention policy beyond the TTL is out of scope.
const historyTTLSeconds = 7776000

const (
	// commitBreakScript applies a completed break atomically: forgiveness
	// and coins only ever increase, the history record is appended, and
	// the active session is cleared. Running it twice for the same break
	// is prevented by the session delete: the ledger refuses to complete
	// when no session exists.
	commitBreakScript = `
local reduction_key = KEYS[1]  -- gust:state:reduction
local coins_key = KEYS[2]      -- gust:state:coins
local session_key = KEYS[3]    -- gust:state:session
local history_key = KEYS[4]    -- gust:breaks:day:{day}

local reduction_seconds = tonumber(ARGV[1])
local coins = tonumber(ARGV[2])
local record = ARGV[3]
local history_ttl = tonumber(ARGV[4])

if reduction_seconds > 0 then
  redis.call('INCRBY', reduction_key, reduction_seconds)
end

if coins > 0 then
  redis.call('INCRBY', coins_key, coins)
end

redis.call('RPUSH', history_key, record)
redis.call('EXPIRE', history_key, history_ttl)

redis.call('DEL', session_key)

return 'OK'
`
)
