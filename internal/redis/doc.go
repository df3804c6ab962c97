// Package redis provides the Redis client used for notification deduplication.
//
// Every client carries a metrics hook and a failsafe-go circuit breaker hook, so commands fail
// fast while Redis is unreachable and callers can fail open.
package redis
