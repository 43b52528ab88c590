// Package limiter provides in-process rate limiting based on a fixed
// per-client window.
//
// The primary entry point is the Limiter interface:
//
//	dec := limiter.Allow(clientID)
//
// The returned Decision contains whether the request is admitted, how many
// requests remain in the current window, and timing hints for callers that
// want to set rate-limit headers (for example, Retry-After).
//
// # Overview
//
// Each client identifier gets a window holding a request count and a reset
// time. The first request from an unseen (or expired) identifier opens a
// fresh window; requests within a live window count against its budget until
// the window fills. A full window denies admission until its reset time
// passes, at which point the next request opens a new window.
//
// # Expiry
//
// Expiry is enforced twice:
//
//   - Lazily: Allow treats an entry whose reset time has passed exactly like
//     a missing entry and replaces it. This alone is sufficient for correct
//     admission decisions.
//
//   - Eagerly: a background sweep runs on a fixed interval and deletes
//     expired entries, bounding memory growth from identifiers that stop
//     sending traffic. The sweep is purely a memory measure; removing an
//     expired entry has no observable effect on subsequent decisions.
//
// # Concurrency
//
// MemoryLimiter is safe for concurrent use by multiple goroutines. A single
// mutex makes the read/decide/write cycle for an identifier atomic, so
// concurrent requests from the same client cannot both pass the count check
// against a stale value and jointly exceed the budget. Allow never blocks on
// I/O; it only contends briefly for the lock.
//
// # Decision Semantics
//
// Decision fields are intended to be directly consumable by application code:
//
//   - Allow reports whether the current request is admitted.
//   - Remaining is the number of requests left in the window after this one.
//   - RetryAfter is 0 when admitted; when denied it is the duration until the
//     window resets.
//   - ResetTime is the absolute timestamp at which the current window ends.
//
// # Usage
//
// For a runnable example, see ExampleMemoryLimiter in example_test.go.
package limiter
