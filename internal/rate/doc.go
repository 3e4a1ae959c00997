// Package rate implements the sliding-window rate limiter with escalating
// temporary blocks used by the goGuard pipeline.
//
// # Algorithm
//
// For each (client, scope) pair the limiter keeps the timestamps of admitted
// requests inside the trailing window and an optional blockedUntil instant:
//
//  1. A request before blockedUntil is denied with the remaining block time.
//  2. Timestamps older than now-window are evicted.
//  3. With the window full, the client is blocked for the policy's block
//     duration (history cleared unless RetainHistory) and denied.
//  4. Otherwise the request is admitted and its timestamp appended.
//
// [Memory] serializes the sequence under a per-shard mutex. [Redis] runs it
// as one Lua script, so the read-evict-append step is atomic across
// processes sharing the same Redis.
//
// # What this package must NOT do
//
//   - Decide what a client key or scope is; callers supply both.
//   - Run background goroutines. Stale buckets are removed lazily or via Sweep.
package rate
