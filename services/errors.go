package services

import "errors"

// ErrContention is returned when an append loses the tail race more times
// than the retry budget allows. Under correct single-writer discipline
// this should not occur; it exists to make the optimistic concurrency
// path correct under accidental concurrency (e.g. two service instances
// pointed at the same store).
var ErrContention = errors.New("chain append contention")
