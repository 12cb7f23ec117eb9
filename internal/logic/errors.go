package logic

import "errors"

// ErrNilRedisStore is returned when a frequency or cache operation is
// attempted without an initialized Redis store.
var ErrNilRedisStore = errors.New("redis store is nil")
