package history

import "time"

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

func nowMonotonicNanos() uint64 {
	return uint64(time.Now().UnixNano())
}
