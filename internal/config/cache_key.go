package config

import (
	"fmt"
	"time"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TestPayloadKey returns the cache key for the taker-facing payload of a test.
// The cached value never contains correct answers.
func (r *CacheKeyStruct) TestPayloadKey(testID string) string {
	return fmt.Sprintf("test:%s:payload", testID)
}

// RateLimitKey returns the fixed-window counter key for a subject (user or IP)
// on a route scope. The window is the current minute.
func (r *CacheKeyStruct) RateLimitKey(scope, subject string, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, subject, now.Unix()/60)
}

// TestProctorChannel returns the Redis PubSub channel carrying live proctor events for a test.
func (r *CacheKeyStruct) TestProctorChannel(testID string) string {
	return fmt.Sprintf("test:%s:proctor", testID)
}

var CacheKey = NewCacheKeyStruct()
