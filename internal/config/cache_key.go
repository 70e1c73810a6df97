package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateLoginKey returns the cache key tracking a candidate's active login.
func (r *CacheKeyStruct) CandidateLoginKey(candidateID string) string {
	return fmt.Sprintf("login:candidate:%s", candidateID)
}

// SessionStateKey returns the cache key holding the live session document
// (phase, answers, integrity counters) for a candidate taking a test.
func (r *CacheKeyStruct) SessionStateKey(testID, candidateID string) string {
	return fmt.Sprintf("candidate:%s:test:%s:session", candidateID, testID)
}

// SessionStartKey returns the cache key for a session's exam start timestamp.
func (r *CacheKeyStruct) SessionStartKey(testID, candidateID string) string {
	return fmt.Sprintf("candidate:%s:test:%s:exam_start", candidateID, testID)
}

// TestPayloadKey returns the cache key for a test's candidate-facing payload.
func (r *CacheKeyStruct) TestPayloadKey(testID string) string {
	return fmt.Sprintf("test:%s:payload", testID)
}

// TestDurationKey returns the cache key for a test's duration in minutes.
func (r *CacheKeyStruct) TestDurationKey(testID string) string {
	return fmt.Sprintf("test:%s:duration", testID)
}

// TestMonitorChannel returns the Redis Pub/Sub channel carrying live
// integrity events for proctors watching a test.
func (r *CacheKeyStruct) TestMonitorChannel(testID string) string {
	return fmt.Sprintf("test:%s:monitor", testID)
}

var CacheKey = NewCacheKeyStruct()
