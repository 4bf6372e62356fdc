package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamMetaKey returns the cache key for an active exam's student-facing metadata.
func (r *CacheKeyStruct) ExamMetaKey(examID string) string {
	return fmt.Sprintf("exam:%s:meta", examID)
}

// ExamMonitorChannel returns the Redis Pub/Sub channel for an exam's live
// proctoring monitor stream.
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
