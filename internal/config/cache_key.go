package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// WalletLoginKey returns the cache key holding the JTI of a wallet's current login.
func (r *CacheKeyStruct) WalletLoginKey(addr string) string {
	return fmt.Sprintf("login:%s", addr)
}

// WalletNonceKey returns the cache key holding a wallet's pending login challenge.
func (r *CacheKeyStruct) WalletNonceKey(addr string) string {
	return fmt.Sprintf("login:nonce:%s", addr)
}

// QuizSessionStartKey returns the cache key for the unix start time of a wallet's active session
func (r *CacheKeyStruct) QuizSessionStartKey(addr string) string {
	return fmt.Sprintf("quiz:user:%s:session_start", addr)
}

// QuizActiveSessionKey returns the cache key for a wallet's active session ID
func (r *CacheKeyStruct) QuizActiveSessionKey(addr string) string {
	return fmt.Sprintf("quiz:user:%s:active", addr)
}

// QuizLastTimeKey returns the cache key for a wallet's last quiz start time
func (r *CacheKeyStruct) QuizLastTimeKey(addr string) string {
	return fmt.Sprintf("quiz:user:%s:last_quiz_time", addr)
}

// QuizDraftKey returns the cache key for answers selected during an active session
func (r *CacheKeyStruct) QuizDraftKey(addr string) string {
	return fmt.Sprintf("quiz:user:%s:draft", addr)
}

// QuestionsPayloadKey returns the cache key for the player-facing question set
func (r *CacheKeyStruct) QuestionsPayloadKey() string {
	return "quiz:questions:payload"
}

// QuestionsAnswerKey returns the cache key for the answer key
func (r *CacheKeyStruct) QuestionsAnswerKey() string {
	return "quiz:questions:key"
}

// LeaderboardChannel returns the Redis PubSub channel announcing leaderboard changes
func (r *CacheKeyStruct) LeaderboardChannel() string {
	return "quiz:leaderboard:updates"
}

var CacheKey = NewCacheKeyStruct()
