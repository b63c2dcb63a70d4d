package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/learnframe/learnframe-backend/internal/config"
	"github.com/learnframe/learnframe-backend/internal/quiz"
)

// QuestionPayload is the player-facing question set.
type QuestionPayload struct {
	Total           int                   `json:"total"`
	DurationSeconds int                   `json:"duration_seconds"`
	Questions       []quiz.PublicQuestion `json:"questions"`
}

// QuestionService owns the active question set and its Redis copies.
type QuestionService struct {
	set      quiz.QuestionSet
	duration int
	rdb      *redis.Client
	log      zerolog.Logger
}

// LoadQuestions reads the set from path, or returns the built-in set when
// path is empty.
func LoadQuestions(path string) (quiz.QuestionSet, error) {
	if path == "" {
		return quiz.DefaultQuestionSet(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return quiz.QuestionSet{}, fmt.Errorf("open question set: %w", err)
	}
	defer f.Close()
	return quiz.LoadQuestionSet(f)
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(set quiz.QuestionSet, cfg *config.Config, rdb *redis.Client, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		set:      set,
		duration: int(cfg.QuizDuration.Seconds()),
		rdb:      rdb,
		log:      log.With().Str("component", "question_service").Logger(),
	}
}

// Set returns the active question set.
func (s *QuestionService) Set() quiz.QuestionSet {
	return s.set
}

// WarmCache writes the public payload and the answer key to Redis.
func (s *QuestionService) WarmCache(ctx context.Context) error {
	payloadJSON, err := json.Marshal(s.payload())
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	key := s.set.AnswerKey()
	answerKey := make(map[string]interface{}, len(key))
	for i, correct := range key {
		answerKey[strconv.Itoa(i)] = correct
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.QuestionsPayloadKey(), payloadJSON, 0)
	pipe.Del(ctx, config.CacheKey.QuestionsAnswerKey())
	pipe.HSet(ctx, config.CacheKey.QuestionsAnswerKey(), answerKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().Int("questions", quiz.QuestionCount).Msg("Question cache warmed")
	return nil
}

// GetPayload returns the cached payload, rebuilding it on a miss.
func (s *QuestionService) GetPayload(ctx context.Context) (*QuestionPayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.QuestionsPayloadKey()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("get payload: %w", err)
		}
		if err := s.WarmCache(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Failed to re-warm question cache")
		}
		p := s.payload()
		return &p, nil
	}

	var payload QuestionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

// GetAnswerKey returns the cached answer key. An incomplete cache falls back
// to the in-memory set and is healed.
func (s *QuestionService) GetAnswerKey(ctx context.Context) (quiz.Answers, error) {
	cached, err := s.rdb.HGetAll(ctx, config.CacheKey.QuestionsAnswerKey()).Result()
	if err != nil {
		return quiz.Answers{}, fmt.Errorf("get answer key: %w", err)
	}

	var key quiz.Answers
	complete := len(cached) == quiz.QuestionCount
	for i := 0; complete && i < quiz.QuestionCount; i++ {
		v, ok := cached[strconv.Itoa(i)]
		if !ok {
			complete = false
			break
		}
		key[i] = v
	}
	if complete {
		return key, nil
	}

	if err := s.WarmCache(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to re-warm answer key")
	}
	return s.set.AnswerKey(), nil
}

func (s *QuestionService) payload() QuestionPayload {
	return QuestionPayload{
		Total:           quiz.QuestionCount,
		DurationSeconds: s.duration,
		Questions:       s.set.Public(),
	}
}
