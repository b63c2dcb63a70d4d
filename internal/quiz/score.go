package quiz

import (
	"encoding/json"

	"github.com/holiman/uint256"
)

// ScoreResult is the outcome of grading one submission.
type ScoreResult struct {
	Correct int
	Total   int
	Perfect bool
	// Reward is in token base units and is zero unless Perfect.
	Reward *uint256.Int
}

type scoreResultJSON struct {
	Correct int    `json:"correct"`
	Total   int    `json:"total"`
	Perfect bool   `json:"perfect"`
	Reward  string `json:"reward"`
}

// MarshalJSON renders the reward as a decimal string.
func (r ScoreResult) MarshalJSON() ([]byte, error) {
	reward := "0"
	if r.Reward != nil {
		reward = r.Reward.Dec()
	}
	return json.Marshal(scoreResultJSON{
		Correct: r.Correct,
		Total:   r.Total,
		Perfect: r.Perfect,
		Reward:  reward,
	})
}

// UnmarshalJSON parses the decimal reward string.
func (r *ScoreResult) UnmarshalJSON(data []byte) error {
	var raw scoreResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	reward := new(uint256.Int)
	if raw.Reward != "" {
		if err := reward.SetFromDecimal(raw.Reward); err != nil {
			return err
		}
	}
	*r = ScoreResult{
		Correct: raw.Correct,
		Total:   raw.Total,
		Perfect: raw.Perfect,
		Reward:  reward,
	}
	return nil
}

// Score compares answers positionally (case-sensitive, exact) against the
// set's answer key. Only a perfect score earns perfectReward.
func Score(set QuestionSet, answers Answers, perfectReward *uint256.Int) ScoreResult {
	return ScoreKey(set.AnswerKey(), answers, perfectReward)
}

// ScoreKey grades answers against an explicit answer key.
func ScoreKey(key, answers Answers, perfectReward *uint256.Int) ScoreResult {
	correct := 0
	for i := range key {
		if answers[i] == key[i] {
			correct++
		}
	}

	res := ScoreResult{
		Correct: correct,
		Total:   QuestionCount,
		Perfect: correct == QuestionCount,
		Reward:  new(uint256.Int),
	}
	if res.Perfect && perfectReward != nil {
		res.Reward = perfectReward.Clone()
	}
	return res
}
