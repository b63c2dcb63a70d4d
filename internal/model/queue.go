package model

// ResultMessage is queued on persist_results_queue after a graded submission.
type ResultMessage struct {
	SessionID  string `json:"session_id"`
	Wallet     string `json:"wallet"`
	Correct    int    `json:"correct"`
	Perfect    bool   `json:"perfect"`
	Reward     string `json:"reward"`
	FinishedAt int64  `json:"finished_at"`
}

// RewardMessage is queued on issue_rewards_queue for a perfect attempt.
type RewardMessage struct {
	SessionID string `json:"session_id"`
	Wallet    string `json:"wallet"`
	Amount    string `json:"amount"`
	IssuedAt  int64  `json:"issued_at"`
}

// DraftMessage is queued on persist_answers_queue for each selection.
type DraftMessage struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	Answer    string `json:"answer"`
}

// LeaderboardUpdateType tags messages on the leaderboard channel.
const LeaderboardUpdateType = "leaderboard_update"

// LeaderboardUpdate is published after result batches change rankings.
type LeaderboardUpdate struct {
	Type    string   `json:"type"`
	Wallets []string `json:"wallets"`
	Perfect int      `json:"perfect"`
}
