package config

type WorkerKeyStruct struct {
	PersistResultsQueue string
	IssueRewardsQueue   string
	PersistAnswersQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistResultsQueue: "persist_results_queue",
	IssueRewardsQueue:   "issue_rewards_queue",
	PersistAnswersQueue: "persist_answers_queue",
}
