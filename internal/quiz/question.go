package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// QuestionCount is the fixed size of every question set.
const QuestionCount = 10

var (
	ErrQuestionCount   = fmt.Errorf("question set must contain exactly %d questions", QuestionCount)
	ErrTooFewOptions   = errors.New("question needs at least two options")
	ErrCorrectNotInSet = errors.New("correct answer is not one of the options")
	ErrEmptyOption     = errors.New("option must not be empty")
	ErrDuplicateOption = errors.New("options must be distinct")
)

// Question is a single multiple-choice prompt.
type Question struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Correct string   `json:"correct"`
}

// PublicQuestion is a question without its correct answer, safe to send to players.
type PublicQuestion struct {
	Index   int      `json:"index"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// Answers holds one submitted answer per question, by position.
type Answers [QuestionCount]string

// QuestionSet is the immutable ordered list of questions.
type QuestionSet struct {
	questions [QuestionCount]Question
}

// NewQuestionSet validates qs and copies it into a QuestionSet.
func NewQuestionSet(qs []Question) (QuestionSet, error) {
	var set QuestionSet
	if len(qs) != QuestionCount {
		return set, fmt.Errorf("%w: got %d", ErrQuestionCount, len(qs))
	}
	for i, q := range qs {
		if len(q.Options) < 2 {
			return set, fmt.Errorf("question %d: %w", i, ErrTooFewOptions)
		}
		// "" marks an unanswered question.
		seen := make(map[string]struct{}, len(q.Options))
		for _, opt := range q.Options {
			if opt == "" {
				return set, fmt.Errorf("question %d: %w", i, ErrEmptyOption)
			}
			if _, dup := seen[opt]; dup {
				return set, fmt.Errorf("question %d: %w %q", i, ErrDuplicateOption, opt)
			}
			seen[opt] = struct{}{}
		}
		if !slices.Contains(q.Options, q.Correct) {
			return set, fmt.Errorf("question %d: %w", i, ErrCorrectNotInSet)
		}
		set.questions[i] = Question{
			Prompt:  q.Prompt,
			Options: slices.Clone(q.Options),
			Correct: q.Correct,
		}
	}
	return set, nil
}

// LoadQuestionSet decodes a JSON array of questions.
func LoadQuestionSet(r io.Reader) (QuestionSet, error) {
	var qs []Question
	if err := json.NewDecoder(r).Decode(&qs); err != nil {
		return QuestionSet{}, fmt.Errorf("decode question set: %w", err)
	}
	return NewQuestionSet(qs)
}

// Question returns the question at i.
func (s QuestionSet) Question(i int) Question {
	q := s.questions[i]
	q.Options = slices.Clone(q.Options)
	return q
}

// Public returns the player-facing view of the set.
func (s QuestionSet) Public() []PublicQuestion {
	out := make([]PublicQuestion, QuestionCount)
	for i, q := range s.questions {
		out[i] = PublicQuestion{
			Index:   i,
			Prompt:  q.Prompt,
			Options: slices.Clone(q.Options),
		}
	}
	return out
}

// AnswerKey returns the correct answers by position.
func (s QuestionSet) AnswerKey() Answers {
	var key Answers
	for i, q := range s.questions {
		key[i] = q.Correct
	}
	return key
}

// IsOption reports whether answer is one of question i's options.
func (s QuestionSet) IsOption(i int, answer string) bool {
	if i < 0 || i >= QuestionCount {
		return false
	}
	return slices.Contains(s.questions[i].Options, answer)
}

// FillDefaults returns a copy of answers with every blank replaced by that
// question's first option.
func (s QuestionSet) FillDefaults(answers Answers) Answers {
	for i, a := range answers {
		if a == "" {
			answers[i] = s.questions[i].Options[0]
		}
	}
	return answers
}

// DefaultQuestionSet is the built-in crypto-basics quiz used when no
// question file is configured.
func DefaultQuestionSet() QuestionSet {
	set, err := NewQuestionSet(defaultQuestions)
	if err != nil {
		panic(err)
	}
	return set
}

var defaultQuestions = []Question{
	{
		Prompt:  "What does a blockchain's consensus mechanism decide?",
		Options: []string{"Which transactions are valid and in what order", "The price of the native token", "Which wallet app users install", "The block explorer's color scheme"},
		Correct: "Which transactions are valid and in what order",
	},
	{
		Prompt:  "What is a private key used for?",
		Options: []string{"Publishing your balance", "Signing transactions", "Mining new blocks", "Naming your wallet"},
		Correct: "Signing transactions",
	},
	{
		Prompt:  "What is gas on Ethereum-compatible chains?",
		Options: []string{"A stablecoin", "A fee for computation and storage", "A type of NFT", "A consensus client"},
		Correct: "A fee for computation and storage",
	},
	{
		Prompt:  "What is a smart contract?",
		Options: []string{"A legal PDF stored off-chain", "Code deployed on-chain that runs deterministically", "A custodial exchange account", "A hardware wallet"},
		Correct: "Code deployed on-chain that runs deterministically",
	},
	{
		Prompt:  "What does ERC-20 describe?",
		Options: []string{"A fungible token interface", "A block size limit", "A wallet recovery phrase", "A layer-2 bridge"},
		Correct: "A fungible token interface",
	},
	{
		Prompt:  "What is a seed phrase?",
		Options: []string{"A list of words that can restore a wallet", "A username for a dApp", "A transaction hash", "A network name"},
		Correct: "A list of words that can restore a wallet",
	},
	{
		Prompt:  "What does it mean that a transaction is final?",
		Options: []string{"It can be refunded by support", "It can no longer be reverted by the network", "It is waiting in the mempool", "It was signed but not broadcast"},
		Correct: "It can no longer be reverted by the network",
	},
	{
		Prompt:  "What is a layer-2 network?",
		Options: []string{"A second wallet on the same phone", "A system that scales a base chain while inheriting its security", "A private database", "A token airdrop"},
		Correct: "A system that scales a base chain while inheriting its security",
	},
	{
		Prompt:  "What is an NFT?",
		Options: []string{"A non-fungible token representing a unique item", "A network fee token", "A new fork type", "A node failure tracker"},
		Correct: "A non-fungible token representing a unique item",
	},
	{
		Prompt:  "Why should you never share your private key?",
		Options: []string{"It slows the network", "Anyone holding it controls your funds", "It expires when shared", "It reveals your IP address"},
		Correct: "Anyone holding it controls your funds",
	},
}
