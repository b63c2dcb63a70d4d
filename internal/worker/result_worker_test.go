package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/learnframe/learnframe-backend/internal/model"
)

func TestAggregateFoldsWalletsOnce(t *testing.T) {
	batch := []*model.ResultMessage{
		{Wallet: "0xB", Correct: 4, Reward: "0", FinishedAt: 100},
		{Wallet: "0xA", Correct: 10, Perfect: true, Reward: "10000000000000000000", FinishedAt: 200},
		{Wallet: "0xA", Correct: 7, Reward: "0", FinishedAt: 300},
		{Wallet: "0xA", Correct: 10, Perfect: true, Reward: "10000000000000000000", FinishedAt: 250},
	}

	rows := aggregate(batch)
	require.Len(t, rows, 2)

	a, b := rows[0], rows[1]
	require.Equal(t, "0xA", a.Wallet)
	require.Equal(t, 10, a.BestCorrect)
	require.Equal(t, 3, a.Attempts)
	require.Equal(t, 2, a.Perfect)
	require.Equal(t, "20000000000000000000", a.Reward.Dec())
	require.Equal(t, time.Unix(300, 0), a.LastAttempt)

	require.Equal(t, "0xB", b.Wallet)
	require.Equal(t, 1, b.Attempts)
	require.Equal(t, 0, b.Perfect)
	require.Equal(t, "0", b.Reward.Dec())
}

func TestAggregateIgnoresMalformedReward(t *testing.T) {
	rows := aggregate([]*model.ResultMessage{
		{Wallet: "0xA", Correct: 10, Perfect: true, Reward: "not-a-number", FinishedAt: 1},
	})
	require.Len(t, rows, 1)
	require.True(t, rows[0].Reward.IsZero())
	require.Equal(t, 1, rows[0].Perfect)
}

func TestDecodeReward(t *testing.T) {
	r, err := decodeReward(&model.RewardMessage{
		SessionID: "6f1c3a52-4f0e-4c61-9f55-0d1e3b4c2a10",
		Wallet:    "0xA",
		Amount:    "10000000000000000000",
		IssuedAt:  1_700_000_000,
	})
	require.NoError(t, err)
	require.True(t, r.Amount.Valid)
	require.Equal(t, "10000000000000000000", r.Amount.Int.String())
	require.Equal(t, time.Unix(1_700_000_000, 0), r.IssuedAt)

	_, err = decodeReward(&model.RewardMessage{SessionID: "bad", Amount: "1"})
	require.Error(t, err)

	_, err = decodeReward(&model.RewardMessage{SessionID: "6f1c3a52-4f0e-4c61-9f55-0d1e3b4c2a10", Amount: "-1"})
	require.Error(t, err)
}

func TestSessionIDsDropsMalformedAndDuplicates(t *testing.T) {
	const a = "6f1c3a52-4f0e-4c61-9f55-0d1e3b4c2a10"
	const b = "0b7e1d2c-9a8f-4e3d-8c2b-1a0f9e8d7c6b"
	ids := sessionIDs([]*model.ResultMessage{
		{SessionID: a},
		{SessionID: "not-a-uuid"},
		{SessionID: "6F1C3A52-4F0E-4C61-9F55-0D1E3B4C2A10"},
		{SessionID: b},
	})
	require.Equal(t, []string{a, b}, ids)
}

func TestUnsettledCountsEachSessionOnce(t *testing.T) {
	const a = "6f1c3a52-4f0e-4c61-9f55-0d1e3b4c2a10"
	const b = "0b7e1d2c-9a8f-4e3d-8c2b-1a0f9e8d7c6b"
	batch := []*model.ResultMessage{
		{SessionID: a, Wallet: "0xA", Correct: 10, Perfect: true, Reward: "10", FinishedAt: 1},
		{SessionID: b, Wallet: "0xB", Correct: 3, Reward: "0", FinishedAt: 2},
		{SessionID: a, Wallet: "0xA", Correct: 10, Perfect: true, Reward: "10", FinishedAt: 1},
	}

	// b was settled by an earlier delivery, so only a is claimed.
	pending := unsettled(batch, []string{a})
	require.Len(t, pending, 1)
	require.Same(t, batch[0], pending[0])

	rows := aggregate(pending)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].Attempts)
	require.Equal(t, "10", rows[0].Reward.Dec())

	require.Empty(t, unsettled(batch, nil))
}
