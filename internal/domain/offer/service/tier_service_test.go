package service

import (
	"testing"

	"loyalty_wallet/internal/domain/offer/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLadder() model.TierLevels {
	return model.TierLevels{
		{Name: "Bronze", MinRewards: 1, MaxRewards: 3, Color: "#CD7F32", Icon: "star", RewardBoost: 0},
		{Name: "Silver", MinRewards: 4, MaxRewards: 9, Color: "#C0C0C0", Icon: "star", RewardBoost: 0.1},
		{Name: "Gold", MinRewards: 10, MaxRewards: model.TierUnbounded, Color: "#FFD700", Icon: "crown", RewardBoost: 0.25},
	}
}

func TestComputeTier(t *testing.T) {
	ladder := sampleLadder()

	t.Run("zero rewards on a 1-based ladder has no tier yet", func(t *testing.T) {
		status := ComputeTier(ladder, 0)
		assert.Nil(t, status)
	})

	t.Run("first reward lands in the bottom tier", func(t *testing.T) {
		status := ComputeTier(ladder, 1)
		require.NotNil(t, status)
		assert.Equal(t, "Bronze", status.Current.Name)
		assert.Equal(t, 0, status.CurrentIndex)
		assert.False(t, status.IsTopTier)
		require.NotNil(t, status.Next)
		assert.Equal(t, "Silver", status.Next.Name)
		assert.Equal(t, 3, status.RewardsToNext)
	})

	t.Run("boundary values stay in their tier", func(t *testing.T) {
		status := ComputeTier(ladder, 3)
		require.NotNil(t, status)
		assert.Equal(t, "Bronze", status.Current.Name)

		status = ComputeTier(ladder, 4)
		require.NotNil(t, status)
		assert.Equal(t, "Silver", status.Current.Name)
		assert.Equal(t, 6, status.RewardsToNext)
	})

	t.Run("unbounded top tier catches everything above", func(t *testing.T) {
		for _, rewards := range []int{10, 11, 50, 10000} {
			status := ComputeTier(ladder, rewards)
			require.NotNil(t, status)
			assert.Equal(t, "Gold", status.Current.Name)
			assert.True(t, status.IsTopTier)
			assert.Nil(t, status.Next)
		}
	})

	t.Run("zero-based ladder ranks new customers immediately", func(t *testing.T) {
		zeroBased := model.TierLevels{
			{Name: "Member", MinRewards: 0, MaxRewards: 4, Color: "#888888", Icon: "dot", RewardBoost: 0},
			{Name: "VIP", MinRewards: 5, MaxRewards: model.TierUnbounded, Color: "#FFD700", Icon: "crown", RewardBoost: 0.2},
		}

		status := ComputeTier(zeroBased, 0)
		require.NotNil(t, status)
		assert.Equal(t, "Member", status.Current.Name)
	})

	t.Run("empty ladder yields no tier", func(t *testing.T) {
		assert.Nil(t, ComputeTier(nil, 5))
		assert.Nil(t, ComputeTier(model.TierLevels{}, 5))
	})

	t.Run("negative rewards treated as zero", func(t *testing.T) {
		assert.Nil(t, ComputeTier(ladder, -3))
	})

	t.Run("rank never decreases as rewards grow", func(t *testing.T) {
		lastRank := -1
		for rewards := 0; rewards <= 100; rewards++ {
			status := ComputeTier(ladder, rewards)
			rank := -1
			if status != nil {
				rank = status.CurrentIndex
			}
			assert.GreaterOrEqual(t, rank, lastRank, "rank dropped at %d rewards", rewards)
			lastRank = rank
		}
	})
}

func TestValidateTierConfig(t *testing.T) {
	t.Run("accepts a well-formed ladder", func(t *testing.T) {
		assert.NoError(t, ValidateTierConfig(sampleLadder()))
	})

	t.Run("accepts a bounded top tier", func(t *testing.T) {
		ladder := model.TierLevels{
			{Name: "A", MinRewards: 1, MaxRewards: 5, Color: "#111111", Icon: "a", RewardBoost: 0},
			{Name: "B", MinRewards: 6, MaxRewards: 20, Color: "#222222", Icon: "b", RewardBoost: 0.5},
		}
		assert.NoError(t, ValidateTierConfig(ladder))
	})

	tests := []struct {
		name   string
		ladder model.TierLevels
	}{
		{
			name:   "too few tiers",
			ladder: model.TierLevels{{Name: "Only", MinRewards: 1, MaxRewards: -1, Color: "#111111", Icon: "x"}},
		},
		{
			name: "too many tiers",
			ladder: model.TierLevels{
				{Name: "1", MinRewards: 1, MaxRewards: 1, Color: "#111111", Icon: "x"},
				{Name: "2", MinRewards: 2, MaxRewards: 2, Color: "#111111", Icon: "x"},
				{Name: "3", MinRewards: 3, MaxRewards: 3, Color: "#111111", Icon: "x"},
				{Name: "4", MinRewards: 4, MaxRewards: 4, Color: "#111111", Icon: "x"},
				{Name: "5", MinRewards: 5, MaxRewards: 5, Color: "#111111", Icon: "x"},
				{Name: "6", MinRewards: 6, MaxRewards: -1, Color: "#111111", Icon: "x"},
			},
		},
		{
			name: "first tier starts past 1",
			ladder: model.TierLevels{
				{Name: "A", MinRewards: 3, MaxRewards: 5, Color: "#111111", Icon: "x"},
				{Name: "B", MinRewards: 6, MaxRewards: -1, Color: "#111111", Icon: "x"},
			},
		},
		{
			name: "gap between ranges",
			ladder: model.TierLevels{
				{Name: "A", MinRewards: 1, MaxRewards: 3, Color: "#111111", Icon: "x"},
				{Name: "B", MinRewards: 5, MaxRewards: -1, Color: "#111111", Icon: "x"},
			},
		},
		{
			name: "overlapping ranges",
			ladder: model.TierLevels{
				{Name: "A", MinRewards: 1, MaxRewards: 5, Color: "#111111", Icon: "x"},
				{Name: "B", MinRewards: 4, MaxRewards: -1, Color: "#111111", Icon: "x"},
			},
		},
		{
			name: "unbounded tier before the last",
			ladder: model.TierLevels{
				{Name: "A", MinRewards: 1, MaxRewards: -1, Color: "#111111", Icon: "x"},
				{Name: "B", MinRewards: 5, MaxRewards: -1, Color: "#111111", Icon: "x"},
			},
		},
		{
			name: "max below min",
			ladder: model.TierLevels{
				{Name: "A", MinRewards: 1, MaxRewards: 0, Color: "#111111", Icon: "x"},
				{Name: "B", MinRewards: 1, MaxRewards: -1, Color: "#111111", Icon: "x"},
			},
		},
		{
			name: "bad color",
			ladder: model.TierLevels{
				{Name: "A", MinRewards: 1, MaxRewards: 3, Color: "red", Icon: "x"},
				{Name: "B", MinRewards: 4, MaxRewards: -1, Color: "#111111", Icon: "x"},
			},
		},
		{
			name: "missing icon",
			ladder: model.TierLevels{
				{Name: "A", MinRewards: 1, MaxRewards: 3, Color: "#111111", Icon: ""},
				{Name: "B", MinRewards: 4, MaxRewards: -1, Color: "#111111", Icon: "x"},
			},
		},
		{
			name: "missing name",
			ladder: model.TierLevels{
				{Name: "", MinRewards: 1, MaxRewards: 3, Color: "#111111", Icon: "x"},
				{Name: "B", MinRewards: 4, MaxRewards: -1, Color: "#111111", Icon: "x"},
			},
		},
		{
			name: "boost above 1",
			ladder: model.TierLevels{
				{Name: "A", MinRewards: 1, MaxRewards: 3, Color: "#111111", Icon: "x", RewardBoost: 1.5},
				{Name: "B", MinRewards: 4, MaxRewards: -1, Color: "#111111", Icon: "x"},
			},
		},
	}

	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			assert.Error(t, ValidateTierConfig(tt.ladder))
		})
	}
}
