package service

import (
	"fmt"
	"regexp"

	"loyalty_wallet/internal/domain/offer/model"
)

// 阶梯配置约束
const (
	MinTierCount = 2
	MaxTierCount = 5
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// TierStatus 会员当前等级信息
type TierStatus struct {
	Current       *model.TierLevel `json:"current"`
	CurrentIndex  int              `json:"currentIndex"`
	IsTopTier     bool             `json:"isTopTier"`
	Next          *model.TierLevel `json:"next,omitempty"`
	RewardsToNext int              `json:"rewardsToNext"`
}

// ComputeTier 按累计核销次数在阶梯上定位当前等级
//
// 纯区间查找，不做任何 IO。阶梯为空、或核销次数落在所有区间之外
// （首级从 1 起且客户尚无核销，或遗留的错误配置）时返回 nil，
// 调用方按"无等级"展示，不报错。
func ComputeTier(ladder model.TierLevels, rewardsClaimed int) *TierStatus {
	if len(ladder) == 0 {
		return nil
	}
	if rewardsClaimed < 0 {
		rewardsClaimed = 0
	}

	idx := -1
	for i := range ladder {
		t := &ladder[i]
		if rewardsClaimed < t.MinRewards {
			continue
		}
		if t.MaxRewards == model.TierUnbounded || rewardsClaimed <= t.MaxRewards {
			idx = i
			break
		}
	}

	if idx == -1 {
		return nil
	}

	status := &TierStatus{
		Current:      &ladder[idx],
		CurrentIndex: idx,
		IsTopTier:    idx == len(ladder)-1,
	}

	if !status.IsTopTier {
		status.Next = &ladder[idx+1]
		status.RewardsToNext = ladder[idx+1].MinRewards - rewardsClaimed
	}

	return status
}

// ValidateTierConfig 校验等级阶梯配置
//
// 在卡券配置时强制，保证 ComputeTier 的软失败只会发生在遗留数据上：
//  1. 2~5 级
//  2. 首级 MinRewards 为 0 或 1
//  3. MinRewards 严格递增，区间连续（下一级 min = 上一级 max + 1）
//  4. 只有最后一级允许无上限
//  5. 颜色为 #RRGGBB，图标必填，加成比例在 [0,1]
func ValidateTierConfig(ladder model.TierLevels) error {
	if len(ladder) < MinTierCount || len(ladder) > MaxTierCount {
		return fmt.Errorf("tier ladder must have %d to %d levels, got %d", MinTierCount, MaxTierCount, len(ladder))
	}

	if ladder[0].MinRewards != 0 && ladder[0].MinRewards != 1 {
		return fmt.Errorf("first tier must start at 0 or 1 rewards, got %d", ladder[0].MinRewards)
	}

	for i := range ladder {
		t := &ladder[i]
		last := i == len(ladder)-1

		if t.Name == "" {
			return fmt.Errorf("tier %d: name is required", i+1)
		}
		if !colorPattern.MatchString(t.Color) {
			return fmt.Errorf("tier %d: color must be a hex value like #A0B1C2, got %q", i+1, t.Color)
		}
		if t.Icon == "" {
			return fmt.Errorf("tier %d: icon is required", i+1)
		}
		if t.RewardBoost < 0 || t.RewardBoost > 1 {
			return fmt.Errorf("tier %d: reward boost must be between 0 and 1, got %v", i+1, t.RewardBoost)
		}

		if t.MaxRewards == model.TierUnbounded {
			if !last {
				return fmt.Errorf("tier %d: only the last tier may be unbounded", i+1)
			}
			continue
		}

		if t.MaxRewards < t.MinRewards {
			return fmt.Errorf("tier %d: max rewards %d is below min rewards %d", i+1, t.MaxRewards, t.MinRewards)
		}

		if !last {
			next := &ladder[i+1]
			if next.MinRewards <= t.MinRewards {
				return fmt.Errorf("tier %d: min rewards must be strictly ascending", i+2)
			}
			if next.MinRewards != t.MaxRewards+1 {
				return fmt.Errorf("tier %d: range must start at %d to stay contiguous, got %d", i+2, t.MaxRewards+1, next.MinRewards)
			}
		}
	}

	return nil
}
