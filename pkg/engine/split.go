package engine

import "github.com/dukex/journeys/pkg/models"

// RandomSource yields uniform draws in [0, 1). *math/rand/v2.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// ChooseBranch picks a branch index by weighted draw, or -1 when the split has no branches.
//
// Weights are relative. For multi_branch splits, branches whose condition is false are left out of
// the draw; when none is eligible every branch takes part. When the eligible weights sum to zero the
// draw is uniform over the eligible branches.
func ChooseBranch(config *models.SplitConfig, execCtx map[string]any, draw float64) int {
	if len(config.Branches) == 0 {
		return -1
	}

	eligible := make([]int, 0, len(config.Branches))

	for i, branch := range config.Branches {
		if config.SplitType == models.SplitTypeMultiBranch && branch.Condition != nil &&
			!EvaluateClause(*branch.Condition, execCtx) {
			continue
		}

		eligible = append(eligible, i)
	}

	if len(eligible) == 0 {
		for i := range config.Branches {
			eligible = append(eligible, i)
		}
	}

	total := 0

	for _, i := range eligible {
		total += max(config.Branches[i].Weight, 0)
	}

	if total == 0 {
		return eligible[min(int(draw*float64(len(eligible))), len(eligible)-1)]
	}

	target := draw * float64(total)
	cumulative := 0.0

	for _, i := range eligible {
		cumulative += float64(max(config.Branches[i].Weight, 0))
		if target < cumulative {
			return i
		}
	}

	return eligible[len(eligible)-1]
}
