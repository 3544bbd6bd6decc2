// Package approval computes stage outcomes from assignment actions under the
// stage's approval policy. It is pure computation with no state.
package approval

import (
	"math"

	"github.com/machshop/approvalflow/pkg/models"
)

// Result is the aggregator's verdict over a stage's current assignment set.
type Result struct {
	Resolved bool
	Outcome  models.StageOutcome
	Note     string
}

var unresolved = Result{}

// Resolve computes whether the stage has reached an outcome. Delegated-away
// assignments are excluded; their delegate replacements count. A stage with
// zero live assignments resolves rejected, never silently approved.
func Resolve(spec *models.StageSpec, stage *models.StageInstance) Result {
	live := stage.LiveAssignments()
	if len(live) == 0 {
		return Result{
			Resolved: true,
			Outcome:  models.OutcomeRejected,
			Note:     "stage has no live assignments; rejected by system",
		}
	}

	var approved, rejected, open int

	for _, a := range live {
		switch a.Action {
		case models.ActionApproved:
			approved++
		case models.ActionRejected:
			rejected++
		default:
			open++
		}
	}

	switch spec.Policy {
	case models.PolicyAll:
		if rejected > 0 {
			return Result{Resolved: true, Outcome: models.OutcomeRejected}
		}

		if open == 0 {
			return Result{Resolved: true, Outcome: models.OutcomeApproved}
		}

		return unresolved
	case models.PolicyAny:
		if approved > 0 {
			return Result{Resolved: true, Outcome: models.OutcomeApproved}
		}

		if open == 0 {
			return Result{Resolved: true, Outcome: models.OutcomeRejected}
		}

		return unresolved
	case models.PolicyThreshold:
		return thresholdResult(spec.Threshold, approved, open)
	case models.PolicyQuorum:
		return thresholdResult(QuorumTarget(spec.QuorumPercent, stage.InitialAssigneeCount), approved, open)
	default:
		return unresolved
	}
}

// QuorumTarget converts a quorum percentage into an approval count against
// the activation-time assignee total.
func QuorumTarget(percent float64, initialAssignees int) int {
	return int(math.Ceil(percent * float64(initialAssignees)))
}

func thresholdResult(target, approved, open int) Result {
	if target < 1 {
		target = 1
	}

	if approved >= target {
		return Result{Resolved: true, Outcome: models.OutcomeApproved}
	}

	// Rejections have left too few un-actioned assignments to ever reach
	// the target.
	if approved+open < target {
		return Result{Resolved: true, Outcome: models.OutcomeRejected}
	}

	return unresolved
}
