package service

import (
	"fmt"
	"strings"

	campaigndomain "github.com/smallbiznis/incentiva/internal/campaign/domain"
	reconciledomain "github.com/smallbiznis/incentiva/internal/reconcile/domain"
)

// Reassignment is the outcome of searching sibling slots after the declared
// requirement failed rule evaluation.
type Reassignment struct {
	Requirement *campaigndomain.Requirement
	AttemptLog  []string
}

// Reallocator searches the failed requirement's tier for a sibling slot the
// record qualifies under. The search never crosses tier numbers, so a single
// order cannot jump ahead to a later tier.
type Reallocator struct {
	evaluator *Evaluator
}

func NewReallocator(evaluator *Evaluator) *Reallocator {
	return &Reallocator{evaluator: evaluator}
}

// TryReassign evaluates every sibling requirement of the same tier in
// ascending slot order, returning the first that satisfies. Enumeration
// order is deterministic so simulation re-runs are reproducible. When none
// satisfies, Requirement is nil and the attempt log carries the per-sibling
// failure reasons for operator visibility.
func (r *Reallocator) TryReassign(
	record reconciledomain.ExternalRecord,
	failed *campaigndomain.Requirement,
	ruleSet *campaigndomain.RuleSet,
	mapping reconciledomain.ColumnMapping,
	failedReason string,
) Reassignment {
	attemptLog := []string{
		fmt.Sprintf("requirement %s (slot %d): %s", failed.ID, failed.SlotOrder, failedReason),
	}

	for _, sibling := range ruleSet.Siblings(failed) {
		verdict := r.evaluator.Evaluate(record, sibling, mapping)
		if verdict.Satisfied {
			attemptLog = append(attemptLog,
				fmt.Sprintf("requirement %s (slot %d): satisfied, reassigned", sibling.ID, sibling.SlotOrder))
			return Reassignment{Requirement: sibling, AttemptLog: attemptLog}
		}
		attemptLog = append(attemptLog,
			fmt.Sprintf("requirement %s (slot %d): %s", sibling.ID, sibling.SlotOrder, verdict.Reason))
	}

	return Reassignment{AttemptLog: attemptLog}
}

// CombinedReason flattens the attempt log into one rejection reason.
func (r Reassignment) CombinedReason() string {
	return strings.Join(r.AttemptLog, "; ")
}
