package service

import (
	"fmt"
	"strconv"
	"strings"

	campaigndomain "github.com/smallbiznis/incentiva/internal/campaign/domain"
	reconciledomain "github.com/smallbiznis/incentiva/internal/reconcile/domain"
)

// Verdict is the result of evaluating one requirement against one record.
type Verdict struct {
	Satisfied bool
	Reason    string
}

// Evaluator interprets a requirement's data-driven condition set against an
// external record. Conditions are AND-ed and evaluation short-circuits on
// the first failing one. Pure, no I/O.
type Evaluator struct{}

func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate checks every condition of the requirement. A requirement without
// conditions is vacuously satisfied. An unmapped condition field fails the
// requirement with a distinct reason so operators can fix the mapping.
func (e *Evaluator) Evaluate(
	record reconciledomain.ExternalRecord,
	requirement *campaigndomain.Requirement,
	mapping reconciledomain.ColumnMapping,
) Verdict {
	for _, condition := range requirement.Conditions {
		column, ok := mapping.Column(condition.Field)
		if !ok {
			return Verdict{Reason: fmt.Sprintf("field %s not mapped", condition.Field)}
		}

		actual := strings.TrimSpace(record[column])
		expected := strings.TrimSpace(condition.ExpectedValue)

		if satisfied := evaluateCondition(condition.Operator, actual, expected); !satisfied {
			return Verdict{Reason: fmt.Sprintf(
				"field %s: expected %s %q, got %q",
				condition.Field, operatorLabel(condition.Operator), expected, actual,
			)}
		}
	}
	return Verdict{Satisfied: true}
}

func evaluateCondition(op campaigndomain.ConditionOperator, actual, expected string) bool {
	switch op {
	case campaigndomain.OperatorEquals:
		return actual == expected
	case campaigndomain.OperatorNotEquals:
		return actual != expected
	case campaigndomain.OperatorContains:
		return strings.Contains(actual, expected)
	case campaigndomain.OperatorNotContains:
		return !strings.Contains(actual, expected)
	case campaigndomain.OperatorGreaterThan:
		left, right, ok := parseNumericPair(actual, expected)
		return ok && left > right
	case campaigndomain.OperatorLessThan:
		left, right, ok := parseNumericPair(actual, expected)
		return ok && left < right
	default:
		return false
	}
}

// parseNumericPair parses both sides as floats. A non-numeric value fails
// the condition, not the evaluation.
func parseNumericPair(actual, expected string) (float64, float64, bool) {
	left, err := strconv.ParseFloat(actual, 64)
	if err != nil {
		return 0, 0, false
	}
	right, err := strconv.ParseFloat(expected, 64)
	if err != nil {
		return 0, 0, false
	}
	return left, right, true
}

func operatorLabel(op campaigndomain.ConditionOperator) string {
	switch op {
	case campaigndomain.OperatorEquals:
		return "="
	case campaigndomain.OperatorNotEquals:
		return "!="
	case campaigndomain.OperatorContains:
		return "contains"
	case campaigndomain.OperatorNotContains:
		return "not contains"
	case campaigndomain.OperatorGreaterThan:
		return ">"
	case campaigndomain.OperatorLessThan:
		return "<"
	default:
		return string(op)
	}
}
