// Package grader runs a submission's code against every test case of a
// challenge and reconciles the per-case verdicts into an overall pass/fail.
package grader

import (
	"context"
	"strings"

	"github.com/Anzful/devtrain/internal/domain/model"
	"github.com/Anzful/devtrain/internal/judge"
)

// Runner is the slice of the execution client the harness needs.
type Runner interface {
	RunUnit(ctx context.Context, code string, languageID int, stdin string) (*judge.UnitResult, error)
}

type Harness struct {
	runner Runner
}

func NewHarness(runner Runner) *Harness {
	return &Harness{runner: runner}
}

// Grade runs the code against every test case sequentially, in declared
// order. All cases are executed and recorded even after a failure so callers
// can present full diagnostics; overallPass is the AND across all cases.
//
// A unit that times out or errors inside the judge is a failed case, not an
// error. Only a hard failure of the submit call aborts the grading attempt,
// leaving the caller to retry via redelivery.
func (h *Harness) Grade(ctx context.Context, code, language string, testCases []model.TestCase) (bool, []model.TestCaseResult, error) {
	languageID, err := judge.LanguageID(language)
	if err != nil {
		return false, nil, err
	}

	overallPass := true
	results := make([]model.TestCaseResult, 0, len(testCases))

	for i, tc := range testCases {
		unit, err := h.runner.RunUnit(ctx, code, languageID, tc.Input)
		if err != nil {
			return false, nil, err
		}

		result := model.TestCaseResult{
			Index:            i,
			Input:            tc.Input,
			ExpectedOutput:   tc.ExpectedOutput,
			ActualOutput:     unit.Stdout,
			ExecutionTimeSec: unit.TimeSec,
			MemoryKb:         unit.MemoryKb,
			CompileOutput:    unit.CompileOutput,
			JudgeStatusID:    unit.StatusID,
		}

		if unit.TimedOut() {
			result.Error = "Timed out"
		} else {
			// Trim-then-exact equality; internal whitespace is preserved.
			result.Passed = strings.TrimSpace(unit.Stdout) == strings.TrimSpace(tc.ExpectedOutput)
			if unit.Stderr != "" {
				result.Error = unit.Stderr
			}
		}

		if !result.Passed {
			overallPass = false
		}
		results = append(results, result)
	}

	return overallPass, results, nil
}
