package decision

import (
	"math"
	"strings"
	"testing"

	"chart-strategy-lab/internal/domain"
)

func passingSummary() domain.Summary {
	return domain.Summary{
		RunID:        "run-1",
		StrategyID:   "trend-following-v1",
		Symbol:       "BTCUSDT",
		TotalTrades:  25,
		Wins:         14,
		Losses:       11,
		WinRate:      0.56,
		MaxDrawdown:  0.12,
		ProfitFactor: 1.6,
	}
}

func TestEvaluate_Pass(t *testing.T) {
	verdict := DefaultThresholds().Evaluate(passingSummary())

	if !verdict.Pass {
		t.Errorf("expected passing verdict, got fail: %+v", verdict.FailedChecks())
	}
	if len(verdict.Checks) != 4 {
		t.Fatalf("expected 4 checks, got %d", len(verdict.Checks))
	}
	for i, c := range verdict.Checks {
		if !c.Pass {
			t.Errorf("check %d (%s) should pass, got %s want %s", i+1, c.Name, c.Got, c.Want)
		}
	}
	if verdict.RunID != "run-1" || verdict.StrategyID != "trend-following-v1" {
		t.Errorf("expected identity fields to carry over, got %q %q", verdict.RunID, verdict.StrategyID)
	}
}

func TestEvaluate_TooFewTrades(t *testing.T) {
	s := passingSummary()
	s.TotalTrades = 7 // < 10

	verdict := DefaultThresholds().Evaluate(s)

	if verdict.Pass {
		t.Error("expected failing verdict with 7 trades")
	}
	if verdict.Checks[0].Pass {
		t.Error("trade count check should fail")
	}
	// The other checks still run and still pass
	for i, c := range verdict.Checks[1:] {
		if !c.Pass {
			t.Errorf("check %d (%s) should still pass", i+2, c.Name)
		}
	}
}

func TestEvaluate_LowWinRate(t *testing.T) {
	s := passingSummary()
	s.WinRate = 0.40 // < 0.45

	verdict := DefaultThresholds().Evaluate(s)

	if verdict.Pass {
		t.Error("expected failing verdict with win rate 0.40")
	}
	if verdict.Checks[1].Pass {
		t.Error("win rate check should fail")
	}
}

func TestEvaluate_ExcessiveDrawdown(t *testing.T) {
	s := passingSummary()
	s.MaxDrawdown = 0.35 // > 0.30

	verdict := DefaultThresholds().Evaluate(s)

	if verdict.Pass {
		t.Error("expected failing verdict with drawdown 0.35")
	}
	if verdict.Checks[2].Pass {
		t.Error("drawdown check should fail")
	}
}

func TestEvaluate_LowProfitFactor(t *testing.T) {
	s := passingSummary()
	s.ProfitFactor = 1.05 // < 1.1

	verdict := DefaultThresholds().Evaluate(s)

	if verdict.Pass {
		t.Error("expected failing verdict with profit factor 1.05")
	}
	if verdict.Checks[3].Pass {
		t.Error("profit factor check should fail")
	}
}

func TestEvaluate_InfiniteProfitFactorPasses(t *testing.T) {
	s := passingSummary()
	s.ProfitFactor = math.Inf(1) // no losing trades

	verdict := DefaultThresholds().Evaluate(s)

	if !verdict.Checks[3].Pass {
		t.Error("profit factor check should pass for +Inf")
	}
	if verdict.Checks[3].Got != "+Inf" {
		t.Errorf("expected Got +Inf, got %q", verdict.Checks[3].Got)
	}
}

func TestEvaluate_BoundaryValuesPass(t *testing.T) {
	// Exact threshold values satisfy the gates
	s := passingSummary()
	s.TotalTrades = 10
	s.WinRate = 0.45
	s.MaxDrawdown = 0.30
	s.ProfitFactor = 1.1

	verdict := DefaultThresholds().Evaluate(s)

	if !verdict.Pass {
		t.Errorf("expected boundary values to pass, failed checks: %+v", verdict.FailedChecks())
	}
}

func TestEvaluate_MultipleFailures(t *testing.T) {
	s := passingSummary()
	s.TotalTrades = 3
	s.WinRate = 0.20
	s.ProfitFactor = 0.8

	verdict := DefaultThresholds().Evaluate(s)

	if verdict.Pass {
		t.Error("expected failing verdict")
	}
	failed := verdict.FailedChecks()
	if len(failed) != 3 {
		t.Errorf("expected 3 failed checks, got %d", len(failed))
	}
}

func TestRenderMarkdown_Pass(t *testing.T) {
	verdict := DefaultThresholds().Evaluate(passingSummary())

	md := RenderMarkdown(verdict)

	if !strings.Contains(md, "## Verdict: PASS") {
		t.Error("markdown should contain the PASS verdict header")
	}
	if !strings.Contains(md, "4/4 passed") {
		t.Error("markdown should show 4/4 checks passed")
	}
	if !strings.Contains(md, "| 1 | trade count |") {
		t.Error("markdown should contain the trade count row")
	}
	if strings.Contains(md, "Failed:") {
		t.Error("passing verdict should not list failures")
	}
}

func TestRenderMarkdown_Fail(t *testing.T) {
	s := passingSummary()
	s.WinRate = 0.30

	md := RenderMarkdown(DefaultThresholds().Evaluate(s))

	if !strings.Contains(md, "## Verdict: FAIL") {
		t.Error("markdown should contain the FAIL verdict header")
	}
	if !strings.Contains(md, "3/4 passed") {
		t.Error("markdown should show 3/4 checks passed")
	}
	if !strings.Contains(md, "- win rate: got 0.3000, want >= 0.45") {
		t.Error("markdown should list the failed win rate check")
	}
}
