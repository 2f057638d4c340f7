package healthscore

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestCalculateEmptyInput(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	result := engine.Calculate(Input{})

	if result.OverallScore != 50 {
		t.Fatalf("expected neutral overall score 50, got %d", result.OverallScore)
	}
	if result.ScoreRange != RangeAtRisk {
		t.Fatalf("expected range %q, got %q", RangeAtRisk, result.ScoreRange)
	}
	for name, c := range result.Components {
		if c.Score != 50 {
			t.Errorf("component %s: expected neutral score 50, got %d", name, c.Score)
		}
		if len(c.RawInputsUsed) != 0 {
			t.Errorf("component %s: expected no raw inputs used, got %v", name, c.RawInputsUsed)
		}
	}
	if result.Recommendations == nil || result.Signals == nil {
		t.Fatal("recommendations and signals must be present even for empty input")
	}
}

func TestCalculateExampleFixture(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	result := engine.Calculate(ExampleInput())

	if result.OverallScore != 71 {
		t.Fatalf("expected overall score 71, got %d", result.OverallScore)
	}
	if result.ScoreRange != RangeHealthy {
		t.Fatalf("expected range %q, got %q", RangeHealthy, result.ScoreRange)
	}

	expected := map[string]int{
		ComponentEngagement: 55,
		ComponentAdoption:   71,
		ComponentChurnRisk:  85,
	}
	for name, want := range expected {
		got, ok := result.Components[name]
		if !ok {
			t.Fatalf("missing component %s", name)
		}
		if got.Score != want {
			t.Errorf("component %s: expected score %d, got %d", name, want, got.Score)
		}
	}
}

func TestScoreBounds(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	inputs := map[string]Input{
		"empty": {},
		"all zeros": {
			Engagement: &EngagementMetrics{
				DAU: intPtr(0), MAU: intPtr(0),
				StickinessRatio:  floatPtr(0),
				SessionFrequency: floatPtr(0),
				SessionLength:    intPtr(0),
			},
			Adoption: &AdoptionMetrics{
				AdoptionRate:         floatPtr(0),
				FeatureDepth:         floatPtr(0),
				TimeToFirstKeyAction: floatPtr(365),
			},
			ChurnRisk: &ChurnRiskMetrics{
				DaysSinceLastLogin:       intPtr(365),
				RageClickCount:           intPtr(1000),
				DropOffCount:             intPtr(1000),
				SupportTicketsLast30Days: intPtr(1000),
				BounceRate:               floatPtr(1),
				ErrorRate:                floatPtr(1),
			},
		},
		"extreme highs": {
			Engagement: &EngagementMetrics{
				DAU: intPtr(1000000), MAU: intPtr(1000000),
				StickinessRatio:  floatPtr(1),
				SessionFrequency: floatPtr(100),
				SessionLength:    intPtr(86400),
			},
			Adoption: &AdoptionMetrics{
				AdoptionRate:         floatPtr(1),
				FeatureDepth:         floatPtr(1000),
				TimeToFirstKeyAction: floatPtr(0),
			},
			ChurnRisk: &ChurnRiskMetrics{
				DaysSinceLastLogin: intPtr(0),
			},
		},
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			result := engine.Calculate(input)
			if result.OverallScore < 0 || result.OverallScore > 100 {
				t.Fatalf("overall score %d out of bounds", result.OverallScore)
			}
			for cname, c := range result.Components {
				if c.Score < 0 || c.Score > 100 {
					t.Errorf("component %s score %d out of bounds", cname, c.Score)
				}
			}
		})
	}
}

func TestClassifyRanges(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	cases := []struct {
		score int
		want  Range
	}{
		{0, RangeCritical},
		{39, RangeCritical},
		{40, RangeAtRisk},
		{69, RangeAtRisk},
		{70, RangeHealthy},
		{100, RangeHealthy},
	}
	for _, tc := range cases {
		if got := engine.classify(tc.score); got != tc.want {
			t.Errorf("classify(%d): expected %q, got %q", tc.score, tc.want, got)
		}
	}
}

func TestCalculateDeterministic(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	input := ExampleInput()

	first, err := json.Marshal(engine.Calculate(input))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		next, err := json.Marshal(engine.Calculate(input))
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if !bytes.Equal(first, next) {
			t.Fatalf("run %d produced different bytes:\nfirst: %s\nnext:  %s", i, first, next)
		}
	}
}

func TestEngagementMonotonicInStickiness(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	prev := -1
	for stickiness := 0.0; stickiness <= 0.5; stickiness += 0.05 {
		s := stickiness
		result := engine.Calculate(Input{
			Engagement: &EngagementMetrics{StickinessRatio: &s},
		})
		score := result.Components[ComponentEngagement].Score
		if score < prev {
			t.Fatalf("engagement score decreased from %d to %d at stickiness %.2f", prev, score, stickiness)
		}
		prev = score
	}
}

func TestOverallMonotonicInInactivity(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	prev := 101
	for days := 0; days <= 90; days += 5 {
		d := days
		result := engine.Calculate(Input{
			ChurnRisk: &ChurnRiskMetrics{DaysSinceLastLogin: &d},
		})
		if result.OverallScore > prev {
			t.Fatalf("overall score increased from %d to %d at %d days inactive", prev, result.OverallScore, days)
		}
		prev = result.OverallScore
	}
}

func TestEarlyAccountChurnFloor(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	frictions := &ChurnRiskMetrics{
		DaysSinceLastLogin: intPtr(10),
		RageClickCount:     intPtr(20),
		BounceRate:         floatPtr(0.9),
	}

	young := engine.Calculate(Input{
		ChurnRisk:      frictions,
		AccountContext: &AccountContext{DaysSinceSignup: intPtr(5)},
	})
	if got := young.Components[ComponentChurnRisk].Score; got < 60 {
		t.Fatalf("young account churn score %d fell below the floor", got)
	}

	established := engine.Calculate(Input{
		ChurnRisk:      frictions,
		AccountContext: &AccountContext{DaysSinceSignup: intPtr(45)},
	})
	if got := established.Components[ComponentChurnRisk].Score; got >= 60 {
		t.Fatalf("established account churn score %d should sit below the young-account floor", got)
	}
}

func TestRecommendations(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	t.Run("weak components get at most two actions", func(t *testing.T) {
		result := engine.Calculate(Input{}) // all components land at 50
		if len(result.Recommendations) != 2 {
			t.Fatalf("expected 2 recommendations, got %d: %v", len(result.Recommendations), result.Recommendations)
		}
	})

	t.Run("healthy components get none", func(t *testing.T) {
		result := engine.Calculate(Input{
			Engagement: &EngagementMetrics{
				StickinessRatio:  floatPtr(0.35),
				SessionFrequency: floatPtr(8),
				SessionLength:    intPtr(700),
				DAU:              intPtr(150),
			},
			Adoption: &AdoptionMetrics{
				AdoptionRate:         floatPtr(0.9),
				FeatureDepth:         floatPtr(12),
				TimeToFirstKeyAction: floatPtr(0.5),
			},
			ChurnRisk: &ChurnRiskMetrics{
				DaysSinceLastLogin: intPtr(0),
				RageClickCount:     intPtr(0),
			},
		})
		if len(result.Recommendations) != 0 {
			t.Fatalf("expected no recommendations, got %v", result.Recommendations)
		}
	})
}

func TestSignalOrdering(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	result := engine.Calculate(Input{
		ChurnRisk: &ChurnRiskMetrics{
			DaysSinceLastLogin: intPtr(40), // critical
			BounceRate:         floatPtr(0.6),
		},
		Adoption: &AdoptionMetrics{
			TimeToFirstKeyAction: floatPtr(0.5), // info
		},
	})

	if len(result.Signals) < 3 {
		t.Fatalf("expected at least 3 signals, got %v", result.Signals)
	}
	if result.Signals[0].Severity != SeverityCritical {
		t.Errorf("expected critical signal first, got %v", result.Signals[0])
	}
	last := result.Signals[len(result.Signals)-1]
	if last.Severity != SeverityInfo {
		t.Errorf("expected info signal last, got %v", last)
	}

	prev := severityRank[result.Signals[0].Severity]
	for _, s := range result.Signals[1:] {
		rank := severityRank[s.Severity]
		if rank > prev {
			t.Fatalf("signals not ordered by severity: %v", result.Signals)
		}
		prev = rank
	}
}

func TestLLMContext(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	result := engine.Calculate(ExampleInput())

	ctx := result.LLMContext
	if !strings.Contains(ctx.Summary, "71/100") {
		t.Errorf("summary missing overall score: %q", ctx.Summary)
	}
	if !strings.Contains(ctx.Summary, "Strongest area: churnRisk") {
		t.Errorf("summary missing strongest area: %q", ctx.Summary)
	}
	if !strings.Contains(ctx.Summary, "Weakest area: engagement") {
		t.Errorf("summary missing weakest area: %q", ctx.Summary)
	}
	if ctx.Metrics["overallScore"] != 71 {
		t.Errorf("expected overallScore metric 71, got %v", ctx.Metrics["overallScore"])
	}
	if ctx.Metrics["mrr"] != 99 {
		t.Errorf("expected mrr metric 99, got %v", ctx.Metrics["mrr"])
	}
	if ctx.RiskFactors == nil || ctx.Opportunities == nil {
		t.Fatal("riskFactors and opportunities must be non-nil")
	}
}

func TestPaidAccountChurnRiskFactor(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	result := engine.Calculate(Input{
		ChurnRisk: &ChurnRiskMetrics{
			DaysSinceLastLogin: intPtr(25),
			BounceRate:         floatPtr(0.65),
		},
		AccountContext: &AccountContext{
			IsPaid:          boolPtr(true),
			MRR:             floatPtr(249),
			DaysSinceSignup: intPtr(200),
		},
	})

	found := false
	for _, rf := range result.LLMContext.RiskFactors {
		if strings.Contains(rf, "$249/mo") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected MRR risk factor for paying account, got %v", result.LLMContext.RiskFactors)
	}
}

func TestUnpaidAccountOmitsMRR(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	result := engine.Calculate(Input{
		ChurnRisk: &ChurnRiskMetrics{DaysSinceLastLogin: intPtr(25)},
		AccountContext: &AccountContext{
			IsPaid: boolPtr(false),
			MRR:    floatPtr(249),
		},
	})

	if _, ok := result.LLMContext.Metrics["mrr"]; ok {
		t.Fatal("mrr metric must not appear for unpaid accounts")
	}
	for _, rf := range result.LLMContext.RiskFactors {
		if strings.Contains(rf, "$") {
			t.Fatalf("unexpected MRR risk factor for unpaid account: %q", rf)
		}
	}
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	engine := NewEngine(Config{EngagementWeight: -1, HealthyThreshold: 10, CriticalThreshold: 90})
	result := engine.Calculate(Input{})

	// Bad weights and inverted thresholds fall back to defaults.
	if result.OverallScore != 50 || result.ScoreRange != RangeAtRisk {
		t.Fatalf("expected default-config behavior, got %d (%s)", result.OverallScore, result.ScoreRange)
	}
}

func TestDerivedStickiness(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	explicit := engine.Calculate(Input{
		Engagement: &EngagementMetrics{StickinessRatio: floatPtr(0.25)},
	})
	derived := engine.Calculate(Input{
		Engagement: &EngagementMetrics{DAU: intPtr(25), MAU: intPtr(100)},
	})

	got := derived.Components[ComponentEngagement].RawInputsUsed["stickinessRatio"]
	if got != 0.25 {
		t.Fatalf("expected derived stickiness 0.25, got %v", got)
	}
	if explicit.Components[ComponentEngagement].RawInputsUsed["stickinessRatio"] != 0.25 {
		t.Fatal("explicit stickiness not recorded")
	}
}
