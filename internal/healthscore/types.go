package healthscore

// Input is a snapshot of an account's behavioral and account metrics.
// Every metric is optional; missing values are resolved through the
// neutral-default table in defaults.go.
type Input struct {
	Engagement     *EngagementMetrics `json:"engagement,omitempty"`
	Adoption       *AdoptionMetrics   `json:"adoption,omitempty"`
	ChurnRisk      *ChurnRiskMetrics  `json:"churnRisk,omitempty"`
	AccountContext *AccountContext    `json:"accountContext,omitempty"`
}

// EngagementMetrics captures activity density and session behavior.
type EngagementMetrics struct {
	DAU              *int     `json:"dau,omitempty"`
	WAU              *int     `json:"wau,omitempty"`
	MAU              *int     `json:"mau,omitempty"`
	StickinessRatio  *float64 `json:"stickinessRatio,omitempty"` // DAU/MAU, 0-1
	SessionFrequency *float64 `json:"sessionFrequency,omitempty"` // sessions per user per week
	SessionLength    *int     `json:"sessionLength,omitempty"`    // seconds
}

// AdoptionMetrics captures how much of the product surface an account uses.
type AdoptionMetrics struct {
	CoreFeatures         *CoreFeatureUsage `json:"coreFeatures,omitempty"`
	AdoptionRate         *float64          `json:"adoptionRate,omitempty"` // 0-1
	TimeToFirstKeyAction *float64          `json:"timeToFirstKeyAction,omitempty"` // days
	FeatureDepth         *float64          `json:"featureDepth,omitempty"` // avg usage count per feature
}

type CoreFeatureUsage struct {
	Total int `json:"total"`
	Used  int `json:"used"`
}

// ChurnRiskMetrics captures inactivity and friction signals.
type ChurnRiskMetrics struct {
	DaysSinceLastLogin       *int     `json:"daysSinceLastLogin,omitempty"`
	RageClickCount           *int     `json:"rageClickCount,omitempty"`
	DropOffCount             *int     `json:"dropOffCount,omitempty"`
	SupportTicketsLast30Days *int     `json:"supportTicketsLast30Days,omitempty"`
	BounceRate               *float64 `json:"bounceRate,omitempty"` // 0-1
	ErrorRate                *float64 `json:"errorRate,omitempty"`  // 0-1
}

// AccountContext carries commercial context. It does not produce a scored
// component of its own; it modulates how the scored components are judged.
type AccountContext struct {
	PlanTier        string   `json:"planTier,omitempty"`
	DaysSinceSignup *int     `json:"daysSinceSignup,omitempty"`
	IsPaid          *bool    `json:"isPaid,omitempty"`
	MRR             *float64 `json:"mrr,omitempty"`
}

// Range is the qualitative label derived from the overall score.
type Range string

const (
	RangeHealthy  Range = "healthy"
	RangeAtRisk   Range = "at-risk"
	RangeCritical Range = "critical"
)

// Severity tags a signal.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Component is one scored factor of the overall health score.
type Component struct {
	Score         int                `json:"score"`
	Weight        float64            `json:"weight"`
	RawInputsUsed map[string]float64 `json:"rawInputsUsed"`
}

// Signal highlights one risk or opportunity fact derived from the raw input.
type Signal struct {
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
}

// LLMContext is a denormalized, prompt-ready view of the computed state.
// It is consumed by downstream language-model features; nothing in this
// package calls a model.
type LLMContext struct {
	Summary       string             `json:"summary"`
	Metrics       map[string]float64 `json:"metrics"`
	RiskFactors   []string           `json:"riskFactors"`
	Opportunities []string           `json:"opportunities"`
}

// Result is the full output of a health score calculation.
type Result struct {
	OverallScore    int                  `json:"overallScore"`
	ScoreRange      Range                `json:"scoreRange"`
	Components      map[string]Component `json:"components"`
	Recommendations []string             `json:"recommendations"`
	Signals         []Signal             `json:"signals"`
	LLMContext      LLMContext           `json:"llmContext"`
}

// Component names used as keys in Result.Components.
const (
	ComponentEngagement = "engagement"
	ComponentAdoption   = "adoption"
	ComponentChurnRisk  = "churnRisk"
)

// Config holds the tunable weights and thresholds of the engine. The
// constants behind the sub-scores live in defaults.go; these are the knobs
// operators are expected to adjust.
type Config struct {
	EngagementWeight  float64 `yaml:"engagement_weight" json:"engagement_weight"`
	AdoptionWeight    float64 `yaml:"adoption_weight" json:"adoption_weight"`
	ChurnRiskWeight   float64 `yaml:"churn_risk_weight" json:"churn_risk_weight"`
	HealthyThreshold  int     `yaml:"healthy_threshold" json:"healthy_threshold"`
	CriticalThreshold int     `yaml:"critical_threshold" json:"critical_threshold"`
}

// DefaultConfig returns the default engine configuration: equal weighting
// across the three scored components, healthy at 70+, critical below 40.
func DefaultConfig() Config {
	return Config{
		EngagementWeight:  1.0 / 3.0,
		AdoptionWeight:    1.0 / 3.0,
		ChurnRiskWeight:   1.0 / 3.0,
		HealthyThreshold:  70,
		CriticalThreshold: 40,
	}
}
