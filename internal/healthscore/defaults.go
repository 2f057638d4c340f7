package healthscore

// Neutral defaults for missing engagement and adoption metrics. Each value
// sits at the midpoint of its healthy reference scale, so a metric the
// caller never measured contributes a 50/100 sub-score instead of dragging
// the component toward either extreme.
//
// Churn-risk metrics use a different policy: a missing friction metric is
// excluded from the risk average entirely (zero-weight exclusion), and an
// account with no friction metrics at all lands on NeutralChurnHealth.
const (
	DefaultStickinessRatio      = 0.15
	DefaultSessionFrequency     = 3.5
	DefaultSessionLength        = 300.0
	DefaultDAU                  = 50.0
	DefaultAdoptionRate         = 0.5
	DefaultFeatureDepth         = 5.0
	DefaultTimeToFirstKeyAction = 7.0

	NeutralChurnHealth = 50.0
)

// Reference scales for sub-score normalization. A metric at or past its
// healthy reference maps to the sub-score ceiling; zero maps to the floor.
const (
	healthyStickinessRatio  = 0.3
	healthySessionFrequency = 7.0
	healthySessionLength    = 600.0
	engagedDAUCeiling       = 100.0

	fullAdoptionDepth   = 10.0
	slowFirstActionDays = 14.0
)

// Risk ceilings: each friction metric is normalized against its ceiling
// before the penalties are averaged and inverted into a health contribution.
const (
	maxInactiveDays   = 30.0
	maxRageClicks     = 10.0
	maxDropOffs       = 10.0
	maxSupportTickets = 5.0
	maxBounceRate     = 0.7
	maxErrorRate      = 0.1
)

// Signal thresholds.
const (
	inactiveCriticalDays = 30
	inactiveWarningDays  = 14
	rageClickCritical    = 5
	dropOffWarning       = 5
	ticketWarning        = 3
	bounceWarning        = 0.5
	errorWarning         = 0.05
	lowAdoptionRate      = 0.2
	broadAdoptionRate    = 0.8
	fastFirstActionDays  = 1.0
)

// Early accounts haven't established a usage baseline, so their churn-risk
// penalties are softened with a score floor.
const (
	earlyAccountDays       = 14
	earlyAccountChurnFloor = 60.0
)

// recommendationBand buckets a component score for the recommendation lookup.
type recommendationBand string

const (
	bandCritical recommendationBand = "critical"
	bandWarning  recommendationBand = "warning"
)

// recommendationTable maps component + severity band to a short imperative
// action. Recommendations are emitted for the lowest-scoring one or two
// components that sit below the healthy threshold.
var recommendationTable = map[string]map[recommendationBand]string{
	ComponentEngagement: {
		bandCritical: "Launch a re-engagement campaign targeting dormant users",
		bandWarning:  "Nudge users toward a daily habit with lifecycle emails",
	},
	ComponentAdoption: {
		bandCritical: "Promote underused core features via in-app messaging",
		bandWarning:  "Add onboarding checklists for unexplored features",
	},
	ComponentChurnRisk: {
		bandCritical: "Trigger a customer success outreach before the account lapses",
		bandWarning:  "Monitor friction signals and follow up on recent support tickets",
	},
}
