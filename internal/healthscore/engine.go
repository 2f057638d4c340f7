package healthscore

import (
	"fmt"
	"math"
	"sort"
)

// Engine computes account health scores. It is a pure transformation: no
// I/O, no clock, no shared state, safe for concurrent use from any number
// of request handlers.
type Engine struct {
	config Config
}

// NewEngine creates an engine with the given configuration. Non-positive
// weights fall back to the defaults so a bad config can never produce an
// unscorable engine.
func NewEngine(config Config) *Engine {
	def := DefaultConfig()
	if config.EngagementWeight <= 0 || config.AdoptionWeight <= 0 || config.ChurnRiskWeight <= 0 {
		config.EngagementWeight = def.EngagementWeight
		config.AdoptionWeight = def.AdoptionWeight
		config.ChurnRiskWeight = def.ChurnRiskWeight
	}
	if config.HealthyThreshold <= 0 || config.CriticalThreshold <= 0 || config.CriticalThreshold >= config.HealthyThreshold {
		config.HealthyThreshold = def.HealthyThreshold
		config.CriticalThreshold = def.CriticalThreshold
	}
	return &Engine{config: config}
}

// Calculate produces the full health score result for an input snapshot.
// Sparse inputs are absorbed via the neutral-default table; Calculate never
// fails for missing data.
func (e *Engine) Calculate(input Input) Result {
	factors := []struct {
		name   string
		weight float64
		calc   func(Input) (float64, map[string]float64)
	}{
		{ComponentEngagement, e.config.EngagementWeight, e.scoreEngagement},
		{ComponentAdoption, e.config.AdoptionWeight, e.scoreAdoption},
		{ComponentChurnRisk, e.config.ChurnRiskWeight, e.scoreChurnRisk},
	}

	components := make(map[string]Component, len(factors))
	var totalScore, totalWeight float64

	for _, factor := range factors {
		score, rawUsed := factor.calc(input)
		score = clamp(score, 0, 100)
		components[factor.name] = Component{
			Score:         int(math.Round(score)),
			Weight:        factor.weight,
			RawInputsUsed: rawUsed,
		}
		totalScore += score * factor.weight
		totalWeight += factor.weight
	}

	overall := 0
	if totalWeight > 0 {
		overall = int(math.Round(clamp(totalScore/totalWeight, 0, 100)))
	}

	signals := e.deriveSignals(input)
	result := Result{
		OverallScore:    overall,
		ScoreRange:      e.classify(overall),
		Components:      components,
		Recommendations: e.deriveRecommendations(components),
		Signals:         signals,
		LLMContext:      e.buildLLMContext(input, overall, components, signals),
	}
	return result
}

// classify maps a score to its range label. Thresholds are exhaustive over
// [0,100]: below critical, between critical and healthy, at or above healthy.
func (e *Engine) classify(score int) Range {
	switch {
	case score < e.config.CriticalThreshold:
		return RangeCritical
	case score < e.config.HealthyThreshold:
		return RangeAtRisk
	default:
		return RangeHealthy
	}
}

// scoreEngagement is monotonically non-decreasing in stickiness, session
// frequency, session length, and DAU (capped). When stickinessRatio is
// absent it is derived from DAU/MAU if both are present.
func (e *Engine) scoreEngagement(input Input) (float64, map[string]float64) {
	m := input.Engagement
	rawUsed := map[string]float64{}

	stickiness := DefaultStickinessRatio
	if m != nil {
		switch {
		case m.StickinessRatio != nil:
			stickiness = *m.StickinessRatio
			rawUsed["stickinessRatio"] = stickiness
		case m.DAU != nil && m.MAU != nil && *m.MAU > 0:
			stickiness = float64(*m.DAU) / float64(*m.MAU)
			rawUsed["stickinessRatio"] = stickiness
		}
	}

	frequency := DefaultSessionFrequency
	if m != nil && m.SessionFrequency != nil {
		frequency = *m.SessionFrequency
		rawUsed["sessionFrequency"] = frequency
	}

	length := DefaultSessionLength
	if m != nil && m.SessionLength != nil {
		length = float64(*m.SessionLength)
		rawUsed["sessionLength"] = length
	}

	dau := DefaultDAU
	if m != nil && m.DAU != nil {
		dau = float64(*m.DAU)
		rawUsed["dau"] = dau
	}
	if m != nil && m.WAU != nil {
		rawUsed["wau"] = float64(*m.WAU)
	}
	if m != nil && m.MAU != nil {
		rawUsed["mau"] = float64(*m.MAU)
	}

	score := ratioScore(stickiness, healthyStickinessRatio)*0.40 +
		ratioScore(frequency, healthySessionFrequency)*0.30 +
		ratioScore(length, healthySessionLength)*0.15 +
		ratioScore(dau, engagedDAUCeiling)*0.15

	return score, rawUsed
}

// scoreAdoption is monotonically non-decreasing in adoptionRate, the
// used/total core feature ratio, and featureDepth, and non-increasing in
// timeToFirstKeyAction.
func (e *Engine) scoreAdoption(input Input) (float64, map[string]float64) {
	m := input.Adoption
	rawUsed := map[string]float64{}

	rate := DefaultAdoptionRate
	if m != nil {
		switch {
		case m.AdoptionRate != nil:
			rate = *m.AdoptionRate
			rawUsed["adoptionRate"] = rate
		case m.CoreFeatures != nil && m.CoreFeatures.Total > 0:
			rate = float64(m.CoreFeatures.Used) / float64(m.CoreFeatures.Total)
			rawUsed["adoptionRate"] = rate
		}
		if m.CoreFeatures != nil {
			rawUsed["coreFeaturesTotal"] = float64(m.CoreFeatures.Total)
			rawUsed["coreFeaturesUsed"] = float64(m.CoreFeatures.Used)
		}
	}

	depth := DefaultFeatureDepth
	if m != nil && m.FeatureDepth != nil {
		depth = *m.FeatureDepth
		rawUsed["featureDepth"] = depth
	}

	firstAction := DefaultTimeToFirstKeyAction
	if m != nil && m.TimeToFirstKeyAction != nil {
		firstAction = *m.TimeToFirstKeyAction
		rawUsed["timeToFirstKeyAction"] = firstAction
	}

	score := clamp01(rate)*100*0.50 +
		ratioScore(depth, fullAdoptionDepth)*0.25 +
		(1-clamp01(firstAction/slowFirstActionDays))*100*0.25

	return score, rawUsed
}

// scoreChurnRisk returns churn risk framed as a health contribution: higher
// means healthier. Each friction metric is normalized against a fixed
// ceiling, present penalties are averaged, and the average is inverted.
// Missing metrics are excluded from the average; an account with no friction
// metrics at all lands on NeutralChurnHealth. Accounts younger than
// earlyAccountDays get a score floor since no baseline exists yet.
func (e *Engine) scoreChurnRisk(input Input) (float64, map[string]float64) {
	m := input.ChurnRisk
	rawUsed := map[string]float64{}

	var penalties []float64
	addPenalty := func(name string, value, ceiling float64) {
		rawUsed[name] = value
		penalties = append(penalties, clamp01(value/ceiling))
	}

	if m != nil {
		if m.DaysSinceLastLogin != nil {
			addPenalty("daysSinceLastLogin", float64(*m.DaysSinceLastLogin), maxInactiveDays)
		}
		if m.RageClickCount != nil {
			addPenalty("rageClickCount", float64(*m.RageClickCount), maxRageClicks)
		}
		if m.DropOffCount != nil {
			addPenalty("dropOffCount", float64(*m.DropOffCount), maxDropOffs)
		}
		if m.SupportTicketsLast30Days != nil {
			addPenalty("supportTicketsLast30Days", float64(*m.SupportTicketsLast30Days), maxSupportTickets)
		}
		if m.BounceRate != nil {
			addPenalty("bounceRate", *m.BounceRate, maxBounceRate)
		}
		if m.ErrorRate != nil {
			addPenalty("errorRate", *m.ErrorRate, maxErrorRate)
		}
	}

	score := NeutralChurnHealth
	if len(penalties) > 0 {
		var total float64
		for _, p := range penalties {
			total += p
		}
		score = (1 - total/float64(len(penalties))) * 100
	}

	if ctx := input.AccountContext; ctx != nil && ctx.DaysSinceSignup != nil && *ctx.DaysSinceSignup < earlyAccountDays {
		if score < earlyAccountChurnFloor {
			score = earlyAccountChurnFloor
		}
	}

	return score, rawUsed
}

// scoredSignal carries the ordering key alongside the emitted signal.
type scoredSignal struct {
	Signal
	deviation float64
}

var severityRank = map[Severity]int{
	SeverityCritical: 2,
	SeverityWarning:  1,
	SeverityInfo:     0,
}

// deriveSignals emits a signal for every raw input crossing a documented
// threshold, ordered by severity descending then by deviation magnitude.
func (e *Engine) deriveSignals(input Input) []Signal {
	var found []scoredSignal
	add := func(label string, severity Severity, deviation float64) {
		found = append(found, scoredSignal{Signal{Label: label, Severity: severity}, deviation})
	}

	if m := input.ChurnRisk; m != nil {
		if m.DaysSinceLastLogin != nil {
			days := *m.DaysSinceLastLogin
			if days > inactiveCriticalDays {
				add("Inactive for 30+ days", SeverityCritical, float64(days)/maxInactiveDays)
			} else if days > inactiveWarningDays {
				add("Inactive for more than two weeks", SeverityWarning, float64(days)/float64(inactiveWarningDays))
			}
		}
		if m.RageClickCount != nil && *m.RageClickCount > 0 {
			if *m.RageClickCount > rageClickCritical {
				add("Repeated rage clicks detected", SeverityCritical, float64(*m.RageClickCount)/maxRageClicks)
			} else {
				add("Rage clicks detected", SeverityWarning, float64(*m.RageClickCount)/maxRageClicks)
			}
		}
		if m.DropOffCount != nil && *m.DropOffCount > dropOffWarning {
			add("Frequent funnel drop-offs", SeverityWarning, float64(*m.DropOffCount)/maxDropOffs)
		}
		if m.SupportTicketsLast30Days != nil && *m.SupportTicketsLast30Days > ticketWarning {
			add("Elevated support ticket volume", SeverityWarning, float64(*m.SupportTicketsLast30Days)/maxSupportTickets)
		}
		if m.BounceRate != nil && *m.BounceRate > bounceWarning {
			add("High bounce rate", SeverityWarning, *m.BounceRate/maxBounceRate)
		}
		if m.ErrorRate != nil && *m.ErrorRate > errorWarning {
			add("Elevated error rate", SeverityWarning, *m.ErrorRate/maxErrorRate)
		}
	}

	if m := input.Adoption; m != nil {
		if m.AdoptionRate != nil {
			if *m.AdoptionRate < lowAdoptionRate {
				add("Low core feature adoption", SeverityWarning, (lowAdoptionRate-*m.AdoptionRate)/lowAdoptionRate)
			} else if *m.AdoptionRate >= broadAdoptionRate {
				add("Broad core feature adoption", SeverityInfo, *m.AdoptionRate)
			}
		}
		if m.CoreFeatures != nil && m.CoreFeatures.Total > 0 && m.CoreFeatures.Used == 0 {
			add("No core features used yet", SeverityWarning, 1)
		}
		if m.TimeToFirstKeyAction != nil && *m.TimeToFirstKeyAction <= fastFirstActionDays {
			add("Fast time to first key action", SeverityInfo, 1-*m.TimeToFirstKeyAction/slowFirstActionDays)
		}
	}

	if m := input.Engagement; m != nil && m.StickinessRatio != nil && *m.StickinessRatio >= healthyStickinessRatio {
		add("Strong engagement density", SeverityInfo, *m.StickinessRatio/healthyStickinessRatio)
	}

	sort.SliceStable(found, func(i, j int) bool {
		ri, rj := severityRank[found[i].Severity], severityRank[found[j].Severity]
		if ri != rj {
			return ri > rj
		}
		if found[i].deviation != found[j].deviation {
			return found[i].deviation > found[j].deviation
		}
		return found[i].Label < found[j].Label
	})

	signals := make([]Signal, len(found))
	for i, s := range found {
		signals[i] = s.Signal
	}
	return signals
}

// deriveRecommendations ranks the scored components ascending and emits one
// action for each of the lowest one or two sitting below the healthy
// threshold, looked up from the fixed recommendation table.
func (e *Engine) deriveRecommendations(components map[string]Component) []string {
	type ranked struct {
		name  string
		score int
	}
	order := make([]ranked, 0, len(components))
	for name, c := range components {
		order = append(order, ranked{name, c.Score})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score < order[j].score
		}
		return order[i].name < order[j].name
	})

	recs := make([]string, 0, 2)
	for _, r := range order {
		if len(recs) == 2 || r.score >= e.config.HealthyThreshold {
			break
		}
		band := bandWarning
		if r.score < e.config.CriticalThreshold {
			band = bandCritical
		}
		if rec, ok := recommendationTable[r.name][band]; ok {
			recs = append(recs, rec)
		}
	}
	return recs
}

// buildLLMContext reshapes the computed state into a prompt-ready payload.
// Pure template filling; the summary sentence and metric snapshot are built
// only from values already computed above.
func (e *Engine) buildLLMContext(input Input, overall int, components map[string]Component, signals []Signal) LLMContext {
	metrics := map[string]float64{
		"overallScore": float64(overall),
	}
	strongest, weakest := "", ""
	for name, c := range components {
		metrics[name+"Score"] = float64(c.Score)
		if strongest == "" || c.Score > components[strongest].Score ||
			(c.Score == components[strongest].Score && name < strongest) {
			strongest = name
		}
		if weakest == "" || c.Score < components[weakest].Score ||
			(c.Score == components[weakest].Score && name < weakest) {
			weakest = name
		}
	}
	if m := input.Engagement; m != nil && m.StickinessRatio != nil {
		metrics["stickinessRatio"] = *m.StickinessRatio
	}
	if m := input.Adoption; m != nil && m.AdoptionRate != nil {
		metrics["adoptionRate"] = *m.AdoptionRate
	}
	if m := input.ChurnRisk; m != nil && m.DaysSinceLastLogin != nil {
		metrics["daysSinceLastLogin"] = float64(*m.DaysSinceLastLogin)
	}

	riskFactors := []string{}
	opportunities := []string{}
	for _, s := range signals {
		if s.Severity == SeverityInfo {
			opportunities = append(opportunities, s.Label)
		} else {
			riskFactors = append(riskFactors, s.Label)
		}
	}

	// MRR-dependent reasoning only applies to paying accounts.
	if ctx := input.AccountContext; ctx != nil && ctx.IsPaid != nil && *ctx.IsPaid && ctx.MRR != nil && *ctx.MRR > 0 {
		metrics["mrr"] = *ctx.MRR
		if components[ComponentChurnRisk].Score < e.config.HealthyThreshold {
			riskFactors = append(riskFactors, fmt.Sprintf("Paying account ($%.0f/mo) showing churn-risk signals", *ctx.MRR))
		}
	}

	summary := fmt.Sprintf(
		"Account health is %d/100 (%s). Strongest area: %s (%d/100). Weakest area: %s (%d/100).",
		overall, e.classify(overall),
		strongest, components[strongest].Score,
		weakest, components[weakest].Score,
	)

	return LLMContext{
		Summary:       summary,
		Metrics:       metrics,
		RiskFactors:   riskFactors,
		Opportunities: opportunities,
	}
}

// ratioScore maps value/reference to a 0-100 sub-score, capped at 100.
func ratioScore(value, reference float64) float64 {
	if reference <= 0 {
		return 0
	}
	return clamp01(value/reference) * 100
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
