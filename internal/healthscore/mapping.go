package healthscore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnrecognizedShape is returned when a request body is a JSON object but
// matches neither the pre-shaped input nor the raw analytics payload.
var ErrUnrecognizedShape = errors.New("body matches neither health-score input nor raw analytics shape")

// Keys that identify each recognized body shape.
var (
	directShapeKeys = []string{"engagement", "adoption", "churnRisk", "accountContext"}
	rawShapeKeys    = []string{"churnData", "featureData", "sessionData"}
)

// ResolveInput detects the shape of a request body and maps it into the
// engine's input schema. The mapping is deterministic: the same raw bytes
// always resolve to the same Input.
func ResolveInput(body []byte) (Input, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return Input{}, fmt.Errorf("body is not a JSON object: %w", err)
	}

	if hasAnyKey(probe, directShapeKeys) {
		var input Input
		if err := json.Unmarshal(body, &input); err != nil {
			return Input{}, fmt.Errorf("invalid health-score input: %w", err)
		}
		return input, nil
	}

	if hasAnyKey(probe, rawShapeKeys) {
		var raw rawAnalyticsPayload
		if err := json.Unmarshal(body, &raw); err != nil {
			return Input{}, fmt.Errorf("invalid raw analytics payload: %w", err)
		}
		return mapRawAnalytics(raw), nil
	}

	return Input{}, ErrUnrecognizedShape
}

func hasAnyKey(obj map[string]json.RawMessage, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

// Ratio is a 0-1 float that also accepts percentage encodings: the JSON
// string "35%", the string "0.35", or a bare number. Any parsed value above
// 1 is treated as a percentage and divided by 100, applied uniformly so the
// same raw value always converts the same way.
type Ratio float64

func (r *Ratio) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(str), "%"))
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid ratio %q: %w", str, err)
		}
		if strings.HasSuffix(strings.TrimSpace(str), "%") {
			v /= 100
		} else if v > 1 {
			v /= 100
		}
		*r = Ratio(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v > 1 {
		v /= 100
	}
	*r = Ratio(v)
	return nil
}

// rawAnalyticsPayload is the nested shape produced by the session, feature,
// and churn data sources before the dashboard flattens them.
type rawAnalyticsPayload struct {
	SessionData *rawSessionData `json:"sessionData"`
	FeatureData *rawFeatureData `json:"featureData"`
	ChurnData   *rawChurnData   `json:"churnData"`
	Account     *rawAccountData `json:"account"`
}

type rawSessionData struct {
	DailyActiveUsers   *int     `json:"dailyActiveUsers"`
	WeeklyActiveUsers  *int     `json:"weeklyActiveUsers"`
	MonthlyActiveUsers *int     `json:"monthlyActiveUsers"`
	AvgSessionsPerUser *float64 `json:"avgSessionsPerUser"`
	AvgSessionSeconds  *int     `json:"avgSessionSeconds"`
}

type rawFeatureData struct {
	CoreFeatureCount     *int     `json:"coreFeatureCount"`
	CoreFeaturesUsed     *int     `json:"coreFeaturesUsed"`
	AdoptionRate         *Ratio   `json:"adoptionRate"`
	DaysToFirstKeyAction *float64 `json:"daysToFirstKeyAction"`
	AvgUsesPerFeature    *float64 `json:"avgUsesPerFeature"`
}

type rawChurnData struct {
	DaysSinceLastLogin *int   `json:"daysSinceLastLogin"`
	RageClicks         *int   `json:"rageClicks"`
	DropOffs           *int   `json:"dropOffs"`
	SupportTickets     *int   `json:"supportTickets"`
	BounceRate         *Ratio `json:"bounceRate"`
	ErrorRate          *Ratio `json:"errorRate"`
}

type rawAccountData struct {
	Plan            string   `json:"plan"`
	DaysSinceSignup *int     `json:"daysSinceSignup"`
	Paid            *bool    `json:"paid"`
	MRR             *float64 `json:"mrr"`
}

// mapRawAnalytics maps the raw nested payload into the engine's input
// schema, deriving the stickiness ratio from DAU/MAU when both are present.
func mapRawAnalytics(raw rawAnalyticsPayload) Input {
	var input Input

	if s := raw.SessionData; s != nil {
		m := &EngagementMetrics{
			DAU:              s.DailyActiveUsers,
			WAU:              s.WeeklyActiveUsers,
			MAU:              s.MonthlyActiveUsers,
			SessionFrequency: s.AvgSessionsPerUser,
			SessionLength:    s.AvgSessionSeconds,
		}
		if s.DailyActiveUsers != nil && s.MonthlyActiveUsers != nil && *s.MonthlyActiveUsers > 0 {
			ratio := float64(*s.DailyActiveUsers) / float64(*s.MonthlyActiveUsers)
			m.StickinessRatio = &ratio
		}
		input.Engagement = m
	}

	if f := raw.FeatureData; f != nil {
		m := &AdoptionMetrics{
			TimeToFirstKeyAction: f.DaysToFirstKeyAction,
			FeatureDepth:         f.AvgUsesPerFeature,
		}
		if f.CoreFeatureCount != nil {
			used := 0
			if f.CoreFeaturesUsed != nil {
				used = *f.CoreFeaturesUsed
			}
			m.CoreFeatures = &CoreFeatureUsage{Total: *f.CoreFeatureCount, Used: used}
		}
		if f.AdoptionRate != nil {
			rate := float64(*f.AdoptionRate)
			m.AdoptionRate = &rate
		}
		input.Adoption = m
	}

	if c := raw.ChurnData; c != nil {
		m := &ChurnRiskMetrics{
			DaysSinceLastLogin:       c.DaysSinceLastLogin,
			RageClickCount:           c.RageClicks,
			DropOffCount:             c.DropOffs,
			SupportTicketsLast30Days: c.SupportTickets,
		}
		if c.BounceRate != nil {
			v := float64(*c.BounceRate)
			m.BounceRate = &v
		}
		if c.ErrorRate != nil {
			v := float64(*c.ErrorRate)
			m.ErrorRate = &v
		}
		input.ChurnRisk = m
	}

	if a := raw.Account; a != nil {
		input.AccountContext = &AccountContext{
			PlanTier:        a.Plan,
			DaysSinceSignup: a.DaysSinceSignup,
			IsPaid:          a.Paid,
			MRR:             a.MRR,
		}
	}

	return input
}

// ExampleInput returns the documented example snapshot served by the
// illustrative GET endpoint.
func ExampleInput() Input {
	dau, wau, mau := 50, 120, 300
	stickiness := 0.167
	frequency := 3.5
	length := 420
	adoptionRate := 0.6
	firstAction := 2.0
	depth := 8.0
	lastLogin, rageClicks, dropOffs, tickets := 3, 0, 1, 0
	bounce, errRate := 0.35, 0.02
	signupDays := 45
	paid := true
	mrr := 99.0

	return Input{
		Engagement: &EngagementMetrics{
			DAU: &dau, WAU: &wau, MAU: &mau,
			StickinessRatio:  &stickiness,
			SessionFrequency: &frequency,
			SessionLength:    &length,
		},
		Adoption: &AdoptionMetrics{
			CoreFeatures:         &CoreFeatureUsage{Total: 5, Used: 3},
			AdoptionRate:         &adoptionRate,
			TimeToFirstKeyAction: &firstAction,
			FeatureDepth:         &depth,
		},
		ChurnRisk: &ChurnRiskMetrics{
			DaysSinceLastLogin:       &lastLogin,
			RageClickCount:           &rageClicks,
			DropOffCount:             &dropOffs,
			SupportTicketsLast30Days: &tickets,
			BounceRate:               &bounce,
			ErrorRate:                &errRate,
		},
		AccountContext: &AccountContext{
			PlanTier:        "pro",
			DaysSinceSignup: &signupDays,
			IsPaid:          &paid,
			MRR:             &mrr,
		},
	}
}
