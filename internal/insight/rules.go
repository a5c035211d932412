package insight

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/practicepulse/pulse-cli/internal/metric"
)

// RuleBasedProvider builds the six-stage narrative deterministically from
// fixed thresholds. Every recommendation cites the literal metric value it
// reacts to; nothing is fabricated.
type RuleBasedProvider struct {
	printer *message.Printer
	now     func() time.Time
}

// NewRuleBasedProvider creates the deterministic fallback provider.
func NewRuleBasedProvider() *RuleBasedProvider {
	return &RuleBasedProvider{
		printer: message.NewPrinter(language.English),
		now:     time.Now,
	}
}

// Name implements Provider.
func (p *RuleBasedProvider) Name() string { return "rules" }

// Generate implements Provider. It never fails.
func (p *RuleBasedProvider) Generate(_ context.Context, clientID string, bundle Bundle) (*Report, error) {
	sections := map[string]Section{
		StageAwareness:     p.awareness(bundle),
		StageResearch:      p.research(bundle),
		StageConsideration: p.consideration(bundle),
		StageDecision:      p.decision(bundle),
		StageLoyalty:       p.loyalty(bundle),
		StageGrowth:        p.growth(bundle),
	}

	return &Report{
		ClientID:    clientID,
		ReportMonth: MonthKey(p.now()),
		GeneratedBy: p.Name(),
		GeneratedAt: p.now(),
		Sections:    sections,
		DataQuality: DataQuality{MissingSources: bundle.MissingSources()},
	}, nil
}

func (p *RuleBasedProvider) count(v float64) string {
	return p.printer.Sprintf("%d", int64(v))
}

func (p *RuleBasedProvider) awareness(b Bundle) Section {
	var s Section
	if ga4 := b[metric.SourceGA4]; ga4 != nil {
		users := ga4.Totals["total_users"]
		if users >= 1000 {
			s.KeyWins = append(s.KeyWins, fmt.Sprintf(
				"Google Analytics recorded %s visitors this period, a healthy awareness baseline.", p.count(users)))
		} else {
			s.Recommendations = append(s.Recommendations, Recommendation{
				Text:               "Grow site traffic toward 1,000 visitors per period.",
				SupportingEvidence: fmt.Sprintf("Google Analytics shows %s visitors this period.", p.count(users)),
				Impact:             "More first-touch visibility for the practice.",
				Timeframe:          "60-90 days",
			})
		}
		if ga4.Trend == metric.TrendUp {
			s.KeyWins = append(s.KeyWins, fmt.Sprintf(
				"Google Analytics traffic is trending up %s%% over the period.", ga4.ChangePercent))
		}
	}
	if gbp := b[metric.SourceGBP]; gbp != nil {
		views := gbp.Totals["total_views"]
		if views >= 2000 {
			s.KeyWins = append(s.KeyWins, fmt.Sprintf(
				"The Business Profile was viewed %s times this period.", p.count(views)))
		} else {
			s.NextBestSteps = append(s.NextBestSteps,
				fmt.Sprintf("Post weekly updates to the Business Profile; views are at %s this period.", p.count(views)))
		}
	}
	return s
}

func (p *RuleBasedProvider) research(b Bundle) Section {
	var s Section
	gsc := b[metric.SourceGSC]
	if gsc == nil {
		return s
	}
	clicks := gsc.Totals["clicks"]
	impressions := gsc.Totals["impressions"]
	ctr := gsc.Rates["ctr"]
	if ctr >= 3 {
		s.KeyWins = append(s.KeyWins, fmt.Sprintf(
			"Search Console click-through rate is %.1f%% on %s impressions.", ctr, p.count(impressions)))
	} else if impressions > 0 {
		s.Recommendations = append(s.Recommendations, Recommendation{
			Text:               "Rewrite page titles and meta descriptions for the top queries to lift click-through toward 3%.",
			SupportingEvidence: fmt.Sprintf("Search Console shows %s clicks from %s impressions (%.1f%% CTR).", p.count(clicks), p.count(impressions), ctr),
			Impact:             "More qualified search visits without new rankings.",
			Timeframe:          "30-60 days",
		})
	}
	return s
}

func (p *RuleBasedProvider) consideration(b Bundle) Section {
	var s Section
	cl := b[metric.SourceClarity]
	if cl == nil {
		return s
	}
	scroll := cl.Rates["avg_scroll_depth"]
	rage := cl.Totals["rage_clicks"]
	if scroll >= 60 {
		s.KeyWins = append(s.KeyWins, fmt.Sprintf(
			"Clarity shows visitors scrolling %.0f%% of the page on average, a strong engagement signal.", scroll))
	}
	if rage > 0 {
		s.Recommendations = append(s.Recommendations, Recommendation{
			Text:               "Review the pages producing rage clicks for broken or misleading elements.",
			SupportingEvidence: fmt.Sprintf("Clarity recorded %s rage clicks this period.", p.count(rage)),
			Impact:             "Fewer frustrated visitors abandoning the site.",
			Timeframe:          "2-4 weeks",
		})
	}
	return s
}

func (p *RuleBasedProvider) decision(b Bundle) Section {
	var s Section
	if gbp := b[metric.SourceGBP]; gbp != nil {
		calls := gbp.Totals["phone_calls"]
		if calls >= 50 {
			s.KeyWins = append(s.KeyWins, fmt.Sprintf(
				"The Business Profile drove %s phone calls this period.", p.count(calls)))
		} else {
			s.NextBestSteps = append(s.NextBestSteps, fmt.Sprintf(
				"Add call tracking and a prominent booking link; Business Profile calls are at %s.", p.count(calls)))
		}
	}
	if pms := b[metric.SourcePMS]; pms != nil {
		newPatients := pms.Totals["new_patients"]
		if newPatients >= 30 {
			s.KeyWins = append(s.KeyWins, fmt.Sprintf(
				"%s new patients were scheduled from practice management data this period.", p.count(newPatients)))
		} else {
			s.Recommendations = append(s.Recommendations, Recommendation{
				Text:               "Tighten follow-up on new-patient inquiries to convert more into booked visits.",
				SupportingEvidence: fmt.Sprintf("Practice management data shows %s new patients this period.", p.count(newPatients)),
				Impact:             "Direct new-patient revenue growth.",
				Timeframe:          "30 days",
			})
		}
	}
	return s
}

func (p *RuleBasedProvider) loyalty(b Bundle) Section {
	var s Section
	gbp := b[metric.SourceGBP]
	if gbp == nil {
		return s
	}
	rating := gbp.AllTime["average_rating"]
	reviews := gbp.AllTime["total_reviews"]
	if rating >= 4.5 {
		s.KeyWins = append(s.KeyWins, fmt.Sprintf(
			"The practice holds a %.1f-star Business Profile rating across %s reviews.", rating, p.count(reviews)))
	} else if rating > 0 {
		s.Recommendations = append(s.Recommendations, Recommendation{
			Text:               "Launch a post-visit review request campaign targeting a 4.5+ star rating.",
			SupportingEvidence: fmt.Sprintf("The Business Profile rating is %.1f stars across %s reviews.", rating, p.count(reviews)),
			Impact:             "Higher local ranking and patient trust.",
			Timeframe:          "90 days",
		})
	}
	return s
}

func (p *RuleBasedProvider) growth(b Bundle) Section {
	var s Section
	pms := b[metric.SourcePMS]
	if pms == nil {
		return s
	}
	production := pms.Totals["production_total"]
	completion := pms.Rates["completion_rate"]
	if production > 0 {
		s.KeyWins = append(s.KeyWins, fmt.Sprintf(
			"Practice management data shows $%s in production this period.", p.count(production)))
	}
	if completion > 0 && completion < 90 {
		s.Recommendations = append(s.Recommendations, Recommendation{
			Text:               "Add appointment reminders to push completion above 90%.",
			SupportingEvidence: fmt.Sprintf("Practice management data shows a %.1f%% appointment completion rate.", completion),
			Impact:             "Recovered production from no-shows.",
			Timeframe:          "30 days",
		})
	}
	s.NextBestSteps = append(s.NextBestSteps,
		"Review the highest-production services and weight marketing spend toward them.")
	return s
}
