package consolidate

import "math"

// Direction classifies which suppression mode dominates a run.
type Direction string

const (
	DirectionReplacement    Direction = "replacement"
	DirectionNonReplacement Direction = "non_replacement"
	DirectionBalanced       Direction = "balanced"
)

// Strength buckets the direction confidence.
type Strength string

const (
	StrengthLow    Strength = "LOW"
	StrengthMedium Strength = "MEDIUM"
	StrengthHigh   Strength = "HIGH"
)

// PriorityBand ranks how urgently the suppression mix needs review.
type PriorityBand string

const (
	BandNone   PriorityBand = "NONE"
	BandLow    PriorityBand = "LOW"
	BandMedium PriorityBand = "MEDIUM"
	BandHigh   PriorityBand = "HIGH"
)

// Counts is the first metrics stage: raw cardinalities over the
// suppression record, split into with/without replacement.
type Counts struct {
	Total              int `json:"total"`
	Rules              int `json:"rules"`
	Files              int `json:"files"`
	Platforms          int `json:"platforms"`
	Reasons            int `json:"reasons"`
	WithReplacement    int `json:"with_replacement"`
	WithoutReplacement int `json:"without_replacement"`
}

// Ratios is the second stage: percentages over the suppression total and
// the distinct (rule, file, platform) universe. Percentages carry two
// decimals; the simple count ratios are rounded to whole percent.
type Ratios struct {
	WithReplacementPct    int     `json:"with_replacement_pct"`
	WithoutReplacementPct int     `json:"without_replacement_pct"`
	FindingCoveragePct    int     `json:"finding_coverage_pct"`
	ReplacementSharePct   float64 `json:"replacement_share_pct"`
	NonReplacementShare   float64 `json:"non_replacement_share_pct"`
	NetPolarityPct        float64 `json:"net_polarity_pct"`
}

// Assessment is the third stage: direction, confidence and strength.
type Assessment struct {
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Strength   Strength  `json:"strength"`
}

// Triage is the final stage: deterministic guidance derived purely from
// (direction, strength).
type Triage struct {
	Action        string       `json:"action"`
	Lane          string       `json:"lane"`
	Playbook      string       `json:"playbook"`
	Order         string       `json:"order"`
	FocusTarget   string       `json:"focus_target"`
	PriorityScore float64      `json:"priority_score"`
	PriorityBand  PriorityBand `json:"priority_band"`
}

// Metrics is the full staged pipeline output. Each stage is a pure
// function of the previous one.
type Metrics struct {
	Counts     Counts     `json:"counts"`
	Ratios     Ratios     `json:"ratios"`
	Assessment Assessment `json:"assessment"`
	Triage     Triage     `json:"triage"`
}

// ComputeMetrics runs counts → ratios → direction/strength → triage over a
// run's suppression record. activeFindings is the size of the consolidated
// finding list, used for the coverage ratio.
func ComputeMetrics(suppressed []SuppressedFinding, activeFindings int) Metrics {
	counts := computeCounts(suppressed)
	ratios := computeRatios(suppressed, counts, activeFindings)
	assessment := assess(ratios)
	return Metrics{
		Counts:     counts,
		Ratios:     ratios,
		Assessment: assessment,
		Triage:     triageFor(assessment),
	}
}

func computeCounts(suppressed []SuppressedFinding) Counts {
	rules := map[string]struct{}{}
	files := map[string]struct{}{}
	platforms := map[string]struct{}{}
	reasons := map[string]struct{}{}
	counts := Counts{Total: len(suppressed)}
	for _, s := range suppressed {
		rules[s.RuleID] = struct{}{}
		files[s.File] = struct{}{}
		platforms[string(s.Platform)] = struct{}{}
		reasons[s.Reason] = struct{}{}
		if s.ReplacedByRuleID != "" {
			counts.WithReplacement++
		} else {
			counts.WithoutReplacement++
		}
	}
	counts.Rules = len(rules)
	counts.Files = len(files)
	counts.Platforms = len(platforms)
	counts.Reasons = len(reasons)
	return counts
}

func computeRatios(suppressed []SuppressedFinding, counts Counts, activeFindings int) Ratios {
	replacementTriples := map[string]struct{}{}
	otherTriples := map[string]struct{}{}
	for _, s := range suppressed {
		key := s.RuleID + ":" + s.File + ":" + string(s.Platform)
		if s.ReplacedByRuleID != "" {
			replacementTriples[s.ReplacedByRuleID+":"+s.File+":"+string(s.Platform)] = struct{}{}
		} else {
			otherTriples[key] = struct{}{}
		}
	}
	totalTriples := map[string]struct{}{}
	for _, s := range suppressed {
		totalTriples[s.RuleID+":"+s.File+":"+string(s.Platform)] = struct{}{}
	}

	ratios := Ratios{
		WithReplacementPct:    roundedPct(counts.WithReplacement, counts.Total),
		WithoutReplacementPct: roundedPct(counts.WithoutReplacement, counts.Total),
		FindingCoveragePct:    roundedPct(counts.Total, counts.Total+activeFindings),
	}
	ratios.ReplacementSharePct = sharePct(len(replacementTriples), len(totalTriples))
	ratios.NonReplacementShare = sharePct(len(otherTriples), len(totalTriples))
	ratios.NetPolarityPct = round2(ratios.ReplacementSharePct - ratios.NonReplacementShare)
	return ratios
}

func assess(ratios Ratios) Assessment {
	direction := DirectionBalanced
	switch {
	case ratios.NetPolarityPct > 0:
		direction = DirectionReplacement
	case ratios.NetPolarityPct < 0:
		direction = DirectionNonReplacement
	}
	confidence := round2(math.Min(math.Abs(ratios.NetPolarityPct), 100))

	strength := StrengthLow
	switch {
	case confidence >= 66.67:
		strength = StrengthHigh
	case confidence >= 33.34:
		strength = StrengthMedium
	}
	return Assessment{Direction: direction, Confidence: confidence, Strength: strength}
}

// triageEntry is one row of the (direction × strength) lookup.
type triageEntry struct {
	action      string
	lane        string
	playbook    string
	order       string
	focusTarget string
}

var triageTable = map[Direction]map[Strength]triageEntry{
	DirectionReplacement: {
		StrengthHigh: {
			action:      "review_replacement_first",
			lane:        "replacement_fast_lane",
			playbook:    "review_replacement_rules>validate_replacements>check_non_replacement_fallbacks",
			order:       "replacement>non_replacement",
			focusTarget: "replacement_rules",
		},
		StrengthMedium: {
			action:      "review_replacement_then_non_replacement",
			lane:        "replacement_standard_lane",
			playbook:    "review_replacement_rules>review_non_replacement_paths>validate_balance_delta",
			order:       "replacement>non_replacement",
			focusTarget: "replacement_rules",
		},
		StrengthLow: {
			action:      "review_replacement_then_non_replacement",
			lane:        "replacement_standard_lane",
			playbook:    "review_replacement_rules>review_non_replacement_paths>validate_balance_delta",
			order:       "replacement>non_replacement",
			focusTarget: "replacement_rules",
		},
	},
	DirectionNonReplacement: {
		StrengthHigh: {
			action:      "review_non_replacement_first",
			lane:        "non_replacement_fast_lane",
			playbook:    "review_non_replacement_paths>validate_suppression_justification>check_replacement_rules",
			order:       "non_replacement>replacement",
			focusTarget: "non_replacement_paths",
		},
		StrengthMedium: {
			action:      "review_non_replacement_then_replacement",
			lane:        "non_replacement_standard_lane",
			playbook:    "review_non_replacement_paths>review_replacement_rules>validate_balance_delta",
			order:       "non_replacement>replacement",
			focusTarget: "non_replacement_paths",
		},
		StrengthLow: {
			action:      "review_non_replacement_then_replacement",
			lane:        "non_replacement_standard_lane",
			playbook:    "review_non_replacement_paths>review_replacement_rules>validate_balance_delta",
			order:       "non_replacement>replacement",
			focusTarget: "non_replacement_paths",
		},
	},
	DirectionBalanced: {
		StrengthHigh:   balancedEntry,
		StrengthMedium: balancedEntry,
		StrengthLow:    balancedEntry,
	},
}

var balancedEntry = triageEntry{
	action:      "review_both_paths",
	lane:        "watch_lane",
	playbook:    "review_replacement_rules>review_non_replacement_paths>validate_balance_delta",
	order:       "replacement=non_replacement",
	focusTarget: "both_paths",
}

func triageFor(a Assessment) Triage {
	entry := triageTable[a.Direction][a.Strength]

	score := a.Confidence
	if a.Direction == DirectionBalanced {
		score = 0
	}
	return Triage{
		Action:        entry.action,
		Lane:          entry.lane,
		Playbook:      entry.playbook,
		Order:         entry.order,
		FocusTarget:   entry.focusTarget,
		PriorityScore: score,
		PriorityBand:  bandFor(score),
	}
}

func bandFor(score float64) PriorityBand {
	switch {
	case score <= 0:
		return BandNone
	case score >= 80:
		return BandHigh
	case score >= 50:
		return BandMedium
	default:
		return BandLow
	}
}

func roundedPct(numerator, denominator int) int {
	if denominator == 0 {
		return 0
	}
	return int(math.Round(float64(numerator) / float64(denominator) * 100))
}

func sharePct(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return round2(float64(numerator) / float64(denominator) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
