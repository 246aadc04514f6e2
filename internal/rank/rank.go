// Package rank turns raw similarity candidates into the final ordered
// result list. Ranking is purely functional over its inputs: no locks,
// no I/O, safe to call from any goroutine.
package rank

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/quarrydocs/quarry/internal/highlight"
	"github.com/quarrydocs/quarry/internal/store"
)

// RecencyTier maps a maximum age to a fixed boost. Tiers are evaluated
// in order; the first tier whose MaxAge covers the chunk wins.
type RecencyTier struct {
	MaxAge time.Duration `yaml:"max_age"`
	Boost  float64       `yaml:"boost"`
}

// Weights configures every scoring component. All boosts are additive
// and independently capped.
type Weights struct {
	RecencyTiers []RecencyTier `yaml:"recency_tiers"`

	KeywordPerMatch    float64 `yaml:"keyword_per_match"`
	KeywordPhraseBonus float64 `yaml:"keyword_phrase_bonus"`
	KeywordCap         float64 `yaml:"keyword_cap"`
	MinKeywordLength   int     `yaml:"min_keyword_length"`

	PreferredLengthMin int     `yaml:"preferred_length_min"`
	PreferredLengthMax int     `yaml:"preferred_length_max"`
	PreferredBoost     float64 `yaml:"preferred_boost"`
	ShortLength        int     `yaml:"short_length"`
	ShortPenalty       float64 `yaml:"short_penalty"`
	LongLength         int     `yaml:"long_length"`
	LongPenalty        float64 `yaml:"long_penalty"`

	// SourceTypeBoosts is keyed by lowercase extension with dot.
	SourceTypeBoosts map[string]float64 `yaml:"source_type_boosts"`
	// HighlightBoost is the source boost applied to highlight entries.
	HighlightBoost float64 `yaml:"highlight_boost"`
}

// DefaultWeights returns the standard scoring configuration.
func DefaultWeights() Weights {
	return Weights{
		RecencyTiers: []RecencyTier{
			{MaxAge: 7 * 24 * time.Hour, Boost: 0.10},
			{MaxAge: 30 * 24 * time.Hour, Boost: 0.05},
			{MaxAge: 90 * 24 * time.Hour, Boost: 0.02},
		},
		KeywordPerMatch:    0.03,
		KeywordPhraseBonus: 0.05,
		KeywordCap:         0.15,
		MinKeywordLength:   3,
		PreferredLengthMin: 200,
		PreferredLengthMax: 1200,
		PreferredBoost:     0.03,
		ShortLength:        50,
		ShortPenalty:       -0.03,
		LongLength:         2000,
		LongPenalty:        -0.02,
		SourceTypeBoosts: map[string]float64{
			".pdf":  0.04,
			".docx": 0.03,
			".md":   0.02,
		},
		HighlightBoost: 0.05,
	}
}

// HighlightCandidate pairs a highlight with its query similarity,
// computed against the vector stored at capture time.
type HighlightCandidate struct {
	Highlight  highlight.Highlight
	Similarity float64
}

// Result is one entry of the final ranked output, carrying the score
// breakdown for explainability.
type Result struct {
	Content     string   `json:"content"`
	Source      string   `json:"source"`
	IsHighlight bool     `json:"is_highlight"`
	HighlightID string   `json:"highlight_id,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Note        string   `json:"note,omitempty"`

	Similarity       float64 `json:"similarity"`
	RecencyBoost     float64 `json:"recency_boost"`
	KeywordBoost     float64 `json:"keyword_boost"`
	LengthAdjustment float64 `json:"length_adjustment"`
	SourceTypeBoost  float64 `json:"source_type_boost"`
	FinalScore       float64 `json:"final_score"`

	createdAt time.Time
	source    string // dedup key source
	start     int
	end       int
}

// Rank scores, sorts, deduplicates, and merges candidates with
// highlights. Priority highlights at or above floor are spliced to the
// front ordered by their own score; regular candidates follow, never
// displaced. Non-priority highlights compete with regular candidates.
// The floor is inclusive and applies to raw similarity.
func Rank(query string, candidates []store.Candidate, highlights []HighlightCandidate, w Weights, floor float64, limit int) []Result {
	now := time.Now()
	terms, phrase := queryTerms(query, w.MinKeywordLength)

	var priority, regular []Result

	for _, c := range candidates {
		if c.Similarity < floor {
			continue
		}
		r := scoreChunk(c, w, terms, phrase, now)
		regular = append(regular, r)
	}

	for _, hc := range highlights {
		if hc.Similarity < floor {
			continue
		}
		r := scoreHighlight(hc, w, terms, phrase, now)
		if hc.Highlight.Priority {
			priority = append(priority, r)
		} else {
			regular = append(regular, r)
		}
	}

	sortResults(priority)
	sortResults(regular)
	regular = dedup(regular)

	merged := append(priority, regular...)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	if merged == nil {
		merged = []Result{}
	}
	return merged
}

func scoreChunk(c store.Candidate, w Weights, terms []string, phrase *regexp.Regexp, now time.Time) Result {
	chunk := c.Chunk
	r := Result{
		Content:    chunk.Text,
		Source:     chunk.Source,
		Similarity: c.Similarity,
		createdAt:  chunk.CreatedAt,
		source:     chunk.Source,
		start:      chunk.Start,
		end:        chunk.End,
	}
	r.RecencyBoost = recencyBoost(now.Sub(chunk.CreatedAt), w.RecencyTiers)
	r.KeywordBoost = keywordBoost(chunk.Text, terms, phrase, w)
	r.LengthAdjustment = lengthAdjustment(utf8.RuneCountInString(chunk.Text), w)
	r.SourceTypeBoost = w.SourceTypeBoosts[chunk.Ext]
	r.FinalScore = r.Similarity + r.RecencyBoost + r.KeywordBoost + r.LengthAdjustment + r.SourceTypeBoost
	return r
}

func scoreHighlight(hc HighlightCandidate, w Weights, terms []string, phrase *regexp.Regexp, now time.Time) Result {
	h := hc.Highlight
	r := Result{
		Content:     h.Text,
		Source:      h.SourceLabel,
		IsHighlight: true,
		HighlightID: h.ID,
		Tags:        h.Tags,
		Note:        h.Note,
		Similarity:  hc.Similarity,
		createdAt:   h.CreatedAt,
		source:      "highlight:" + h.ID,
	}
	r.RecencyBoost = recencyBoost(now.Sub(h.CreatedAt), w.RecencyTiers)
	r.KeywordBoost = keywordBoost(h.Text, terms, phrase, w)
	r.LengthAdjustment = lengthAdjustment(utf8.RuneCountInString(h.Text), w)
	r.SourceTypeBoost = w.HighlightBoost
	r.FinalScore = r.Similarity + r.RecencyBoost + r.KeywordBoost + r.LengthAdjustment + r.SourceTypeBoost
	return r
}

// sortResults orders by final score, then raw similarity, then most
// recent timestamp.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].createdAt.After(results[j].createdAt)
	})
}

// dedup collapses near-identical entries, keeping the better-ranked
// one. Two entries are duplicates when they come from the same source
// with overlapping offsets, or when their normalized text is identical.
// The input must already be sorted.
func dedup(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	var kept []Result

	for _, r := range results {
		norm := normalizeText(r.Content)
		if seen[norm] {
			continue
		}

		overlaps := false
		for _, k := range kept {
			if !r.IsHighlight && !k.IsHighlight &&
				r.source == k.source && r.start < k.end && k.start < r.end {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}

		seen[norm] = true
		kept = append(kept, r)
	}
	return kept
}

// recencyBoost returns the boost of the first tier covering age.
func recencyBoost(age time.Duration, tiers []RecencyTier) float64 {
	for _, tier := range tiers {
		if age <= tier.MaxAge {
			return tier.Boost
		}
	}
	return 0
}

// keywordBoost counts case-insensitive whole-word matches of query
// terms in text, adds a phrase bonus for an exact phrase match, and
// caps the total.
func keywordBoost(text string, terms []string, phrase *regexp.Regexp, w Weights) float64 {
	if len(terms) == 0 {
		return 0
	}

	var boost float64
	for _, term := range terms {
		re := wordPattern(term)
		boost += float64(len(re.FindAllStringIndex(text, -1))) * w.KeywordPerMatch
	}
	if phrase != nil && phrase.MatchString(text) {
		boost += w.KeywordPhraseBonus
	}
	if boost > w.KeywordCap {
		boost = w.KeywordCap
	}
	return boost
}

// lengthAdjustment rewards the preferred length band and penalizes
// extremes. Lengths are counted in runes.
func lengthAdjustment(length int, w Weights) float64 {
	switch {
	case length < w.ShortLength:
		return w.ShortPenalty
	case length > w.LongLength:
		return w.LongPenalty
	case length >= w.PreferredLengthMin && length <= w.PreferredLengthMax:
		return w.PreferredBoost
	default:
		return 0
	}
}

var termPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// queryTerms extracts lowercase terms of at least minLen characters and
// builds the exact-phrase matcher when the query has multiple terms.
func queryTerms(query string, minLen int) ([]string, *regexp.Regexp) {
	all := termPattern.FindAllString(strings.ToLower(query), -1)
	var terms []string
	for _, t := range all {
		if len(t) >= minLen {
			terms = append(terms, t)
		}
	}

	var phrase *regexp.Regexp
	trimmed := strings.TrimSpace(query)
	if len(terms) > 1 && trimmed != "" {
		phrase = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(trimmed))
	}
	return terms, phrase
}

// wordPattern matches term as a whole word, case-insensitively.
func wordPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
}

// normalizeText lowercases and collapses whitespace for dedup
// comparison.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
