// Package match decides which users should hear about which jobs.
// The embedding matcher is primary; the rule matcher is the fallback
// when either side lacks a vector.
package match

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aremu/jobalert/internal/domain"
)

// Factor weight caps. The weighted sum is clipped at 100.
const (
	weightTitles     = 35.0
	weightWorkArr    = 20.0
	weightSalary     = 20.0
	weightExperience = 10.0
	weightFunction   = 7.0
	weightIndustry   = 5.0
	weightSkills     = 20.0
	weightCluster    = 5.0

	// DefaultRuleThreshold is the minimum total score for dispatch.
	DefaultRuleThreshold = 39
)

// RuleMatcher scores jobs against preferences with a weighted factor
// sum behind a hard location filter.
type RuleMatcher struct {
	threshold int
}

// NewRuleMatcher creates a rule matcher with the given dispatch
// threshold; 0 means the default.
func NewRuleMatcher(threshold int) *RuleMatcher {
	if threshold <= 0 {
		threshold = DefaultRuleThreshold
	}
	return &RuleMatcher{threshold: threshold}
}

// Result is one scored (user, job) comparison.
type Result struct {
	Score   int
	Reasons []string
	Matched bool
}

// Score compares a user's preferences against a job. Jobs failing the
// location filter return a zero, unmatched result.
func (m *RuleMatcher) Score(p *domain.Preferences, j *domain.Job) Result {
	if !m.passesLocationFilter(p, j) {
		return Result{}
	}

	type factor struct {
		name   string
		score  float64
		max    float64
		reason string
	}

	titleScore := scoreTitles(p, j)
	workScore := scoreWorkArrangement(p, j)
	salaryScore := scoreSalary(p, j)
	expScore := scoreExperience(p, j)
	funcScore := scoreFunction(p, j)
	indScore := scoreIndustry(p, j)
	skillScore := scoreSkills(p, j)
	clusterScore := scoreCluster(p, j)

	factors := []factor{
		{"titles", titleScore, weightTitles, fmt.Sprintf("role matches your desired titles (%d%%)", pct(titleScore, weightTitles))},
		{"work arrangement", workScore, weightWorkArr, fmt.Sprintf("work arrangement fits (%s)", j.WorkArrangement)},
		{"salary", salaryScore, weightSalary, "salary range aligns with your expectations"},
		{"experience", expScore, weightExperience, "experience requirements fit your background"},
		{"function", funcScore, weightFunction, fmt.Sprintf("job function matches (%s)", j.JobFunction)},
		{"industry", indScore, weightIndustry, fmt.Sprintf("industry matches (%s)", j.Industry)},
		{"skills", skillScore, weightSkills, "your skills appear in the requirements"},
		{"cluster", clusterScore, weightCluster, "related to your field"},
	}

	total := 0.0
	var reasons []string
	for _, f := range factors {
		total += f.score
		// One sentence per factor contributing at least half its max
		if f.score >= f.max/2 {
			reasons = append(reasons, f.reason)
		}
	}
	if total > 100 {
		total = 100
	}

	score := int(total)
	return Result{
		Score:   score,
		Reasons: reasons,
		Matched: score >= m.threshold,
	}
}

// Threshold returns the dispatch threshold.
func (m *RuleMatcher) Threshold() int { return m.threshold }

// passesLocationFilter applies the hard location gate.
func (m *RuleMatcher) passesLocationFilter(p *domain.Preferences, j *domain.Job) bool {
	if len(p.Locations) == 0 {
		return true
	}
	// Users open to relocating see every posting
	if p.WillingToRelocate {
		return true
	}
	// Remote jobs can be done from anywhere
	if strings.EqualFold(j.WorkArrangement, "remote") || j.RemoteAllowed {
		return true
	}
	// Remote seekers also accept hybrid postings regardless of city
	if strings.EqualFold(p.WorkArrangement, "remote") && strings.EqualFold(j.WorkArrangement, "hybrid") {
		return true
	}
	for _, loc := range p.Locations {
		if locationMatches(loc, j.Location, j.Country) {
			return true
		}
	}
	return false
}

func scoreTitles(p *domain.Preferences, j *domain.Job) float64 {
	if len(p.JobTitles) == 0 {
		return 0
	}
	jobTitle := strings.ToLower(j.Title)

	// Alternate titles count the same as the canonical one.
	titles := make([]string, 0, 1+len(j.AlternateTitles))
	titles = append(titles, jobTitle)
	for _, alt := range j.AlternateTitles {
		titles = append(titles, strings.ToLower(alt))
	}

	best := 0.0
	for _, want := range p.JobTitles {
		w := strings.ToLower(want)
		for _, t := range titles {
			if sim := titleSimilarity(w, t); sim > best {
				best = sim
			}
		}
	}

	// Sales-family roles match on role-term co-occurrence even when
	// the exact strings diverge.
	if best < 0.6 && clusterOf(jobTitle) == "sales" {
		for _, want := range p.JobTitles {
			if clusterOf(want) == "sales" {
				if best < 0.75 {
					best = 0.75
				}
				break
			}
		}
	}

	return best * weightTitles
}

// titleSimilarity is a fuzzy comparison in [0,1]: exact match,
// containment, then word-overlap ratio.
func titleSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if strings.Contains(b, a) || strings.Contains(a, b) {
		return 0.9
	}

	aw, bw := strings.Fields(a), strings.Fields(b)
	if len(aw) == 0 || len(bw) == 0 {
		return 0
	}
	set := make(map[string]bool, len(aw))
	for _, w := range aw {
		set[w] = true
	}
	common := 0
	for _, w := range bw {
		if set[w] {
			common++
		}
	}
	smaller := len(aw)
	if len(bw) < smaller {
		smaller = len(bw)
	}
	return float64(common) / float64(smaller)
}

func scoreWorkArrangement(p *domain.Preferences, j *domain.Job) float64 {
	if p.WorkArrangement == "" || j.WorkArrangement == "" {
		return 0
	}
	if strings.EqualFold(p.WorkArrangement, j.WorkArrangement) {
		return weightWorkArr
	}
	// Hybrid-preferring users accept any arrangement
	if strings.EqualFold(p.WorkArrangement, "hybrid") {
		return 18
	}
	return 0
}

// monthlyFactor converts an amount quoted per period to a monthly
// figure. Day and hour assume Nigerian full-time norms (22 working
// days, ~160 hours). Unknown or empty periods are treated as monthly,
// the dominant quoting convention here.
func monthlyFactor(period string) float64 {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "year", "annual", "annually", "yearly", "per annum":
		return 1.0 / 12
	case "week", "weekly":
		return 4.33
	case "day", "daily":
		return 22
	case "hour", "hourly":
		return 160
	default:
		return 1
	}
}

func scoreSalary(p *domain.Preferences, j *domain.Job) float64 {
	if p.MinSalary <= 0 {
		return 0
	}

	// Most postings omit salary; a fair baseline avoids burying them.
	if j.SalaryMin <= 0 && j.SalaryMax <= 0 {
		return 10
	}

	jobMin, jobMax := j.SalaryMin, j.SalaryMax
	if jobMin <= 0 {
		jobMin = jobMax
	}
	if jobMax <= 0 {
		jobMax = jobMin
	}

	// Compare on a monthly basis: a 1M/year posting must not clear a
	// 200k/month ask just because the raw number is bigger.
	jobFactor := monthlyFactor(j.SalaryPeriod)
	jobMin *= jobFactor
	jobMax *= jobFactor
	askMonthly := p.MinSalary * monthlyFactor(p.SalaryPeriod)

	userCur := normalizeCurrency(p.SalaryCurrency)
	jobCur := normalizeCurrency(j.SalaryCurrency)
	if userCur != "" && jobCur != "" && userCur != jobCur {
		factor, ok := conversionFactor(jobCur, userCur)
		if !ok {
			// Unknown pair in the static snapshot: score on raw
			// numbers rather than excluding the job.
			factor = 1
		}
		jobMin *= factor
		jobMax *= factor
	}

	switch {
	case jobMax >= askMonthly:
		return weightSalary
	case jobMax >= askMonthly*0.8:
		// Within 20% tolerance
		return 12
	default:
		return 0
	}
}

func scoreExperience(p *domain.Preferences, j *domain.Job) float64 {
	levelScore := 0.0
	if p.ExperienceLevel != "" && j.ExperienceLevel != "" {
		levelScore = levelCompatibility(canonicalLevel(p.ExperienceLevel), canonicalLevel(j.ExperienceLevel))
	}

	yearsScore := 0.0
	if p.ExperienceYears >= 0 && (p.ExperienceLevel != "" || p.ExperienceYears > 0) {
		yearsScore = yearsCompatibility(p.ExperienceYears, j.MinYears)
	}

	best := levelScore
	if yearsScore > best {
		best = yearsScore
	}
	return best // both sub-scores are already on the 0-10 factor scale
}

func scoreFunction(p *domain.Preferences, j *domain.Job) float64 {
	if len(p.JobFunctions) == 0 || j.JobFunction == "" {
		return 0
	}
	jf := strings.ToLower(j.JobFunction)
	for _, want := range p.JobFunctions {
		w := strings.ToLower(want)
		if w == jf || strings.Contains(jf, w) || strings.Contains(w, jf) {
			return weightFunction
		}
	}
	if clusterOf(jf) != "" {
		for _, want := range p.JobFunctions {
			if clusterOf(want) == clusterOf(jf) {
				return 5
			}
		}
	}
	return 0
}

func scoreIndustry(p *domain.Preferences, j *domain.Job) float64 {
	if j.Industry == "" {
		return 0
	}
	ji := strings.ToLower(j.Industry)
	for _, want := range p.Industries {
		w := strings.ToLower(want)
		if w == ji || strings.Contains(ji, w) || strings.Contains(w, ji) {
			return weightIndustry
		}
	}
	// Sales-family seekers are credited across sales-friendly
	// industries.
	for _, t := range p.JobTitles {
		if clusterOf(t) == "sales" {
			for _, ind := range salesFriendlyIndustries {
				if strings.Contains(ji, ind) {
					return 4
				}
			}
		}
	}
	return 0
}

func scoreSkills(p *domain.Preferences, j *domain.Job) float64 {
	if len(p.Skills) == 0 || (len(j.Skills) == 0 && len(j.PreferredSkills) == 0) {
		return 0
	}

	required := make(map[string]bool, len(j.Skills))
	for _, s := range j.Skills {
		required[normalizeSkill(s)] = true
	}
	preferred := make(map[string]bool, len(j.PreferredSkills))
	for _, s := range j.PreferredSkills {
		preferred[normalizeSkill(s)] = true
	}

	// Required skills carry full credit; nice-to-haves half.
	credit := 0.0
	for _, s := range p.Skills {
		n := normalizeSkill(s)
		switch {
		case required[n]:
			credit += 1
		case preferred[n]:
			credit += 0.5
		}
	}
	if credit == 0 {
		return 0
	}

	denom := float64(len(j.Skills))
	if denom == 0 {
		denom = float64(len(j.PreferredSkills))
	}
	ratio := credit / denom
	if ratio > 1 {
		ratio = 1
	}
	return ratio * weightSkills
}

// skillSynonyms collapses common alternate spellings before skill
// comparison.
var skillSynonyms = map[string]string{
	"js":         "javascript",
	"reactjs":    "react",
	"nodejs":     "node",
	"node.js":    "node",
	"golang":     "go",
	"postgresql": "postgres",
	"ms excel":   "excel",
	"msexcel":    "excel",
}

func normalizeSkill(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if canonical, ok := skillSynonyms[s]; ok {
		return canonical
	}
	return s
}

func scoreCluster(p *domain.Preferences, j *domain.Job) float64 {
	jobCluster := clusterOf(j.Title)
	if jobCluster == "" {
		return 0
	}
	for _, want := range p.JobTitles {
		if clusterOf(want) == jobCluster {
			return weightCluster
		}
	}
	for _, want := range p.JobFunctions {
		if clusterOf(want) == jobCluster {
			return weightCluster
		}
	}
	return 0
}

// SortResults orders matches by score descending, then posting date
// descending.
func SortResults(matches []domain.Match) {
	sort.SliceStable(matches, func(i, k int) bool {
		if matches[i].Score != matches[k].Score {
			return matches[i].Score > matches[k].Score
		}
		return matches[i].Job.PostedAt.After(matches[k].Job.PostedAt)
	})
}

func pct(score, max float64) int {
	if max == 0 {
		return 0
	}
	return int(score / max * 100)
}
