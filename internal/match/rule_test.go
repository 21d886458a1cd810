package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aremu/jobalert/internal/domain"
)

func lagosPrefs() *domain.Preferences {
	return &domain.Preferences{
		JobTitles:       []string{"software engineer"},
		Locations:       []string{"lagos"},
		WorkArrangement: "remote",
		ExperienceLevel: "mid",
		ExperienceYears: 4,
		MinSalary:       400000,
		SalaryCurrency:  "NGN",
		Skills:          []string{"go", "postgres"},
	}
}

func lagosJob() *domain.Job {
	return &domain.Job{
		Title:           "Software Engineer",
		Company:         "Acme",
		Location:        "Lagos",
		Country:         "Nigeria",
		WorkArrangement: "remote",
		ExperienceLevel: "mid",
		MinYears:        3,
		SalaryMin:       500000,
		SalaryMax:       800000,
		SalaryCurrency:  "NGN",
		Skills:          []string{"Go", "Postgres", "Docker"},
	}
}

func TestRuleMatcherStrongMatch(t *testing.T) {
	m := NewRuleMatcher(0)
	res := m.Score(lagosPrefs(), lagosJob())

	assert.True(t, res.Matched)
	assert.GreaterOrEqual(t, res.Score, DefaultRuleThreshold)
	assert.NotEmpty(t, res.Reasons)
}

func TestRuleMatcherLocationHardFilter(t *testing.T) {
	p := lagosPrefs()
	p.WorkArrangement = "onsite"
	j := lagosJob()
	j.Location = "Nairobi"
	j.Country = "Kenya"
	j.WorkArrangement = "onsite"

	res := NewRuleMatcher(0).Score(p, j)
	assert.False(t, res.Matched)
	assert.Zero(t, res.Score, "failed location filter must exclude, not just down-rank")
}

func TestRuleMatcherRemoteBypassesLocation(t *testing.T) {
	p := lagosPrefs() // remote preference
	j := lagosJob()
	j.Location = "Berlin"
	j.Country = "Germany"

	res := NewRuleMatcher(0).Score(p, j)
	assert.True(t, res.Matched, "remote seeker should match remote jobs anywhere")
}

func TestRuleMatcherNoLocationPrefsPasses(t *testing.T) {
	p := lagosPrefs()
	p.Locations = nil
	p.WorkArrangement = "onsite"
	j := lagosJob()
	j.Location = "Kano"
	j.WorkArrangement = "onsite"

	res := NewRuleMatcher(0).Score(p, j)
	assert.Positive(t, res.Score)
}

func TestLocationAbbreviations(t *testing.T) {
	tests := []struct {
		userLoc  string
		jobLoc   string
		expected bool
	}{
		{"los", "Lagos", true},
		{"lagos", "Ikeja", true},
		{"fct", "Abuja", true},
		{"abuja", "Wuse, FCT", true},
		{"ph", "Port Harcourt", true},
		{"port harcourt", "Rivers State", true},
		{"lagos", "Kano", false},
		{"uk", "London", true},
		{"nigeria", "Lagos, Nigeria", true},
	}

	for _, tt := range tests {
		got := locationMatches(tt.userLoc, tt.jobLoc, "")
		assert.Equal(t, tt.expected, got, "%q vs %q", tt.userLoc, tt.jobLoc)
	}
}

func TestRegionalProximityLastResort(t *testing.T) {
	// Ibadan and Lagos are both southwest
	assert.True(t, locationMatches("ibadan", "Lagos", ""))
	// Kano (northwest) vs Enugu (southeast)
	assert.False(t, locationMatches("kano", "Enugu", ""))
}

func TestSalaryMissingBaseline(t *testing.T) {
	p := lagosPrefs()
	j := lagosJob()
	j.SalaryMin, j.SalaryMax = 0, 0

	got := scoreSalary(p, j)
	assert.Equal(t, 10.0, got, "missing job salary gets the fair baseline")
}

func TestSalaryCurrencyConversion(t *testing.T) {
	p := lagosPrefs()
	p.MinSalary = 700000 // NGN
	j := lagosJob()
	j.SalaryMin, j.SalaryMax = 1000, 1500 // USD, converts to 750k-1.125M NGN
	j.SalaryCurrency = "USD"

	got := scoreSalary(p, j)
	assert.Equal(t, weightSalary, got)
}

func TestSalaryToleranceWindow(t *testing.T) {
	p := lagosPrefs()
	p.MinSalary = 500000
	j := lagosJob()
	j.SalaryMin, j.SalaryMax = 300000, 450000 // 90% of ask

	got := scoreSalary(p, j)
	assert.Equal(t, 12.0, got)

	j.SalaryMax = 350000 // 70% of ask, below tolerance
	assert.Zero(t, scoreSalary(p, j))
}

func TestSalaryPeriodNormalization(t *testing.T) {
	// 1M NGN/year is ~83k/month and must not clear a 200k/month ask.
	p := lagosPrefs()
	p.MinSalary = 200000
	p.SalaryPeriod = "month"
	j := lagosJob()
	j.SalaryMin, j.SalaryMax = 800000, 1000000
	j.SalaryPeriod = "year"

	assert.Zero(t, scoreSalary(p, j))

	// The same annual figure clears a 80k/month ask.
	p.MinSalary = 80000
	assert.Equal(t, weightSalary, scoreSalary(p, j))
}

func TestSalaryPeriodDayAndWeek(t *testing.T) {
	p := lagosPrefs()
	p.MinSalary = 150000 // monthly
	j := lagosJob()

	j.SalaryMin, j.SalaryMax = 8000, 8000 // per day, ~176k/month
	j.SalaryPeriod = "day"
	assert.Equal(t, weightSalary, scoreSalary(p, j))

	j.SalaryMin, j.SalaryMax = 20000, 20000 // per week, ~87k/month
	j.SalaryPeriod = "week"
	assert.Zero(t, scoreSalary(p, j))
}

func TestSalaryAnnualAskAgainstMonthlyJob(t *testing.T) {
	p := lagosPrefs()
	p.MinSalary = 3000000 // per year, 250k/month
	p.SalaryPeriod = "year"
	j := lagosJob()
	j.SalaryMin, j.SalaryMax = 250000, 300000
	j.SalaryPeriod = "month"

	assert.Equal(t, weightSalary, scoreSalary(p, j))
}

func TestLevelCompatibility(t *testing.T) {
	tests := []struct {
		user, job string
		want      float64
	}{
		{"mid", "mid", 10},
		{"mid", "senior", 8},
		{"entry", "junior", 8},
		{"entry", "mid", 6},
		{"entry", "senior", 4},
		{"junior", "executive", 0},
		{"senior", "entry", 3},
	}
	for _, tt := range tests {
		got := levelCompatibility(tt.user, tt.job)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.user, tt.job)
	}
}

func TestYearsEntryLevelLeniency(t *testing.T) {
	assert.Equal(t, 8.0, yearsCompatibility(0, 1))
	assert.Equal(t, 6.0, yearsCompatibility(0, 2))
	assert.Equal(t, 4.0, yearsCompatibility(0, 3))
	assert.Equal(t, 0.0, yearsCompatibility(0, 5))
}

func TestSkillSynonymsCollapse(t *testing.T) {
	p := lagosPrefs()
	p.Skills = []string{"golang", "postgresql"}
	j := lagosJob()
	j.Skills = []string{"Go", "Postgres"}

	got := scoreSkills(p, j)
	assert.Equal(t, weightSkills, got)
}

func TestSalesClusterCredit(t *testing.T) {
	p := &domain.Preferences{
		JobTitles: []string{"sales executive"},
		Locations: []string{"lagos"},
	}
	j := &domain.Job{
		Title:    "Regional Account Manager",
		Location: "Lagos",
		Industry: "Retail",
	}

	res := NewRuleMatcher(0).Score(p, j)
	assert.Positive(t, res.Score)
	// Sales-family titles get credit on role-term co-occurrence
	assert.GreaterOrEqual(t, scoreTitles(p, j), 0.75*weightTitles)
	// And across sales-friendly industries
	assert.Equal(t, 4.0, scoreIndustry(p, j))
}

func TestSortResultsOrdering(t *testing.T) {
	now := time.Now()
	matches := []domain.Match{
		{Score: 50, Job: domain.Job{ID: 1, PostedAt: now.Add(-48 * time.Hour)}},
		{Score: 80, Job: domain.Job{ID: 2, PostedAt: now.Add(-24 * time.Hour)}},
		{Score: 80, Job: domain.Job{ID: 3, PostedAt: now}},
	}
	SortResults(matches)

	assert.Equal(t, int64(3), matches[0].Job.ID, "ties break on newer posted_date")
	assert.Equal(t, int64(2), matches[1].Job.ID)
	assert.Equal(t, int64(1), matches[2].Job.ID)
}

func TestScoreCapsAt100(t *testing.T) {
	res := NewRuleMatcher(0).Score(lagosPrefs(), lagosJob())
	assert.LessOrEqual(t, res.Score, 100)
}

func TestLocationFilterWideningNeverExcludes(t *testing.T) {
	// Adding a location to the preference set can only admit more
	// jobs; removing one can only admit fewer.
	p := lagosPrefs()
	p.WorkArrangement = "onsite"
	p.Locations = []string{"lagos"}
	j := lagosJob()
	j.Location = "Kano"
	j.WorkArrangement = "onsite"

	m := NewRuleMatcher(0)
	assert.False(t, m.Score(p, j).Matched)

	p.Locations = []string{"lagos", "kano"}
	assert.True(t, m.Score(p, j).Matched)

	p.Locations = []string{"lagos"}
	assert.False(t, m.Score(p, j).Matched)
}

func TestWillingToRelocateBypassesLocation(t *testing.T) {
	p := lagosPrefs()
	p.WorkArrangement = "onsite"
	p.WillingToRelocate = true
	j := lagosJob()
	j.Location = "Kano"
	j.WorkArrangement = "onsite"

	res := NewRuleMatcher(0).Score(p, j)
	assert.True(t, res.Matched)
}

func TestRemoteAllowedFlagBypassesLocation(t *testing.T) {
	p := lagosPrefs()
	p.WorkArrangement = "onsite"
	j := lagosJob()
	j.Location = "Nairobi"
	j.Country = "Kenya"
	j.WorkArrangement = "hybrid"
	j.RemoteAllowed = true

	res := NewRuleMatcher(0).Score(p, j)
	assert.True(t, res.Matched)
}

func TestAlternateTitlesCountAsTitles(t *testing.T) {
	p := &domain.Preferences{JobTitles: []string{"software engineer"}}
	j := &domain.Job{
		Title:           "Platform Wrangler",
		AlternateTitles: []string{"Software Engineer", "Backend Developer"},
	}

	assert.Equal(t, weightTitles, scoreTitles(p, j))
}

func TestPreferredSkillsHalfCredit(t *testing.T) {
	p := lagosPrefs()
	p.Skills = []string{"go", "kubernetes"}
	j := lagosJob()
	j.Skills = []string{"Go"}
	j.PreferredSkills = []string{"Kubernetes"}

	// One required hit plus one nice-to-have at half weight over one
	// required skill, capped at the factor max.
	assert.Equal(t, weightSkills, scoreSkills(p, j))

	j.Skills = []string{"Go", "Rust"}
	assert.Equal(t, 0.75*weightSkills, scoreSkills(p, j))
}

func TestClusterOfDeterministic(t *testing.T) {
	// "sales trainer" touches both the sales and education families;
	// precedence order must make the answer stable.
	first := clusterOf("sales trainer")
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, clusterOf("sales trainer"))
	}
	assert.Equal(t, "sales", first)
}
