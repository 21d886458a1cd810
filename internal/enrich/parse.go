package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aremu/jobalert/internal/domain"
)

// enrichment is the JSON schema the model must return.
type enrichment struct {
	Title              string   `json:"title"`
	AlternateTitles    []string `json:"alternate_titles"`
	Company            string   `json:"company"`
	City               string   `json:"city"`
	State              string   `json:"state"`
	Country            string   `json:"country"`
	WorkArrangement    string   `json:"work_arrangement"`
	JobFunction        string   `json:"job_function"`
	Industry           string   `json:"industry"`
	ExperienceLevel    string   `json:"experience_level"`
	YearsExperienceMin int      `json:"years_experience_min"`
	YearsExperienceMax int      `json:"years_experience_max"`
	SalaryMin          float64  `json:"salary_min"`
	SalaryMax          float64  `json:"salary_max"`
	SalaryCurrency     string   `json:"salary_currency"`
	SalaryPeriod       string   `json:"salary_period"`
	RemoteAllowed      bool     `json:"remote_allowed"`
	RequiredSkills     []string `json:"required_skills"`
	PreferredSkills    []string `json:"preferred_skills"`
	Summary            string   `json:"summary"`
	ApplyURL           string   `json:"apply_url"`
}

// summaryMaxLen bounds the chat-facing summary.
const summaryMaxLen = 280

// errSchema marks model output that violates the schema; such records
// are not retried within the batch.
type errSchema struct{ msg string }

func (e errSchema) Error() string { return "schema violation: " + e.msg }

// parseEnrichment validates and normalizes model output into a
// canonical job. rawDescription is carried over verbatim.
func parseEnrichment(content, rawDescription string) (*domain.Job, error) {
	content = stripFences(content)

	var e enrichment
	if err := json.Unmarshal([]byte(content), &e); err != nil {
		return nil, errSchema{msg: err.Error()}
	}
	if strings.TrimSpace(e.Title) == "" {
		return nil, errSchema{msg: "missing title"}
	}

	// Years range clamps at [0, 50]
	e.YearsExperienceMin = clamp(e.YearsExperienceMin, 0, 50)
	e.YearsExperienceMax = clamp(e.YearsExperienceMax, 0, 50)
	if e.YearsExperienceMax < e.YearsExperienceMin {
		e.YearsExperienceMax = e.YearsExperienceMin
	}

	// One-sided salary ranges collapse to a point
	if e.SalaryMin > 0 && e.SalaryMax <= 0 {
		e.SalaryMax = e.SalaryMin
	}
	if e.SalaryMax > 0 && e.SalaryMin <= 0 {
		e.SalaryMin = e.SalaryMax
	}
	if e.SalaryMin < 0 || e.SalaryMax < 0 {
		return nil, errSchema{msg: fmt.Sprintf("negative salary %f-%f", e.SalaryMin, e.SalaryMax)}
	}

	// Nigerian postings routinely quote naira monthly figures without
	// saying so. Fill both defaults only when a salary is present.
	currency := strings.ToUpper(strings.TrimSpace(e.SalaryCurrency))
	period := strings.ToLower(strings.TrimSpace(e.SalaryPeriod))
	if e.SalaryMax > 0 {
		if currency == "" {
			currency = "NGN"
		}
		if period == "" {
			period = "month"
		}
	}

	location := e.City
	if e.State != "" {
		if location != "" {
			location += ", "
		}
		location += e.State
	}

	arrangement := strings.ToLower(strings.TrimSpace(e.WorkArrangement))

	return &domain.Job{
		Title:           strings.TrimSpace(e.Title),
		AlternateTitles: trimAll(e.AlternateTitles),
		Company:         strings.TrimSpace(e.Company),
		Description:     rawDescription,
		Summary:         truncate(strings.TrimSpace(e.Summary), summaryMaxLen),
		Location:        location,
		Country:         strings.TrimSpace(e.Country),
		WorkArrangement: arrangement,
		RemoteAllowed:   e.RemoteAllowed || arrangement == "remote",
		JobFunction:     strings.TrimSpace(e.JobFunction),
		Industry:        strings.TrimSpace(e.Industry),
		ExperienceLevel: strings.ToLower(strings.TrimSpace(e.ExperienceLevel)),
		MinYears:        e.YearsExperienceMin,
		SalaryMin:       e.SalaryMin,
		SalaryMax:       e.SalaryMax,
		SalaryCurrency:  currency,
		SalaryPeriod:    period,
		Skills:          trimAll(e.RequiredSkills),
		PreferredSkills: trimAll(e.PreferredSkills),
		ApplyURL:        strings.TrimSpace(e.ApplyURL),
	}, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}

// stripFences removes a markdown code fence the model sometimes wraps
// its JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func trimAll(ss []string) []string {
	out := ss[:0]
	for _, s := range ss {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
