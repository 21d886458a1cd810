package enrich

import "fmt"

// enrichmentPrompt asks the model to turn a scraped posting into the
// structured record the matcher consumes. The model must return bare
// JSON; markdown fences are stripped defensively during parsing.
const promptTemplate = `You are an expert Nigerian job market analyst. Analyze this job posting and extract structured data for job matching.

CURRENT DATA:
Title: %s
Company: %s
Location: %s
Description: %s

Return ONLY valid JSON with these fields:
{
  "title": "the canonical job title",
  "alternate_titles": ["other titles this role matches: variations, synonyms, related roles"],
  "company": "company name",
  "city": "city from location",
  "state": "state/region from location",
  "country": "country from location (default: Nigeria)",
  "work_arrangement": "remote, hybrid, or onsite",
  "job_function": "Engineering, Sales, Marketing, Finance, Operations, HR, etc.",
  "industry": "primary industry",
  "experience_level": "entry, junior, mid, senior, lead, principal, or executive",
  "years_experience_min": 0,
  "years_experience_max": 10,
  "salary_min": 0,
  "salary_max": 0,
  "salary_currency": "NGN, USD, EUR, or GBP",
  "salary_period": "year, month, week, day, or hour",
  "remote_allowed": false,
  "required_skills": ["5-10 must-have skills"],
  "preferred_skills": ["nice-to-have skills, may be empty"],
  "summary": "one or two sentences selling the role, under 280 characters",
  "apply_url": "application URL if present, else empty"
}

Focus on Nigerian job market context. Use empty strings or 0 for fields the posting does not state.`

func buildPrompt(title, company, location, description string) string {
	if len(description) > 1000 {
		description = description[:1000]
	}
	return fmt.Sprintf(promptTemplate, title, company, location, description)
}
