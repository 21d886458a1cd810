package embedding

import (
	"fmt"
	"strings"

	"github.com/aremu/jobalert/internal/domain"
)

// Profile texts are a stable function of their inputs: the same
// preferences or job must always render the same string, so equal
// inputs hit the cache and yield equal embeddings.

const descriptionSnippetLen = 300

// UserProfileText renders a user's preferences as the text their
// embedding is computed from.
func UserProfileText(p *domain.Preferences) string {
	var parts []string

	if len(p.JobTitles) > 0 {
		parts = append(parts, "Looking for roles: "+strings.Join(p.JobTitles, ", "))
	}
	if len(p.JobFunctions) > 0 {
		parts = append(parts, "Job categories: "+strings.Join(p.JobFunctions, ", "))
	}
	if len(p.Locations) > 0 {
		parts = append(parts, "Preferred locations: "+strings.Join(p.Locations, ", "))
	}
	if p.WorkArrangement != "" {
		parts = append(parts, "Work arrangement: "+p.WorkArrangement)
	}
	if p.ExperienceLevel != "" {
		parts = append(parts, "Experience level: "+p.ExperienceLevel)
	}
	if p.ExperienceYears > 0 {
		parts = append(parts, fmt.Sprintf("Years of experience: %d", p.ExperienceYears))
	}
	if p.MinSalary > 0 {
		cur := p.SalaryCurrency
		if cur == "" {
			cur = "NGN"
		}
		parts = append(parts, fmt.Sprintf("Minimum salary: %.0f %s", p.MinSalary, cur))
	}
	if len(p.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(p.Skills, ", "))
	}
	if len(p.Industries) > 0 {
		parts = append(parts, "Industries: "+strings.Join(p.Industries, ", "))
	}

	return strings.Join(parts, ". ")
}

// JobProfileText renders a canonical job as the text its embedding is
// computed from. The description is truncated to a bounded snippet so
// the title and structured fields dominate the vector.
func JobProfileText(j *domain.Job) string {
	var parts []string

	parts = append(parts, "Job title: "+j.Title)
	if j.Company != "" {
		parts = append(parts, "Company: "+j.Company)
	}
	if j.JobFunction != "" {
		parts = append(parts, "Function: "+j.JobFunction)
	}
	if j.ExperienceLevel != "" {
		parts = append(parts, "Level: "+j.ExperienceLevel)
	}
	if j.Industry != "" {
		parts = append(parts, "Industry: "+j.Industry)
	}
	if j.Location != "" {
		parts = append(parts, "Location: "+j.Location)
	}
	if j.Country != "" {
		parts = append(parts, "Country: "+j.Country)
	}
	if j.WorkArrangement != "" {
		parts = append(parts, "Work arrangement: "+j.WorkArrangement)
	}
	if len(j.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(j.Skills, ", "))
	}
	if j.MinYears > 0 {
		parts = append(parts, fmt.Sprintf("Minimum years of experience: %d", j.MinYears))
	}
	if j.SalaryMin > 0 || j.SalaryMax > 0 {
		cur := j.SalaryCurrency
		if cur == "" {
			cur = "NGN"
		}
		parts = append(parts, fmt.Sprintf("Salary: %.0f-%.0f %s", j.SalaryMin, j.SalaryMax, cur))
	}
	if j.Description != "" {
		snippet := j.Description
		if len(snippet) > descriptionSnippetLen {
			snippet = snippet[:descriptionSnippetLen]
		}
		parts = append(parts, "Description: "+snippet)
	}

	return strings.Join(parts, ". ")
}
