package delivery

import (
	"fmt"
	"strings"

	"github.com/aremu/jobalert/internal/domain"
)

// AlertMessage renders the job alert template: match header, bolded
// title and company, then the optional detail lines the posting
// actually has.
func AlertMessage(m domain.Match) string {
	j := m.Job
	var b strings.Builder

	fmt.Fprintf(&b, "🔥 New job for you — %d%% match\n\n", m.Score)
	fmt.Fprintf(&b, "**%s**", j.Title)
	if j.Company != "" {
		fmt.Fprintf(&b, " at **%s**", j.Company)
	}
	b.WriteString("\n")

	if j.Summary != "" {
		fmt.Fprintf(&b, "%s\n", j.Summary)
	}

	if j.SalaryMin > 0 || j.SalaryMax > 0 {
		cur := j.SalaryCurrency
		if cur == "" {
			cur = "NGN"
		}
		period := j.SalaryPeriod
		if period == "" {
			period = "month"
		}
		if j.SalaryMin > 0 && j.SalaryMax > j.SalaryMin {
			fmt.Fprintf(&b, "💰 %s–%s %s/%s\n", formatAmount(j.SalaryMin), formatAmount(j.SalaryMax), cur, period)
		} else {
			fmt.Fprintf(&b, "💰 %s %s/%s\n", formatAmount(maxF(j.SalaryMin, j.SalaryMax)), cur, period)
		}
	}

	if j.Location != "" {
		fmt.Fprintf(&b, "📍 %s\n", j.Location)
	} else if j.Country != "" {
		fmt.Fprintf(&b, "📍 %s\n", j.Country)
	}

	if j.MinYears > 0 {
		fmt.Fprintf(&b, "⏱️ %d+ years experience\n", j.MinYears)
	}

	if len(j.Skills) > 0 {
		top := j.Skills
		if len(top) > 5 {
			top = top[:5]
		}
		fmt.Fprintf(&b, "🎯 %s\n", strings.Join(top, ", "))
	}

	if len(m.Reasons) > 0 {
		fmt.Fprintf(&b, "\nWhy this fits: %s\n", m.Reasons[0])
	}

	if j.ApplyURL != "" {
		fmt.Fprintf(&b, "\nApply: %s", j.ApplyURL)
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatAmount(v float64) string {
	if v >= 1000000 {
		return fmt.Sprintf("%.1fM", v/1000000)
	}
	if v >= 1000 {
		return fmt.Sprintf("%.0fk", v/1000)
	}
	return fmt.Sprintf("%.0f", v)
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
