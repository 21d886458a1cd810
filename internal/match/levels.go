package match

import "strings"

// levelHierarchy orders experience levels from most junior to most
// senior; compatibility is scored by adjacency.
var levelHierarchy = []string{"entry", "junior", "mid", "senior", "lead", "principal", "executive"}

// levelSynonyms maps the ways a level is written to its canonical
// hierarchy entry.
var levelSynonyms = map[string][]string{
	"entry":     {"entry", "graduate", "trainee", "intern", "beginner", "fresh"},
	"junior":    {"junior", "associate"},
	"mid":       {"mid", "intermediate", "experienced"},
	"senior":    {"senior", "expert"},
	"lead":      {"lead", "manager", "head", "chief"},
	"principal": {"principal", "staff", "architect", "specialist"},
	"executive": {"executive", "director", "vp", "vice president", "c-level"},
}

// canonicalLevel resolves a raw level string to a hierarchy entry, or
// "" when unrecognized.
func canonicalLevel(raw string) string {
	l := strings.ToLower(strings.TrimSpace(raw))
	if l == "" {
		return ""
	}
	for canonical, variations := range levelSynonyms {
		for _, v := range variations {
			if l == v {
				return canonical
			}
		}
	}
	return ""
}

func levelIndex(level string) int {
	for i, l := range levelHierarchy {
		if l == level {
			return i
		}
	}
	return -1
}

// levelCompatibility scores a user level against a job level on a
// 0-10 scale. Adjacent levels score well; an entry-level user gets
// extra leniency reaching upward since entry→junior postings are the
// most common mismatch in practice.
func levelCompatibility(userLevel, jobLevel string) float64 {
	ui, ji := levelIndex(userLevel), levelIndex(jobLevel)
	if ui < 0 || ji < 0 {
		return 0
	}

	switch {
	case ui == ji:
		return 10
	case abs(ui-ji) == 1:
		return 8
	case abs(ui-ji) == 2:
		return 5
	}

	if ui > ji && ui-ji <= 3 {
		// Overqualified but plausible
		return 3
	}

	if ji > ui {
		gap := ji - ui
		if ui == 0 {
			switch gap {
			case 1:
				return 8
			case 2:
				return 6
			case 3:
				return 4
			}
		} else if gap <= 2 {
			return 3
		}
	}
	return 0
}

// yearsCompatibility scores a user's years of experience against a
// job's minimum on a 0-10 scale.
func yearsCompatibility(userYears, jobMinYears int) float64 {
	if jobMinYears <= 0 {
		if userYears == 0 {
			return 10
		}
		// Job states no requirement
		return 7
	}

	if userYears >= jobMinYears {
		excess := userYears - jobMinYears
		switch {
		case excess <= 2:
			return 10
		case excess <= 5:
			return 8
		default:
			return 6
		}
	}

	// Entry-level leniency: zero years applying to low-requirement
	// postings is the normal case, not a disqualifier.
	if userYears == 0 && jobMinYears <= 3 {
		switch {
		case jobMinYears <= 1:
			return 8
		case jobMinYears <= 2:
			return 6
		default:
			return 4
		}
	}

	if float64(userYears) >= float64(jobMinYears)*0.8 {
		return 5
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
