package window

import (
	"fmt"
	"strings"
	"time"

	"github.com/aremu/jobalert/internal/domain"
)

// Stage is one rung of the reminder ladder.
type Stage struct {
	Name      string
	Threshold time.Duration // elapsed time since window open
}

// Stages in ascending threshold order. A scan sends only the highest
// crossed, unsent stage; intermediate stages may be skipped.
var Stages = []Stage{
	{"S1", 16 * time.Hour},
	{"S2", 19 * time.Hour},
	{"S3", 21 * time.Hour},
	{"S4", 23 * time.Hour},
	{"S5", 23*time.Hour + 45*time.Minute},
}

// DueStage returns the highest unsent stage whose threshold elapsed
// has crossed, or nil when nothing is due.
func DueStage(elapsed time.Duration, sent map[string]bool) *Stage {
	for i := len(Stages) - 1; i >= 0; i-- {
		s := Stages[i]
		if elapsed >= s.Threshold {
			if sent[s.Name] {
				// A sent higher stage also covers the ones below it
				return nil
			}
			return &s
		}
	}
	return nil
}

// ReminderMessage renders the stage-specific reminder body. prefs may
// be nil.
func ReminderMessage(stage string, prefs *domain.Preferences, remaining time.Duration) string {
	switch stage {
	case "S1":
		return "👋 Hi! Just checking in — new jobs are coming in all the time. " +
			"Send any message to keep your job alerts flowing."
	case "S2":
		summary := ""
		if prefs != nil && len(prefs.JobTitles) > 0 {
			summary = fmt.Sprintf(" We're watching for %s roles for you.", strings.Join(prefs.JobTitles, ", "))
		}
		return "📋 Your job alerts pause soon." + summary +
			" Reply with anything to stay subscribed."
	case "S3":
		return fmt.Sprintf("⏳ Only about %d hours left before your job alerts pause. "+
			"Send a quick message to keep them active!", int(remaining.Hours())+1)
	case "S4":
		return "🚨 Last hour! Your job alerts pause in less than 60 minutes. " +
			"Reply now to keep receiving matches."
	case "S5":
		return "🔔 Last call — your job alerts pause in 15 minutes. " +
			"Send any message right now to stay connected!"
	}
	return ""
}
