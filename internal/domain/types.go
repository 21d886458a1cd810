// Package domain holds the core types shared across the job alert
// pipeline: users, preferences, jobs, delivery history, and
// conversation windows.
package domain

import "time"

// User is a WhatsApp subscriber identified by phone number.
type User struct {
	ID        int64
	Phone     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Preferences captures everything a user has told the bot about the
// jobs they want. All slice fields are lowercase-normalized.
type Preferences struct {
	UserID            int64
	JobTitles         []string
	WorkArrangement   string // remote | hybrid | onsite | ""
	Locations         []string
	WillingToRelocate bool
	MinSalary         float64
	SalaryCurrency    string
	SalaryPeriod      string // year | month | week | day | hour | ""
	ExperienceYears   int
	ExperienceLevel   string
	JobFunctions      []string
	Industries        []string
	Skills            []string
	AlertsEnabled     bool
	HasEmbedding      bool
	UpdatedAt         time.Time
}

// RawJob is an unprocessed job payload from an upstream source.
type RawJob struct {
	ID        int64
	Source    string
	SourceID  string
	URL       string
	Payload   []byte // JSON
	Processed bool
	Attempts  int
	LastError string
	ScrapedAt time.Time
	CreatedAt time.Time
}

// Job is an enriched, canonical job posting. Direct fields come from
// the raw record; the rest are inferred during enrichment.
type Job struct {
	ID              int64
	RawJobID        int64
	Title           string
	AlternateTitles []string
	Company         string
	Description     string
	Summary         string // chat-optimized, at most 280 chars
	Location        string
	Country         string
	WorkArrangement string
	RemoteAllowed   bool
	JobFunction     string
	Industry        string
	ExperienceLevel string
	MinYears        int
	SalaryMin       float64
	SalaryMax       float64
	SalaryCurrency  string
	SalaryPeriod    string // year | month | week | day | hour
	Skills          []string // required
	PreferredSkills []string
	ApplyURL        string
	PostedAt        time.Time
	ScrapedAt       time.Time
	AIEnhanced      bool
	HasEmbedding    bool
	EmbeddingModel  string
	CreatedAt       time.Time
}

// HistoryEntry is one row of the per-user delivery ledger. A row
// exists for every job ever considered delivered (or reserved for
// delivery) to a user, which makes it double as the dedup record.
type HistoryEntry struct {
	ID          int64
	UserID      int64
	JobID       int64
	MatchScore  int
	Similarity  float64
	Delivered   bool
	DeliveredAt time.Time
	CreatedAt   time.Time
}

// WindowStatus is the lifecycle state of a conversation window.
type WindowStatus string

const (
	WindowActive  WindowStatus = "active"
	WindowExpired WindowStatus = "expired"
)

// Window is a 24-hour outbound messaging window opened by an inbound
// user message.
type Window struct {
	ID        int64
	UserID    int64
	OpenedAt  time.Time
	ExpiresAt time.Time
	Status    WindowStatus
}

// Remaining reports how much of the window is left at time now.
func (w Window) Remaining(now time.Time) time.Duration {
	return w.ExpiresAt.Sub(now)
}

// Match pairs a user with a job the engine decided to alert them
// about, along with the evidence.
type Match struct {
	UserID     int64
	Job        Job
	Score      int
	Similarity float64
	Reasons    []string
}
