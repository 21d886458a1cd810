package match

import "strings"

// jobClusters groups role terms into semantic families. Cluster
// matching is the lowest-weight fallback when direct title and
// function comparisons miss. Slice order is the lookup precedence: a
// title touching several families always resolves to the same one.
var jobClusters = []struct {
	name  string
	terms []string
}{
	{"sales", []string{
		"sales", "business development", "account manager", "account executive",
		"sales representative", "sales executive", "relationship manager",
		"field sales", "telesales", "sales associate",
	}},
	{"engineering", []string{
		"software engineer", "developer", "backend", "frontend", "full stack",
		"devops", "mobile developer", "data engineer", "qa engineer",
		"site reliability",
	}},
	{"data", []string{
		"data analyst", "data scientist", "business intelligence", "analytics",
		"machine learning", "statistician",
	}},
	{"marketing", []string{
		"marketing", "digital marketing", "content", "social media", "seo",
		"brand manager", "growth",
	}},
	{"finance", []string{
		"accountant", "finance", "auditor", "bookkeeper", "financial analyst",
		"treasury", "tax",
	}},
	{"customer service", []string{
		"customer service", "customer support", "call center", "client service",
		"help desk", "customer success",
	}},
	{"admin", []string{
		"administrative", "office assistant", "secretary", "receptionist",
		"executive assistant", "office manager",
	}},
	{"healthcare", []string{
		"nurse", "doctor", "pharmacist", "medical", "health", "clinical",
		"laboratory",
	}},
	{"education", []string{
		"teacher", "tutor", "lecturer", "instructor", "education", "trainer",
	}},
	{"logistics", []string{
		"logistics", "supply chain", "procurement", "warehouse", "fleet",
		"dispatch", "inventory",
	}},
	{"hospitality", []string{
		"chef", "cook", "waiter", "hotel", "hospitality", "housekeeping",
		"front desk",
	}},
	{"hr", []string{
		"human resources", "hr", "recruiter", "talent acquisition", "people operations",
	}},
}

// clusterOf returns the first cluster, in precedence order, containing
// a term of the text.
func clusterOf(text string) string {
	text = strings.ToLower(text)
	for _, cluster := range jobClusters {
		for _, term := range cluster.terms {
			if strings.Contains(text, term) {
				return cluster.name
			}
		}
	}
	return ""
}

// salesFriendlyIndustries are industries where sales-family roles are
// credited even without an exact industry match.
var salesFriendlyIndustries = []string{
	"retail", "fmcg", "banking", "insurance", "telecommunications",
	"real estate", "fintech", "e-commerce",
}
