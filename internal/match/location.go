package match

import "strings"

// Location matching is a hard pre-score filter: a job that fails it
// is excluded entirely. Matching runs in tiers from strongest to
// weakest: direct substring, Nigerian abbreviation table, country
// synonym table, and finally same-region proximity.

// nigerianLocations maps a user-entered location to the variations
// that count as the same place.
var nigerianLocations = map[string][]string{
	"lagos":         {"lagos", "los", "lagos state", "lagos island", "lagos mainland", "ikeja", "victoria island", "vi", "ikoyi", "lekki", "surulere", "yaba"},
	"los":           {"lagos", "los", "lagos state"},
	"abuja":         {"abuja", "fct", "federal capital territory", "garki", "wuse", "maitama", "asokoro", "gwarinpa"},
	"fct":           {"abuja", "fct", "federal capital territory"},
	"port harcourt": {"port harcourt", "ph", "portharcourt", "rivers", "rivers state"},
	"ph":            {"port harcourt", "ph", "portharcourt", "rivers"},
	"kano":          {"kano", "kano state"},
	"ibadan":        {"ibadan", "oyo", "oyo state"},
	"kaduna":        {"kaduna", "kaduna state"},
	"jos":           {"jos", "plateau", "plateau state"},
	"enugu":         {"enugu", "enugu state"},
	"calabar":       {"calabar", "cross river", "cross river state"},
	"warri":         {"warri", "delta", "delta state"},
	"benin":         {"benin", "benin city", "edo", "edo state"},
	"aba":           {"aba", "abia", "abia state"},
	"onitsha":       {"onitsha", "anambra", "anambra state"},
}

// countrySynonyms maps a country to the terms that identify it.
var countrySynonyms = map[string][]string{
	"nigeria":        {"nigeria", "ng", "nigerian", "naija"},
	"ghana":          {"ghana", "gh", "ghanaian"},
	"kenya":          {"kenya", "ke", "kenyan", "nairobi"},
	"south africa":   {"south africa", "za", "sa", "cape town", "johannesburg"},
	"united states":  {"usa", "us", "united states", "america", "american"},
	"united kingdom": {"uk", "united kingdom", "britain", "british", "england", "london"},
	"canada":         {"canada", "ca", "canadian", "toronto", "vancouver"},
	"germany":        {"germany", "de", "german", "berlin", "munich"},
	"france":         {"france", "fr", "french", "paris"},
}

// regionalClusters groups Nigerian cities by geopolitical region for
// the weakest matching tier.
var regionalClusters = map[string][]string{
	"southwest":    {"lagos", "ibadan", "abeokuta", "ilorin", "oshogbo", "akure", "ado ekiti"},
	"southeast":    {"enugu", "onitsha", "aba", "owerri", "umuahia", "awka", "abakaliki"},
	"southsouth":   {"port harcourt", "warri", "benin", "calabar", "uyo", "yenagoa"},
	"northcentral": {"abuja", "jos", "makurdi", "minna", "lokoja", "lafia"},
	"northwest":    {"kano", "kaduna", "zaria", "sokoto", "katsina"},
	"northeast":    {"maiduguri", "yola", "bauchi", "gombe", "jalingo"},
}

// jobLocationText flattens a job's location fields into one lowercase
// string for substring matching.
func jobLocationText(location, country string) string {
	return strings.ToLower(location + " " + country)
}

// locationMatches reports whether one user-preferred location matches
// the job's location fields.
func locationMatches(userLoc, jobLocation, jobCountry string) bool {
	userLoc = strings.ToLower(strings.TrimSpace(userLoc))
	if userLoc == "" {
		return false
	}
	jobText := jobLocationText(jobLocation, jobCountry)

	// Tier 1: direct substring either way
	if strings.Contains(jobText, userLoc) {
		return true
	}
	for _, term := range locationTerms(userLoc) {
		if strings.Contains(jobText, term) {
			return true
		}
	}

	// Tier 2: Nigerian abbreviation table
	if variations, ok := nigerianLocations[userLoc]; ok {
		for _, v := range variations {
			if strings.Contains(jobText, v) {
				return true
			}
		}
	}

	// Tier 3: country synonym table
	for _, variations := range countrySynonyms {
		if containsString(variations, userLoc) {
			for _, v := range variations {
				if strings.Contains(jobText, v) {
					return true
				}
			}
			break
		}
	}

	// Tier 4 (last resort): same Nigerian region
	userRegion := regionOf(userLoc)
	if userRegion != "" && userRegion == regionOf(strings.ToLower(jobLocation)) {
		return true
	}

	return false
}

// locationTerms splits a location string into matchable terms, e.g.
// "port harcourt, rivers" yields the words, the pairs, and the whole
// string. Very short words are skipped.
func locationTerms(loc string) []string {
	parts := strings.Fields(strings.NewReplacer(",", " ", "-", " ").Replace(loc))
	var terms []string
	for _, p := range parts {
		if len(p) > 2 {
			terms = append(terms, p)
		}
	}
	for i := 0; i+1 < len(parts); i++ {
		terms = append(terms, parts[i]+" "+parts[i+1])
	}
	return terms
}

func regionOf(loc string) string {
	for region, cities := range regionalClusters {
		for _, city := range cities {
			if strings.Contains(loc, city) {
				return region
			}
		}
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
