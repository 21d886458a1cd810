package match

import "strings"

// Static conversion snapshot. Rates are deployment-time constants,
// not live quotes; updating them is a deploy.
var conversionRates = map[[2]string]float64{
	{"USD", "NGN"}: 750.0,
	{"EUR", "NGN"}: 820.0,
	{"GBP", "NGN"}: 950.0,
	{"USD", "EUR"}: 0.92,
	{"USD", "GBP"}: 0.79,
	{"EUR", "GBP"}: 0.86,
}

// currencyGroups collapses the ways users and postings write each
// currency.
var currencyGroups = map[string][]string{
	"NGN": {"NGN", "NAIRA", "₦", "NIGERIAN NAIRA"},
	"USD": {"USD", "DOLLAR", "$", "US DOLLAR", "AMERICAN DOLLAR"},
	"EUR": {"EUR", "EURO", "€", "EUROPEAN EURO"},
	"GBP": {"GBP", "POUND", "£", "BRITISH POUND", "STERLING"},
}

// normalizeCurrency maps a raw currency string to its ISO code, or ""
// when unrecognized.
func normalizeCurrency(raw string) string {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if c == "" {
		return ""
	}
	for code, variations := range currencyGroups {
		for _, v := range variations {
			if c == v {
				return code
			}
		}
	}
	return ""
}

// conversionFactor returns the multiplier that converts an amount in
// from-currency to to-currency. ok is false when the pair is not in
// the snapshot.
func conversionFactor(from, to string) (float64, bool) {
	if from == to {
		return 1, true
	}
	if rate, ok := conversionRates[[2]string{from, to}]; ok {
		return rate, true
	}
	if rate, ok := conversionRates[[2]string{to, from}]; ok {
		return 1 / rate, true
	}
	return 0, false
}
