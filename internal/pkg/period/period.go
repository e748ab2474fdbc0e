package period

import "strings"

// Periodicity codes as used by the lava.top offer API.
const (
	Monthly    = "MONTHLY"
	Quarterly  = "PERIOD_90_DAYS"
	Semiannual = "PERIOD_180_DAYS"
	Annual     = "PERIOD_YEAR"
)

// periodDays maps a periodicity code to the day count used for all end-date
// arithmetic.
var periodDays = map[string]int{
	Monthly:    30,
	Quarterly:  90,
	Semiannual: 180,
	Annual:     365,
}

// priceTable classifies recurring charges that carry no explicit periodicity
// metadata. Keys are the known subscription prices in RUB.
var priceTable = map[float64]string{
	500:  Monthly,
	1350: Quarterly,
	2400: Semiannual,
	4200: Annual,
}

// Days returns the number of days one billing period of the given periodicity
// covers. Unknown codes default to a monthly period.
func Days(periodicity string) int {
	if d, ok := periodDays[strings.ToUpper(strings.TrimSpace(periodicity))]; ok {
		return d
	}
	return periodDays[Monthly]
}

// Known reports whether the code is a valid periodicity.
func Known(periodicity string) bool {
	_, ok := periodDays[strings.ToUpper(strings.TrimSpace(periodicity))]
	return ok
}

// ClassifyAmount maps a charge amount to a periodicity. Exact price matches
// win; otherwise the nearest known price within 10% tolerance is used. If no
// price is close enough the charge is treated as monthly.
func ClassifyAmount(amount float64) string {
	if p, ok := priceTable[amount]; ok {
		return p
	}

	best := ""
	bestDiff := 0.0
	for price, p := range priceTable {
		diff := amount - price
		if diff < 0 {
			diff = -diff
		}
		if diff > price*0.10 {
			continue
		}
		if best == "" || diff < bestDiff {
			best = p
			bestDiff = diff
		}
	}
	if best != "" {
		return best
	}
	return Monthly
}

// DaysForAmount is shorthand for Days(ClassifyAmount(amount)).
func DaysForAmount(amount float64) int {
	return Days(ClassifyAmount(amount))
}
