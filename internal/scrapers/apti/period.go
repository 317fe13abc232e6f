package apti

import (
	"strconv"
	"time"
)

// MonthsAgo formats the month n months before now as YYYYMM.
func MonthsAgo(now time.Time, n int) string {
	// anchoring on the 1st keeps AddDate from overflowing into the next month (ex. 03-31 - 1 month)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return first.AddDate(0, -n, 0).Format("200601")
}

// TargetMonth returns the bare month number the levied amount of the payment
// page is labeled with, ((month - n - 1) mod 12) + 1.
//
// note: the billing period of the fee items uses MonthsAgo with a different
// offset than this label, the portal expects both as they are.
func TargetMonth(now time.Time, n int) string {
	month := int(now.Month())
	return strconv.Itoa(((month-n-1)%12+12)%12 + 1)
}
