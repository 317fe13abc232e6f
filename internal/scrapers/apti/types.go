package apti

import (
	"errors"
	"fmt"
)

var (
	// ErrBadResponse is returned when the login endpoint answers with a non-200 status.
	ErrBadResponse = errors.New("apti: bad login response")
	// ErrMissingToken is returned when a login response lacks the session token or site code cookie.
	ErrMissingToken = errors.New("apti: login response is missing session cookies")
	// ErrDwellingUnresolved is used by callers when a login succeeded but the
	// dwelling (building/unit) could not be resolved.
	ErrDwellingUnresolved = errors.New("apti: could not resolve dwelling")
	// ErrTransport wraps request failures, timeouts and non-200 statuses of page fetches.
	ErrTransport = errors.New("apti: transport failure")
	// ErrNotAuthenticated is returned when a page fetch is attempted without a resolved session.
	ErrNotAuthenticated = errors.New("apti: not authenticated")
)

// Credentials are the portal login of a resident, they are never persisted by this package.
type Credentials struct {
	Identifier string
	Secret     string
}

// Session is a copy of the authentication state of a Client.
type Session struct {
	Token        string
	SiteCode     string
	DwellingCode string
	// Authenticated is true only once the token and the site/dwelling identity
	// needed by the data pages are all known. With DwellingFromPayment the
	// dwelling code is deferred to the payment fetch, token and site code suffice.
	Authenticated bool
}

// MaintenanceItem is a single line of the maintenance fee breakdown.
type MaintenanceItem struct {
	Category string
	Current  string
	Previous string
	Delta    string
}

// MaintenancePayment is the summary of the maintenance fee bill. A field that
// could not be found on the page is left empty.
type MaintenancePayment struct {
	DueDate string
	// LeviedMonth is the numeric month label the levied amount belongs to.
	LeviedMonth           string
	LeviedAmount          string
	PayableAmount         string
	YearOverYear          string
	CurrentMonthHousehold string
}

// Fields renders the payment the way the portal labels it.
func (p MaintenancePayment) Fields() map[string]string {
	return map[string]string{
		"납부 마감일": p.DueDate,
		fmt.Sprintf("%s월분 부과 금액", p.LeviedMonth): p.LeviedAmount,
		"납부할 금액":    p.PayableAmount,
		"전년 동월 비교":  p.YearOverYear,
		"우리집 이번달 금액": p.CurrentMonthHousehold,
	}
}

// EnergyUsage is the household energy summary of a month.
type EnergyUsage struct {
	Month             string
	TotalUsage        string
	AverageComparison string
	// Breakdown maps an energy kind (전기, 수도, 온수, ...) to its share, ex. "67%".
	// The keys differ between complexes.
	Breakdown map[string]string
}

// Fields renders the usage the way the portal labels it.
func (u EnergyUsage) Fields() map[string]string {
	fields := map[string]string{}
	for k, v := range u.Breakdown {
		fields[k] = v
	}
	if u.Month != "" {
		fields[u.Month] = u.TotalUsage
	}
	fields["비교"] = u.AverageComparison
	return fields
}

// EnergyDetail is a single energy category box.
type EnergyDetail struct {
	Type       string
	Usage      string
	Cost       string
	Comparison string
}

// BillingField is a row of the variable bill detail table of an energy type.
type BillingField struct {
	Label string
	Value string
}

// EnergyType is a single energy type panel (electricity, heat, ...).
type EnergyType struct {
	Type       string
	TotalCost  string
	Comparison string
	// Usage and AverageUsage are only reported for some types.
	Usage        string
	AverageUsage string
	// Billing is kept in page order since the rows differ between complexes and months.
	Billing []BillingField
}

// Fields renders the energy type the way the portal labels it, billing rows included.
func (e EnergyType) Fields() map[string]string {
	fields := map[string]string{
		"유형": e.Type,
		"총액": e.TotalCost,
		"비교": e.Comparison,
	}
	if e.Usage != "" {
		fields["사용량"] = e.Usage
	}
	if e.AverageUsage != "" {
		fields["평균 사용량"] = e.AverageUsage
	}
	for _, row := range e.Billing {
		fields[row.Label] = row.Value
	}
	return fields
}
