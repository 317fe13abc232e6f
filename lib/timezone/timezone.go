package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Seoul")
	if err != nil {
		// minimal containers ship without tzdata, KST has no daylight saving
		Location = time.FixedZone("Asia/Seoul", 9*60*60)
	}
}

// force timezone to be in Seoul because the portal bills by the korean
// calendar month, a server elsewhere would otherwise compute the wrong
// billing period around month boundaries.
func Now() time.Time {
	return time.Now().In(Location)
}
