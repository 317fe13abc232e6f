package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowIsSeoul(t *testing.T) {
	now := Now()
	_, offset := now.Zone()
	require.Equal(t, 9*60*60, offset)
}

func TestMonthBoundary(t *testing.T) {
	// 2024-02-29 16:00 UTC is already March 1st in Seoul
	utc := time.Date(2024, time.February, 29, 16, 0, 0, 0, time.UTC)
	local := utc.In(Location)
	require.Equal(t, time.March, local.Month())
	require.Equal(t, 1, local.Day())
}
