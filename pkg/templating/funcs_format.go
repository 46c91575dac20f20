package templating

import (
	"time"

	"github.com/dustin/go-humanize"
)

// comma formats an integer with thousands separators: 1234567 -> "1,234,567".
func comma(n int64) string {
	return humanize.Comma(n)
}

// bytesize formats a byte count in human-readable IEC units: 2048 -> "2.0 KiB".
func bytesize(n uint64) string {
	return humanize.IBytes(n)
}

// reltime describes a time relative to now: "3 minutes ago".
func reltime(t time.Time) string {
	return humanize.Time(t)
}

// ordinal gives the ordinal form of a number: 1 -> "1st".
func ordinal(n int) string {
	return humanize.Ordinal(n)
}
