package humanize

import (
	"fmt"
	"time"
)

// Duration renders a duration at log precision: milliseconds below a
// second, one decimal of seconds below a minute, minutes and seconds
// beyond that.
func Duration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		m := int(d.Minutes())
		s := d.Seconds() - float64(m)*60

		return fmt.Sprintf("%dm%02.0fs", m, s)
	}
}
