package templating

import "time"

// now returns the current time.
func now() time.Time {
	return time.Now()
}

// date formats a time with the given layout, falling back to the configured
// DateFormat when the layout is empty.
func (tm *TemplateManager) date(layout string, t time.Time) string {
	if layout == "" {
		layout = tm.config.DateFormat
	}
	return t.Format(layout)
}

// dateModify shifts a time by a duration given in time.ParseDuration syntax,
// such as "-1h30m".
func dateModify(d string, t time.Time) (time.Time, error) {
	dur, err := time.ParseDuration(d)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(dur), nil
}

// unixEpoch returns the time as seconds since the Unix epoch.
func unixEpoch(t time.Time) int64 {
	return t.Unix()
}
