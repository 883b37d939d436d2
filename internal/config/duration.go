package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration is an optional Go duration string in the config file
// ("5s", "90m"). Empty means unset; negatives are rejected.
type Duration string

// Or resolves the field, falling back to def when unset or zero. The
// field name appears in the error so a bad config points at itself.
func (d Duration) Or(field string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(string(d))
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, string(d), err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	if v == 0 {
		return def, nil
	}
	return v, nil
}
