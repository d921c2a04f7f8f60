package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const Day = 24 * time.Hour

// MaxDays is the longest timed ban. Longer bans must be Permanent.
const MaxDays = 36500

var ErrInvalidDuration = fmt.Errorf("invalid ban duration: must be 1 to %d days or permanent", MaxDays)

// Duration is a ban length: either a whole number of days or Permanent.
// The zero value is not a valid duration.
type Duration struct {
	days      int
	permanent bool
}

// Permanent is the duration of a ban that never expires.
var Permanent = Duration{permanent: true}

// Days returns a duration of n whole days.
func Days(n int) Duration {
	return Duration{days: n}
}

// IsPermanent reports whether d is the Permanent duration.
func (d Duration) IsPermanent() bool { return d.permanent }

// NumDays returns the number of days, or 0 for Permanent.
func (d Duration) NumDays() int {
	if d.permanent {
		return 0
	}
	return d.days
}

// Valid reports whether d is Permanent or between 1 and MaxDays days.
func (d Duration) Valid() bool {
	return d.permanent || (d.days > 0 && d.days <= MaxDays)
}

// ExpiresAt returns the expiry of a ban of this duration starting at now,
// or nil when the duration is Permanent. d must be Valid.
func (d Duration) ExpiresAt(now time.Time) *time.Time {
	if d.permanent {
		return nil
	}
	t := now.Add(time.Duration(d.days) * Day)
	return &t
}

func (d Duration) String() string {
	switch {
	case d.permanent:
		return "permanent"
	case !d.Valid():
		return "invalid"
	default:
		return strconv.Itoa(d.days) + "d"
	}
}

// Label returns the human-readable form shown in duration pickers.
func (d Duration) Label() string {
	switch {
	case d.permanent:
		return "Permanent"
	case d.days == 1:
		return "1 Day"
	case d.days == 365:
		return "1 Year"
	default:
		return fmt.Sprintf("%d Days", d.days)
	}
}

// ParseDuration parses "permanent", "7d", "7" or "7 days".
func ParseDuration(s string) (Duration, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "permanent" || v == "perm" {
		return Permanent, nil
	}
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(v, "days"), "day"), "d"))
	n, err := strconv.Atoi(v)
	if err != nil || !Days(n).Valid() {
		return Duration{}, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return Days(n), nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, ErrInvalidDuration
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON accepts the text form or a bare JSON number of days.
func (d *Duration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return d.UnmarshalText([]byte(s))
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, data)
	}
	return d.UnmarshalText([]byte(n.String()))
}
