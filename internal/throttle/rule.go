package throttle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rule is a ceiling of Requests per Window, written "5/1m" or "10/minute".
type Rule struct {
	Requests int
	Window   time.Duration
}

var unitWindows = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

func ParseRule(s string) (Rule, error) {
	n, w, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rule{}, fmt.Errorf("rate rule %q: want N/window", s)
	}
	reqs, err := strconv.Atoi(strings.TrimSpace(n))
	if err != nil || reqs <= 0 {
		return Rule{}, fmt.Errorf("rate rule %q: bad request count", s)
	}
	w = strings.ToLower(strings.TrimSpace(w))
	window, ok := unitWindows[w]
	if !ok {
		window, err = time.ParseDuration(w)
		if err != nil || window <= 0 {
			return Rule{}, fmt.Errorf("rate rule %q: bad window", s)
		}
	}
	return Rule{Requests: reqs, Window: window}, nil
}

func (r *Rule) UnmarshalText(b []byte) error {
	parsed, err := ParseRule(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Rule) String() string {
	return fmt.Sprintf("%d/%s", r.Requests, r.Window)
}
