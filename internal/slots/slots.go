package slots

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/example/resy-swiper/internal/obs"
)

// Token is the opaque config token returned by /4/find, e.g.
//
//	rgs://resy/2/1843946/2/2022-12-18/2022-12-18/20:15:00/2/Indoor Dining
//
// Counting from the end: label, party size, time, date. The venue id sits
// seventh from the end when the token carries the full prefix.
type Token string

// TimeKey is a normalized HH:MM:SS time of day.
type TimeKey string

const timeLayout = "15:04:05"

// ParseTimeKey accepts HH:MM or HH:MM:SS.
func ParseTimeKey(s string) (TimeKey, error) {
	s = strings.TrimSpace(s)
	raw := s
	if strings.Count(s, ":") == 1 {
		s += ":00"
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid time %q (want HH:MM or HH:MM:SS)", raw)
	}
	return TimeKey(t.Format(timeLayout)), nil
}

// ParseTimeKeys normalizes a preference list, keeping order.
func ParseTimeKeys(in []string) ([]TimeKey, error) {
	out := make([]TimeKey, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		k, err := ParseTimeKey(s)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

type Slot struct {
	Token     Token
	VenueID   string
	Date      string
	Time      TimeKey
	PartySize int
	Label     string
}

func Parse(tok Token) (Slot, error) {
	fields := strings.Split(string(tok), "/")
	n := len(fields)
	if n < 4 {
		return Slot{}, fmt.Errorf("token %q: want at least 4 fields, got %d", tok, n)
	}
	t, err := time.Parse(timeLayout, fields[n-3])
	if err != nil {
		return Slot{}, fmt.Errorf("token %q: bad time field %q", tok, fields[n-3])
	}
	size, err := strconv.Atoi(fields[n-2])
	if err != nil || size < 1 {
		return Slot{}, fmt.Errorf("token %q: bad party size field %q", tok, fields[n-2])
	}
	label := strings.TrimSpace(fields[n-1])
	if label == "" {
		return Slot{}, fmt.Errorf("token %q: empty label", tok)
	}
	s := Slot{
		Token:     tok,
		Date:      fields[n-4],
		Time:      TimeKey(t.Format(timeLayout)),
		PartySize: size,
		Label:     label,
	}
	if n >= 7 {
		s.VenueID = fields[n-7]
	}
	return s, nil
}

// Filter reports whether a parsed slot may be indexed. A nil Filter accepts all.
type Filter func(Slot) bool

// LabelFilter keeps slots whose label contains any of labels, ignoring case.
// With no labels it returns nil.
func LabelFilter(labels ...string) Filter {
	var want []string
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			want = append(want, l)
		}
	}
	if len(want) == 0 {
		return nil
	}
	return func(s Slot) bool {
		label := strings.ToLower(s.Label)
		for _, w := range want {
			if strings.Contains(label, w) {
				return true
			}
		}
		return false
	}
}

// Index maps a time of day to the token that books it. It is rebuilt from
// scratch for every poll result and never updated in place.
type Index map[TimeKey]Token

// BuildIndex parses tokens, drops malformed ones (one slot_dropped event
// each) and those rejected by filter. When several tokens share a time, the
// first in inventory order wins.
func BuildIndex(tokens []Token, filter Filter, log *obs.Logger) Index {
	idx := make(Index, len(tokens))
	for _, tok := range tokens {
		s, err := Parse(tok)
		if err != nil {
			log.Error(map[string]interface{}{
				"event": "slot_dropped",
				"token": string(tok),
				"error": err,
			})
			continue
		}
		if filter != nil && !filter(s) {
			continue
		}
		if _, dup := idx[s.Time]; dup {
			continue
		}
		idx[s.Time] = tok
	}
	return idx
}

func (idx Index) Lookup(t TimeKey) (Token, bool) {
	tok, ok := idx[t]
	return tok, ok
}

// Times returns the indexed times in ascending order.
func (idx Index) Times() []TimeKey {
	out := make([]TimeKey, 0, len(idx))
	for t := range idx {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
