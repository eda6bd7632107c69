// Package normalize turns classifier output and message text into values the
// destination tables accept.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/falcorrus/bao-tg-importer/internal/types"
)

var digitRun = regexp.MustCompile(`\d+`)

// Sanitize coerces one raw classifier object into a schema-valid candidate.
// It never fails: every malformed field falls back to a safe default.
func Sanitize(raw map[string]any) types.EventCandidate {
	return types.EventCandidate{
		IsEvent:     truthy(lookup(raw, "is_event", "isEvent")),
		Title:       text(lookup(raw, "title")),
		TitleDop:    text(lookup(raw, "title_dop", "titleDop")),
		WhenDay:     isoDate(lookup(raw, "whenDay", "when_day")),
		WhenTime:    text(lookup(raw, "whenTime", "when_time")),
		Where:       text(lookup(raw, "where")),
		Price:       price(lookup(raw, "price")),
		IsPriceFrom: truthy(lookup(raw, "isPriceFrom", "is_price_from")),
		Currency:    text(lookup(raw, "currency")),
		IsOnline:    truthy(lookup(raw, "isOnline", "is_online")),
		Category:    category(lookup(raw, "category")),
		LinkContact: text(lookup(raw, "link_contact", "linkContact")),
		LinkMap:     strings.ReplaceAll(text(lookup(raw, "link_map", "linkMap")), " ", "+"),
		LinkSite:    text(lookup(raw, "link_site", "linkSite")),
		Description: text(lookup(raw, "description")),
	}
}

func lookup(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			return v
		}
	}
	return nil
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func price(v any) *int64 {
	switch x := v.(type) {
	case float64:
		return fromFloat(x)
	case int:
		n := int64(x)
		return &n
	case int64:
		return &x
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return &n
		}
		if f, err := x.Float64(); err == nil {
			return fromFloat(f)
		}
	case string:
		m := digitRun.FindString(x)
		if m == "" {
			return nil
		}
		if n, err := strconv.ParseInt(m, 10, 64); err == nil {
			return &n
		}
	}
	return nil
}

func fromFloat(f float64) *int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return nil
	}
	n := int64(f)
	return &n
}

func category(v any) int64 {
	switch x := v.(type) {
	case float64:
		if p := fromFloat(x); p != nil {
			return *p
		}
	case int:
		return int64(x)
	case int64:
		return x
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n
		}
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "1":
			return true
		}
		return false
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return false
}

// isoDate returns v as YYYY-MM-DD or "" when it is not a calendar date.
// A time-of-day suffix after 'T' or a space is dropped.
func isoDate(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if len(s) < 5 || strings.EqualFold(s, "null") {
		return ""
	}
	if i := strings.IndexAny(s, "T "); i >= 0 {
		s = s[:i]
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return ""
	}
	return d.Format(time.DateOnly)
}
