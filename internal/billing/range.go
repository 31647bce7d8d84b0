package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/gabigallardo/control-panel/internal/timeutil"
)

// RangeKey identifies one of the relative windows offered by the dashboard.
type RangeKey string

const (
	Range24h RangeKey = "24h"
	Range7d  RangeKey = "7d"
	Range30d RangeKey = "30d"
	RangeAll RangeKey = "all"
)

// RangeKeys lists the accepted keys in menu order.
var RangeKeys = []RangeKey{Range24h, Range7d, Range30d, RangeAll}

// ParseRangeKey maps raw input onto a known key. Anything unrecognized
// resolves to the 24 hour window.
func ParseRangeKey(raw string) RangeKey {
	switch key := RangeKey(strings.ToLower(strings.TrimSpace(raw))); key {
	case Range24h, Range7d, Range30d, RangeAll:
		return key
	default:
		return Range24h
	}
}

// Canonical returns the key itself when known and the 24 hour key otherwise.
func (k RangeKey) Canonical() RangeKey {
	if _, ok := rangeTable[k]; ok {
		return k
	}
	return Range24h
}

// BucketWidth is the provider's bucket granularity.
type BucketWidth string

const (
	WidthHour BucketWidth = "1h"
	WidthDay  BucketWidth = "1d"
)

// Ceiling is the provider's maximum number of buckets per request for the width.
func (w BucketWidth) Ceiling() int {
	switch w {
	case WidthHour:
		return 168
	case WidthDay:
		return 31
	default:
		return 0
	}
}

// BucketPlan selects how the provider slices the window.
type BucketPlan struct {
	Width   BucketWidth
	Samples int
}

type rangeSpec struct {
	lookback string
	bounded  bool
	plan     BucketPlan
}

// maxLookback is the longest window the billing API accepts in one query.
const maxLookback = "31d"

var rangeTable = map[RangeKey]rangeSpec{
	Range24h: {lookback: "24h", bounded: true, plan: BucketPlan{Width: WidthHour, Samples: 25}},
	Range7d:  {lookback: "7d", bounded: true, plan: BucketPlan{Width: WidthDay, Samples: 8}},
	Range30d: {lookback: "30d", bounded: true, plan: BucketPlan{Width: WidthDay, Samples: 31}},
	RangeAll: {lookback: maxLookback, bounded: false, plan: BucketPlan{Width: WidthDay, Samples: 31}},
}

// Resolution is a range key resolved against a point in time.
type Resolution struct {
	Key    RangeKey
	Window timeutil.Window
	// Since is the lower bound for relational-store queries; nil means unbounded.
	Since *time.Time
	Plan  BucketPlan
}

func (r Resolution) Start() time.Time { return r.Window.Start() }
func (r Resolution) End() time.Time   { return r.Window.End() }

// Resolve turns a key into concrete bounds and a bucket plan.
func Resolve(key RangeKey, now time.Time, loc *time.Location) Resolution {
	key = key.Canonical()
	spec := rangeTable[key]
	win, err := timeutil.NewWindow(spec.lookback, now, loc)
	if err != nil {
		panic(fmt.Sprintf("billing: invalid lookback %q for %s: %v", spec.lookback, key, err))
	}
	res := Resolution{Key: key, Window: win, Plan: spec.plan}
	if spec.bounded {
		since := win.Start()
		res.Since = &since
	}
	return res
}
