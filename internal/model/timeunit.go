package model

import "fmt"

// TimeUnit is a named aggregation granularity.
//
// Duration is the bucket width in seconds. Period is 0 for a fixed bucket;
// a value N > 0 marks a trailing moving window spanning the last N buckets
// of that duration. TimeUnit is a small comparable value and is used
// directly as a map key throughout the engine.
type TimeUnit struct {
	Name     string
	Duration int // bucket width in seconds, 0 = raw pass-through
	Period   int // 0 = fixed bucket, N > 0 = trailing N-bucket window
}

// Fixed time units of the static catalog.
var (
	UnitSec10 = TimeUnit{Name: "sec10", Duration: 10}
	UnitSec30 = TimeUnit{Name: "sec30", Duration: 30}
	UnitMin1  = TimeUnit{Name: "min1", Duration: 60}
	UnitMin2  = TimeUnit{Name: "min2", Duration: 120}
	UnitMin3  = TimeUnit{Name: "min3", Duration: 180}
	UnitMin4  = TimeUnit{Name: "min4", Duration: 240}
	UnitMin5  = TimeUnit{Name: "min5", Duration: 300}
	UnitMin10 = TimeUnit{Name: "min10", Duration: 600}
	UnitMin20 = TimeUnit{Name: "min20", Duration: 1200}
	UnitMin30 = TimeUnit{Name: "min30", Duration: 1800}
	UnitHour1 = TimeUnit{Name: "hour1", Duration: 3600}
)

// Moving time units: trailing windows over the last Period buckets of the
// base duration. The moving 20s/30s windows ride on 10s buckets so they
// share bucket boundaries with the finest fixed unit.
var (
	UnitMovSec10 = TimeUnit{Name: "msec10", Duration: 10, Period: 6}
	UnitMovSec20 = TimeUnit{Name: "msec20", Duration: 10, Period: 2}
	UnitMovSec30 = TimeUnit{Name: "msec30", Duration: 10, Period: 3}
	UnitMovMin1  = TimeUnit{Name: "mmin1", Duration: 60, Period: 6}
	UnitMovMin2  = TimeUnit{Name: "mmin2", Duration: 120, Period: 6}
	UnitMovMin3  = TimeUnit{Name: "mmin3", Duration: 180, Period: 6}
	UnitMovMin4  = TimeUnit{Name: "mmin4", Duration: 240, Period: 6}
	UnitMovMin5  = TimeUnit{Name: "mmin5", Duration: 300, Period: 6}
)

// Units is the full static catalog, finest duration first.
var Units = []TimeUnit{
	UnitSec10, UnitSec30,
	UnitMin1, UnitMin2, UnitMin3, UnitMin4, UnitMin5,
	UnitMin10, UnitMin20, UnitMin30, UnitHour1,
	UnitMovSec10, UnitMovSec20, UnitMovSec30,
	UnitMovMin1, UnitMovMin2, UnitMovMin3, UnitMovMin4, UnitMovMin5,
}

// FixedUnits is the fixed-bucket subset of the catalog, finest first.
// Rule window resolution walks this slice looking for the finest duration
// dividing a rule's time offsets.
var FixedUnits = []TimeUnit{
	UnitSec10, UnitSec30,
	UnitMin1, UnitMin2, UnitMin3, UnitMin4, UnitMin5,
	UnitMin10, UnitMin20, UnitMin30, UnitHour1,
}

var unitsByName = func() map[string]TimeUnit {
	m := make(map[string]TimeUnit, len(Units))
	for _, u := range Units {
		m[u.Name] = u
	}
	return m
}()

// UnitByName looks up a catalog unit by its configured name.
func UnitByName(name string) (TimeUnit, error) {
	u, ok := unitsByName[name]
	if !ok {
		return TimeUnit{}, fmt.Errorf("unknown time unit %q", name)
	}
	return u, nil
}

// DurationMs returns the bucket width in milliseconds.
func (u TimeUnit) DurationMs() int64 {
	return int64(u.Duration) * 1000
}

// Moving reports whether the unit is a trailing moving window.
func (u TimeUnit) Moving() bool {
	return u.Period > 0
}

// Truncate maps an epoch-millisecond timestamp to its bucket start time.
func (u TimeUnit) Truncate(timeMs int64) int64 {
	d := u.DurationMs()
	if d == 0 {
		return timeMs
	}
	return timeMs - timeMs%d
}
