// Package years classifies calendar years against the configured data
// availability ranges.
package years

import (
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medintel/internal/model"
)

// Config is the process-wide year configuration. Build it with New; it is
// immutable afterwards and safe for concurrent use.
type Config struct {
	confirmed  map[int]struct{}
	potential  map[int]struct{}
	simulation map[int]struct{}

	// confirmedDesc holds confirmed years newest first.
	confirmedDesc []int

	defaultGrowth map[string]float64
}

// New validates the year sets and returns an immutable Config. The three
// sets must be pairwise disjoint.
func New(confirmed, potential, simulation []int, defaultGrowth map[string]float64) (*Config, error) {
	c := &Config{
		confirmed:     toSet(confirmed),
		potential:     toSet(potential),
		simulation:    toSet(simulation),
		defaultGrowth: make(map[string]float64, len(defaultGrowth)),
	}
	for y := range c.confirmed {
		if _, ok := c.potential[y]; ok {
			return nil, eris.Errorf("years: %d is both confirmed and potential", y)
		}
		if _, ok := c.simulation[y]; ok {
			return nil, eris.Errorf("years: %d is both confirmed and simulated", y)
		}
	}
	for y := range c.potential {
		if _, ok := c.simulation[y]; ok {
			return nil, eris.Errorf("years: %d is both potential and simulated", y)
		}
	}
	for k, v := range defaultGrowth {
		c.defaultGrowth[k] = v
	}

	for y := range c.confirmed {
		c.confirmedDesc = append(c.confirmedDesc, y)
	}
	slices.Sort(c.confirmedDesc)
	slices.Reverse(c.confirmedDesc)

	return c, nil
}

// Classify maps a year to its source class. Years outside every configured
// set are invalid.
func (c *Config) Classify(year int) model.SourceType {
	if _, ok := c.confirmed[year]; ok {
		return model.SourceConfirmed
	}
	if _, ok := c.potential[year]; ok {
		return model.SourcePotential
	}
	if _, ok := c.simulation[year]; ok {
		return model.SourceSimulated
	}
	return model.SourceInvalid
}

// ConfirmedDescending returns the confirmed years, newest first.
func (c *Config) ConfirmedDescending() []int {
	return slices.Clone(c.confirmedDesc)
}

// ConfirmedBefore returns the confirmed years strictly before year, nearest first.
func (c *Config) ConfirmedBefore(year int) []int {
	var out []int
	for _, y := range c.confirmedDesc {
		if y < year {
			out = append(out, y)
		}
	}
	return out
}

// DefaultGrowth returns the fallback annual growth percent for a metric.
func (c *Config) DefaultGrowth(metric string) (float64, bool) {
	v, ok := c.defaultGrowth[metric]
	return v, ok
}

// All returns every configured year in ascending order.
func (c *Config) All() []int {
	out := make([]int, 0, len(c.confirmed)+len(c.potential)+len(c.simulation))
	for _, set := range []map[int]struct{}{c.confirmed, c.potential, c.simulation} {
		for y := range set {
			out = append(out, y)
		}
	}
	slices.Sort(out)
	return out
}

// Range expands an inclusive year range.
func Range(from, to int) []int {
	if to < from {
		return nil
	}
	out := make([]int, 0, to-from+1)
	for y := from; y <= to; y++ {
		out = append(out, y)
	}
	return out
}

// MaxListYears bounds how many distinct years ParseList accepts.
const MaxListYears = 100

// ParseList parses a comma-separated list of years and inclusive ranges,
// e.g. "2019-2023,2026". The result is sorted and deduplicated and names at
// most MaxListYears years.
func ParseList(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if from, to, ok := strings.Cut(part, "-"); ok {
			lo, err := strconv.Atoi(strings.TrimSpace(from))
			if err != nil {
				return nil, eris.Errorf("years: bad range start in %q", part)
			}
			hi, err := strconv.Atoi(strings.TrimSpace(to))
			if err != nil {
				return nil, eris.Errorf("years: bad range end in %q", part)
			}
			if hi < lo {
				return nil, eris.Errorf("years: range %q is reversed", part)
			}
			if uint64(hi)-uint64(lo) >= MaxListYears {
				return nil, eris.Errorf("years: range %q spans more than %d years; a list may name at most %d years", part, MaxListYears, MaxListYears)
			}
			out = append(out, Range(lo, hi)...)
		} else {
			y, err := strconv.Atoi(part)
			if err != nil {
				return nil, eris.Errorf("years: bad year %q", part)
			}
			out = append(out, y)
		}
		if len(out) > MaxListYears {
			slices.Sort(out)
			out = slices.Compact(out)
			if len(out) > MaxListYears {
				return nil, eris.Errorf("years: a list may name at most %d years", MaxListYears)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func toSet(ys []int) map[int]struct{} {
	s := make(map[int]struct{}, len(ys))
	for _, y := range ys {
		s[y] = struct{}{}
	}
	return s
}
