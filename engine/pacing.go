package engine

import (
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// DelayUnit selects how the inter-batch pause is computed.
type DelayUnit string

const (
	DelaySeconds DelayUnit = "seconds"
	DelayMinutes DelayUnit = "minutes"
	DelayRandom  DelayUnit = "random"
)

// Bounds used by the random policy when none are configured.
const (
	defaultRandomMinSeconds = 10
	defaultRandomMaxSeconds = 30
)

// DelayPolicy is the inter-batch pacing policy: a fixed number of seconds
// or minutes, or a duration drawn from a bounded random range when no fixed
// unit is given.
type DelayPolicy struct {
	Unit       DelayUnit
	Value      int
	MinSeconds int
	MaxSeconds int
}

// ParseDelay parses a pacing policy from its configuration form:
// "seconds:N", "minutes:N", "random", "random:MIN-MAX". The empty string
// means the default random policy.
func ParseDelay(s string) (DelayPolicy, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == string(DelayRandom) {
		return DelayPolicy{Unit: DelayRandom, MinSeconds: defaultRandomMinSeconds, MaxSeconds: defaultRandomMaxSeconds}, nil
	}

	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return DelayPolicy{}, fmt.Errorf("invalid batch delay %q: expected unit:value", s)
	}

	switch DelayUnit(parts[0]) {
	case DelaySeconds, DelayMinutes:
		value, err := strconv.Atoi(parts[1])
		if err != nil || value < 0 {
			return DelayPolicy{}, fmt.Errorf("invalid batch delay %q: value must be a non-negative integer", s)
		}
		return DelayPolicy{Unit: DelayUnit(parts[0]), Value: value}, nil
	case DelayRandom:
		bounds := strings.SplitN(parts[1], "-", 2)
		if len(bounds) != 2 {
			return DelayPolicy{}, fmt.Errorf("invalid batch delay %q: expected random:MIN-MAX", s)
		}
		min, err1 := strconv.Atoi(bounds[0])
		max, err2 := strconv.Atoi(bounds[1])
		if err1 != nil || err2 != nil || min < 0 || max < min {
			return DelayPolicy{}, fmt.Errorf("invalid batch delay %q: bounds must satisfy 0 <= MIN <= MAX", s)
		}
		return DelayPolicy{Unit: DelayRandom, MinSeconds: min, MaxSeconds: max}, nil
	default:
		return DelayPolicy{}, fmt.Errorf("invalid batch delay %q: unknown unit %q", s, parts[0])
	}
}

// String renders the canonical form used in configuration fingerprints.
// The zero value canonicalizes to the default random policy.
func (p DelayPolicy) String() string {
	switch p.Unit {
	case DelaySeconds, DelayMinutes:
		return fmt.Sprintf("%s:%d", p.Unit, p.Value)
	default:
		min, max := p.MinSeconds, p.MaxSeconds
		if max <= 0 {
			min, max = defaultRandomMinSeconds, defaultRandomMaxSeconds
		}
		return fmt.Sprintf("%s:%d-%d", DelayRandom, min, max)
	}
}

// duration draws the next inter-batch pause.
func (p DelayPolicy) duration() time.Duration {
	switch p.Unit {
	case DelaySeconds:
		return time.Duration(p.Value) * time.Second
	case DelayMinutes:
		return time.Duration(p.Value) * time.Minute
	default:
		min, max := p.MinSeconds, p.MaxSeconds
		if max <= 0 {
			min, max = defaultRandomMinSeconds, defaultRandomMaxSeconds
		}
		if max <= min {
			return time.Duration(min) * time.Second
		}
		return time.Duration(min+rand.Intn(max-min+1)) * time.Second
	}
}

// Wait blocks for one inter-batch pause, logging quarter-way progress so
// long pauses are visibly alive.
func (p DelayPolicy) Wait() {
	d := p.duration()
	if d <= 0 {
		return
	}
	log.Printf("[INFO] Waiting %s before the next batch", d)
	quarter := d / 4
	for i := 1; i <= 4; i++ {
		time.Sleep(quarter)
		log.Printf("[INFO] Batch delay %d%% complete", i*25)
	}
}

// defaultRowJitter bounds the randomized pause between consecutive rows in
// a batch, smoothing request rate ahead of the inter-batch pause.
const defaultRowJitter = time.Second

// rowJitter draws an inter-row pause from [max/5, max).
func rowJitter(max time.Duration) time.Duration {
	if max <= 0 {
		max = defaultRowJitter
	}
	min := max / 5
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
