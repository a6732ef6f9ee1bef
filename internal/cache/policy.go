// Package cache stores snapshots of externally fetched collections and
// decides when a snapshot may be reused instead of refetched.
package cache

import (
	"time"
)

// Profile is a pair of tolerances under which an incomplete or aged snapshot
// is still accepted.
type Profile struct {
	Name string
	// PercentTolerance is the minimum itemCount/requestedCount ratio accepted.
	PercentTolerance float64
	// TimeTolerance is the maximum snapshot age accepted regardless of count.
	TimeTolerance time.Duration
}

// ProductionProfile is the strict profile used against live data.
func ProductionProfile() Profile {
	return Profile{Name: "production", PercentTolerance: 0.98, TimeTolerance: 30 * time.Minute}
}

// RelaxedProfile is the longer-lived profile for fixture and dev data.
func RelaxedProfile() Profile {
	return Profile{Name: "relaxed", PercentTolerance: 0.85, TimeTolerance: 90 * time.Minute}
}

// Policy applies a Profile against a clock.
type Policy struct {
	Profile Profile
	Now     func() time.Time
}

// NewPolicy returns a Policy using the wall clock.
func NewPolicy(p Profile) Policy {
	return Policy{Profile: p, Now: time.Now}
}

// IsValid accepts a snapshot when its count covers the request, when its
// count is within the percent tolerance, or when it is younger than the time
// tolerance. A nil snapshot is never valid.
func (p Policy) IsValid(s *Snapshot, requestedCount int) bool {
	if s == nil {
		return false
	}
	if s.ItemCount >= requestedCount {
		return true
	}
	if requestedCount > 0 && float64(s.ItemCount)/float64(requestedCount) >= p.Profile.PercentTolerance {
		return true
	}
	return p.IsFresh(s)
}

// IsFresh reports whether the snapshot is within the time tolerance alone.
func (p Policy) IsFresh(s *Snapshot) bool {
	if s == nil {
		return false
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().Sub(s.FetchedAt) <= p.Profile.TimeTolerance
}
