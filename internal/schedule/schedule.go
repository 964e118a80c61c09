// Package schedule constructs the iteration-budget sequence the relaxation
// driver uses to checkpoint a geometry optimisation (spec §3, §8.1).
package schedule

import "fmt"

// ErrEmptySchedule is returned when the residual iteration budget is too
// small to produce even a single step (spec §4.4: "geom_max_iter too small").
var ErrEmptySchedule = fmt.Errorf("schedule: no iterations could be scheduled")

// Policy holds the four inputs that shape a Schedule.
type Policy struct {
	// Rough is the number of short checkpoint steps (default 4).
	Rough int
	// RoughIter is the iteration budget per rough step (default 2, raised
	// to 3 when GeomMethod is "tpsd").
	RoughIter int
	// FineIter is the iteration budget per fine step (default 20).
	FineIter int
	// GeomMethod selects the optimiser; only "tpsd" changes RoughIter.
	GeomMethod string
	// MaxIter is the residual budget: geom_max_iter minus already-completed
	// iterations.
	MaxIter int
}

// DefaultPolicy returns the spec's documented defaults, leaving MaxIter and
// GeomMethod for the caller to fill in.
func DefaultPolicy() Policy {
	return Policy{Rough: 4, RoughIter: 2, FineIter: 20}
}

// Schedule is an ordered sequence of positive geom_max_iter values, one per
// planned child invocation.
type Schedule []int

// Sum returns the total number of iterations the schedule budgets for.
func (s Schedule) Sum() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// Build constructs a Schedule from a Policy, enforcing the invariants of
// spec §8.1: rough_iter >= 3 when geom_method == tpsd; sum(schedule) <=
// max_iter + fine_iter; at least one element or construction fails.
func Build(p Policy) (Schedule, error) {
	rough := p.Rough
	if rough <= 0 {
		rough = DefaultPolicy().Rough
	}
	roughIter := p.RoughIter
	if roughIter <= 0 {
		roughIter = DefaultPolicy().RoughIter
	}
	if p.GeomMethod == "tpsd" && roughIter < 3 {
		roughIter = 3
	}
	fineIter := p.FineIter
	if fineIter <= 0 {
		fineIter = DefaultPolicy().FineIter
	}

	if p.MaxIter <= 0 {
		return nil, ErrEmptySchedule
	}

	// Rough steps are a fixed checkpoint cadence, not capped to the residual
	// budget: a structure always gets its `rough` short steps up front.
	var sched Schedule
	budget := p.MaxIter
	for i := 0; i < rough; i++ {
		sched = append(sched, roughIter)
		budget -= roughIter
	}
	// Fine steps fill the remainder in whole fine_iter units; the last one
	// may overshoot the residual budget by less than one fine_iter, which is
	// the slack the sum invariant allows.
	for budget > 0 {
		sched = append(sched, fineIter)
		budget -= fineIter
	}

	if len(sched) == 0 {
		return nil, ErrEmptySchedule
	}
	if sched.Sum() > p.MaxIter+fineIter {
		return nil, fmt.Errorf("schedule: sum %d exceeds max_iter+fine_iter (%d+%d)", sched.Sum(), p.MaxIter, fineIter)
	}
	return sched, nil
}
