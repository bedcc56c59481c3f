package exposure

import (
	"sort"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/Mindburn-Labs/contagion/pkg/policy"
	"github.com/Mindburn-Labs/contagion/pkg/restriction"
	"github.com/Mindburn-Labs/contagion/pkg/rng"
	"github.com/Mindburn-Labs/contagion/pkg/trace"
)

// Population resolves trace person IDs.
type Population interface {
	Get(id string) (*disease.Person, bool)
}

// Candidate is a sampled infection that has not been applied yet.
type Candidate struct {
	Day             int
	Time            int
	TargetID        string
	InfectorID      string
	ContainerID     string
	TargetContext   string
	InfectorContext string
	Strain          disease.Strain
	Probability     float64
}

// Before orders candidates for the same target: earliest time, then container, then infector.
func (c Candidate) Before(o Candidate) bool {
	if c.Time != o.Time {
		return c.Time < o.Time
	}
	if c.ContainerID != o.ContainerID {
		return c.ContainerID < o.ContainerID
	}
	return c.InfectorID < o.InfectorID
}

type participant struct {
	member      trace.Membership
	person      *disease.Person
	restriction restriction.Restriction
	mask        restriction.FaceMask
}

// ProcessContainer samples the infections of one container day. Person state is only
// read, so containers can be processed concurrently. Draws come from stream in a fixed
// order: participation, then masks, then contacts.
func (c *Calculator) ProcessContainer(day int, ct trace.Container, snap policy.Snapshot, pop Population, stream *rng.Stream) ([]Candidate, error) {
	var present []participant
	for _, m := range ct.Members {
		p, ok := pop.Get(m.PersonID)
		if !ok || p.Status() == disease.Deceased {
			continue
		}
		switch p.Quarantine() {
		case disease.QuarantineFull:
			continue
		case disease.QuarantineAtHome:
			if !c.home[m.Context] {
				continue
			}
		}
		r := snap.Lookup(m.Context)
		if !participates(r.EffectiveRemainingFraction(p.Location()), stream) {
			continue
		}
		present = append(present, participant{member: m, person: p, restriction: r})
	}

	for i := range present {
		present[i].mask = sampleMask(present[i].restriction, stream)
	}

	var out []Candidate
	infected := make(map[string]bool)
	for _, t := range present {
		if t.person.Status() != disease.Susceptible || infected[t.person.ID()] {
			continue
		}
		for _, inf := range present {
			if inf.person == t.person || !inf.person.Status().CanInfect() {
				continue
			}
			joint := trace.Joint(t.member, inf.member)
			if joint.Seconds == 0 {
				continue
			}
			prob, err := c.InfectionProbability(Contact{
				Target:              t.person,
				Infector:            inf.person,
				TargetContext:       t.member.Context,
				InfectorContext:     inf.member.Context,
				JointSeconds:        joint.Seconds,
				TargetRestriction:   t.restriction,
				InfectorRestriction: inf.restriction,
				TargetMask:          t.mask,
				InfectorMask:        inf.mask,
			})
			if err != nil {
				return nil, err
			}
			if prob <= 0 || stream.Float64() >= prob {
				continue
			}
			out = append(out, Candidate{
				Day:             day,
				Time:            joint.End,
				TargetID:        t.person.ID(),
				InfectorID:      inf.person.ID(),
				ContainerID:     ct.ID,
				TargetContext:   t.member.Context,
				InfectorContext: inf.member.Context,
				Strain:          inf.person.Strain(),
				Probability:     prob,
			})
			infected[t.person.ID()] = true
			break
		}
	}
	return out, nil
}

func participates(rf float64, stream *rng.Stream) bool {
	switch {
	case rf >= 1:
		return true
	case rf <= 0:
		return false
	}
	return stream.Float64() < rf
}

func sampleMask(r restriction.Restriction, stream *rng.Stream) restriction.FaceMask {
	if r.MaskUsage()[restriction.MaskNone] >= 1 {
		return restriction.MaskNone
	}
	return r.SampleMask(stream.Float64())
}

// Resolve keeps, per target, the candidate that sorts first under Candidate.Before.
// The result is sorted by target ID.
func Resolve(candidates []Candidate) []Candidate {
	best := make(map[string]Candidate)
	for _, c := range candidates {
		if cur, ok := best[c.TargetID]; !ok || c.Before(cur) {
			best[c.TargetID] = c
		}
	}
	out := make([]Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}
