package sim

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/Mindburn-Labs/contagion/pkg/events"
)

// vaccinate applies the vaccinations scheduled for day. The antibody response
// follows on day+1.
func (s *Simulation) vaccinate(ctx context.Context, day int) error {
	n := 0
	for _, v := range s.model.Vaccinations {
		if v.Day != day {
			continue
		}
		p, ok := s.pop.Get(v.PersonID)
		if !ok {
			return fmt.Errorf("day %d: vaccination of unknown person %q", day, v.PersonID)
		}
		if p.Status() == disease.Deceased {
			continue
		}
		p.Vaccinate(day, v.Type)
		n++
	}
	if n > 0 {
		s.logger.DebugContext(ctx, "vaccinations applied", "day", day, "count", n)
	}
	return nil
}

// seed applies explicit seed infections, then random ones. Random seeds draw
// from a day stream over the susceptible persons in ID order.
func (s *Simulation) seed(day int) ([]events.Infection, error) {
	var out []events.Infection
	infect := func(p *disease.Person, strain disease.Strain) {
		if strain == "" {
			strain = disease.DefaultStrain
		}
		if !p.Infect(day, strain) {
			return
		}
		out = append(out, events.Infection{
			Person:      p.ID(),
			Strain:      strain,
			Probability: 1,
			Antibodies:  p.AntibodySnapshot(),
			Seeded:      true,
		})
	}

	for _, sd := range s.model.Seeds {
		if sd.Day != day {
			continue
		}
		p, ok := s.pop.Get(sd.PersonID)
		if !ok {
			return nil, fmt.Errorf("day %d: seed infection of unknown person %q", day, sd.PersonID)
		}
		infect(p, sd.Strain)
	}

	for i, rs := range s.model.RandomSeeds {
		if day < rs.FromDay || day > rs.ToDay || rs.Count == 0 {
			continue
		}
		var pool []*disease.Person
		for _, p := range s.pop.Persons() {
			if p.Status() == disease.Susceptible {
				pool = append(pool, p)
			}
		}
		stream := s.src.Day("seeding:"+strconv.Itoa(i), day)
		k := min(rs.Count, len(pool))
		for j := 0; j < k; j++ {
			r := j + stream.Intn(len(pool)-j)
			pool[j], pool[r] = pool[r], pool[j]
			infect(pool[j], rs.Strain)
		}
	}
	return out, nil
}
