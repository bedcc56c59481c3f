// Package sim runs the day loop: restrictions, contacts, infections,
// progression and antibodies, with checkpoints at day boundaries.
package sim

import (
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/Mindburn-Labs/contagion/pkg/exposure"
	"github.com/Mindburn-Labs/contagion/pkg/immunity"
	"github.com/Mindburn-Labs/contagion/pkg/policy"
	"github.com/Mindburn-Labs/contagion/pkg/progression"
	"github.com/Mindburn-Labs/contagion/pkg/rng"
	"github.com/Mindburn-Labs/contagion/pkg/trace"
)

// Seed is an explicit seed infection.
type Seed struct {
	Day      int
	PersonID string
	Strain   disease.Strain
}

// RandomSeed infects Count susceptible persons on every day in [FromDay, ToDay].
type RandomSeed struct {
	FromDay int
	ToDay   int
	Count   int
	Strain  disease.Strain
}

// Vaccination is applied at the start of Day.
type Vaccination struct {
	Day      int
	PersonID string
	Type     disease.VaccineType
}

// Model is everything a run needs that does not change while it runs. One
// Model can drive any number of independent runs.
type Model struct {
	Seed      uint64
	Algorithm rng.Algorithm
	// Days is the default run length.
	Days            int
	CheckpointEvery int
	// ScenarioDigest ties checkpoints to the scenario that produced them.
	ScenarioDigest string

	Population   []disease.Attributes
	Trace        trace.Source
	Exposure     *exposure.Calculator
	Progression  *progression.Engine
	Antibodies   *immunity.AntibodyModel
	NewPolicy    func() (policy.Policy, error)
	Seeds        []Seed
	RandomSeeds  []RandomSeed
	Vaccinations []Vaccination
}

// Validate checks that every collaborator is present.
func (m Model) Validate() error {
	var errs []error
	if m.Trace == nil {
		errs = append(errs, errors.New("trace source is required"))
	}
	if m.Exposure == nil {
		errs = append(errs, errors.New("exposure calculator is required"))
	}
	if m.Progression == nil {
		errs = append(errs, errors.New("progression engine is required"))
	}
	if m.Antibodies == nil {
		errs = append(errs, errors.New("antibody model is required"))
	}
	if m.NewPolicy == nil {
		errs = append(errs, errors.New("policy factory is required"))
	}
	if len(m.Population) == 0 {
		errs = append(errs, errors.New("population is empty"))
	}
	if m.CheckpointEvery < 0 {
		errs = append(errs, fmt.Errorf("checkpoint interval %d is negative", m.CheckpointEvery))
	}
	for _, rs := range m.RandomSeeds {
		if rs.Count < 0 || rs.ToDay < rs.FromDay {
			errs = append(errs, fmt.Errorf("random seed [%d,%d] x%d is invalid", rs.FromDay, rs.ToDay, rs.Count))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("sim: invalid model: %w", err)
	}
	return nil
}
