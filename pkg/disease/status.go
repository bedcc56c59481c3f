// Package disease holds the person-level state the contagion engine reads and
// mutates: disease status with its history, strain, antibodies, vaccinations.
package disease

import (
	"errors"
	"fmt"
)

// ErrUnknownStatus is returned for a status outside the declared set.
var ErrUnknownStatus = errors.New("unknown disease status")

// Status is the disease status of a person. Exactly one is active at a time.
type Status string

const (
	Susceptible                Status = "susceptible"
	InfectedButNotContagious   Status = "infectedButNotContagious"
	Contagious                 Status = "contagious"
	ShowingSymptoms            Status = "showingSymptoms"
	SeriouslySick              Status = "seriouslySick"
	Critical                   Status = "critical"
	SeriouslySickAfterCritical Status = "seriouslySickAfterCritical"
	Recovered                  Status = "recovered"
	Deceased                   Status = "deceased"
)

// Statuses lists every declared status in progression order.
var Statuses = []Status{
	Susceptible,
	InfectedButNotContagious,
	Contagious,
	ShowingSymptoms,
	SeriouslySick,
	Critical,
	SeriouslySickAfterCritical,
	Recovered,
	Deceased,
}

// Valid reports whether s is a declared status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// CanInfect reports whether a person in this status can act as an infector.
func (s Status) CanInfect() bool {
	return s == Contagious || s == ShowingSymptoms
}

// Infected reports whether the status belongs to an active infection episode.
func (s Status) Infected() bool {
	switch s {
	case InfectedButNotContagious, Contagious, ShowingSymptoms, SeriouslySick, Critical, SeriouslySickAfterCritical:
		return true
	}
	return false
}

// ParseStatus converts a name into a Status.
func ParseStatus(name string) (Status, error) {
	s := Status(name)
	if !s.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownStatus, name)
	}
	return s, nil
}

// QuarantineStatus is owned by the testing/tracing collaborator.
type QuarantineStatus string

const (
	QuarantineNone   QuarantineStatus = "no"
	QuarantineAtHome QuarantineStatus = "atHome"
	QuarantineFull   QuarantineStatus = "full"
)

// TestStatus is owned by the testing collaborator.
type TestStatus string

const (
	TestUntested TestStatus = "untested"
	TestPositive TestStatus = "positive"
	TestNegative TestStatus = "negative"
)
