// Package events defines the records a simulation run produces and the
// hash-chained log they are appended to.
package events

import (
	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/Mindburn-Labs/contagion/pkg/restriction"
)

// Type names an event kind.
type Type string

const (
	TypeInfection           Type = "infection"
	TypeStatusChange        Type = "status_change"
	TypeRestrictionSnapshot Type = "restriction_snapshot"
)

// Infection records one applied infection.
type Infection struct {
	Time            int                        `json:"time"`
	Person          string                     `json:"person"`
	Infector        string                     `json:"infector,omitempty"`
	Container       string                     `json:"container,omitempty"`
	Context         string                     `json:"context,omitempty"`
	InfectorContext string                     `json:"infector_context,omitempty"`
	Strain          disease.Strain             `json:"strain"`
	Probability     float64                    `json:"probability"`
	Antibodies      map[disease.Strain]float64 `json:"antibodies"`
	// Seeded is set for seed infections that did not come from a contact.
	Seeded bool `json:"seeded,omitempty"`
}

// StatusChange records a disease status transition.
type StatusChange struct {
	Person string         `json:"person"`
	From   disease.Status `json:"from"`
	To     disease.Status `json:"to"`
}

// RestrictionSnapshot records the restrictions in force for a day, keyed by context.
type RestrictionSnapshot struct {
	Restrictions map[string]restriction.Restriction `json:"restrictions"`
}

// Event is the envelope stored by sinks.
type Event struct {
	RunID       string `json:"run_id"`
	Seq         uint64 `json:"seq"`
	Day         int    `json:"day"`
	Type        Type   `json:"type"`
	Payload     []byte `json:"-"`
	PayloadHash string `json:"payload_hash"`
	Hash        string `json:"hash"`
}
