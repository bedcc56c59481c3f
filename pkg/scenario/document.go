package scenario

import (
	"github.com/Mindburn-Labs/contagion/pkg/progression"
	"github.com/Mindburn-Labs/contagion/pkg/restriction"
)

// Document is the decoded scenario file. Field names follow the YAML keys.
type Document struct {
	SchemaVersion   string                              `json:"schema_version"`
	Name            string                              `json:"name"`
	Seed            uint64                              `json:"seed"`
	RNG             string                              `json:"rng,omitempty"`
	StartDate       string                              `json:"start_date,omitempty"`
	Days            int                                 `json:"days"`
	Workers         int                                 `json:"workers,omitempty"`
	Kappa           float64                             `json:"kappa"`
	CheckpointEvery int                                 `json:"checkpoint_every,omitempty"`
	Contexts        map[string]ContextDoc               `json:"contexts"`
	Masks           map[string]restriction.MaskEfficacy `json:"masks,omitempty"`
	Strains         map[string]StrainDoc                `json:"strains,omitempty"`
	Population      PopulationDoc                       `json:"population"`
	Trace           TraceDoc                            `json:"trace"`
	Progression     ProgressionDoc                      `json:"progression"`
	Immunity        ImmunityDoc                         `json:"immunity"`
	Seeding         SeedingDoc                          `json:"seeding"`
	Vaccinations    []VaccinationDoc                    `json:"vaccinations,omitempty"`
	Policy          PolicyDoc                           `json:"policy"`
}

type ContextDoc struct {
	Intensity float64 `json:"intensity"`
	Home      bool    `json:"home,omitempty"`
}

type StrainDoc struct {
	Infectiousness                *float64        `json:"infectiousness,omitempty"`
	FactorSeriouslySick           *float64        `json:"factor_seriously_sick,omitempty"`
	FactorSeriouslySickVaccinated *float64        `json:"factor_seriously_sick_vaccinated,omitempty"`
	FactorCritical                *float64        `json:"factor_critical,omitempty"`
	AgeSusceptibility             map[int]float64 `json:"age_susceptibility,omitempty"`
	AgeInfectivity                map[int]float64 `json:"age_infectivity,omitempty"`
}

type PersonDoc struct {
	ID             string  `json:"id"`
	Age            int     `json:"age,omitempty"`
	Location       string  `json:"location,omitempty"`
	Susceptibility float64 `json:"susceptibility,omitempty"`
	Infectivity    float64 `json:"infectivity,omitempty"`
}

// PopulationDoc holds exactly one of Persons, File or Generate.
type PopulationDoc struct {
	Persons  []PersonDoc  `json:"persons,omitempty"`
	File     string       `json:"file,omitempty"`
	Generate *GenerateDoc `json:"generate,omitempty"`
}

type GenerateDoc struct {
	Count     int      `json:"count"`
	IDPrefix  string   `json:"id_prefix,omitempty"`
	Locations []string `json:"locations,omitempty"`
	MinAge    int      `json:"min_age,omitempty"`
	MaxAge    int      `json:"max_age,omitempty"`
}

type TraceDoc struct {
	File      string `json:"file"`
	CycleDays int    `json:"cycle_days,omitempty"`
}

type ProgressionDoc struct {
	Strategy       string                `json:"strategy,omitempty"`
	PDeceased      float64               `json:"p_deceased,omitempty"`
	HospitalFactor float64               `json:"hospital_factor,omitempty"`
	AgeBands       []progression.AgeBand `json:"age_bands,omitempty"`
	DwellDays      map[string]int        `json:"dwell_days,omitempty"`
}

// ImmunityDoc configures antibodies and the immunity factors. Absent escape
// lists select the built-in sets; an explicit empty list disables escape.
type ImmunityDoc struct {
	Factors             string                        `json:"factors,omitempty"`
	Beta                float64                       `json:"beta,omitempty"`
	DoublingDays        float64                       `json:"doubling_days,omitempty"`
	EscapeSeriouslySick []string                      `json:"escape_seriously_sick,omitempty"`
	EscapeCritical      []string                      `json:"escape_critical,omitempty"`
	ImmuneResponseSigma float64                       `json:"immune_response_sigma,omitempty"`
	Initial             map[string]map[string]float64 `json:"initial,omitempty"`
	Refresh             map[string]map[string]float64 `json:"refresh,omitempty"`
}

type SeedingDoc struct {
	Infections []SeedDoc       `json:"infections,omitempty"`
	Random     []RandomSeedDoc `json:"random,omitempty"`
}

type SeedDoc struct {
	At     string `json:"at"`
	Person string `json:"person"`
	Strain string `json:"strain,omitempty"`
}

type RandomSeedDoc struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Count  int    `json:"count"`
	Strain string `json:"strain,omitempty"`
}

type VaccinationDoc struct {
	At     string `json:"at"`
	Person string `json:"person"`
	Type   string `json:"type"`
}

type EntryDoc struct {
	At                    string            `json:"at"`
	Context               string            `json:"context"`
	Restriction           *restriction.Spec `json:"restriction,omitempty"`
	RemainingFractionExpr string            `json:"remaining_fraction_expr,omitempty"`
}

type WindowDoc struct {
	Context string           `json:"context"`
	Start   string           `json:"start"`
	End     string           `json:"end"`
	From    restriction.Spec `json:"from"`
	To      restriction.Spec `json:"to"`
}

// TimelineDoc is a fixed policy: cumulative entries plus interpolation windows.
type TimelineDoc struct {
	Timeline []EntryDoc  `json:"timeline,omitempty"`
	Windows  []WindowDoc `json:"windows,omitempty"`
}

type PolicyDoc struct {
	Type string `json:"type,omitempty"`
	TimelineDoc
	Adaptive *AdaptiveDoc `json:"adaptive,omitempty"`
}

type TriggerDoc struct {
	Context    string  `json:"context"`
	OpenAt     float64 `json:"open_at"`
	LockdownAt float64 `json:"lockdown_at"`
	Trigger    string  `json:"trigger,omitempty"`
}

type AdaptiveDoc struct {
	Scope        string       `json:"scope,omitempty"`
	Locations    []string     `json:"locations,omitempty"`
	Start        string       `json:"start,omitempty"`
	CooldownDays int          `json:"cooldown_days,omitempty"`
	WindowDays   int          `json:"window_days,omitempty"`
	Triggers     []TriggerDoc `json:"triggers"`
	Init         *TimelineDoc `json:"init,omitempty"`
	Open         TimelineDoc  `json:"open"`
	Restricted   TimelineDoc  `json:"restricted"`
}
