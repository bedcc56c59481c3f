package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"hash"
	"sort"
	"strconv"
	"strings"

	"github.com/rickb777/date"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/Mindburn-Labs/contagion/pkg/exposure"
	"github.com/Mindburn-Labs/contagion/pkg/immunity"
	"github.com/Mindburn-Labs/contagion/pkg/policy"
	"github.com/Mindburn-Labs/contagion/pkg/progression"
	"github.com/Mindburn-Labs/contagion/pkg/restriction"
	"github.com/Mindburn-Labs/contagion/pkg/rng"
	"github.com/Mindburn-Labs/contagion/pkg/sim"
	"github.com/Mindburn-Labs/contagion/pkg/trace"
)

type builder struct {
	doc      *Document
	baseDir  string
	digest   hash.Hash
	start    date.Date
	hasStart bool
	persons  map[string]bool
}

func (b *builder) build() (sim.Model, error) {
	doc := b.doc
	m := sim.Model{
		Seed:            doc.Seed,
		Days:            doc.Days,
		CheckpointEvery: doc.CheckpointEvery,
	}

	alg, err := rng.ParseAlgorithm(doc.RNG)
	if err != nil {
		return m, configErr("rng", err)
	}
	m.Algorithm = alg

	if doc.StartDate != "" {
		d, err := date.ParseISO(doc.StartDate)
		if err != nil {
			return m, configErr("start_date", err)
		}
		b.start, b.hasStart = d, true
	}

	if m.Population, err = b.population(alg); err != nil {
		return m, err
	}
	b.persons = make(map[string]bool, len(m.Population))
	for i, a := range m.Population {
		if b.persons[a.ID] {
			return m, configErr(fmt.Sprintf("population[%d].id", i), fmt.Errorf("duplicate person %q", a.ID))
		}
		b.persons[a.ID] = true
	}

	strains := b.strains()
	if m.Exposure, err = b.exposure(strains); err != nil {
		return m, err
	}
	if m.Trace, err = b.trace(m.Exposure); err != nil {
		return m, err
	}
	if m.Progression, err = b.progression(strains); err != nil {
		return m, err
	}
	if m.Seeds, m.RandomSeeds, err = b.seeding(); err != nil {
		return m, err
	}
	if m.Vaccinations, err = b.vaccinations(); err != nil {
		return m, err
	}
	m.Antibodies = b.antibodies(strains, m.Seeds, m.RandomSeeds)
	if m.NewPolicy, err = b.policy(locationsOf(m.Population)); err != nil {
		return m, err
	}
	if err := m.Validate(); err != nil {
		return m, configErr("", err)
	}
	return m, nil
}

// day resolves "day-N" or an ISO date; start_date is day 1.
func (b *builder) day(path, key string) (int, error) {
	if n, ok := strings.CutPrefix(key, "day-"); ok {
		d, err := strconv.Atoi(n)
		if err != nil {
			return 0, configErr(path, fmt.Errorf("bad day key %q", key))
		}
		return d, nil
	}
	if !b.hasStart {
		return 0, configErr(path, fmt.Errorf("date %q needs start_date", key))
	}
	d, err := date.ParseISO(key)
	if err != nil {
		return 0, configErr(path, err)
	}
	day := int(d.Sub(b.start)) + 1
	if day < 0 {
		return 0, configErr(path, fmt.Errorf("date %s is before start_date %s", key, b.start))
	}
	return day, nil
}

func (b *builder) population(alg rng.Algorithm) ([]disease.Attributes, error) {
	pd := b.doc.Population
	switch {
	case pd.File != "":
		data, err := b.readFile("population.file", pd.File)
		if err != nil {
			return nil, err
		}
		docs, err := ReadPersons(bytes.NewReader(data))
		if err != nil {
			return nil, configErr("population.file", err)
		}
		return attributes(docs), nil
	case pd.Generate != nil:
		return b.generate(pd.Generate, alg)
	default:
		return attributes(pd.Persons), nil
	}
}

func attributes(docs []PersonDoc) []disease.Attributes {
	out := make([]disease.Attributes, len(docs))
	for i, d := range docs {
		out[i] = disease.Attributes{
			ID:             d.ID,
			Age:            d.Age,
			Location:       d.Location,
			Susceptibility: d.Susceptibility,
			Infectivity:    d.Infectivity,
		}
	}
	return out
}

// generate draws ages and locations from the scenario seed, so the population
// does not change with a run-time seed override.
func (b *builder) generate(g *GenerateDoc, alg rng.Algorithm) ([]disease.Attributes, error) {
	prefix := g.IDPrefix
	if prefix == "" {
		prefix = "p"
	}
	maxAge := g.MaxAge
	if maxAge == 0 {
		maxAge = 90
	}
	if maxAge < g.MinAge {
		return nil, configErr("population.generate.max_age", fmt.Errorf("max_age %d below min_age %d", maxAge, g.MinAge))
	}
	locations := g.Locations
	if len(locations) == 0 {
		locations = []string{""}
	}

	stream := rng.NewSource(b.doc.Seed, alg).Stream("population")
	width := len(strconv.Itoa(g.Count - 1))
	out := make([]disease.Attributes, g.Count)
	for i := range out {
		out[i] = disease.Attributes{
			ID:       fmt.Sprintf("%s%0*d", prefix, width, i),
			Age:      g.MinAge + stream.Intn(maxAge-g.MinAge+1),
			Location: locations[stream.Intn(len(locations))],
		}
	}
	return out, nil
}

func (b *builder) strains() disease.StrainTable {
	table := make(disease.StrainTable, len(b.doc.Strains))
	for name, sd := range b.doc.Strains {
		p := disease.DefaultStrainParams()
		set := func(dst *float64, v *float64) {
			if v != nil {
				*dst = *v
			}
		}
		set(&p.Infectiousness, sd.Infectiousness)
		set(&p.FactorSeriouslySick, sd.FactorSeriouslySick)
		set(&p.FactorSeriouslySickVaccinated, sd.FactorSeriouslySickVaccinated)
		set(&p.FactorCritical, sd.FactorCritical)
		p.AgeSusceptibility = disease.AgeTable(sd.AgeSusceptibility)
		p.AgeInfectivity = disease.AgeTable(sd.AgeInfectivity)
		table[disease.Strain(name)] = p
	}
	return table
}

func (b *builder) exposure(strains disease.StrainTable) (*exposure.Calculator, error) {
	intensity := make(exposure.IntensityTable, len(b.doc.Contexts))
	var home []string
	for name, c := range b.doc.Contexts {
		intensity[name] = c.Intensity
		if c.Home {
			home = append(home, name)
		}
	}
	sort.Strings(home)

	masks := restriction.DefaultMaskTable()
	for name, eff := range b.doc.Masks {
		m, err := restriction.ParseFaceMask(name)
		if err != nil {
			return nil, configErr("masks."+name, err)
		}
		masks[m] = eff
	}

	calc, err := exposure.NewCalculator(exposure.Config{
		Kappa:        b.doc.Kappa,
		Intensity:    intensity,
		Masks:        masks,
		Strains:      strains,
		HomeContexts: home,
	})
	if err != nil {
		return nil, configErr("kappa", err)
	}
	return calc, nil
}

// trace loads the interval file and requires an intensity for every context it uses.
func (b *builder) trace(calc *exposure.Calculator) (trace.Source, error) {
	data, err := b.readFile("trace.file", b.doc.Trace.File)
	if err != nil {
		return nil, err
	}
	ivs, err := trace.ReadJSONL(bytes.NewReader(data))
	if err != nil {
		return nil, configErr("trace.file", err)
	}
	seen := make(map[string]bool)
	var contexts []string
	for _, iv := range ivs {
		if !seen[iv.Context] {
			seen[iv.Context] = true
			contexts = append(contexts, iv.Context)
		}
	}
	sort.Strings(contexts)
	if err := calc.RequireContexts(contexts); err != nil {
		return nil, configErr("trace.file", err)
	}
	src, err := trace.NewMemorySource(ivs, b.doc.Trace.CycleDays)
	if err != nil {
		return nil, configErr("trace.file", err)
	}
	return src, nil
}

func (b *builder) progression(strains disease.StrainTable) (*progression.Engine, error) {
	pd := b.doc.Progression
	var strategy progression.Strategy
	switch pd.Strategy {
	case "", progression.StrategyDefault:
		strategy = progression.NewDefault(pd.PDeceased)
	case progression.StrategyAgeDependent:
		ad, err := progression.NewAgeDependent(pd.AgeBands, pd.HospitalFactor, pd.PDeceased)
		if err != nil {
			return nil, configErr("progression.age_bands", err)
		}
		strategy = ad
	default:
		return nil, configErr("progression.strategy", fmt.Errorf("unknown strategy %q", pd.Strategy))
	}

	dwell := make(map[disease.Status]int, len(pd.DwellDays))
	for name, days := range pd.DwellDays {
		s, err := disease.ParseStatus(name)
		if err != nil {
			return nil, configErr("progression.dwell_days."+name, err)
		}
		dwell[s] = days
	}

	factors, err := b.factors()
	if err != nil {
		return nil, err
	}
	engine, err := progression.NewEngine(progression.Config{
		Strategy: strategy,
		Immunity: factors,
		Strains:  strains,
		Dwell:    dwell,
	})
	if err != nil {
		return nil, configErr("progression", err)
	}
	return engine, nil
}

func (b *builder) factors() (immunity.Factors, error) {
	id := b.doc.Immunity
	cfg := immunity.DefaultFactorConfig()
	if id.Beta > 0 {
		cfg.Beta = id.Beta
	}
	if id.DoublingDays > 0 {
		cfg.DoublingDays = id.DoublingDays
	}
	if id.EscapeSeriouslySick != nil {
		cfg.EscapeSeriouslySick = toStrains(id.EscapeSeriouslySick)
	}
	if id.EscapeCritical != nil {
		cfg.EscapeCritical = toStrains(id.EscapeCritical)
	}
	kind := immunity.Kind(id.Factors)
	if kind == "" {
		kind = immunity.KindNonWaning
	}
	f, err := immunity.New(kind, cfg)
	if err != nil {
		return nil, configErr("immunity.factors", err)
	}
	return f, nil
}

func toStrains(names []string) []disease.Strain {
	out := make([]disease.Strain, len(names))
	for i, n := range names {
		out[i] = disease.Strain(n)
	}
	return out
}

// antibodies tracks the default strain, every declared strain and every seeded strain.
func (b *builder) antibodies(strains disease.StrainTable, seeds []sim.Seed, random []sim.RandomSeed) *immunity.AntibodyModel {
	set := map[disease.Strain]bool{disease.DefaultStrain: true}
	for s := range strains {
		set[s] = true
	}
	for _, sd := range seeds {
		if sd.Strain != "" {
			set[sd.Strain] = true
		}
	}
	for _, rs := range random {
		if rs.Strain != "" {
			set[rs.Strain] = true
		}
	}
	list := make([]disease.Strain, 0, len(set))
	for s := range set {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })

	id := b.doc.Immunity
	return immunity.NewAntibodyModel(immunity.AntibodyConfig{
		Initial:             eventTable(id.Initial),
		Refresh:             eventTable(id.Refresh),
		ImmuneResponseSigma: id.ImmuneResponseSigma,
	}, list)
}

func eventTable(in map[string]map[string]float64) map[disease.ImmunityEvent]map[disease.Strain]float64 {
	if in == nil {
		return nil
	}
	out := make(map[disease.ImmunityEvent]map[disease.Strain]float64, len(in))
	for ev, row := range in {
		r := make(map[disease.Strain]float64, len(row))
		for s, v := range row {
			r[disease.Strain(s)] = v
		}
		out[disease.ImmunityEvent(ev)] = r
	}
	return out
}

func (b *builder) requirePerson(path, id string) error {
	if !b.persons[id] {
		return configErr(path, fmt.Errorf("unknown person %q", id))
	}
	return nil
}

func (b *builder) seeding() ([]sim.Seed, []sim.RandomSeed, error) {
	var seeds []sim.Seed
	for i, sd := range b.doc.Seeding.Infections {
		path := fmt.Sprintf("seeding.infections[%d]", i)
		day, err := b.day(path+".at", sd.At)
		if err != nil {
			return nil, nil, err
		}
		if err := b.requirePerson(path+".person", sd.Person); err != nil {
			return nil, nil, err
		}
		seeds = append(seeds, sim.Seed{Day: day, PersonID: sd.Person, Strain: disease.Strain(sd.Strain)})
	}

	var random []sim.RandomSeed
	for i, rs := range b.doc.Seeding.Random {
		path := fmt.Sprintf("seeding.random[%d]", i)
		from, err := b.day(path+".from", rs.From)
		if err != nil {
			return nil, nil, err
		}
		to, err := b.day(path+".to", rs.To)
		if err != nil {
			return nil, nil, err
		}
		if to < from {
			return nil, nil, configErr(path, fmt.Errorf("to %q is before from %q", rs.To, rs.From))
		}
		random = append(random, sim.RandomSeed{FromDay: from, ToDay: to, Count: rs.Count, Strain: disease.Strain(rs.Strain)})
	}
	return seeds, random, nil
}

func (b *builder) vaccinations() ([]sim.Vaccination, error) {
	var out []sim.Vaccination
	for i, vd := range b.doc.Vaccinations {
		path := fmt.Sprintf("vaccinations[%d]", i)
		day, err := b.day(path+".at", vd.At)
		if err != nil {
			return nil, err
		}
		if err := b.requirePerson(path+".person", vd.Person); err != nil {
			return nil, err
		}
		out = append(out, sim.Vaccination{Day: day, PersonID: vd.Person, Type: disease.VaccineType(vd.Type)})
	}
	return out, nil
}

func locationsOf(pop []disease.Attributes) []string {
	set := make(map[string]bool)
	for _, a := range pop {
		if a.Location != "" {
			set[a.Location] = true
		}
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (b *builder) requireContext(path, ctx string) error {
	if _, ok := b.doc.Contexts[ctx]; !ok {
		return configErr(path, fmt.Errorf("%w: %q", exposure.ErrUnknownContext, ctx))
	}
	return nil
}

func (b *builder) restriction(path string, spec *restriction.Spec) (restriction.Restriction, error) {
	if spec == nil {
		return restriction.None(), nil
	}
	r, err := restriction.FromSpec(*spec)
	if err != nil {
		return restriction.Restriction{}, configErr(path, err)
	}
	return r, nil
}

func (b *builder) timeline(path string, td TimelineDoc) (*policy.Timeline, error) {
	entries := make([]policy.Entry, 0, len(td.Timeline))
	for i, ed := range td.Timeline {
		p := fmt.Sprintf("%s.timeline[%d]", path, i)
		if err := b.requireContext(p+".context", ed.Context); err != nil {
			return nil, err
		}
		day, err := b.day(p+".at", ed.At)
		if err != nil {
			return nil, err
		}
		r, err := b.restriction(p+".restriction", ed.Restriction)
		if err != nil {
			return nil, err
		}
		e := policy.Entry{Day: day, Context: ed.Context, Restriction: r}
		if ed.RemainingFractionExpr != "" {
			if e.RemainingFractionExpr, err = policy.CompileRate(ed.RemainingFractionExpr); err != nil {
				return nil, configErr(p+".remaining_fraction_expr", err)
			}
		}
		entries = append(entries, e)
	}

	windows := make([]policy.Window, 0, len(td.Windows))
	for i, wd := range td.Windows {
		p := fmt.Sprintf("%s.windows[%d]", path, i)
		if err := b.requireContext(p+".context", wd.Context); err != nil {
			return nil, err
		}
		start, err := b.day(p+".start", wd.Start)
		if err != nil {
			return nil, err
		}
		end, err := b.day(p+".end", wd.End)
		if err != nil {
			return nil, err
		}
		from, err := b.restriction(p+".from", &wd.From)
		if err != nil {
			return nil, err
		}
		to, err := b.restriction(p+".to", &wd.To)
		if err != nil {
			return nil, err
		}
		windows = append(windows, policy.Window{Context: wd.Context, Start: start, End: end, From: from, To: to})
	}

	tl, err := policy.NewTimeline(entries, windows)
	if err != nil {
		return nil, configErr(path, err)
	}
	return tl, nil
}

// policy validates the policy section once and returns a factory that builds
// a fresh policy per run.
func (b *builder) policy(locations []string) (func() (policy.Policy, error), error) {
	pd := b.doc.Policy
	switch pd.Type {
	case "", "fixed":
		if pd.Adaptive != nil {
			return nil, configErr("policy.adaptive", errors.New("adaptive settings on a fixed policy"))
		}
		tl, err := b.timeline("policy", pd.TimelineDoc)
		if err != nil {
			return nil, err
		}
		return func() (policy.Policy, error) { return policy.NewFixed(tl), nil }, nil
	case "adaptive":
		if pd.Adaptive == nil {
			return nil, configErr("policy.adaptive", errors.New("adaptive policy needs an adaptive section"))
		}
		if len(pd.Timeline) > 0 || len(pd.Windows) > 0 {
			return nil, configErr("policy.timeline", errors.New("adaptive policies declare timelines under init, open and restricted"))
		}
		cfg, err := b.adaptive(pd.Adaptive, locations)
		if err != nil {
			return nil, err
		}
		if _, err := policy.NewAdaptive(cfg); err != nil {
			return nil, configErr("policy.adaptive", err)
		}
		return func() (policy.Policy, error) { return policy.NewAdaptive(cfg) }, nil
	default:
		return nil, configErr("policy.type", fmt.Errorf("unknown policy type %q", pd.Type))
	}
}

func (b *builder) adaptive(ad *AdaptiveDoc, locations []string) (policy.AdaptiveConfig, error) {
	cfg := policy.AdaptiveConfig{
		Scope:        policy.Scope(ad.Scope),
		Locations:    ad.Locations,
		CooldownDays: ad.CooldownDays,
		WindowDays:   ad.WindowDays,
	}
	if cfg.Scope == policy.ScopeLocal && len(cfg.Locations) == 0 {
		cfg.Locations = locations
	}
	if ad.Start != "" {
		day, err := b.day("policy.adaptive.start", ad.Start)
		if err != nil {
			return cfg, err
		}
		cfg.StartDay = day
	}

	for i, td := range ad.Triggers {
		p := fmt.Sprintf("policy.adaptive.triggers[%d]", i)
		if err := b.requireContext(p+".context", td.Context); err != nil {
			return cfg, err
		}
		if td.LockdownAt < td.OpenAt {
			return cfg, configErr(p+".lockdown_at", fmt.Errorf("lockdown_at %v is below open_at %v", td.LockdownAt, td.OpenAt))
		}
		t := policy.Trigger{Context: td.Context, OpenAt: td.OpenAt, LockdownAt: td.LockdownAt}
		if td.Trigger != "" {
			expr, err := policy.CompileTrigger(td.Trigger)
			if err != nil {
				return cfg, configErr(p+".trigger", err)
			}
			t.Expr = expr
		}
		cfg.Triggers = append(cfg.Triggers, t)
	}

	var err error
	if ad.Init != nil {
		if cfg.Init, err = b.timeline("policy.adaptive.init", *ad.Init); err != nil {
			return cfg, err
		}
	}
	if cfg.Open, err = b.timeline("policy.adaptive.open", ad.Open); err != nil {
		return cfg, err
	}
	if cfg.Restricted, err = b.timeline("policy.adaptive.restricted", ad.Restricted); err != nil {
		return cfg, err
	}
	return cfg, nil
}
