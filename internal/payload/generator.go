package payload

import (
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Builder produces the payload for one run.
type Builder interface {
	Build(runID string) (Payload, error)
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(runID string) (Payload, error)

// Build calls f.
func (f BuilderFunc) Build(runID string) (Payload, error) {
	return f(runID)
}

// Generator draws random but internally consistent submissions from the option tables.
// It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
	log *zap.Logger
}

// GeneratorOptions configures a Generator. A zero Seed draws a random one.
type GeneratorOptions struct {
	Seed uint64
	Now  func() time.Time
}

// NewGenerator creates a Generator.
func NewGenerator(opts GeneratorOptions, logger *zap.Logger) *Generator {
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: now,
		log: logger.Named("payload"),
	}
}

// Build returns the form fields of a freshly generated submission.
func (g *Generator) Build(runID string) (Payload, error) {
	s, err := g.Submission()
	if err != nil {
		return nil, err
	}
	p := s.Fields()
	g.log.Info("payload generated",
		zap.String("run_id", runID),
		zap.String("type_license", string(s.VehicleType)),
		zap.Strings("keys", p.Keys()))
	return p, nil
}

// Submission generates and validates one submission.
func (g *Generator) Submission() (*Submission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	today := dateOf(now)

	back := g.rnd.IntN(OperatedWindowDays + 1)
	operated := today.AddDate(0, 0, -back)
	purchased := operated.AddDate(0, 0, g.rnd.IntN(back+1))

	s := Submission{
		VehicleType:          pick(g.rnd, VehicleTypes),
		YearModel:            MinYearModel + g.rnd.IntN(now.Year()-MinYearModel+1),
		MotivePower:          pick(g.rnd, MotivePowers),
		SecondaryMotivePower: pick(g.rnd, SecondaryMotivePowers),
		Axles:                pick(g.rnd, AxleOptions),
		Operated:             operated,
		Purchased:            purchased,
		AcquiredFrom:         pick(g.rnd, AcquiredFromOptions),
		PurchasePrice:        1000 + g.rnd.IntN(100000-1000+1),
		UseTaxCredit:         g.rnd.IntN(5000 + 1),
		Location:             pick(g.rnd, Locations),
		WeightType:           pick(g.rnd, WeightTypes),
	}
	if s.MotivePower == MotiveElectric {
		s.ElectricType = pick(g.rnd, ElectricTypes)
	}
	if s.WeightType == WeightUnladen {
		s.UnladenRange = pick(g.rnd, UnladenRanges)
	} else {
		s.GrossRange = pick(g.rnd, GrossRanges)
	}
	if s.VehicleType == VehicleTrailer {
		s.TrailerType = pick(g.rnd, TrailerTypes)
	}

	return NewSubmission(s, now)
}

func pick[T any](rnd *rand.Rand, options []T) T {
	return options[rnd.IntN(len(options))]
}
