package service

import (
	"math/rand"
	"sync"
)

// MetricsProvider supplies the measurements this core does not yet have a
// real data feed for: inspection results, attendance-based productivity,
// maintenance downtime logs. Monitors only ever read through this interface
// so a real source can be substituted without touching monitor logic.
type MetricsProvider interface {
	// QualityRate is the share of good output for a machine, 0-100.
	QualityRate(machineID string) float64
	// DowntimeHours is unplanned downtime during the current shift window.
	DowntimeHours(machineID string) float64
	// WorkforceProductivity is a plant-wide 0-100 score.
	WorkforceProductivity() float64
	// QualityPassRate is the plant-wide first-pass yield, 0-100.
	QualityPassRate() float64
	// AvgLeadTimeDays is the trailing average order lead time.
	AvgLeadTimeDays() float64
}

// SimulatedProvider is the default stand-in feed. Values are stable per key
// within a process so trend math stays sane between ticks.
type SimulatedProvider struct {
	mu    sync.Mutex
	rng   *rand.Rand
	cache map[string]float64
}

func NewSimulatedProvider(seed int64) *SimulatedProvider {
	return &SimulatedProvider{
		rng:   rand.New(rand.NewSource(seed)),
		cache: make(map[string]float64),
	}
}

func (p *SimulatedProvider) stable(key string, lo, hi float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.cache[key]; ok {
		return v
	}
	v := lo + p.rng.Float64()*(hi-lo)
	p.cache[key] = v
	return v
}

func (p *SimulatedProvider) QualityRate(machineID string) float64 {
	return p.stable("quality:"+machineID, 92, 99.5)
}

func (p *SimulatedProvider) DowntimeHours(machineID string) float64 {
	return p.stable("downtime:"+machineID, 0, 1.5)
}

func (p *SimulatedProvider) WorkforceProductivity() float64 {
	return p.stable("workforce", 75, 95)
}

func (p *SimulatedProvider) QualityPassRate() float64 {
	return p.stable("passrate", 94, 99)
}

func (p *SimulatedProvider) AvgLeadTimeDays() float64 {
	return p.stable("leadtime", 12, 21)
}
