package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider is a Provider backed by github.com/prometheus/client_golang,
// registered against a caller-supplied *prometheus.Registry. Instruments
// are created on demand by name and reused for the same name, mirroring
// BasicProvider's caching.
type PrometheusProvider struct {
	registry *prometheus.Registry

	mu         sync.RWMutex
	counters   map[string]*promCounter
	updowns    map[string]*promUpDown
	histograms map[string]*promHistogram
}

// NewPrometheusProvider constructs a PrometheusProvider that registers
// every instrument it creates against registry.
func NewPrometheusProvider(registry *prometheus.Registry) *PrometheusProvider {
	return &PrometheusProvider{
		registry:   registry,
		counters:   make(map[string]*promCounter),
		updowns:    make(map[string]*promUpDown),
		histograms: make(map[string]*promHistogram),
	}
}

func instrumentLabels(cfg InstrumentConfig) (prometheus.Labels, []string) {
	if len(cfg.Attributes) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(cfg.Attributes))
	labels := make(prometheus.Labels, len(cfg.Attributes))
	for k, v := range cfg.Attributes {
		names = append(names, k)
		labels[k] = v
	}
	return labels, names
}

// Counter returns a monotonic counter instrument for name.
func (p *PrometheusProvider) Counter(name string, opts ...InstrumentOption) Counter {
	p.mu.RLock()
	if c, ok := p.counters[name]; ok {
		p.mu.RUnlock()
		return c
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	cfg := applyOptions(opts)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: cfg.Description,
	}, labelNames(cfg))
	p.registry.MustRegister(vec)
	labels, _ := instrumentLabels(cfg)
	c := &promCounter{vec: vec, labels: labels}
	p.counters[name] = c
	return c
}

// UpDownCounter returns an up/down counter instrument for name, backed by
// a prometheus Gauge (the closest stock collector for a value that can
// move in both directions).
func (p *PrometheusProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	p.mu.RLock()
	if u, ok := p.updowns[name]; ok {
		p.mu.RUnlock()
		return u
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.updowns[name]; ok {
		return u
	}
	cfg := applyOptions(opts)
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: cfg.Description,
	}, labelNames(cfg))
	p.registry.MustRegister(vec)
	labels, _ := instrumentLabels(cfg)
	u := &promUpDown{vec: vec, labels: labels}
	p.updowns[name] = u
	return u
}

// Histogram returns a histogram instrument for name.
func (p *PrometheusProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	p.mu.RLock()
	if h, ok := p.histograms[name]; ok {
		p.mu.RUnlock()
		return h
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return h
	}
	cfg := applyOptions(opts)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    cfg.Description,
		Buckets: prometheus.DefBuckets,
	}, labelNames(cfg))
	p.registry.MustRegister(vec)
	labels, _ := instrumentLabels(cfg)
	h := &promHistogram{vec: vec, labels: labels}
	p.histograms[name] = h
	return h
}

func labelNames(cfg InstrumentConfig) []string {
	_, names := instrumentLabels(cfg)
	return names
}

type promCounter struct {
	vec    *prometheus.CounterVec
	labels prometheus.Labels
}

func (c *promCounter) Add(n int64) { c.vec.With(c.labels).Add(float64(n)) }

type promUpDown struct {
	vec    *prometheus.GaugeVec
	labels prometheus.Labels
}

func (u *promUpDown) Add(n int64) { u.vec.With(u.labels).Add(float64(n)) }

type promHistogram struct {
	vec    *prometheus.HistogramVec
	labels prometheus.Labels
}

func (h *promHistogram) Record(v float64) { h.vec.With(h.labels).Observe(v) }
