// Package metrics exports rewrite runs as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
)

// DefaultListen is the listen address of the metrics endpoint.
const DefaultListen = "127.0.0.1:9233"

// Metrics implements rewrite.Metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	iterationsTotal         prometheus.Counter     // iterations run
	ruleApplicationsTotal   *prometheus.CounterVec // applied matches by rule
	unionsTotal             prometheus.Counter     // class merges
	selfUnionsRejectedTotal prometheus.Counter     // self unions under a different renaming
	classes                 prometheus.Gauge       // live classes after the last iteration
	nodes                   prometheus.Gauge       // nodes after the last iteration
}

var _ rewrite.Metrics = (*Metrics)(nil)

// New registers the run metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m, err := NewWith(reg, reg)
	if err != nil {
		// A fresh registry has no collisions.
		panic(err)
	}
	return m
}

// NewWith registers the run metrics on reg and exposes them through g.
func NewWith(reg prometheus.Registerer, g prometheus.Gatherer) (*Metrics, error) {
	m := &Metrics{
		gatherer: g,
		iterationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotted_iterations_total",
			Help: "Number of search/apply/rebuild iterations run.",
		}),
		ruleApplicationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slotted_rule_applications_total",
				Help: "Number of matches applied, by rule.",
			},
			// rule: name of the rewrite rule
			[]string{"rule"},
		),
		unionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotted_unions_total",
			Help: "Number of class merges, including congruence repairs.",
		}),
		selfUnionsRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotted_self_unions_rejected_total",
			Help: "Number of unions of a class with itself under a different renaming that were rejected.",
		}),
		classes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slotted_classes",
			Help: "Number of live e-classes after the last iteration.",
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slotted_nodes",
			Help: "Number of e-nodes after the last iteration.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.iterationsTotal,
		m.ruleApplicationsTotal,
		m.unionsTotal,
		m.selfUnionsRejectedTotal,
		m.classes,
		m.nodes,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// InitRules creates a zero counter for every rule, so rules that never
// fire still show up.
func (m *Metrics) InitRules(names []string) {
	for _, name := range names {
		m.ruleApplicationsTotal.WithLabelValues(name)
	}
}

// ObserveFiring counts one applied match of rule.
func (m *Metrics) ObserveFiring(rule string) {
	m.ruleApplicationsTotal.WithLabelValues(rule).Inc()
}

// ObserveIteration records the statistics of a finished iteration.
func (m *Metrics) ObserveIteration(it rewrite.Iteration) {
	m.iterationsTotal.Inc()
	m.unionsTotal.Add(float64(it.Unions))
	m.selfUnionsRejectedTotal.Add(float64(it.SelfUnionsRejected))
	m.classes.Set(float64(it.Classes))
	m.nodes.Set(float64(it.Nodes))
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// WriteText writes the current metrics to w in the text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// Serve exposes /metrics on listen until ctx is done.
func (m *Metrics) Serve(ctx context.Context, listen string) error {
	if listen == "" {
		listen = DefaultListen
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", listen, err)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
