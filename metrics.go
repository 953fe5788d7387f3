package meshcrypt

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	dropNotForUs    = "not_for_us"
	dropUnknownType = "unknown_type"

	stageDecrypt = "decrypt"
	stageDecode  = "decode"
)

type metrics struct {
	sealed  *prometheus.CounterVec
	opened  *prometheus.CounterVec
	dropped *prometheus.CounterVec
	errors  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, log *slog.Logger) *metrics {
	var m = &metrics{
		sealed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshcrypt",
				Name:      "sealed_packets_total",
				Help:      "Number of packets encrypted for transmission",
			},
			[]string{"type"},
		),
		opened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshcrypt",
				Name:      "opened_packets_total",
				Help:      "Number of received packets delivered",
			},
			[]string{"type"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshcrypt",
				Name:      "dropped_packets_total",
				Help:      "Number of received packets silently dropped",
			},
			[]string{"reason"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshcrypt",
				Name:      "invalid_packets_total",
				Help:      "Number of received packets failed to decrypt or parse",
			},
			[]string{"stage"},
		),
	}
	if reg == nil {
		return m
	}

	m.sealed = register(reg, m.sealed, log)
	m.opened = register(reg, m.opened, log)
	m.dropped = register(reg, m.dropped, log)
	m.errors = register(reg, m.errors, log)
	return m
}

// register c, or reuse the collector registered by another handler
func register[C prometheus.Collector](reg prometheus.Registerer, c C, log *slog.Logger) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
		if exist, ok := are.ExistingCollector.(C); ok {
			return exist
		}
	}
	log.Warn(err.Error())
	return c
}
