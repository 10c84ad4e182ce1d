package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// MessagesConsumed counts inbound historical messages by instrument and
// message type.
var MessagesConsumed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marketsynth_messages_consumed_total",
		Help: "Total number of historical messages consumed by the synthesis engine",
	},
	[]string{"security_id", "type"},
)

// EventsEmitted counts synthetic events written to the output log.
var EventsEmitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marketsynth_events_emitted_total",
		Help: "Total number of synthetic events emitted",
	},
	[]string{"security_id"},
)

// InstrumentsFailed counts instruments whose replay aborted on a
// synthesis error.
var InstrumentsFailed = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "marketsynth_instruments_failed_total",
		Help: "Total number of instrument replays aborted by a synthesis error",
	},
)

func init() {
	prometheus.MustRegister(MessagesConsumed, EventsEmitted, InstrumentsFailed)
}

// Snapshot gathers the registered marketsynth counters and returns their
// totals by metric name, summed across label sets. The replay tool logs
// this at exit so a batch run's counters are visible without a scrape.
func Snapshot() (map[string]float64, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}
	totals := make(map[string]float64)
	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), "marketsynth_") {
			continue
		}
		for _, metric := range family.GetMetric() {
			totals[family.GetName()] += metric.GetCounter().GetValue()
		}
	}
	return totals, nil
}
