package training

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports training progress as Prometheus metrics. Wire its
// methods into Callbacks to publish; register it with any registry.
type Collector struct {
	epochCost     *prometheus.GaugeVec
	epochAccuracy *prometheus.GaugeVec
	samplesDone   prometheus.Counter
}

func NewCollector() *Collector {
	return &Collector{
		epochCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synapse_epoch_cost",
			Help: "Cost of the most recent epoch evaluation.",
		}, []string{"set"}),
		epochAccuracy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synapse_epoch_accuracy",
			Help: "Accuracy of the most recent epoch evaluation.",
		}, []string{"set"}),
		samplesDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synapse_samples_processed_total",
			Help: "Training samples processed across all epochs.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.epochCost.Describe(ch)
	c.epochAccuracy.Describe(ch)
	c.samplesDone.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.epochCost.Collect(ch)
	c.epochAccuracy.Collect(ch)
	c.samplesDone.Collect(ch)
}

// Callbacks returns a callback set publishing into the collector. Merge the
// fields with your own observers if you need both.
func (c *Collector) Callbacks() Callbacks {
	var lastDone int
	return Callbacks{
		BatchProgress: func(p BatchProgress) {
			if p.BatchIndex == 0 {
				lastDone = 0 // new epoch
			}
			c.samplesDone.Add(float64(p.SamplesDone - lastDone))
			lastDone = p.SamplesDone
		},
		TrainingProgress: func(p Progress, _ Snapshot) {
			c.epochCost.WithLabelValues("train").Set(float64(p.Cost))
			c.epochAccuracy.WithLabelValues("train").Set(float64(p.Accuracy))
		},
		TestProgress: func(p Progress) {
			c.epochCost.WithLabelValues("test").Set(float64(p.Cost))
			c.epochAccuracy.WithLabelValues("test").Set(float64(p.Accuracy))
		},
	}
}
