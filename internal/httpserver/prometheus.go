package httpserver

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/schedstat-top/internal/schedstat"
)

const metricsNamespace = "schedstat"

type schedstatCollector struct {
	sampler ReportSource

	rate         map[schedstat.Kind]*prometheus.Desc
	total        map[schedstat.Kind]*prometheus.Desc
	resets       *prometheus.Desc
	samples      *prometheus.Desc
	reports      *prometheus.Desc
	records      *prometheus.Desc
	formatVer    *prometheus.Desc
	sampleTime   *prometheus.Desc
	sampleAge    *prometheus.Desc
	windowLength *prometheus.Desc
}

func newSchedstatCollector(source ReportSource) prometheus.Collector {
	if source == nil {
		return nil
	}

	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, subsystem, name),
			help,
			labels,
			nil,
		)
	}

	c := &schedstatCollector{
		sampler: source,
		rate: map[schedstat.Kind]*prometheus.Desc{
			schedstat.KindCPU:    desc("cpu", "rate_per_second", "Per-second rate of an aggregated cpu counter over the last window.", "index", "name"),
			schedstat.KindDomain: desc("domain", "rate_per_second", "Per-second rate of an aggregated domain counter over the last window.", "index", "name"),
		},
		total: map[schedstat.Kind]*prometheus.Desc{
			schedstat.KindCPU:    desc("cpu", "counter_total", "Aggregated cpu counter summed over all cpu records.", "index", "name"),
			schedstat.KindDomain: desc("domain", "counter_total", "Aggregated domain counter summed over all domain records.", "index", "name"),
		},
		resets:       desc("sampler", "counter_resets_total", "Counter positions observed going backwards since start.", "kind"),
		samples:      desc("sampler", "samples_total", "Total schedstat reads since start."),
		reports:      desc("sampler", "reports_total", "Total rate reports produced since start."),
		records:      desc("", "records", "Number of records aggregated in the latest snapshot.", "kind"),
		formatVer:    desc("", "format_version", "Format version reported by the schedstat source."),
		sampleTime:   desc("sampler", "sample_timestamp_seconds", "Unix timestamp of the latest schedstat read."),
		sampleAge:    desc("sampler", "sample_age_seconds", "Seconds elapsed since the latest schedstat read."),
		windowLength: desc("sampler", "window_seconds", "Elapsed seconds covered by the latest rate report."),
	}
	return c
}

func (c *schedstatCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, kind := range schedstat.Kinds {
		ch <- c.rate[kind]
		ch <- c.total[kind]
	}
	ch <- c.resets
	ch <- c.samples
	ch <- c.reports
	ch <- c.records
	ch <- c.formatVer
	ch <- c.sampleTime
	ch <- c.sampleAge
	ch <- c.windowLength
}

func (c *schedstatCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.sampler.Stats()
	ch <- prometheus.MustNewConstMetric(c.samples, prometheus.CounterValue, float64(stats.Samples))
	ch <- prometheus.MustNewConstMetric(c.reports, prometheus.CounterValue, float64(stats.Reports))
	ch <- prometheus.MustNewConstMetric(c.resets, prometheus.CounterValue, float64(stats.CPUResets), string(schedstat.KindCPU))
	ch <- prometheus.MustNewConstMetric(c.resets, prometheus.CounterValue, float64(stats.DomainResets), string(schedstat.KindDomain))

	if snap, ok := c.sampler.LatestSnapshot(); ok {
		ch <- prometheus.MustNewConstMetric(c.records, prometheus.GaugeValue, float64(snap.CPUs), string(schedstat.KindCPU))
		ch <- prometheus.MustNewConstMetric(c.records, prometheus.GaugeValue, float64(snap.Domains), string(schedstat.KindDomain))
		ch <- prometheus.MustNewConstMetric(c.formatVer, prometheus.GaugeValue, float64(snap.Version))
		for _, kind := range schedstat.Kinds {
			for i, value := range snap.Counters(kind) {
				name, _ := schedstat.Label(kind, i)
				ch <- prometheus.MustNewConstMetric(c.total[kind], prometheus.CounterValue, float64(value), strconv.Itoa(i), name)
			}
		}
	}

	if !stats.LastSampleTime.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.sampleTime, prometheus.GaugeValue, float64(stats.LastSampleTime.Unix()))
		age := time.Since(stats.LastSampleTime).Seconds()
		if age < 0 {
			age = 0
		}
		ch <- prometheus.MustNewConstMetric(c.sampleAge, prometheus.GaugeValue, age)
	}

	latest, ok := c.sampler.Latest()
	if !ok {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.windowLength, prometheus.GaugeValue, latest.ElapsedSeconds)
	for _, kind := range schedstat.Kinds {
		for i, rate := range latest.Delta(kind).Rates {
			name, _ := schedstat.Label(kind, i)
			ch <- prometheus.MustNewConstMetric(c.rate[kind], prometheus.GaugeValue, rate, strconv.Itoa(i), name)
		}
	}
}
