package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type ApprovalMetrics struct {
	admissions    prometheus.Counter
	rejections    *prometheus.CounterVec
	consumptions  prometheus.Counter
	consumeMisses prometheus.Counter
	liveApprovals prometheus.Gauge
}

var (
	approvalOnce     sync.Once
	approvalRegistry *ApprovalMetrics
)

func Approval() *ApprovalMetrics {
	approvalOnce.Do(func() {
		approvalRegistry = &ApprovalMetrics{
			admissions: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "approval_admissions_total",
				Help: "Count of approvals admitted into the registry.",
			}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "approval_rejections_total",
				Help: "Count of rejected admission attempts by reason.",
			}, []string{"reason"}),
			consumptions: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "approval_consumptions_total",
				Help: "Count of approvals consumed by settlements.",
			}),
			consumeMisses: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "approval_consume_misses_total",
				Help: "Count of consume attempts that found no matching approval.",
			}),
			liveApprovals: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "approval_live",
				Help: "Number of approvals currently admitted and unconsumed.",
			}),
		}
		prometheus.MustRegister(
			approvalRegistry.admissions,
			approvalRegistry.rejections,
			approvalRegistry.consumptions,
			approvalRegistry.consumeMisses,
			approvalRegistry.liveApprovals,
		)
	})
	return approvalRegistry
}

func (m *ApprovalMetrics) ObserveAdmission() {
	if m == nil {
		return
	}
	m.admissions.Inc()
	m.liveApprovals.Inc()
}

func (m *ApprovalMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *ApprovalMetrics) ObserveConsumption() {
	if m == nil {
		return
	}
	m.consumptions.Inc()
	m.liveApprovals.Dec()
}

// SetLive seeds the live gauge, typically with the count reloaded from the
// durable store at startup.
func (m *ApprovalMetrics) SetLive(count int) {
	if m == nil {
		return
	}
	m.liveApprovals.Set(float64(count))
}

func (m *ApprovalMetrics) ObserveConsumeMiss() {
	if m == nil {
		return
	}
	m.consumeMisses.Inc()
}

func (m *ApprovalMetrics) InitRejectionReason(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejections.WithLabelValues(reason).Add(0)
}
