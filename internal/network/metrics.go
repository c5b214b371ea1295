package network

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "essence_client"

// Prometheus метрики сетевой подсистемы клиента.
// Регистрируются один раз в глобальном регистре при загрузке пакета.
var (
	packetsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "packets_sent_total",
		Help:      "Отправленные пакеты по полосам приоритета.",
	}, []string{"lane"})

	packetsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "packets_dropped_total",
		Help:      "Отброшенные исходящие пакеты по причинам.",
	}, []string{"reason"})

	batchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "batch_size",
		Help:      "Число сообщений в отправленном batch конверте.",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 40, 50},
	})

	queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "outbound_queue_depth",
		Help:      "Текущая длина исходящих очередей.",
	}, []string{"lane"})

	framesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "frames_received_total",
		Help:      "Полученные входящие кадры.",
	})

	inboundDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "inbound_frames_dropped_total",
		Help:      "Входящие кадры, отброшенные из-за переполнения очереди.",
	})

	eventErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "event_errors_total",
		Help:      "Ошибки обработки входящих событий по категориям.",
	}, []string{"kind"})

	latencyMs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "latency_ms",
		Help:      "Последняя оценка RTT по heartbeat.",
	})
)

func init() {
	prometheus.MustRegister(
		packetsSent,
		packetsDropped,
		batchSize,
		queueDepth,
		framesReceived,
		inboundDropped,
		eventErrors,
		latencyMs,
	)
}
