package call

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebot_opus_packets_total",
		Help: "Opus packets received from Discord",
	})

	metricPacketsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicebot_opus_packets_dropped_total",
		Help: "Opus packets dropped before decoding",
	}, []string{"reason"})

	metricPlayback = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicebot_playback_total",
		Help: "Sounds played into calls by result",
	}, []string{"result"})

	metricCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicebot_active_calls",
		Help: "Voice calls currently joined",
	})
)
