package voice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFramesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebot_frames_written_total",
		Help: "PCM frames delivered to voice sessions",
	})

	metricFramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicebot_frames_dropped_total",
		Help: "PCM frames dropped before reaching the recognizer",
	}, []string{"reason"})

	metricRecognizerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebot_recognizer_errors_total",
		Help: "Recognizer construction or decode failures",
	})

	metricRecognizerSwaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebot_recognizer_swaps_total",
		Help: "Recognizer instances replaced",
	})

	metricActivations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebot_wake_activations_total",
		Help: "Wake word activations",
	})

	metricTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicebot_session_transitions_total",
		Help: "Session state transitions by event",
	}, []string{"event"})
)
