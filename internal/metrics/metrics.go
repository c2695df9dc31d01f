// Package metrics exposes the prometheus counters shared by the server-side
// components. Registered on the default registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chirp_messages_created_total",
		Help: "Messages committed by the store.",
	})
	MessagesEdited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chirp_messages_edited_total",
		Help: "Successful edit operations.",
	})
	MessagesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chirp_messages_deleted_total",
		Help: "Successful soft deletes.",
	})
	PinToggles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chirp_pin_toggles_total",
		Help: "Successful pin/unpin operations.",
	})
	DeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chirp_deliveries_dropped_total",
		Help: "Events not delivered because the target session send buffer was unavailable.",
	})
	ClassificationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chirp_classification_fallbacks_total",
		Help: "Sends that proceeded with a neutral verdict because classification failed.",
	})
	MediaInlineFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chirp_media_inline_fallbacks_total",
		Help: "Sends that inlined media because the media store failed.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chirp_malformed_frames_total",
		Help: "Inbound channel frames rejected at the schema boundary.",
	})
)
