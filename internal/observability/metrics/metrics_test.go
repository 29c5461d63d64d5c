package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestBotMetricsObserve(t *testing.T) {
	m := NewBotMetrics(prometheus.NewRegistry())
	m.ObserveInbound("media", "accepted")
	m.ObserveIntent("retrieve", "high")
	m.ObserveIngest("image", "stored")
	m.ObserveLinkResolve("hit")
	m.ObserveWebhookLatency("media", 0.5)
}

func TestBotMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBotMetrics(reg)
	m.ObserveIngest("audio", "failed")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one metric family")
	}
}

func TestBotMetricsNilSafe(t *testing.T) {
	var m *BotMetrics
	m.ObserveInbound("text", "accepted")
	m.ObserveIntent("none", "low")
	m.ObserveIngest("document", "stored")
	m.ObserveLinkResolve("miss")
	m.ObserveWebhookLatency("text", 0.1)
}
