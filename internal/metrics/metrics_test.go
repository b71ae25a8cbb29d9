package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCounters(t *testing.T) {
	c := NewMetricsCollector()
	c.TickCompleted("ticker", 2*time.Second)
	c.UpstreamError("ticker")
	c.Tracked("news", 3)
	c.EventEmitted("goal")
	c.Delivery(ResultSent)
	c.Delivery(ResultFailed)

	srv := httptest.NewServer(Handler(c))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	for _, want := range []string{
		`toonbot_ticks_total{poller="ticker"} 1`,
		`toonbot_upstream_errors_total{poller="ticker"} 1`,
		`toonbot_tracked_entities{poller="news"} 3`,
		`toonbot_events_total{kind="goal"} 1`,
		`toonbot_deliveries_total{result="sent"} 1`,
		`toonbot_deliveries_total{result="failed"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
