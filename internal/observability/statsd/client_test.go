package statsd

import (
	"net"
	"testing"
	"time"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	prefixed := &Client{prefix: "wanderplan"}
	tests := map[string]string{
		"job.transition":  "wanderplan.job.transition",
		" .reaper.sweep.": "wanderplan.reaper.sweep",
		"two words":       "wanderplan.two_words",
		"   ":             "",
	}
	for input, want := range tests {
		if got := prefixed.metricName(input); got != want {
			t.Fatalf("metricName(%q) = %q, want %q", input, got, want)
		}
	}

	bare := &Client{}
	if got := bare.metricName("job.duration"); got != "job.duration" {
		t.Fatalf("metricName without prefix = %q", got)
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	got := formatTags(map[string]string{
		"result": "success",
		"kind":   "generation",
		"":       "ignored",
	})
	want := "|#kind:generation,result:success"
	if got != want {
		t.Fatalf("formatTags mismatch\n got: %q\nwant: %q", got, want)
	}

	if got := formatTags(nil); got != "" {
		t.Fatalf("formatTags(nil) = %q, want empty string", got)
	}
}

func TestFormatFloat(t *testing.T) {
	t.Parallel()

	if got := formatFloat(1.5); got != "1.5" {
		t.Fatalf("formatFloat(1.5) = %q", got)
	}
	if got := formatFloat(12); got != "12" {
		t.Fatalf("formatFloat(12) = %q", got)
	}
}

func TestClientWritesLineProtocol(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{prefix: "wanderplan", conn: clientConn}

	lines := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, err := peerConn.Read(buf)
		if err != nil {
			return
		}
		lines <- string(buf[:n])
	}()

	client.Count("job.transition", 1, map[string]string{"result": "success"})

	select {
	case line := <-lines:
		want := "wanderplan.job.transition:1|c|#result:success"
		if line != want {
			t.Fatalf("wrote %q, want %q", line, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no metric written")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	// Close is idempotent, and writes after Close are discarded.
	if err := client.Close(); err != nil {
		t.Fatalf("Close (second call) error: %v", err)
	}
	client.Count("job.transition", 1, nil)
}

func TestNilAndDisabledClientDiscard(t *testing.T) {
	t.Parallel()

	var nilClient *Client
	nilClient.Count("x", 1, nil)
	nilClient.Gauge("x", 1, nil)
	nilClient.Timing("x", time.Second, nil)
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}

	disabled, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	disabled.Count("x", 1, nil)
	if err := disabled.Close(); err != nil {
		t.Fatalf("disabled client Close error: %v", err)
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{Enabled: true, Address: "bad address"}); err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
}
