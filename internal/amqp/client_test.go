package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"sewa/internal/core"
	"sewa/internal/sheets"
)

func TestExponentialBackoff(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, maxBackoff, maxBackoff}
	for attempt, w := range want {
		if got := exponentialBackoff(attempt); got != w {
			t.Errorf("exponentialBackoff(%d) = %v, want %v", attempt, got, w)
		}
	}
	if got := exponentialBackoff(-3); got != time.Second {
		t.Errorf("negative attempt = %v, want 1s", got)
	}
	if got := exponentialBackoff(40); got != maxBackoff {
		t.Errorf("large attempt = %v, want %v", got, maxBackoff)
	}
}

func TestIsConnectionError(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want bool
	}{
		{nil, false},
		{amqp091.ErrClosed, true},
		{fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{errors.New("dial tcp 10.0.0.3:5672: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("channel/connection is not open"), true},
		{errors.New("invalid reading"), false},
	} {
		if got := isConnectionError(tc.err); got != tc.want {
			t.Errorf("isConnectionError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func breakerState(c *Client) int32 { return atomic.LoadInt32(&c.state) }

func TestCircuitBreakerSequence(t *testing.T) {
	c := &Client{}
	if c.isCircuitOpen() {
		t.Fatal("new client starts open")
	}

	for i := 1; i < maxFailures; i++ {
		c.recordFailure()
		if c.isCircuitOpen() {
			t.Fatalf("open after %d failures, threshold is %d", i, maxFailures)
		}
	}
	c.recordFailure()
	if !c.isCircuitOpen() || breakerState(c) != StateOpen {
		t.Fatal("threshold reached but breaker not open")
	}

	// Age the last failure past the open window.
	c.mu.Lock()
	c.lastFailure = time.Now().Add(-openTimeout - time.Second)
	c.mu.Unlock()
	if c.isCircuitOpen() || breakerState(c) != StateHalfOpen {
		t.Fatalf("state = %d after open window, want half-open", breakerState(c))
	}

	c.recordFailure()
	if breakerState(c) != StateOpen {
		t.Fatal("failed trial call should reopen")
	}

	c.recordSuccess()
	if breakerState(c) != StateClosed || atomic.LoadInt64(&c.failureCount) != 0 {
		t.Fatal("success should close and reset the count")
	}
}

func TestPublishGuards(t *testing.T) {
	t.Run("open breaker", func(t *testing.T) {
		c := &Client{}
		atomic.StoreInt32(&c.state, StateOpen)
		c.lastFailure = time.Now()

		err := c.PublishBillRecorded(context.Background(), core.BillingRecord{ID: "rec-1"})
		if !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("err = %v, want ErrCircuitOpen", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := (&Client{}).PublishTenantRegistered(ctx, core.Tenant{ID: "t-1"})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	})

	t.Run("unreachable broker", func(t *testing.T) {
		c := &Client{url: "amqp://invalid.invalid:1/", exchangeName: "sewa", queueName: "sync_rows"}
		if err := c.publishOnce(context.Background(), []byte("{}")); !isConnectionError(err) {
			t.Fatalf("err = %v, want a connection error", err)
		}
	})
}

func TestHealthyWithoutConnection(t *testing.T) {
	c := &Client{}
	if c.Healthy() {
		t.Fatal("client without a connection reported healthy")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() on idle client = %v", err)
	}
}

func TestNewMessages(t *testing.T) {
	tests := []struct {
		name      string
		msg       *RowSyncMessage
		wantKind  string
		wantTable string
	}{
		{"bill", NewBillRecordedMessage("rec-1"), KindBillRecorded, sheets.TableRecords},
		{"tenant", NewTenantRegisteredMessage("t-1"), KindTenantRegistered, sheets.TableTenants},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.msg.Kind != tt.wantKind || tt.msg.Table != tt.wantTable {
				t.Errorf("got kind=%q table=%q, want %q %q", tt.msg.Kind, tt.msg.Table, tt.wantKind, tt.wantTable)
			}
			if tt.msg.Timestamp.IsZero() || time.Since(tt.msg.Timestamp) > time.Second {
				t.Error("Timestamp should be recent")
			}
		})
	}
}

func TestRowSyncMessage_JSON(t *testing.T) {
	timestamp := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := &RowSyncMessage{
		Kind:      KindBillRecorded,
		Table:     sheets.TableRecords,
		Key:       "rec-1",
		Timestamp: timestamp,
	}

	jsonBytes, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := RowSyncMessageFromJSON(jsonBytes)
	if err != nil {
		t.Fatalf("RowSyncMessageFromJSON() error = %v", err)
	}
	if parsed.Key != msg.Key || parsed.Kind != msg.Kind || parsed.Table != msg.Table {
		t.Errorf("parsed = %+v, want %+v", parsed, msg)
	}
	if !parsed.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("Parsed Timestamp = %v, want %v", parsed.Timestamp, msg.Timestamp)
	}
}

func TestRowSyncMessage_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      `{"kind": 1`,
		"unknown table": `{"kind":"bill_recorded","table":"invoices","key":"x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := RowSyncMessageFromJSON([]byte(body)); err == nil {
				t.Error("RowSyncMessageFromJSON() should fail")
			}
		})
	}
}
