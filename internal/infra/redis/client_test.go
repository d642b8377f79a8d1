package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKeys(t *testing.T) {
	if got := leaseKey("purge-ads"); got != "sweeper:lease:purge-ads" {
		t.Errorf("leaseKey = %q", got)
	}
	if got := progressKey("purge-ads"); got != "sweeper:progress:purge-ads" {
		t.Errorf("progressKey = %q", got)
	}
}

func TestProgressFieldsRoundTrip(t *testing.T) {
	at := time.Unix(1700000000, 0)
	fields := progressFields("run-1", 10050, at)

	vals := make(map[string]string, len(fields))
	for k, v := range fields {
		vals[k] = v.(string)
	}

	p, err := parseProgress(vals)
	if err != nil {
		t.Fatalf("parseProgress: %v", err)
	}
	if p.RunID != "run-1" || p.Total != 10050 || !p.UpdatedAt.Equal(at) {
		t.Errorf("got %+v", p)
	}
}

func TestParseProgress_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vals map[string]string
	}{
		{"missing total", map[string]string{"run_id": "x"}},
		{"bad total", map[string]string{"total": "many"}},
		{"bad timestamp", map[string]string{"total": "1", "updated_at": "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseProgress(tt.vals); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient(Config{URL: "not-a-url"}); err == nil {
		t.Error("expected error for invalid URL")
	}
}

type fakeConn struct {
	err    error
	closed int
}

func (f *fakeConn) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

func (f *fakeConn) Close() error {
	f.closed++
	return nil
}

func TestPing_ClosesOnFailure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantClosed int
	}{
		{"answers", nil, 0},
		{"refused", errors.New("connection refused"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeConn{err: tt.err}
			err := ping(context.Background(), c)
			if (err != nil) != (tt.err != nil) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want wrapped %v", err, tt.err)
			}
			if c.closed != tt.wantClosed {
				t.Errorf("closed %d times, want %d", c.closed, tt.wantClosed)
			}
		})
	}
}
