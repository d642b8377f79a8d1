package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned when another run owns the job's lease.
var ErrLeaseHeld = errors.New("lease held by another run")

// Client wraps Redis operations for run coordination.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ping(ctx, rdb); err != nil {
		return nil, err
	}

	return &Client{rdb: rdb}, nil
}

type conn interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// ping closes c when the server does not answer.
func ping(ctx context.Context, c conn) error {
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func leaseKey(job string) string {
	return fmt.Sprintf("sweeper:lease:%s", job)
}

func progressKey(job string) string {
	return fmt.Sprintf("sweeper:progress:%s", job)
}

// Only the owner may extend or drop a lease.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Lease is an exclusive, expiring claim on a job name.
type Lease struct {
	c     *Client
	job   string
	token string
	ttl   time.Duration
}

// AcquireLease takes the job's lease or returns ErrLeaseHeld.
func (c *Client) AcquireLease(ctx context.Context, job string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, leaseKey(job), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("job %s: %w", job, ErrLeaseHeld)
	}
	return &Lease{c: c, job: job, token: token, ttl: ttl}, nil
}

// Refresh extends the lease TTL. It fails with ErrLeaseHeld if the lease
// expired and was taken by someone else.
func (l *Lease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.c.rdb, []string{leaseKey(l.job)}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", l.job, ErrLeaseHeld)
	}
	return nil
}

// Keep refreshes the lease every ttl/3 until ctx ends. It returns the first
// refresh error, which means the lease is lost.
func (l *Lease) Keep(ctx context.Context) error {
	ticker := time.NewTicker(max(l.ttl/3, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Release drops the lease if it is still ours.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.c.rdb, []string{leaseKey(l.job)}, l.token).Err(); err != nil {
		return fmt.Errorf("release failed: %w", err)
	}
	return nil
}

// Progress is the last checkpoint written for a job.
type Progress struct {
	RunID     string
	Total     int64
	UpdatedAt time.Time
}

// Checkpoint stores progress snapshots for one run of a job.
type Checkpoint struct {
	c     *Client
	job   string
	runID string
}

// Checkpoint returns a progress sink for the given run.
func (c *Client) Checkpoint(job, runID string) *Checkpoint {
	return &Checkpoint{c: c, job: job, runID: runID}
}

// SaveProgress records the run's running total.
func (cp *Checkpoint) SaveProgress(ctx context.Context, total int64) error {
	return cp.c.rdb.HSet(ctx, progressKey(cp.job), progressFields(cp.runID, total, time.Now())).Err()
}

// GetProgress returns the last checkpoint for job, or found=false.
func (c *Client) GetProgress(ctx context.Context, job string) (p Progress, found bool, err error) {
	vals, err := c.rdb.HGetAll(ctx, progressKey(job)).Result()
	if err != nil {
		return Progress{}, false, fmt.Errorf("hgetall failed: %w", err)
	}
	if len(vals) == 0 {
		return Progress{}, false, nil
	}
	p, err = parseProgress(vals)
	if err != nil {
		return Progress{}, false, err
	}
	return p, true, nil
}

func progressFields(runID string, total int64, at time.Time) map[string]any {
	return map[string]any{
		"run_id":     runID,
		"total":      strconv.FormatInt(total, 10),
		"updated_at": strconv.FormatInt(at.Unix(), 10),
	}
}

func parseProgress(vals map[string]string) (Progress, error) {
	total, err := strconv.ParseInt(vals["total"], 10, 64)
	if err != nil {
		return Progress{}, fmt.Errorf("invalid total: %w", err)
	}
	var updated time.Time
	if s := vals["updated_at"]; s != "" {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Progress{}, fmt.Errorf("invalid updated_at: %w", err)
		}
		updated = time.Unix(sec, 0)
	}
	return Progress{RunID: vals["run_id"], Total: total, UpdatedAt: updated}, nil
}
