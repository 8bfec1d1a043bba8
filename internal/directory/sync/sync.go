// Package sync pulls the upstream event catalog on a fixed schedule and
// merges it into the directory. The upstream feed is authoritative for
// name, department, type, and cost; registration counters are local and
// never touched here.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/flowchartsman/retry"

	"passgate/internal/directory"
	"passgate/internal/platform/metrics"
	"passgate/internal/platform/redis"
	"passgate/pkg/platform/sentinel"
)

// departmentMapping translates the feed's department codes to local
// department names. Codes outside this table are skipped, not fatal.
var departmentMapping = map[string]string{
	"CSE":     "CSE_SSN",
	"SNU_CSE": "CSE_SNU",
	"IT":      "IT",
	"ECE":     "ECE",
	"EEE":     "EEE",
	"CHEM":    "CHEM",
	"MECH":    "MECH",
	"CIVIL":   "CIVIL",
	"BME":     "BME",
	"COM":     "COM",
}

const workshopDepartment = "WORKSHOP"

// syncLockKey is the cross-replica advisory lock; TTL bounds how long a
// crashed holder can block other replicas.
const (
	syncLockKey = "passgate:sync:events"
	syncLockTTL = 5 * time.Minute
)

// feedPayload mirrors the upstream catalog JSON.
type feedPayload struct {
	Data []feedEvent `json:"data"`
}

type feedEvent struct {
	ID         int64 `json:"id"`
	Attributes struct {
		Name       string           `json:"name"`
		Department string           `json:"department"`
		Class      string           `json:"class"`
		Cost       *json.RawMessage `json:"cost"`
	} `json:"attributes"`
}

// Job fetches and merges the catalog. Runs are single-flight: an in-process
// TryLock always, plus a Redis advisory lock when configured so only one
// replica syncs at a time.
type Job struct {
	store   directory.Store
	client  *http.Client
	redis   *redis.Client
	metrics *metrics.Metrics
	logger  *slog.Logger

	url     string
	timeout time.Duration

	workshopDefaultCost int64
	nonTechDefaultCost  int64

	running sync.Mutex
}

func NewJob(store directory.Store, client *http.Client, rdb *redis.Client, m *metrics.Metrics, logger *slog.Logger, url string, timeout time.Duration, workshopDefaultCost, nonTechDefaultCost int64) *Job {
	return &Job{
		store:               store,
		client:              client,
		redis:               rdb,
		metrics:             m,
		logger:              logger,
		url:                 url,
		timeout:             timeout,
		workshopDefaultCost: workshopDefaultCost,
		nonTechDefaultCost:  nonTechDefaultCost,
	}
}

// Start runs the job on the interval until ctx is cancelled. One immediate
// run happens at startup so a fresh deployment has a catalog right away.
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	j.RunOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sync pass. Failures are logged and absorbed so
// the schedule keeps going; only the metrics and logs tell the story.
func (j *Job) RunOnce(ctx context.Context) {
	if j.url == "" {
		j.logger.WarnContext(ctx, "events sync skipped, no catalog url configured")
		return
	}
	if !j.running.TryLock() {
		j.logger.WarnContext(ctx, "events sync skipped, previous run still in progress")
		j.metrics.RecordSyncRun("skipped", 0)
		return
	}
	defer j.running.Unlock()

	unlock, ok := j.acquireReplicaLock(ctx)
	if !ok {
		j.logger.InfoContext(ctx, "events sync skipped, another replica holds the lock")
		j.metrics.RecordSyncRun("skipped", 0)
		return
	}
	defer unlock()

	start := time.Now()
	synced, err := j.run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		j.logger.ErrorContext(ctx, "events sync failed", "error", err, "elapsed", elapsed)
		j.metrics.RecordSyncRun("error", elapsed)
		return
	}
	j.logger.InfoContext(ctx, "events sync completed", "events", synced, "elapsed", elapsed)
	j.metrics.RecordSyncRun("ok", elapsed)
	j.metrics.AddSyncedEvents(synced)
}

func (j *Job) acquireReplicaLock(ctx context.Context) (func(), bool) {
	if j.redis == nil {
		return func() {}, true
	}
	ok, err := j.redis.SetNX(ctx, syncLockKey, "1", syncLockTTL).Result()
	if err != nil {
		// Redis being down must not stop the sync; fall back to the
		// in-process guard alone.
		j.logger.WarnContext(ctx, "sync lock unavailable, proceeding without it", "error", err)
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() { j.redis.Del(context.WithoutCancel(ctx), syncLockKey) }, true
}

func (j *Job) run(ctx context.Context) (int, error) {
	payload, err := j.fetch(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, event := range payload.Data {
		if event.Attributes.Name == "" || event.Attributes.Class == "" {
			j.logger.WarnContext(ctx, "malformed catalog event skipped", "external_id", event.ID)
			continue
		}
		if err := j.upsertOne(ctx, event); err != nil {
			j.logger.ErrorContext(ctx, "event sync failed",
				"external_id", event.ID,
				"name", event.Attributes.Name,
				"error", err,
			)
			continue
		}
		synced++
	}
	return synced, nil
}

// fetch retrieves the catalog with a per-attempt timeout and exponential
// backoff across attempts.
func (j *Job) fetch(ctx context.Context) (*feedPayload, error) {
	retrier := retry.NewRetrier(3, time.Second, 10*time.Second)

	var payload feedPayload
	err := retrier.RunContext(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, j.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, j.url, nil)
		if err != nil {
			return retry.Stop(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := j.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch catalog: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("catalog responded with status %d", resp.StatusCode)
		}
		payload = feedPayload{}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("decode catalog: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if payload.Data == nil {
		return nil, errors.New("catalog response has no data array")
	}
	return &payload, nil
}

func (j *Job) upsertOne(ctx context.Context, event feedEvent) error {
	var (
		eventType directory.EventType
		deptName  string
		cost      *int64
	)
	switch event.Attributes.Class {
	case "technical":
		eventType = directory.TypeTechnical
		deptName = departmentMapping[event.Attributes.Department]
		cost = costFromFeed(event.Attributes.Cost, nil)
	case "non-technical":
		eventType = directory.TypeNonTechnical
		deptName = departmentMapping[event.Attributes.Department]
		cost = costFromFeed(event.Attributes.Cost, &j.nonTechDefaultCost)
	case "workshop":
		eventType = directory.TypeWorkshop
		deptName = workshopDepartment
		cost = costFromFeed(event.Attributes.Cost, &j.workshopDefaultCost)
	default:
		j.logger.WarnContext(ctx, "unknown event class skipped",
			"external_id", event.ID,
			"class", event.Attributes.Class,
		)
		return nil
	}
	if deptName == "" {
		j.logger.WarnContext(ctx, "unknown department code skipped",
			"external_id", event.ID,
			"department", event.Attributes.Department,
		)
		return nil
	}

	deptID, err := j.store.DepartmentIDByName(ctx, deptName)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			j.logger.WarnContext(ctx, "department not provisioned, event skipped",
				"external_id", event.ID,
				"department", deptName,
			)
			return nil
		}
		return err
	}

	return j.store.UpsertEvent(ctx, directory.Event{
		ExternalID: event.ID,
		Name:       event.Attributes.Name,
		Department: &deptID,
		Type:       eventType,
		Cost:       cost,
	})
}

// costFromFeed takes the numeric feed cost when present, otherwise the
// per-type default. The feed sometimes carries cost as a string or null.
func costFromFeed(raw *json.RawMessage, fallback *int64) *int64 {
	if raw != nil {
		var n int64
		if err := json.Unmarshal(*raw, &n); err == nil {
			return &n
		}
	}
	if fallback == nil {
		return nil
	}
	v := *fallback
	return &v
}
