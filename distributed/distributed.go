// Package distributed dispatches query evaluation across a pool of worker
// processes over etcd, for the -serve CLI mode: one
// dispatcher publishes jobs and waits on results, any number of workers
// watch the job prefix and run them locally via the verifier package.
//
// A job carries only the query's Text; the dispatcher and every worker are
// expected to have loaded the same query set from the same config (surface
// query syntax is out of scope per spec.md §1, so there is no wire format
// for an NFA -- only for identifying which already-parsed query to run).
package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"

	"netverify/query"
	"netverify/verifier"
)

const (
	jobPrefix    = "/netverify/jobs/"
	resultPrefix = "/netverify/results/"
)

// Job is one query-evaluation request.
type Job struct {
	ID        string    `json:"id"`
	QueryText string    `json:"query_text"`
	CreatedAt time.Time `json:"created_at"`
}

// JobResult carries back a verifier.Report, flattened to plain fields so it
// survives a JSON round trip without the Report's time.Duration values.
type JobResult struct {
	JobID       string `json:"job_id"`
	Verdict     string `json:"verdict"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	Err         string `json:"error,omitempty"`
	CompletedAt time.Time
}

// Config is the etcd connection configuration shared by Dispatcher and
// Worker.
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
}

// DefaultConfig mirrors the single-node local etcd the reference task
// dispatcher assumes.
func DefaultConfig() Config {
	return Config{Endpoints: []string{"localhost:2379"}, DialTimeout: 5 * time.Second}
}

func newClient(cfg Config) (*clientv3.Client, error) {
	client, err := clientv3.New(clientv3.Config{Endpoints: cfg.Endpoints, DialTimeout: cfg.DialTimeout})
	if err != nil {
		return nil, fmt.Errorf("distributed: connecting to etcd: %w", err)
	}
	return client, nil
}

// Dispatcher publishes jobs and collects results.
type Dispatcher struct {
	client *clientv3.Client
	id     string
	cfg    Config
}

// NewDispatcher connects to etcd per cfg.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{client: client, id: fmt.Sprintf("dispatcher-%d", time.Now().Unix()), cfg: cfg}, nil
}

// Close releases the etcd client.
func (d *Dispatcher) Close() { d.client.Close() }

// Submit publishes one job for queryText and returns its ID.
func (d *Dispatcher) Submit(ctx context.Context, queryText string) (string, error) {
	job := Job{ID: fmt.Sprintf("job-%d", time.Now().UnixNano()), QueryText: queryText, CreatedAt: time.Now()}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("distributed: marshaling job: %w", err)
	}
	if _, err := d.client.Put(ctx, jobPrefix+job.ID, string(body)); err != nil {
		return "", fmt.Errorf("distributed: publishing job: %w", err)
	}
	log.WithField("job", job.ID).Infof("distributed: [%s] job published for %q", d.id, queryText)
	return job.ID, nil
}

// Await blocks until jobID's result is posted, or timeout elapses.
func (d *Dispatcher) Await(ctx context.Context, jobID string, timeout time.Duration) (*JobResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	watch := d.client.Watch(ctx, resultPrefix+jobID)
	for resp := range watch {
		for _, ev := range resp.Events {
			if ev.Type != clientv3.EventTypePut {
				continue
			}
			var result JobResult
			if err := json.Unmarshal(ev.Kv.Value, &result); err != nil {
				return nil, fmt.Errorf("distributed: unmarshaling result: %w", err)
			}
			return &result, nil
		}
	}
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("distributed: timed out waiting for job %s", jobID)
	}
	return nil, ctx.Err()
}

// Worker watches the job prefix and evaluates every job whose query text it
// recognizes against its own loaded queries/net/tables.
type Worker struct {
	client  *clientv3.Client
	id      string
	queries map[string]*query.Query
	opt     verifier.Options
	run     func(q *query.Query) *verifier.Report
}

// NewWorker connects to etcd and prepares to evaluate jobs using runFn
// (typically a closure over the worker's loaded network/tables calling
// verifier.Run).
func NewWorker(cfg Config, queries []*query.Query, runFn func(q *query.Query) *verifier.Report) (*Worker, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	byText := make(map[string]*query.Query, len(queries))
	for _, q := range queries {
		byText[q.Text] = q
	}
	return &Worker{
		client:  client,
		id:      fmt.Sprintf("worker-%d", time.Now().Unix()),
		queries: byText,
		run:     runFn,
	}, nil
}

// Close releases the etcd client.
func (w *Worker) Close() { w.client.Close() }

// Serve watches for jobs until ctx is cancelled.
func (w *Worker) Serve(ctx context.Context) error {
	log.Infof("distributed: [%s] worker starting, %d known queries", w.id, len(w.queries))
	watch := w.client.Watch(ctx, jobPrefix, clientv3.WithPrefix())
	for {
		select {
		case <-ctx.Done():
			log.Infof("distributed: [%s] worker shutting down", w.id)
			return nil
		case resp, ok := <-watch:
			if !ok {
				return fmt.Errorf("distributed: watch channel closed")
			}
			for _, ev := range resp.Events {
				if ev.Type == clientv3.EventTypePut {
					go w.handle(ctx, ev)
				}
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, ev *clientv3.Event) {
	var job Job
	if err := json.Unmarshal(ev.Kv.Value, &job); err != nil {
		log.WithError(err).Errorf("distributed: [%s] unmarshaling job", w.id)
		return
	}
	q, ok := w.queries[job.QueryText]
	if !ok {
		log.Errorf("distributed: [%s] no matching query for job %s", w.id, job.ID)
		return
	}

	rep := w.run(q)
	result := JobResult{JobID: job.ID, Verdict: rep.Verdict.String(), ElapsedMS: rep.Elapsed.Milliseconds(), Err: rep.Err, CompletedAt: time.Now()}
	body, err := json.Marshal(result)
	if err != nil {
		log.WithError(err).Errorf("distributed: [%s] marshaling result for job %s", w.id, job.ID)
		return
	}
	if _, err := w.client.Put(ctx, resultPrefix+job.ID, string(body)); err != nil {
		log.WithError(err).Errorf("distributed: [%s] publishing result for job %s", w.id, job.ID)
	}
}
