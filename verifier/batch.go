package verifier

import (
	"fmt"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"

	"netverify/network"
	"netverify/query"
	"netverify/rtable"
)

// BatchRunner evaluates many queries concurrently over a shared network and
// routing-table snapshot, using a fixed-size ants worker pool the way the
// reference forwarding daemon sizes its goroutine pool, but preserving the
// caller's query order in the returned reports rather than the order
// completions happen to land in.
type BatchRunner struct {
	pool *ants.Pool
	net  *network.Network
	rt   map[network.RouterID]*rtable.Table
	opt  Options
}

// NewBatchRunner creates a runner backed by a pool of maxWorkers goroutines.
func NewBatchRunner(net *network.Network, tables map[network.RouterID]*rtable.Table, opt Options, maxWorkers int) (*BatchRunner, error) {
	pool, err := ants.NewPool(maxWorkers)
	if err != nil {
		return nil, fmt.Errorf("verifier: creating worker pool: %w", err)
	}
	return &BatchRunner{pool: pool, net: net, rt: tables, opt: opt}, nil
}

// Close releases the worker pool.
func (b *BatchRunner) Close() { b.pool.Release() }

// RunAll evaluates every query in queries and returns one Report per query,
// in the same order, regardless of completion order.
func (b *BatchRunner) RunAll(queries []*query.Query) []*Report {
	reports := make([]*Report, len(queries))
	done := make(chan int, len(queries))

	for i, q := range queries {
		i, q := i, q
		err := b.pool.Submit(func() {
			reports[i] = Run(b.net, b.rt, q, b.opt)
			done <- i
		})
		if err != nil {
			log.WithError(err).Errorf("verifier: submitting query %q to pool", q.Text)
			reports[i] = &Report{Query: q.Text, Verdict: Unknown, Err: err.Error()}
			done <- i
		}
	}
	for range queries {
		<-done
	}
	return reports
}
