package allocation

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of one request in a batch.
type BatchResult struct {
	Index  int
	Result   *Result
	Err      error
	Duration time.Duration // Wall time of this request, 0 if it never started
}

// ComputeBatch runs independent requests on a bounded worker pool. Results come back
// in request order; one failing request does not affect the others. Requests that have
// not started when ctx is done report ctx.Err().
func (s *Service) ComputeBatch(ctx context.Context, reqs []Request) []BatchResult {
	results := make([]BatchResult, len(reqs))

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, req := range reqs {
		results[i].Index = i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			start := time.Now()
			results[i].Result, results[i].Err = s.ComputeAllocation(req)
			results[i].Duration = time.Since(start)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.log.Debug().Int("requests", len(reqs)).Int("failed", failed).Msg("Batch finished")

	return results
}
