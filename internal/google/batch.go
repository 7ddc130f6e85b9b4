package google

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// fetchEach runs fetch for every id with at most limit in flight, each under
// its own timeout. Failures are reported through onError and never abort the
// batch. Successes come back in the order of ids.
func fetchEach[T any](
	ctx context.Context,
	ids []string,
	limit int,
	timeout time.Duration,
	fetch func(ctx context.Context, id string) (T, error),
	onError func(id string, err error),
) ([]T, int) {
	results := make([]*T, len(ids))
	failed := make([]error, len(ids))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range ids {
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			item, err := fetch(itemCtx, id)
			if err != nil {
				failed[i] = err
				return nil
			}
			results[i] = &item
			return nil
		})
	}
	_ = g.Wait()

	items := make([]T, 0, len(ids))
	omitted := 0
	for i, r := range results {
		if r == nil {
			omitted++
			if onError != nil {
				onError(ids[i], failed[i])
			}
			continue
		}
		items = append(items, *r)
	}
	return items, omitted
}
