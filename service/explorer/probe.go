package explorer

import "context"

// FirstSuccess calls probe for each candidate in order and returns the first
// result without an error, together with the candidate that produced it.
// Probe errors mean "try the next candidate" and are reported to onMiss when
// it is non-nil. When every candidate misses the result is ErrNotFound; a
// cancelled context stops the scan with ctx.Err().
func FirstSuccess[T any](
	ctx context.Context,
	candidates []Network,
	probe func(ctx context.Context, n Network) (T, error),
	onMiss func(n Network, err error),
) (T, Network, error) {
	var zero T
	for _, n := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		v, err := probe(ctx, n)
		if err == nil {
			return v, n, nil
		}
		if onMiss != nil {
			onMiss(n, err)
		}
	}
	return zero, "", ErrNotFound
}
