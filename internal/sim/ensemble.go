package sim

import (
	"context"
	"sync"
)

// Ensemble runs the same experiment across a range of seeds, one stepper
// per run so the runs share nothing. The factory builds a fully wired
// stepper (textures, provider, metrics) for a given seed.
type Ensemble struct {
	build     func(seed int64) (*Stepper, error)
	numRuns   int
	seedStart int64
}

func NewEnsemble(build func(seed int64) (*Stepper, error), numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{build: build, numRuns: numRuns, seedStart: seedStart}
}

// Run executes every seed and returns one Result per run, index-aligned
// with the seed range. A run whose stepper fails to build leaves a nil
// entry; the first error is returned alongside whatever results exist.
func (e *Ensemble) Run(ctx context.Context, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			cfgCopy := cfg
			cfgCopy.Seed = e.seedStart + int64(idx)

			st, err := e.build(cfgCopy.Seed)
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx], errs[idx] = st.Run(ctx, cfgCopy)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
