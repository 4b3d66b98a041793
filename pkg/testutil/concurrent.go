package testutil

import (
	"sync"

	dErrors "workspace-audit/pkg/domain-errors"
)

// Outcomes summarizes a RunConcurrent call. Failures are bucketed by domain
// code; foreign errors land under CodeInternal.
type Outcomes struct {
	Successes int
	ByCode    map[dErrors.Code]int
	Errors    []error
}

// Failures is the number of calls that returned an error.
func (o Outcomes) Failures() int {
	return len(o.Errors)
}

// RunConcurrent starts n goroutines running fn and waits for all of them.
func RunConcurrent(n int, fn func(idx int) error) Outcomes {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out = Outcomes{ByCode: map[dErrors.Code]int{}}
	)
	for i := range n {
		wg.Go(func() {
			err := fn(i)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				out.Successes++
				return
			}
			out.ByCode[dErrors.CodeOf(err)]++
			out.Errors = append(out.Errors, err)
		})
	}
	wg.Wait()
	return out
}
