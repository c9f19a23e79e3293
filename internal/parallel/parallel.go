package parallel

import (
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

// minChunk keeps tiny loops on the calling goroutine.
const minChunk = 256

func workersFor(n int) int {
	workers := runtime.GOMAXPROCS(0)
	if limit := (n + minChunk - 1) / minChunk; workers > limit {
		workers = limit
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// For splits [0, n) into contiguous chunks and runs fn on each chunk concurrently.
func For(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := workersFor(n)
	if workers <= 1 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

type partial struct {
	value float64
	_     cpu.CacheLinePad
}

// Sum evaluates fn over contiguous chunks of [0, n) and adds the partial
// results. Chunks are combined in index order so the result does not depend
// on goroutine scheduling.
func Sum(n int, fn func(start, end int) float64) float64 {
	if n <= 0 {
		return 0
	}
	workers := workersFor(n)
	if workers <= 1 {
		return fn(0, n)
	}
	chunk := (n + workers - 1) / workers
	partials := make([]partial, (n+chunk-1)/chunk)
	var wg sync.WaitGroup
	for idx := range partials {
		start := idx * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(slot, s, e int) {
			defer wg.Done()
			partials[slot].value = fn(s, e)
		}(idx, start, end)
	}
	wg.Wait()
	total := 0.0
	for _, p := range partials {
		total += p.value
	}
	return total
}
