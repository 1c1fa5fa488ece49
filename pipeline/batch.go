package pipeline

import (
	"context"
	"sync"

	"github.com/aluiziolira/go-scrape-asin/models"
	"github.com/aluiziolira/go-scrape-asin/parser"
)

// BatchResult pairs a requested code with its lookup result.
type BatchResult struct {
	Raw     string
	Outcome models.ScrapeOutcome
	Err     error
}

// Batch looks up raws with at most workers concurrent invocations and
// returns results in input order. A code requested twice is fetched once;
// the duplicate shares the result.
func (p *Pipeline) Batch(ctx context.Context, raws []string, workers int) []BatchResult {
	if workers <= 0 {
		workers = 1
	}

	results := make([]BatchResult, len(raws))
	first := make(map[models.ProductCode]int, len(raws))
	duplicateOf := make(map[int]int)
	var unique []int
	for i, raw := range raws {
		results[i].Raw = raw
		code, err := parser.ValidateCode(raw)
		if err != nil {
			results[i].Err = err
			continue
		}
		if j, ok := first[code]; ok {
			duplicateOf[i] = j
			continue
		}
		first[code] = i
		unique = append(unique, i)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out, err := p.FetchProduct(ctx, raws[i])
				results[i].Outcome, results[i].Err = out, err
			}
		}()
	}

	fed := 0
feed:
	for _, i := range unique {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
			fed++
		}
	}
	close(jobs)
	wg.Wait()

	for _, i := range unique[fed:] {
		results[i].Err = ctx.Err()
	}
	for i, j := range duplicateOf {
		results[i].Outcome, results[i].Err = results[j].Outcome, results[j].Err
	}
	return results
}
