package descriptions

import (
	"context"
	"sync"

	"github.com/openfroyo/descriptions/pkg/fetch"
	"github.com/openfroyo/descriptions/pkg/schema"
)

// maxEnumWorkers bounds the enum requests in flight during one render.
const maxEnumWorkers = 4

type enumKey struct {
	field       string
	fingerprint fetch.Fingerprint
}

type enumJob struct {
	index int
	key   enumKey
}

// applyEnums fills ValueEnum for fields that declare an enum request.
// Results are cached per field and params until Reload or SetColumns.
// Uncached requests run concurrently; problems are reported in column order.
func (d *Descriptions) applyEnums(ctx context.Context, items []schema.FieldSchema) []Problem {
	problems := make([]*Problem, len(items))
	var jobs []enumJob

	for i := range items {
		item := &items[i]
		if item.Request == nil || item.ValueEnum != nil {
			continue
		}

		fp, err := fetch.FingerprintOf(item.Params)
		if err != nil {
			problems[i] = &Problem{Kind: ProblemRequest, Field: item.Key(i).String(), Message: err.Error(), Err: err}
			continue
		}
		key := enumKey{field: item.Key(i).String(), fingerprint: fp}

		d.mu.Lock()
		enum, ok := d.enums[key]
		d.mu.Unlock()
		if ok {
			item.ValueEnum = enum
			continue
		}
		jobs = append(jobs, enumJob{index: i, key: key})
	}
	if len(jobs) == 0 {
		return collectProblems(problems)
	}

	workerCount := maxEnumWorkers
	if len(jobs) < workerCount {
		workerCount = len(jobs)
	}
	queue := make(chan enumJob, len(jobs))
	for _, job := range jobs {
		queue <- job
	}
	close(queue)

	// Each job owns items[job.index] and problems[job.index].
	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				item := &items[job.index]
				enum, err := item.Request(ctx, item.Params)
				if err != nil {
					problems[job.index] = &Problem{Kind: ProblemRequest, Field: job.key.field, Message: err.Error(), Err: err}
					continue
				}
				d.mu.Lock()
				d.enums[job.key] = enum
				d.mu.Unlock()
				item.ValueEnum = enum
			}
		}()
	}
	wg.Wait()

	return collectProblems(problems)
}

func collectProblems(slots []*Problem) []Problem {
	var out []Problem
	for _, p := range slots {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}
