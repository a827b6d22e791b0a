package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/communityroots/resource-cli/internal/cost"
	"github.com/communityroots/resource-cli/internal/model"
	"github.com/communityroots/resource-cli/pkg/crossref"
)

// crossReference queries every configured source concurrently, counts
// matches, and runs conflict detection over returned field snapshots.
// Source errors degrade to non-matches rather than aborting.
func (a *Agent) crossReference(ctx context.Context, cand *model.NormalizedResource, checks map[string]model.CheckResult, tracker *cost.Tracker) (int, []model.FieldConflict) {
	if len(a.sources) == 0 {
		checks[model.CheckCrossReferenced] = model.CheckResult{Skipped: true, Evidence: "no sources configured"}
		checks[model.CheckConflictDetection] = model.CheckResult{Skipped: true, Evidence: "no sources configured"}
		return 0, nil
	}

	query := crossref.Query{
		Name:    cand.Name,
		Address: cand.FullAddress(),
		City:    cand.City,
		State:   cand.State,
	}

	var mu sync.Mutex
	var matched []string
	var conflicts []model.FieldConflict

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range a.sources {
		g.Go(func() error {
			tracker.RecordCall()
			match, err := src.Lookup(gctx, query)
			if err != nil {
				zap.L().Warn("cross-reference lookup failed",
					zap.String("source", src.Name()),
					zap.String("candidate", cand.Name),
					zap.Error(err),
				)
				return nil
			}
			if !match.Found {
				return nil
			}

			found := detectConflicts(cand, src.Name(), match.Data)
			mu.Lock()
			matched = append(matched, src.Name())
			conflicts = append(conflicts, found...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // lookups never return errors; Wait observes ctx only

	sort.Strings(matched)
	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].SourceName != conflicts[j].SourceName {
			return conflicts[i].SourceName < conflicts[j].SourceName
		}
		return conflicts[i].Field < conflicts[j].Field
	})

	if len(matched) > 0 {
		checks[model.CheckCrossReferenced] = model.CheckResult{
			Pass:     true,
			Evidence: fmt.Sprintf("matched by %s", strings.Join(matched, ", ")),
		}
	} else {
		checks[model.CheckCrossReferenced] = model.CheckResult{
			Pass:     false,
			Evidence: "no source matched",
		}
	}

	if len(conflicts) == 0 {
		checks[model.CheckConflictDetection] = model.CheckResult{Pass: true, Evidence: "no conflicts"}
	} else {
		fields := make([]string, len(conflicts))
		for i, c := range conflicts {
			fields[i] = c.Field
		}
		checks[model.CheckConflictDetection] = model.CheckResult{
			Pass:     false,
			Evidence: "conflicts on " + strings.Join(fields, ", "),
		}
	}

	return len(matched), conflicts
}
