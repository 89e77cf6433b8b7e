package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Runner executes pipelines one after another. A failing pipeline does not stop the rest.
type Runner struct {
	Pipelines []*Pipeline
	// OnReport, when set, is called after each pipeline finishes.
	OnReport func(Report)
}

// Run returns the reports in pipeline order and every failure joined.
func (r *Runner) Run(ctx context.Context, opts Options) ([]Report, error) {
	reports := make([]Report, 0, len(r.Pipelines))
	var errs []error
	for _, p := range r.Pipelines {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rep, err := p.Run(ctx, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Source.ID, err))
		}
		reports = append(reports, rep)
		if r.OnReport != nil {
			r.OnReport(rep)
		}
	}
	return reports, errors.Join(errs...)
}
