package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/logger"
)

// checkTimeout bounds each startup check.
const checkTimeout = 30 * time.Second

// Check is one startup dependency probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Validate runs every check and joins the failures. The pipeline must not
// accept work when it returns an error.
func Validate(ctx context.Context, checks ...Check) error {
	var errs []error
	for _, c := range checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		start := time.Now()
		err := c.Ping(cctx)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
			logger.Error("startup check failed", "check", c.Name, "error", err)
			continue
		}
		logger.Info("startup check passed", "check", c.Name, "duration_ms", time.Since(start).Milliseconds())
	}
	return errors.Join(errs...)
}

// Checks returns the probes for the orchestrator's own dependencies. An
// oracle that is not configured is reported but not probed: classification
// then runs on keyword scoring alone.
func (o *Orchestrator) Checks() []Check {
	checks := []Check{{Name: "record store", Ping: o.deps.Records.Ping}}
	if o.deps.Oracle != nil && o.deps.Oracle.Available() {
		checks = append(checks, Check{Name: "oracle", Ping: o.deps.Oracle.Ping})
	} else {
		logger.Warn("oracle not configured, classification will use keyword scoring")
	}
	return checks
}
