package checks

import (
	"context"
	"net/http"
	"time"

	"github.com/osbits/apiwatch/internal/config"
	"github.com/osbits/apiwatch/internal/engine"
)

// HealthOptions tunes the platform health probe.
type HealthOptions struct {
	Path         string `mapstructure:"path"`
	ExpectStatus string `mapstructure:"expect_status"`
	ExpectDB     string `mapstructure:"expect_db"`
}

// HealthCheck probes the platform health endpoint and asserts the reported
// service and database states.
type HealthCheck struct {
	name string
	opts HealthOptions
}

func newHealthCheck(cfg config.CheckConfig) (*HealthCheck, error) {
	opts := HealthOptions{
		Path:         "/health",
		ExpectStatus: "ok",
		ExpectDB:     "connected",
	}
	if err := decodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	return &HealthCheck{name: cfg.ID, opts: opts}, nil
}

func (c *HealthCheck) Name() string { return c.name }

func (c *HealthCheck) Run(ctx context.Context, exec *engine.Executor) engine.CheckResult {
	start := time.Now()

	res := exec.Get(ctx, c.opts.Path)
	step := engine.StepFromResponse("fetch health", res, []int{http.StatusOK},
		engine.WithValidator(engine.ExpectField("$.status", c.opts.ExpectStatus)),
		engine.WithValidator(engine.ExpectField("$.db", c.opts.ExpectDB)),
	)

	return engine.FinishCheck(c.name, start, []engine.StepResult{step}, nil)
}
