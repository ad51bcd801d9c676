package checks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/osbits/apiwatch/internal/config"
	"github.com/osbits/apiwatch/internal/engine"
)

// DeployOptions tunes the application deployment probe. The deploy request
// itself gets an extended timeout; rollout and reachability are awaited with
// separate poll budgets.
type DeployOptions struct {
	Slug            string        `mapstructure:"slug"`
	PublicURL       string        `mapstructure:"public_url"`
	DeployTimeout   time.Duration `mapstructure:"deploy_timeout"`
	RolloutInterval time.Duration `mapstructure:"rollout_interval"`
	RolloutBudget   time.Duration `mapstructure:"rollout_budget"`
	ReachInterval   time.Duration `mapstructure:"reach_interval"`
	ReachBudget     time.Duration `mapstructure:"reach_budget"`
}

// DeployCheck deploys the probe application, waits for the rollout to reach a
// terminal state, verifies the deployed app answers publicly and tears the
// deployment down again. When no application slug is configured the check is
// not applicable and short-circuits without touching the platform.
type DeployCheck struct {
	name string
	opts DeployOptions
}

func newDeployCheck(cfg config.CheckConfig) (*DeployCheck, error) {
	opts := DeployOptions{
		DeployTimeout:   30 * time.Second,
		RolloutInterval: 5 * time.Second,
		RolloutBudget:   120 * time.Second,
		ReachInterval:   3 * time.Second,
		ReachBudget:     30 * time.Second,
	}
	if err := decodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	return &DeployCheck{name: cfg.ID, opts: opts}, nil
}

func (c *DeployCheck) Name() string { return c.name }

func (c *DeployCheck) Run(ctx context.Context, exec *engine.Executor) engine.CheckResult {
	if c.opts.Slug == "" {
		return engine.SkippedCheck(c.name, "application slug not configured")
	}

	start := time.Now()
	var steps []engine.StepResult

	appPath := "/v1/apps/" + c.opts.Slug

	res := exec.Post(ctx, appPath+"/deployments", engine.WithTimeout(c.opts.DeployTimeout))
	steps = append(steps, engine.StepFromResponse("start deployment", res, []int{http.StatusCreated, http.StatusAccepted},
		engine.WithValidator(engine.ExpectPresent("$.id"))))

	deployID := stringField(res.Body, "id")
	if deployID == "" {
		return engine.FinishCheck(c.name, start, steps, errors.New("Cannot proceed without deployment id"))
	}

	rollout := engine.PollUntil(ctx, func(ctx context.Context) (engine.RequestResult, error) {
		return exec.Get(ctx, appPath+"/deployments/"+deployID), nil
	}, rolloutTerminal, c.opts.RolloutInterval, c.opts.RolloutBudget)
	steps = append(steps, rollout.Step("await rollout", func(final engine.RequestResult) error {
		if state := stringField(final.Body, "status"); state != "success" {
			return fmt.Errorf("rollout ended in state %q", state)
		}
		return nil
	}))

	if rollout.TerminalReached && c.opts.PublicURL != "" {
		reach := engine.PollUntil(ctx, func(ctx context.Context) (engine.RequestResult, error) {
			return exec.Get(ctx, c.opts.PublicURL, engine.WithAuth(engine.AuthNone)), nil
		}, func(res engine.RequestResult, _ error) bool {
			return res.Err == nil && res.Status == http.StatusOK
		}, c.opts.ReachInterval, c.opts.ReachBudget)
		steps = append(steps, reach.Step("public reachability", func(engine.RequestResult) error {
			return nil
		}))
	}

	res = exec.Delete(ctx, appPath+"/deployments/"+deployID)
	steps = append(steps, engine.StepFromResponse("tear down deployment", res,
		[]int{http.StatusOK, http.StatusNoContent, http.StatusNotFound}))

	return engine.FinishCheck(c.name, start, steps, nil)
}

func rolloutTerminal(res engine.RequestResult, _ error) bool {
	if res.Err != nil || res.Status != http.StatusOK {
		return false
	}
	switch stringField(res.Body, "status") {
	case "success", "failed", "error":
		return true
	}
	return false
}
