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

// WebhookOptions tunes the webhook delivery probe.
type WebhookOptions struct {
	Name         string        `mapstructure:"name"`
	TargetURL    string        `mapstructure:"target_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollBudget   time.Duration `mapstructure:"poll_budget"`
}

// WebhookCheck registers a webhook, fires a test delivery, waits for the
// delivery to reach a terminal state and unregisters the hook.
type WebhookCheck struct {
	name string
	opts WebhookOptions
}

func newWebhookCheck(cfg config.CheckConfig) (*WebhookCheck, error) {
	opts := WebhookOptions{
		Name:         "apiwatch-probe",
		PollInterval: time.Second,
		PollBudget:   15 * time.Second,
	}
	if err := decodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	if opts.TargetURL == "" {
		return nil, fmt.Errorf("webhook check %q needs a target_url", cfg.ID)
	}
	return &WebhookCheck{name: cfg.ID, opts: opts}, nil
}

func (c *WebhookCheck) Name() string { return c.name }

func (c *WebhookCheck) Run(ctx context.Context, exec *engine.Executor) engine.CheckResult {
	start := time.Now()
	var steps []engine.StepResult

	deleteOK := []int{http.StatusOK, http.StatusNoContent, http.StatusNotFound}

	res := exec.Delete(ctx, "/v1/webhooks/name/"+c.opts.Name)
	steps = append(steps, engine.StepFromResponse("cleanup leftover webhook", res, deleteOK,
		engine.WithDetail("no leftover state")))

	res = exec.Post(ctx, "/v1/webhooks", engine.WithBody(map[string]any{
		"name":   c.opts.Name,
		"url":    c.opts.TargetURL,
		"events": []string{"probe.test"},
	}))
	steps = append(steps, engine.StepFromResponse("register webhook", res, []int{http.StatusOK, http.StatusCreated},
		engine.WithValidator(engine.ExpectPresent("$.id"))))

	hookID := stringField(res.Body, "id")
	if hookID == "" {
		res = exec.Delete(ctx, "/v1/webhooks/name/"+c.opts.Name)
		steps = append(steps, engine.StepFromResponse("unregister webhook", res, deleteOK))
		return engine.FinishCheck(c.name, start, steps, errors.New("Cannot proceed without webhook id"))
	}

	res = exec.Post(ctx, "/v1/webhooks/"+hookID+"/test")
	steps = append(steps, engine.StepFromResponse("trigger test delivery", res, []int{http.StatusOK, http.StatusAccepted},
		engine.WithValidator(engine.ExpectPresent("$.delivery_id"))))

	deliveryID := stringField(res.Body, "delivery_id")
	if deliveryID == "" {
		res = exec.Delete(ctx, "/v1/webhooks/"+hookID)
		steps = append(steps, engine.StepFromResponse("unregister webhook", res, deleteOK))
		return engine.FinishCheck(c.name, start, steps, errors.New("Cannot proceed without delivery id"))
	}

	outcome := engine.PollUntil(ctx, func(ctx context.Context) (engine.RequestResult, error) {
		return exec.Get(ctx, "/v1/webhooks/"+hookID+"/deliveries/"+deliveryID), nil
	}, deliveryTerminal, c.opts.PollInterval, c.opts.PollBudget)
	steps = append(steps, outcome.Step("webhook delivery", func(final engine.RequestResult) error {
		if state := stringField(final.Body, "status"); state != "success" {
			return fmt.Errorf("delivery ended in state %q", state)
		}
		return nil
	}))

	res = exec.Delete(ctx, "/v1/webhooks/"+hookID)
	steps = append(steps, engine.StepFromResponse("unregister webhook", res, deleteOK))

	return engine.FinishCheck(c.name, start, steps, nil)
}

func deliveryTerminal(res engine.RequestResult, _ error) bool {
	if res.Err != nil || res.Status != http.StatusOK {
		return false
	}
	switch stringField(res.Body, "status") {
	case "success", "error", "timeout":
		return true
	}
	return false
}
