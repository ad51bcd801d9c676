package checks

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/osbits/apiwatch/internal/config"
	"github.com/osbits/apiwatch/internal/engine"
)

// TokenOptions tunes the API token lifecycle probe.
type TokenOptions struct {
	Label string `mapstructure:"label"`
}

// TokenCheck creates a short-lived API token with the privileged credential,
// verifies the new token authenticates, then revokes it.
type TokenCheck struct {
	name string
	opts TokenOptions
}

func newTokenCheck(cfg config.CheckConfig) (*TokenCheck, error) {
	opts := TokenOptions{Label: "apiwatch-probe"}
	if err := decodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	return &TokenCheck{name: cfg.ID, opts: opts}, nil
}

func (c *TokenCheck) Name() string { return c.name }

func (c *TokenCheck) Run(ctx context.Context, exec *engine.Executor) engine.CheckResult {
	start := time.Now()
	var steps []engine.StepResult

	res := exec.Post(ctx, "/v1/tokens",
		engine.WithAuth(engine.AuthPrivileged),
		engine.WithBody(map[string]any{"label": c.opts.Label, "expires_in": "5m"}))
	steps = append(steps, engine.StepFromResponse("create token", res, []int{http.StatusOK, http.StatusCreated},
		engine.WithSkipStatus(http.StatusServiceUnavailable, "token service not configured"),
		engine.WithValidator(engine.ExpectPresent("$.id")),
		engine.WithValidator(engine.ExpectPresent("$.key"))))

	if steps[0].Status == engine.StatusSkip {
		return engine.FinishCheck(c.name, start, steps, nil)
	}

	tokenID := stringField(res.Body, "id")
	tokenKey := stringField(res.Body, "key")
	if tokenID == "" || tokenKey == "" {
		return engine.FinishCheck(c.name, start, steps, errors.New("Cannot proceed without token id"))
	}

	res = exec.Get(ctx, "/v1/auth/whoami",
		engine.WithAuth(engine.AuthNone),
		engine.WithHeader("Authorization", "Bearer "+tokenKey))
	steps = append(steps, engine.StepFromResponse("authenticate with new token", res, []int{http.StatusOK},
		engine.WithValidator(engine.ExpectExpr("authenticated == true"))))

	res = exec.Delete(ctx, "/v1/tokens/"+tokenID, engine.WithAuth(engine.AuthPrivileged))
	steps = append(steps, engine.StepFromResponse("revoke token", res, []int{http.StatusOK, http.StatusNoContent}))

	return engine.FinishCheck(c.name, start, steps, nil)
}
