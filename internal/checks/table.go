package checks

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/osbits/apiwatch/internal/config"
	"github.com/osbits/apiwatch/internal/engine"
)

// TableOptions tunes the table lifecycle probe. AllowEmpty makes emptiness
// tolerance of the row query an explicit, checked parameter.
type TableOptions struct {
	Name       string `mapstructure:"name"`
	AllowEmpty bool   `mapstructure:"allow_empty"`
}

// TableCheck exercises the full table lifecycle: create, insert, query,
// delete. It uses a fixed table name, so leftovers from a previous failed
// run are removed up front.
type TableCheck struct {
	name string
	opts TableOptions
}

func newTableCheck(cfg config.CheckConfig) (*TableCheck, error) {
	opts := TableOptions{Name: "apiwatch_probe"}
	if err := decodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	return &TableCheck{name: cfg.ID, opts: opts}, nil
}

func (c *TableCheck) Name() string { return c.name }

func (c *TableCheck) Run(ctx context.Context, exec *engine.Executor) engine.CheckResult {
	start := time.Now()
	var steps []engine.StepResult

	deleteOK := []int{http.StatusOK, http.StatusNoContent, http.StatusNotFound}

	res := exec.Delete(ctx, "/v1/tables/name/"+c.opts.Name)
	steps = append(steps, engine.StepFromResponse("cleanup leftover table", res, deleteOK,
		engine.WithDetail("no leftover state")))

	res = exec.Post(ctx, "/v1/tables", engine.WithBody(map[string]any{"name": c.opts.Name}))
	steps = append(steps, engine.StepFromResponse("create table", res, []int{http.StatusOK, http.StatusCreated},
		engine.WithValidator(engine.ExpectPresent("$.id"))))

	tableID := stringField(res.Body, "id")
	if tableID == "" {
		// Nothing verifiable was created, but a partial create may have left
		// state behind; the named delete stays idempotent either way.
		res = exec.Delete(ctx, "/v1/tables/name/"+c.opts.Name)
		steps = append(steps, engine.StepFromResponse("delete table", res, deleteOK))
		return engine.FinishCheck(c.name, start, steps, errors.New("Cannot proceed without table id"))
	}

	res = exec.Post(ctx, "/v1/tables/"+tableID+"/rows",
		engine.WithBody(map[string]any{"payload": map[string]any{"probe": c.name, "at": start.UTC().Format(time.RFC3339)}}))
	steps = append(steps, engine.StepFromResponse("insert row", res, []int{http.StatusOK, http.StatusCreated}))

	res = exec.Get(ctx, "/v1/tables/"+tableID+"/rows")
	steps = append(steps, engine.StepFromResponse("query rows", res, []int{http.StatusOK},
		engine.WithValidator(engine.ExpectNonEmptyList("$.rows", c.opts.AllowEmpty))))

	res = exec.Delete(ctx, "/v1/tables/"+tableID)
	steps = append(steps, engine.StepFromResponse("delete table", res, deleteOK))

	return engine.FinishCheck(c.name, start, steps, nil)
}
