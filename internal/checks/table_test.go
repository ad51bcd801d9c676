package checks

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/osbits/apiwatch/internal/config"
	"github.com/osbits/apiwatch/internal/engine"
)

func newTable(t *testing.T, opts map[string]any) *TableCheck {
	t.Helper()
	check, err := newTableCheck(config.CheckConfig{ID: "table-lifecycle", Type: "table", Options: opts})
	if err != nil {
		t.Fatalf("build table check: %v", err)
	}
	return check
}

// tablePlatform simulates the table endpoints with in-memory state.
func tablePlatform() http.Handler {
	rows := 0
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /v1/tables/name/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /v1/tables", func(w http.ResponseWriter, r *http.Request) {
		rows = 0
		writeJSON(w, http.StatusCreated, `{"id":"tbl_1"}`)
	})
	mux.HandleFunc("POST /v1/tables/tbl_1/rows", func(w http.ResponseWriter, r *http.Request) {
		rows++
		writeJSON(w, http.StatusCreated, `{"id":"row_1"}`)
	})
	mux.HandleFunc("GET /v1/tables/tbl_1/rows", func(w http.ResponseWriter, r *http.Request) {
		if rows == 0 {
			writeJSON(w, http.StatusOK, `{"rows":[]}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"rows":[{"id":"row_1"}]}`)
	})
	mux.HandleFunc("DELETE /v1/tables/tbl_1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func TestTableCheckFullLifecycle(t *testing.T) {
	exec := newPlatform(t, tablePlatform())

	result := newTable(t, nil).Run(context.Background(), exec)

	if result.Status != engine.StatusPass {
		t.Fatalf("status = %q (steps=%+v)", result.Status, result.Steps)
	}
	wantSteps := []string{"cleanup leftover table", "create table", "insert row", "query rows", "delete table"}
	if len(result.Steps) != len(wantSteps) {
		t.Fatalf("steps = %+v", result.Steps)
	}
	for i, name := range wantSteps {
		if result.Steps[i].Name != name {
			t.Fatalf("step %d = %q, want %q", i, result.Steps[i].Name, name)
		}
	}
}

func TestTableCheckFatalPreconditionStillRunsCleanup(t *testing.T) {
	exec := newPlatform(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))

	result := newTable(t, nil).Run(context.Background(), exec)

	if result.Status != engine.StatusFail {
		t.Fatalf("status = %q, want fail", result.Status)
	}
	if result.Error != "Cannot proceed without table id" {
		t.Fatalf("error = %q", result.Error)
	}
	create := stepByName(t, result, "create table")
	if create.Status != engine.StatusFail || !strings.Contains(create.Error, "500") {
		t.Fatalf("create step = %+v", create)
	}
	cleanup := stepByName(t, result, "delete table")
	if cleanup.Status != engine.StatusPass {
		t.Fatalf("cleanup must still run and be recorded, got %+v", cleanup)
	}
	// Insert and query were aborted.
	for _, step := range result.Steps {
		if step.Name == "insert row" || step.Name == "query rows" {
			t.Fatalf("aborted step %q was executed", step.Name)
		}
	}
}

func TestTableCheckEmptinessToleranceIsExplicit(t *testing.T) {
	// A platform that silently drops the inserted row.
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /v1/tables/name/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /v1/tables", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"id":"tbl_1"}`)
	})
	mux.HandleFunc("POST /v1/tables/tbl_1/rows", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"id":"row_1"}`)
	})
	mux.HandleFunc("GET /v1/tables/tbl_1/rows", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"rows":[]}`)
	})
	mux.HandleFunc("DELETE /v1/tables/tbl_1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	strict := newTable(t, map[string]any{"allow_empty": false}).Run(context.Background(), newPlatform(t, mux))
	if strict.Status != engine.StatusFail {
		t.Fatalf("strict mode must fail on empty rows, got %q", strict.Status)
	}

	tolerant := newTable(t, map[string]any{"allow_empty": true}).Run(context.Background(), newPlatform(t, mux))
	if tolerant.Status != engine.StatusPass {
		t.Fatalf("tolerant mode must pass on empty rows, got %q (steps=%+v)", tolerant.Status, tolerant.Steps)
	}
}
