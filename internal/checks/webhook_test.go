package checks

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/osbits/apiwatch/internal/config"
	"github.com/osbits/apiwatch/internal/engine"
)

func newWebhook(t *testing.T, opts map[string]any) *WebhookCheck {
	t.Helper()
	merged := map[string]any{
		"target_url":    "https://sink.example.dev/hooks",
		"poll_interval": "5ms",
		"poll_budget":   "1s",
	}
	for k, v := range opts {
		merged[k] = v
	}
	check, err := newWebhookCheck(config.CheckConfig{ID: "webhook-lifecycle", Type: "webhook", Options: merged})
	if err != nil {
		t.Fatalf("build webhook check: %v", err)
	}
	return check
}

func TestWebhookCheckRequiresTargetURL(t *testing.T) {
	_, err := newWebhookCheck(config.CheckConfig{ID: "wh", Type: "webhook"})
	if err == nil {
		t.Fatalf("expected error for missing target_url")
	}
}

func TestWebhookCheckDeliverySucceeds(t *testing.T) {
	var polls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /v1/webhooks/name/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /v1/webhooks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"id":"wh_1"}`)
	})
	mux.HandleFunc("POST /v1/webhooks/wh_1/test", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, `{"delivery_id":"dl_1"}`)
	})
	mux.HandleFunc("GET /v1/webhooks/wh_1/deliveries/dl_1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			writeJSON(w, http.StatusOK, `{"status":"pending"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"status":"success"}`)
	})
	mux.HandleFunc("DELETE /v1/webhooks/wh_1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	exec := newPlatform(t, mux)

	result := newWebhook(t, nil).Run(context.Background(), exec)

	if result.Status != engine.StatusPass {
		t.Fatalf("status = %q (steps=%+v)", result.Status, result.Steps)
	}
	delivery := stepByName(t, result, "webhook delivery")
	if delivery.Detail != "terminal after 3 attempts" {
		t.Fatalf("delivery detail = %q", delivery.Detail)
	}
}

func TestWebhookCheckFatalStillUnregisters(t *testing.T) {
	var unregistered atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /v1/webhooks/name/{name}", func(w http.ResponseWriter, r *http.Request) {
		unregistered.Store(true)
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /v1/webhooks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{}`)
	})
	exec := newPlatform(t, mux)

	result := newWebhook(t, nil).Run(context.Background(), exec)

	if result.Status != engine.StatusFail {
		t.Fatalf("status = %q, want fail", result.Status)
	}
	if result.Error != "Cannot proceed without webhook id" {
		t.Fatalf("error = %q", result.Error)
	}
	if !unregistered.Load() {
		t.Fatalf("cleanup path must run after the short-circuit")
	}
	if stepByName(t, result, "unregister webhook").Status != engine.StatusPass {
		t.Fatalf("cleanup step must be recorded")
	}
}
