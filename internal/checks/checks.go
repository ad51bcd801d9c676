// Package checks contains the probes that exercise the platform's API
// surface through the engine. Every check owns a small lifecycle: clean up
// leftovers, create, verify, mutate, verify, delete.
package checks

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/osbits/apiwatch/internal/config"
	"github.com/osbits/apiwatch/internal/engine"
)

// Build constructs a check from its configuration entry.
func Build(cfg config.CheckConfig) (engine.Check, error) {
	switch cfg.Type {
	case "health":
		return newHealthCheck(cfg)
	case "table":
		return newTableCheck(cfg)
	case "token":
		return newTokenCheck(cfg)
	case "webhook":
		return newWebhookCheck(cfg)
	case "deploy":
		return newDeployCheck(cfg)
	default:
		return nil, fmt.Errorf("unsupported check type %q", cfg.Type)
	}
}

func decodeOptions(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}

func stringField(body map[string]any, key string) string {
	if body == nil {
		return ""
	}
	v, _ := body[key].(string)
	return v
}
