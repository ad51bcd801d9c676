package observability

import (
	"bufio"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LoadDotEnv loads environment variables from a .env file when present.
// Missing files are ignored so deployments relying on injected environment
// variables work without noise.
func LoadDotEnv(logger *slog.Logger) {
	file, err := os.Open(".env")
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to open .env file", "error", err)
		}
		return
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		entry := strings.TrimSpace(scanner.Text())
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		entry = strings.TrimSpace(strings.TrimPrefix(entry, "export "))
		key, value, found := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			logger.Warn("skipping invalid .env entry", "line", line)
			continue
		}
		decoded, err := decodeEnvValue(strings.TrimSpace(value))
		if err != nil {
			logger.Warn("skipping invalid .env entry", "line", line, "error", err)
			continue
		}
		if err := os.Setenv(key, decoded); err != nil {
			logger.Warn("failed to set env from .env", "key", key, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("failed to read .env file", "error", err)
	}
}

func decodeEnvValue(value string) (string, error) {
	if strings.HasPrefix(value, `"`) || strings.HasPrefix(value, "'") {
		return strconv.Unquote(value)
	}
	return value, nil
}
