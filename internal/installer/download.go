package installer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"mac-bootstrap/internal/logger"
)

// download fetches url into a new temporary file named after pattern and
// returns its path. The caller removes the file.
func download(ctx context.Context, client *http.Client, url, pattern string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("Failed to close response body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: HTTP status %d", url, resp.StatusCode)
	}

	out, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("download %s: %w", url, err)
	}

	logger.Debug("Downloaded %d bytes from %s to %s", n, url, out.Name())
	return out.Name(), nil
}
