package rulelist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// maxListSize bounds the download; EasyList is a few MB.
const maxListSize = 32 << 20

// HTTPSource downloads a newline-delimited filter list.
type HTTPSource struct {
	client *http.Client
	url    string
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) FetchRules(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("rule list error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListSize))
	if err != nil {
		return "", fmt.Errorf("read rule list: %w", err)
	}
	return string(body), nil
}

// FileSource reads a filter list from disk.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) FetchRules(ctx context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Clean(s.path)) // #nosec G304 -- path is from application config
	if err != nil {
		return "", err
	}
	return string(data), nil
}
