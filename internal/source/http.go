package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type HTTPOptions struct {
	Client  *http.Client
	Timeout time.Duration
}

// HTTPSource fetches frames over HTTP. The priority hint travels in the
// RFC 9218 Priority header: u=1 for high priority frames, u=3 otherwise.
type HTTPSource struct {
	client *http.Client
}

func NewHTTPSource(opts HTTPOptions) *HTTPSource {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSource{client: client}
}

func (s *HTTPSource) Open(ctx context.Context, url string, pri Priority) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Priority", priorityHeader(pri))
	req.Header.Set("Accept", "image/webp,image/png,image/jpeg,*/*;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		}
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	return resp.Body, nil
}

func priorityHeader(pri Priority) string {
	if pri == PriorityHigh {
		return "u=1"
	}
	return "u=3"
}
