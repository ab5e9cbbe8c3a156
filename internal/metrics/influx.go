package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/hamed0406/fleethealth/internal/domain"
)

// Influx posts line protocol to an InfluxDB 1.x /write endpoint.
type Influx struct {
	Endpoint string
	Database string
	Client   *http.Client
}

// NewInflux returns nil when endpoint is empty.
func NewInflux(endpoint, database string, timeout time.Duration) *Influx {
	if endpoint == "" {
		return nil
	}
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = timeout
	return &Influx{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Database: database,
		Client:   c,
	}
}

func (s *Influx) writeURL() string {
	q := url.Values{}
	q.Set("db", s.Database)
	q.Set("precision", "s")
	return s.Endpoint + "/write?" + q.Encode()
}

func (s *Influx) Write(ctx context.Context, points []domain.MetricPoint) error {
	if s == nil || s.Endpoint == "" {
		return errors.New("influx disabled")
	}
	if len(points) == 0 {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.writeURL(), strings.NewReader(Encode(points)))
	if err != nil {
		return fmt.Errorf("influx request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("influx write %s: %w", s.Endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("influx write %s: %s: %s", s.Endpoint, resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
