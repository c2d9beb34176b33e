package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/medintel/internal/cache"
	"github.com/sells-group/medintel/internal/fetcher"
	"github.com/sells-group/medintel/internal/model"
	"github.com/sells-group/medintel/internal/resilience"
	"github.com/sells-group/medintel/internal/years"
)

const (
	primaryBase  = "https://primary.test/dataset/{id}/data"
	fallbackBase = "https://fallback.test/search"
)

// fakeClient serves primary pages from an in-memory table and records every
// requested URL.
type fakeClient struct {
	mu    sync.Mutex
	calls []*url.URL
	times []time.Time

	// primary returns the rows for a dataset id at (offset, size).
	primary func(id string, offset, size int) ([]fetcher.Row, error)
	// fallback returns the single fallback response.
	fallback func(q url.Values) ([]fetcher.Row, error)
}

func (c *fakeClient) FetchRows(_ context.Context, rawURL string) ([]fetcher.Row, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.calls = append(c.calls, u)
	c.times = append(c.times, time.Now())
	c.mu.Unlock()

	q := u.Query()
	switch u.Host {
	case "primary.test":
		if c.primary == nil {
			return nil, nil
		}
		parts := strings.Split(u.Path, "/")
		offset, _ := strconv.Atoi(q.Get("offset"))
		size, _ := strconv.Atoi(q.Get("size"))
		return c.primary(parts[2], offset, size)
	case "fallback.test":
		if c.fallback == nil {
			return nil, nil
		}
		return c.fallback(q)
	}
	return nil, fmt.Errorf("unexpected host %s", u.Host)
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *fakeClient) hostCalls(host string) []*url.URL {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*url.URL
	for _, u := range c.calls {
		if u.Host == host {
			out = append(out, u)
		}
	}
	return out
}

// hostCallTimes returns when each request to host arrived, in order.
func (c *fakeClient) hostCallTimes(host string) []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Time
	for i, u := range c.calls {
		if u.Host == host {
			out = append(out, c.times[i])
		}
	}
	return out
}

// table serves rows[offset:offset+size].
func table(rows []fetcher.Row) func(string, int, int) ([]fetcher.Row, error) {
	return func(_ string, offset, size int) ([]fetcher.Row, error) {
		if offset >= len(rows) {
			return []fetcher.Row{}, nil
		}
		end := min(offset+size, len(rows))
		return rows[offset:end], nil
	}
}

func partBRows(n int, volume, cost string) []fetcher.Row {
	rows := make([]fetcher.Row, n)
	for i := range rows {
		rows[i] = fetcher.Row{
			"HCPCS_Cd":          "64568",
			"HCPCS_Desc":        "Incision for implantation of cranial nerve neurostimulator",
			"Rndrng_Prvdr_Geo":  fmt.Sprintf("state-%d", i),
			"Tot_Srvcs":         volume,
			"Avg_Mdcr_Pymt_Amt": cost,
			"Tot_Benes":         "11",
		}
	}
	return rows
}

func testYears(t *testing.T) *years.Config {
	t.Helper()
	yc, err := years.New(years.Range(2019, 2023), []int{2024}, years.Range(2025, 2030), map[string]float64{"services": 5, "claims": 7})
	require.NoError(t, err)
	return yc
}

func testEndpoints() map[model.DatasetType]Endpoint {
	ids := map[int]string{}
	for y := 2019; y <= 2024; y++ {
		ids[y] = fmt.Sprintf("ds-%d", y)
	}
	return map[model.DatasetType]Endpoint{
		model.VolumeByCode: {
			PrimaryURL:    primaryBase,
			DatasetIDs:    ids,
			FilterField:   "HCPCS_Cd",
			FallbackURL:   fallbackBase,
			FallbackParam: "keyword",
		},
		model.CostByName: {
			PrimaryURL:    primaryBase,
			DatasetIDs:    ids,
			FilterField:   "Brnd_Name",
			FallbackURL:   fallbackBase,
			FallbackParam: "keyword",
		},
	}
}

func testOptions() Options {
	return Options{
		FirstPageSize: 2,
		PageSize:      10,
		MaxRecords:    100,
		PageDelay:     0,
		MaxVolume:     1e9,
		Retry:         resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: 0, MaxBackoff: 1},
		Breaker:       resilience.BreakerConfig{FailureThreshold: 50},
	}
}

func newTestFetcher(t *testing.T, client fetcher.Fetcher, opts Options) *Fetcher {
	t.Helper()
	c, err := cache.New(50)
	require.NoError(t, err)
	return New(testYears(t), c, client, testEndpoints(), opts)
}
