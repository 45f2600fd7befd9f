package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrovision/weedscan/pkg/types"
)

// mapProber answers true only for the endpoints it knows.
type mapProber struct {
	mu    sync.Mutex
	alive map[string]bool
	seen  int
}

func (p *mapProber) Probe(ctx context.Context, e types.CandidateEndpoint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen++
	return p.alive[e.URL()]
}

func TestQuickScanFindsSingleEndpoint(t *testing.T) {
	t.Parallel()

	prober := &mapProber{alive: map[string]bool{
		"http://192.168.1.42:8080/video": true,
	}}

	found, err := Scan(context.Background(), Options{
		Subnet: "192.168.1",
		Policy: Quick,
		Prober: prober,
	})
	require.NoError(t, err)

	require.Len(t, found, 1)
	assert.Equal(t, types.CandidateEndpoint{Host: "192.168.1.42", Port: 8080, Path: "/video"}, found[0])
}

func TestScanStopsPerHostOnFirstHit(t *testing.T) {
	t.Parallel()

	// Both the first and a later port/path combination respond; only the
	// first verified tuple is reported for the host.
	prober := &mapProber{alive: map[string]bool{
		"http://10.0.0.7:8080/video":     true,
		"http://10.0.0.7:8081/videofeed": true,
	}}

	found, err := Scan(context.Background(), Options{
		Subnet: "10.0.0",
		Policy: Quick,
		Prober: prober,
	})
	require.NoError(t, err)

	require.Len(t, found, 1)
	assert.Equal(t, 8080, found[0].Port)
	assert.Equal(t, "/video", found[0].Path)
}

func TestScanReturnsAllRespondingHostsSorted(t *testing.T) {
	t.Parallel()

	prober := &mapProber{alive: map[string]bool{
		"http://192.168.0.30:8081/videofeed": true,
		"http://192.168.0.5:8080/video":      true,
	}}

	found, err := Scan(context.Background(), Options{
		Subnet: "192.168.0",
		Policy: Quick,
		Prober: prober,
	})
	require.NoError(t, err)

	require.Len(t, found, 2)
	assert.Equal(t, "192.168.0.30", found[0].Host)
	assert.Equal(t, "192.168.0.5", found[1].Host)
}

func TestScanCeilingReturnsPartialResults(t *testing.T) {
	t.Parallel()

	slow := proberFunc(func(ctx context.Context, e types.CandidateEndpoint) bool {
		select {
		case <-ctx.Done():
		case <-time.After(50 * time.Millisecond):
		}
		return false
	})

	start := time.Now()
	found, err := Scan(context.Background(), Options{
		Subnet:      "192.168.9",
		Policy:      Quick,
		Prober:      slow,
		Ceiling:     100 * time.Millisecond,
		Concurrency: 2,
	})
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type proberFunc func(ctx context.Context, e types.CandidateEndpoint) bool

func (f proberFunc) Probe(ctx context.Context, e types.CandidateEndpoint) bool { return f(ctx, e) }

func TestHTTPProberAcceptsStreamContentTypes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/video":
			w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		case "/cam":
			w.Header().Set("Content-Type", "video/x-motion-jpeg")
		case "/page":
			w.Header().Set("Content-Type", "text/html")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	host, portStr, ok := strings.Cut(strings.TrimPrefix(srv.URL, "http://"), ":")
	require.True(t, ok)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	prober := &HTTPProber{Timeout: time.Second}
	probe := func(path string) bool {
		return prober.Probe(context.Background(), types.CandidateEndpoint{Host: host, Port: port, Path: path})
	}

	assert.True(t, probe("/video"))
	assert.True(t, probe("/cam"))
	assert.False(t, probe("/page"))
	assert.False(t, probe("/missing"))
}
