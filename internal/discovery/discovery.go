// Package discovery locates candidate IP-camera stream endpoints on the
// local subnet by probing well-known ports and path suffixes.
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agrovision/weedscan/internal/logger"
	"github.com/agrovision/weedscan/pkg/types"
)

// Policy selects the scan breadth/latency trade-off.
type Policy string

const (
	// Quick scans a bounded host prefix on the two most common ports.
	Quick Policy = "quick"
	// Full scans the whole /24 on the full port set; takes a minute or
	// two.
	Full Policy = "full"
)

// Well-known IP camera ports and endpoint paths.
var (
	fullPorts  = []int{8080, 8081, 4747, 8888, 554}
	quickPorts = []int{8080, 8081}

	fullPaths  = []string{"/video", "/videofeed", "/video.mjpeg", "/stream", "/mjpeg", "/cam"}
	quickPaths = []string{"/video", "/videofeed"}
)

const quickHostLimit = 50

// Prober verifies a single endpoint. Implementations must respect their
// own short timeout; Scan calls probes concurrently.
type Prober interface {
	Probe(ctx context.Context, endpoint types.CandidateEndpoint) bool
}

// Options configures a discovery pass.
type Options struct {
	// Subnet is the first three octets, e.g. "192.168.1". Empty
	// auto-detects from the host's own address.
	Subnet string
	Policy Policy
	// ProbeTimeout bounds each individual probe. Default 1s.
	ProbeTimeout time.Duration
	// Ceiling is the hard wall-clock bound on the whole pass; on expiry
	// Scan returns whatever has been verified so far. Default 2m.
	Ceiling time.Duration
	// Concurrency bounds the probe fan-out. Default 20.
	Concurrency int
	// Prober overrides the HTTP prober, for tests.
	Prober Prober
}

func (o Options) withDefaults() Options {
	if o.Policy == "" {
		o.Policy = Quick
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = time.Second
	}
	if o.Ceiling <= 0 {
		o.Ceiling = 2 * time.Minute
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 20
	}
	if o.Prober == nil {
		o.Prober = &HTTPProber{Timeout: o.ProbeTimeout}
	}
	return o
}

// Scan probes the subnet and returns the verified endpoints, at most one
// per host (the first responding port+path combination). Hitting the
// wall-clock ceiling is not an error: partial results are returned.
func Scan(ctx context.Context, opts Options) ([]types.CandidateEndpoint, error) {
	opts = opts.withDefaults()

	subnet := opts.Subnet
	if subnet == "" {
		detected, err := LocalSubnet()
		if err != nil {
			return nil, fmt.Errorf("discovery: detect local subnet: %w", err)
		}
		subnet = detected
	}

	ports, paths, hostLimit := quickPorts, quickPaths, quickHostLimit
	if opts.Policy == Full {
		ports, paths, hostLimit = fullPorts, fullPaths, 254
	}

	logger.Info("Discovery", "scanning %s.1-%d on ports %v (%s policy)",
		subnet, hostLimit, ports, opts.Policy)

	scanCtx, cancel := context.WithTimeout(ctx, opts.Ceiling)
	defer cancel()

	hosts := make(chan string)
	results := make(chan types.CandidateEndpoint, hostLimit)

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for host := range hosts {
				if endpoint, ok := probeHost(scanCtx, opts.Prober, host, ports, paths); ok {
					results <- endpoint
				}
			}
		}()
	}

	go func() {
		defer close(hosts)
		for i := 1; i <= hostLimit; i++ {
			select {
			case <-scanCtx.Done():
				return
			case hosts <- fmt.Sprintf("%s.%d", subnet, i):
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var found []types.CandidateEndpoint
	for endpoint := range results {
		logger.Info("Discovery", "found stream endpoint %s", endpoint.URL())
		found = append(found, endpoint)
	}

	if scanCtx.Err() != nil && ctx.Err() == nil {
		logger.Warn("Discovery", "scan ceiling reached, returning %d partial result(s)", len(found))
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Host < found[j].Host })
	return found, nil
}

// probeHost tries the host's port+path combinations in order and returns
// on the first verified stream.
func probeHost(ctx context.Context, prober Prober, host string, ports []int, paths []string) (types.CandidateEndpoint, bool) {
	for _, port := range ports {
		for _, path := range paths {
			if ctx.Err() != nil {
				return types.CandidateEndpoint{}, false
			}
			endpoint := types.CandidateEndpoint{Host: host, Port: port, Path: path}
			if prober.Probe(ctx, endpoint) {
				return endpoint, true
			}
		}
	}
	return types.CandidateEndpoint{}, false
}

// HTTPProber verifies an endpoint with a short HEAD request and accepts it
// when the response advertises a stream-like content type.
type HTTPProber struct {
	Timeout time.Duration
	// Client overrides the HTTP client, for tests.
	Client *http.Client
}

func (p *HTTPProber) Probe(ctx context.Context, endpoint types.CandidateEndpoint) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, endpoint.URL(), nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	return strings.Contains(contentType, "video") ||
		strings.Contains(contentType, "mjpeg") ||
		strings.Contains(contentType, "multipart/x-mixed-replace") ||
		strings.Contains(contentType, "octet-stream")
}

// LocalSubnet returns the first three octets of the host's primary
// address, found by opening a UDP socket toward a public resolver (no
// packet is sent).
func LocalSubnet() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("discovery: unexpected local address %v", conn.LocalAddr())
	}
	ip := addr.IP.To4()
	if ip == nil {
		return "", fmt.Errorf("discovery: no IPv4 address")
	}
	return fmt.Sprintf("%d.%d.%d", ip[0], ip[1], ip[2]), nil
}
