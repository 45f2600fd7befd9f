package framesource

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/agrovision/weedscan/internal/logger"
)

// HTTPOrigin consumes an IP-camera HTTP endpoint. It tolerates both a
// multipart MJPEG stream (multipart/x-mixed-replace) and a single-frame
// JPEG endpoint polled with repeated GETs.
type HTTPOrigin struct {
	url         string
	client      *http.Client
	readTimeout time.Duration

	cancel context.CancelFunc
	resp   *http.Response
	parts  *multipart.Reader // nil in single-frame mode
}

// NewHTTPOrigin builds an origin for url. readTimeout bounds each frame
// read; zero selects a 5s default.
func NewHTTPOrigin(url string, readTimeout time.Duration) *HTTPOrigin {
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	return &HTTPOrigin{
		url:         url,
		readTimeout: readTimeout,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 3 * time.Second}).DialContext,
				ResponseHeaderTimeout: 5 * time.Second,
			},
		},
	}
}

func (o *HTTPOrigin) Finite() bool { return false }

// Open performs the handshake GET and decides the stream mode from the
// response content type. The streaming body outlives the open context; it
// is torn down by Close.
func (o *HTTPOrigin) Open(ctx context.Context) error {
	bodyCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(bodyCtx, http.MethodGet, o.url, nil)
	if err != nil {
		cancel()
		return err
	}

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := o.client.Do(req)
		done <- result{resp, err}
	}()

	var resp *http.Response
	select {
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			cancel()
			return r.err
		}
		resp = r.resp
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("http origin: %s returned %s", o.url, resp.Status)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	o.cancel = cancel
	o.resp = resp

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := params["boundary"]
		if boundary == "" {
			resp.Body.Close()
			cancel()
			return fmt.Errorf("http origin: multipart stream without boundary")
		}
		o.parts = multipart.NewReader(resp.Body, boundary)
		logger.Debug("FrameSource", "opened MJPEG stream %s (boundary %q)", o.url, boundary)
	default:
		// Single-frame endpoint: this body is the first frame, later
		// frames come from fresh GETs.
		o.parts = nil
		logger.Debug("FrameSource", "opened snapshot endpoint %s (%s)", o.url, mediaType)
	}
	return nil
}

// ReadFrame decodes the next JPEG payload from the stream.
func (o *HTTPOrigin) ReadFrame(ctx context.Context) (image.Image, error) {
	if o.resp == nil {
		return nil, fmt.Errorf("http origin: not open")
	}
	data, err := o.nextPayload(ctx)
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

// SkipFrame discards the next payload without JPEG-decoding it.
func (o *HTTPOrigin) SkipFrame(ctx context.Context) error {
	if o.parts == nil {
		// Snapshot mode: frames only exist when fetched, nothing to skip.
		return nil
	}
	return o.withDeadline(ctx, func() error {
		part, err := o.parts.NextPart()
		if err != nil {
			return err
		}
		_, err = io.Copy(io.Discard, part)
		return err
	})
}

func (o *HTTPOrigin) nextPayload(ctx context.Context) ([]byte, error) {
	if o.parts != nil {
		var data []byte
		err := o.withDeadline(ctx, func() error {
			part, err := o.parts.NextPart()
			if err != nil {
				return err
			}
			data, err = io.ReadAll(part)
			return err
		})
		return data, err
	}

	// Snapshot mode: the handshake body is the first frame, then one GET
	// per frame.
	if o.resp != nil && o.resp.Body != nil {
		body := o.resp.Body
		o.resp.Body = nil
		defer body.Close()
		return io.ReadAll(body)
	}

	reqCtx, cancel := context.WithTimeout(ctx, o.readTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, o.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http origin: %s returned %s", o.url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// withDeadline runs read under the per-frame timeout, tearing down the
// body if the deadline or the caller's context fires first.
func (o *HTTPOrigin) withDeadline(ctx context.Context, read func() error) error {
	timer := time.NewTimer(o.readTimeout)
	defer timer.Stop()

	done := make(chan error, 1)
	go func() { done <- read() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		o.teardown()
		<-done
		return ctx.Err()
	case <-timer.C:
		o.teardown()
		<-done
		return fmt.Errorf("http origin: frame read timeout after %s", o.readTimeout)
	}
}

func (o *HTTPOrigin) teardown() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if o.resp != nil && o.resp.Body != nil {
		o.resp.Body.Close()
	}
	o.resp = nil
	o.parts = nil
}

func (o *HTTPOrigin) Close() error {
	o.teardown()
	return nil
}
