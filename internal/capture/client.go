// Package capture is the HTTP camera collaborator.
//
// Client streams frames from snapshot or MJPEG endpoints onto the bus for a
// stream.Session, and performs one-shot still captures that can be saved to
// disk as PNG.
package capture

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sabry-awad97/smart-scanner/internal/bus"
	"github.com/sabry-awad97/smart-scanner/internal/frame"
	"github.com/sabry-awad97/smart-scanner/internal/logging"
	"github.com/sabry-awad97/smart-scanner/internal/stream"
)

var (
	// ErrNoImage is returned by Save before any successful Capture.
	ErrNoImage = errors.New("capture: no image captured")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("capture: client closed")
)

// maxFrameBytes caps a single snapshot or MJPEG part.
const maxFrameBytes = 16 << 20

// Options configures a Client.
type Options struct {
	MinInterval time.Duration // minimum time between published frames
	MaxWidth    int           // wider frames are downscaled
	Quality     int           // JPEG quality of downscaled frames
	MaxErrors   int           // consecutive fetch failures before the stream fails
	Timeout     time.Duration // snapshot and capture request timeout
}

// DefaultOptions returns 10 FPS pacing, 800px width, quality 80.
func DefaultOptions() Options {
	return Options{
		MinInterval: 100 * time.Millisecond,
		MaxWidth:    800,
		Quality:     80,
		MaxErrors:   10,
		Timeout:     5 * time.Second,
	}
}

// Still is the most recent captured image.
type Still struct {
	URL        string
	Image      image.Image
	Format     string
	CapturedAt time.Time
}

// Client implements stream.Source. Goroutine-safe.
type Client struct {
	bus    *bus.Bus
	opts   Options
	client *http.Client // snapshot and capture requests
	live   *http.Client // stream connections; only headers are time-limited

	mu      sync.Mutex
	streams map[string]context.CancelFunc
	last    *Still
	closed  bool
	g       errgroup.Group
}

// NewClient creates a Client publishing stream events on b.
func NewClient(b *bus.Bus, opts Options) *Client {
	def := DefaultOptions()
	if opts.MinInterval <= 0 {
		opts.MinInterval = def.MinInterval
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = def.MaxWidth
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = def.MaxErrors
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Client{
		bus:     b,
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		live:    &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: opts.Timeout}},
		streams: make(map[string]context.CancelFunc),
	}
}

// RequestStreamStart begins fetching url for sessionID in the background.
func (c *Client) RequestStreamStart(ctx context.Context, sessionID, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.streams[sessionID]; ok {
		return fmt.Errorf("capture: session %s already streaming", sessionID)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	c.streams[sessionID] = cancel
	c.g.Go(func() error {
		defer c.forget(sessionID)
		c.run(streamCtx, sessionID, url)
		return nil
	})
	return nil
}

// RequestStreamStop cancels the session's fetch loop. Unknown sessions are
// ignored.
func (c *Client) RequestStreamStop(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	cancel, ok := c.streams[sessionID]
	delete(c.streams, sessionID)
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Close stops every stream and waits for the fetch loops to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	for id, cancel := range c.streams {
		cancel()
		delete(c.streams, id)
	}
	c.mu.Unlock()
	return c.g.Wait()
}

func (c *Client) forget(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.streams[sessionID]; ok {
		cancel()
		delete(c.streams, sessionID)
	}
}

// run polls or reads the endpoint until cancelled or MaxErrors consecutive
// failures, which are reported as a stream.Error.
func (c *Client) run(ctx context.Context, id, url string) {
	pace := rate.NewLimiter(rate.Every(c.opts.MinInterval), 1)
	ready := false
	failures := 0

	for {
		if err := pace.Wait(ctx); err != nil {
			return
		}
		n, err := c.fetch(ctx, id, url, &ready)
		if ctx.Err() != nil {
			return
		}
		if err == nil || n > 0 {
			failures = 0
		}
		if err == nil {
			continue
		}

		failures++
		logging.Warn("frame fetch failed", "session", id, "attempt", failures, "error", err)
		if failures >= c.opts.MaxErrors {
			c.bus.Publish(bus.StreamTopic(id), stream.Error{
				SessionID: id,
				Message:   fmt.Sprintf("stream failed after %d consecutive errors: %v", failures, err),
			})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff(failures - 1)):
		}
	}
}

// backoff returns min(1s, 100ms * 2^n).
func backoff(n int) time.Duration {
	if n > 4 {
		return time.Second
	}
	d := 100 * time.Millisecond << n
	if d > time.Second {
		d = time.Second
	}
	return d
}

// fetch performs one request. Snapshot endpoints yield one frame; MJPEG
// endpoints yield frames until the connection ends. It returns the number
// of frames published.
func (c *Client) fetch(ctx context.Context, id, url string, ready *bool) (int, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "smartscanner/1.0")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.live.Do(req)
	if err != nil {
		return 0, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return 0, fmt.Errorf("bad content type: %w", err)
	}

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		// Some cameras repeat the leading dashes in the header parameter.
		boundary := strings.TrimPrefix(params["boundary"], "--")
		if boundary == "" {
			return 0, errors.New("multipart response without boundary")
		}
		return c.readParts(ctx, id, resp.Body, boundary, ready)

	case strings.HasPrefix(mediaType, "image/"):
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
		if err != nil {
			return 0, fmt.Errorf("read snapshot: %w", err)
		}
		if err := c.publish(id, body, time.Since(start), ready); err != nil {
			return 0, fmt.Errorf("decode snapshot: %w", err)
		}
		return 1, nil

	default:
		return 0, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func (c *Client) markReady(id string, ready *bool) {
	if *ready {
		return
	}
	*ready = true
	c.bus.Publish(bus.StreamTopic(id), stream.Ready{SessionID: id})
}

// readParts publishes MJPEG parts. A part arriving sooner than MinInterval
// after the previously published one is dropped. An undecodable part ends
// the connection with an error. Latency covers one part, from the start of
// the boundary read to the end of its body.
func (c *Client) readParts(ctx context.Context, id string, body io.Reader, boundary string, ready *bool) (int, error) {
	mr := multipart.NewReader(body, boundary)
	n := 0
	var published time.Time
	var buf bytes.Buffer
	for {
		partStart := time.Now()
		part, err := mr.NextPart()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			return n, fmt.Errorf("error reading part: %w", err)
		}

		buf.Reset()
		_, err = io.Copy(&buf, io.LimitReader(part, maxFrameBytes))
		part.Close()
		if err != nil {
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			return n, fmt.Errorf("error copying part: %w", err)
		}

		now := time.Now()
		latency := now.Sub(partStart)
		if !published.IsZero() && now.Sub(published) < c.opts.MinInterval {
			continue
		}
		payload := make([]byte, buf.Len())
		copy(payload, buf.Bytes())
		if err := c.publish(id, payload, latency, ready); err != nil {
			return n, fmt.Errorf("decode part: %w", err)
		}
		published = now
		n++
	}
}

// publish downscales the payload if needed and emits a frame.Event, marking
// the session ready on its first decodable frame. Undecodable payloads are
// not published.
func (c *Client) publish(id string, payload []byte, latency time.Duration, ready *bool) error {
	payload, err := c.normalize(payload)
	if err != nil {
		return err
	}
	c.markReady(id, ready)
	c.bus.Publish(bus.StreamTopic(id), frame.Event{
		SessionID:        id,
		Identity:         hashBytes(payload),
		Payload:          payload,
		CaptureLatencyMs: latency.Milliseconds(),
	})
	return nil
}

// normalize re-encodes frames wider than MaxWidth.
func (c *Client) normalize(payload []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= c.opts.MaxWidth {
		return payload, nil
	}
	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	out, err := encodeJPEG(downscale(img, c.opts.MaxWidth), c.opts.Quality)
	if err != nil {
		logging.Warn("frame re-encode failed", "error", err)
		return payload, nil
	}
	return out, nil
}

// Capture fetches a single still from url and keeps it for Save.
func (c *Client) Capture(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "smartscanner/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("URL did not return an image (content type %q)", ct)
	}

	img, format, err := image.Decode(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	still := &Still{URL: url, Image: img, Format: format, CapturedAt: time.Now()}
	c.mu.Lock()
	c.last = still
	c.mu.Unlock()

	b := img.Bounds()
	logging.Info("image captured", "url", url, "width", b.Dx(), "height", b.Dy(), "format", format)
	return fmt.Sprintf("Captured %dx%d %s image", b.Dx(), b.Dy(), format), nil
}

// Last returns the most recent capture.
func (c *Client) Last() (Still, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Still{}, false
	}
	return *c.last, true
}

// Save writes the last capture to dir and returns a success message.
func (c *Client) Save(dir string) (string, error) {
	path, err := c.SaveTo(dir)
	if err != nil {
		return "", err
	}
	return SavedMessage(path), nil
}

// SavedMessage is the user-facing result of a save to path.
func SavedMessage(path string) string {
	return "Saved scan as " + filepath.Base(path)
}

// SaveTo writes the last capture to dir as YYYY-MM-DD-HH-MM-SS.png and
// returns its path.
func (c *Client) SaveTo(dir string) (string, error) {
	still, ok := c.Last()
	if !ok {
		return "", ErrNoImage
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(dir, still.CapturedAt.Format("2006-01-02-15-04-05")+".png")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if err := png.Encode(f, still.Image); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	logging.Info("capture saved", "path", path)
	return path, nil
}

// hashBytes creates a short hash of a payload for use as a frame identity.
func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:8])
}
