// Package registry acquires the devcell image by pulling it from an ordered
// list of registries, retrying transient failures and falling back to the
// next registry when one is exhausted.
package registry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/logger"
	"github.com/schmitthub/devcell/internal/progress"
)

const (
	// DefaultMaxAttempts is the number of attempts per registry.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the first backoff; each retry doubles it.
	DefaultBaseDelay = time.Second
	// DefaultAttemptTimeout bounds a single pull attempt.
	DefaultAttemptTimeout = 10 * time.Minute
)

// Images is the subset of the Docker adapter the puller needs.
type Images interface {
	PullImage(ctx context.Context, ref string) (io.ReadCloser, error)
	TagImage(ctx context.Context, source, target string) error
	ImageID(ctx context.Context, ref string) (docker.LocalImageID, error)
}

// Result describes a successful pull.
type Result struct {
	ID       docker.LocalImageID
	Registry string
	// Remote is the fully qualified reference that was pulled.
	Remote   string
	Attempts []Attempt
}

// Puller pulls with retry and registry fallback.
type Puller struct {
	images         Images
	registries     []string
	canonical      string
	attemptTimeout time.Duration
	maxAttempts    int
	baseDelay      time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

// PullerOption configures a Puller.
type PullerOption func(*Puller)

// WithAttemptTimeout bounds each attempt independently of the retry budget.
func WithAttemptTimeout(d time.Duration) PullerOption {
	return func(p *Puller) {
		if d > 0 {
			p.attemptTimeout = d
		}
	}
}

// WithBackoff sets the first retry delay.
func WithBackoff(base time.Duration) PullerOption {
	return func(p *Puller) {
		p.baseDelay = base
	}
}

// NewPuller returns a Puller that tries registries in order and tags the
// result as canonical.
func NewPuller(images Images, registries []string, canonical string, opts ...PullerOption) *Puller {
	p := &Puller{
		images:         images,
		registries:     registries,
		canonical:      canonical,
		attemptTimeout: DefaultAttemptTimeout,
		maxAttempts:    DefaultMaxAttempts,
		baseDelay:      DefaultBaseDelay,
		sleep:          sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AcquireByPull pulls ref.Repository:ref.Tag from each configured registry in
// turn. ref.Registry, when set, is tried first. The canonical tag is only set
// after a complete pull.
func (p *Puller) AcquireByPull(ctx context.Context, ref docker.ImageRef, sink progress.Sink) (*Result, error) {
	if sink == nil {
		sink = progress.Nop{}
	}
	registries := p.order(ref.Registry)
	if len(registries) == 0 {
		return nil, fmt.Errorf("no registries configured")
	}

	var attempts []Attempt
	for _, reg := range registries {
		remote := ref.WithRegistry(reg).String()
		for n := 1; n <= p.maxAttempts; n++ {
			logger.Debug().Str("image", remote).Int("attempt", n).Msg("pulling image")

			err := p.pullOnce(ctx, remote, sink)
			if err == nil {
				id, err := p.finish(ctx, remote)
				if err != nil {
					return nil, err
				}
				return &Result{ID: id, Registry: reg, Remote: remote, Attempts: attempts}, nil
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("pull of %s cancelled: %w", remote, ctx.Err())
			}

			retryable := isRetryable(err)
			attempts = append(attempts, Attempt{Registry: reg, Number: n, Err: err, Retryable: retryable})
			logger.Warn().
				Str("image", remote).
				Int("attempt", n).
				Bool("retryable", retryable).
				Err(err).
				Msg("pull attempt failed")

			if !retryable || n == p.maxAttempts {
				break
			}
			if err := p.sleep(ctx, p.baseDelay<<(n-1)); err != nil {
				return nil, fmt.Errorf("pull of %s cancelled: %w", remote, err)
			}
		}
	}
	return nil, &ExhaustedError{Ref: ref.WithRegistry("").String(), Attempts: attempts}
}

// order puts preferred first without duplicating it.
func (p *Puller) order(preferred string) []string {
	if preferred == "" {
		return p.registries
	}
	out := []string{preferred}
	for _, r := range p.registries {
		if r != preferred {
			out = append(out, r)
		}
	}
	return out
}

func (p *Puller) pullOnce(ctx context.Context, remote string, sink progress.Sink) error {
	attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
	defer cancel()

	stream, err := p.images.PullImage(attemptCtx, remote)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := consumePullStream(stream, sink); err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("attempt timed out after %s: %w", p.attemptTimeout, context.DeadlineExceeded)
		}
		return err
	}
	return nil
}

func (p *Puller) finish(ctx context.Context, remote string) (docker.LocalImageID, error) {
	if p.canonical != "" {
		if err := p.images.TagImage(ctx, remote, p.canonical); err != nil {
			return "", err
		}
	}
	id, err := p.images.ImageID(ctx, remote)
	if err != nil {
		return "", fmt.Errorf("resolving pulled image %s: %w", remote, err)
	}
	return id, nil
}

// pullMessage is one line of the daemon's pull progress stream.
type pullMessage struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	ProgressDetail struct {
		Current int64 `json:"current"`
		Total   int64 `json:"total"`
	} `json:"progressDetail"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// consumePullStream reports per-layer progress until EOF. Layers may finish
// in any order.
func consumePullStream(r io.Reader, sink progress.Sink) error {
	layers := map[string]progress.Handle{}
	done := map[string]bool{}
	abandon := func() {
		for id, h := range layers {
			if !done[id] {
				sink.Finish(h, false)
			}
		}
	}
	layer := func(id string) progress.Handle {
		h, ok := layers[id]
		if !ok {
			h = sink.Begin("layer "+shortLayerID(id), progress.KindBytes)
			layers[id] = h
		}
		return h
	}

	dec := json.NewDecoder(bufio.NewReader(r))
	for {
		var msg pullMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			abandon()
			return fmt.Errorf("reading pull stream: %w", err)
		}

		if errMsg := msg.Error; errMsg != "" || msg.ErrorDetail.Message != "" {
			if errMsg == "" {
				errMsg = msg.ErrorDetail.Message
			}
			abandon()
			return &streamError{msg: errMsg}
		}

		if msg.ID == "" || !isLayerStatus(msg.Status) {
			if msg.Status != "" {
				logger.Debug().Str("status", msg.Status).Msg("pull")
			}
			continue
		}

		h := layer(msg.ID)
		switch msg.Status {
		case "Downloading":
			if msg.ProgressDetail.Total > 0 {
				sink.Update(h, msg.ProgressDetail.Current, msg.ProgressDetail.Total)
			}
		case "Pull complete", "Already exists":
			if !done[msg.ID] {
				done[msg.ID] = true
				sink.Finish(h, true)
			}
		}
	}

	for id, h := range layers {
		if !done[id] {
			sink.Finish(h, true)
		}
	}
	return nil
}

func isLayerStatus(status string) bool {
	switch status {
	case "Pulling fs layer", "Waiting", "Downloading", "Verifying Checksum",
		"Download complete", "Extracting", "Pull complete", "Already exists":
		return true
	}
	return false
}

func shortLayerID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
