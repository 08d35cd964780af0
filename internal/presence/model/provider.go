// Package model loads the face detector's assets once per process and
// publishes readiness as a flag that only ever goes from false to true.
package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrLoadFailure = errors.New("model load failure")

// maxAssetBytes bounds a single asset download. The facefinder cascade is
// ~230 KiB; landmark/recognition weights are a few MiB.
const maxAssetBytes = 64 << 20

// Fetcher retrieves one named asset.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Compiler turns fetched assets into a usable model. The detector implements
// it.
type Compiler interface {
	Compile(ctx context.Context, assets map[string][]byte) error
}

type Provider struct {
	fetcher  Fetcher
	names    []string
	compiler Compiler
	logger   *log.Logger

	once  sync.Once
	ready atomic.Bool
	done  chan struct{}

	mu       sync.Mutex
	err      error
	settled  bool
	watchers []func(error)
}

func NewProvider(f Fetcher, names []string, c Compiler, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Provider{
		fetcher:  f,
		names:    append([]string(nil), names...),
		compiler: c,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Load starts retrieval in the background. Only the first call does
// anything; a failed load is never retried within the process.
func (p *Provider) Load(ctx context.Context) {
	p.once.Do(func() {
		p.logger.Printf("loading model assets %v", p.names)
		go p.load(context.WithoutCancel(ctx))
	})
}

func (p *Provider) Ready() bool { return p.ready.Load() }

// Done is closed once loading has settled, successfully or not.
func (p *Provider) Done() <-chan struct{} { return p.done }

// Err reports the load failure, if any.
func (p *Provider) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// OnSettled registers fn to run when loading settles. If it already has, fn
// runs immediately on the caller's goroutine.
func (p *Provider) OnSettled(fn func(error)) {
	p.mu.Lock()
	if p.settled {
		err := p.err
		p.mu.Unlock()
		fn(err)
		return
	}
	p.watchers = append(p.watchers, fn)
	p.mu.Unlock()
}

func (p *Provider) load(ctx context.Context) {
	start := time.Now()
	err := p.fetchAndCompile(ctx)

	p.mu.Lock()
	if err != nil {
		p.err = err
		p.logger.Printf("model load failed: %v", err)
	} else {
		p.ready.Store(true)
		p.logger.Printf("model ready (%d assets, %s)", len(p.names), time.Since(start).Round(time.Millisecond))
	}
	p.settled = true
	watchers := p.watchers
	p.watchers = nil
	p.mu.Unlock()

	close(p.done)
	for _, fn := range watchers {
		fn(err)
	}
}

func (p *Provider) fetchAndCompile(ctx context.Context) error {
	assets := make(map[string][]byte, len(p.names))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range p.names {
		g.Go(func() error {
			b, err := p.fetcher.Fetch(gctx, name)
			if err != nil {
				return fmt.Errorf("%w: asset %s: %v", ErrLoadFailure, name, err)
			}
			mu.Lock()
			assets[name] = b
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := p.compiler.Compile(ctx, assets); err != nil {
		return fmt.Errorf("%w: %v", ErrLoadFailure, err)
	}
	return nil
}

// HTTPFetcher downloads assets from BaseURL/<name>.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/"+name, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", req.URL, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("GET %s: empty body", req.URL)
	}
	return b, nil
}

// DirFetcher reads assets from a local directory.
type DirFetcher struct {
	Dir string
}

func (f DirFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Asset names are plain file names; reject anything that walks out.
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("bad asset name %q", name)
	}
	b, err := os.ReadFile(filepath.Join(f.Dir, name))
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("asset %s is empty", name)
	}
	return b, nil
}
