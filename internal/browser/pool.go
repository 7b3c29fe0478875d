// Package browser is the rendering engine pool (§4.E): a fixed-size
// set of headless Chromium contexts that render a page, run bounded
// actions, and capture HTML/screenshots. Grounded on
// other_examples/1877e475_5u5urrus-PathFinder__render_headless.go.go's
// chromedp usage — its per-engine chromedp.NewContext allocator, its
// network.Enable/fetch.Enable resource-interception pattern for
// blocking heavy asset types, and its chromedp.ListenTarget event loop.
//
// Only the chromium engine is concretely implemented: the corpus has
// no firefox/webkit automation library anywhere in _examples, so
// those engine names currently resolve to the same chromedp-backed
// engine with a user-agent override rather than a fabricated driver
// (documented in DESIGN.md as a named, ungrounded gap).
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Engine identifies the requested rendering engine. Only Chromium has
// a distinct backing implementation today.
type Engine string

const (
	EngineChromium Engine = "chromium"
	EngineFirefox  Engine = "firefox"
	EngineWebkit   Engine = "webkit"
)

// userAgents is the allow-list §4.E step 2 samples from.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
}

var defaultHeaders = map[string]string{
	"Accept-Language":  "en-US,en;q=0.9",
	"Accept-Encoding":  "gzip,deflate,br",
	"Accept":           "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
}

// ResourceType names the network.ResourceType values blockable via
// RenderRequest.BlockResources.
type ResourceType = network.ResourceType

const (
	ResourceImage      = network.ResourceTypeImage
	ResourceStylesheet = network.ResourceTypeStylesheet
	ResourceMedia      = network.ResourceTypeMedia
	ResourceFont       = network.ResourceTypeFont
)

// Action is a single step in a render request's action sequence
// (§4.E step 6), each bounded by a 5s per-action timeout.
type Action struct {
	// Name identifies the action for logging; Run performs it.
	Name string
	Run  chromedp.Action
}

// Viewport selects the desktop/mobile dimensions of §4.E step 2.
type Viewport struct {
	Width, Height    int64
	DeviceScaleFactor float64
}

var (
	ViewportDesktop = Viewport{Width: 1920, Height: 1080, DeviceScaleFactor: 1}
	ViewportMobile  = Viewport{Width: 375, Height: 667, DeviceScaleFactor: 2}
)

// RenderRequest describes one page render.
type RenderRequest struct {
	URL             string
	Engine          Engine
	Viewport        Viewport
	ExtraHeaders    map[string]string
	BlockResources  []ResourceType
	Actions         []Action
	WaitForMs       int
	MaxActionTimeMs int
	ScreenshotDir   string // if non-empty, a screenshot is captured
}

// RenderResult is what a render produces.
type RenderResult struct {
	HTML           string
	ScreenshotPath string
	ActionErrors   []string
}

// engine is one pooled chromedp allocator.
type engine struct {
	allocCtx context.Context
	cancel   context.CancelFunc
}

// Pool owns a fixed number of engines, blocking Acquire when all are
// checked out (§4.E step 1).
type Pool struct {
	available chan *engine
	engines   []*engine
}

// NewPool launches size chromium engines with sandbox-friendly flags.
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		size = 3
	}
	p := &Pool{available: make(chan *engine, size)}
	for i := 0; i < size; i++ {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
		e := &engine{allocCtx: allocCtx, cancel: cancel}
		p.engines = append(p.engines, e)
		p.available <- e
	}
	return p, nil
}

// Close tears down all engines and drains the availability queue.
// Idempotent: safe to call more than once.
func (p *Pool) Close() {
	for _, e := range p.engines {
		e.cancel()
	}
	for len(p.available) > 0 {
		<-p.available
	}
}

// Render acquires an engine, performs the render described by req, and
// returns it to the pool before returning.
func (p *Pool) Render(ctx context.Context, req RenderRequest) (RenderResult, error) {
	var e *engine
	select {
	case e = <-p.available:
	case <-ctx.Done():
		return RenderResult{}, ctx.Err()
	}
	defer func() { p.available <- e }()

	return renderOn(ctx, e, req)
}

func renderOn(parent context.Context, e *engine, req RenderRequest) (RenderResult, error) {
	tabCtx, cancel := chromedp.NewContext(e.allocCtx)
	defer cancel()

	navCtx, navCancel := context.WithTimeout(tabCtx, 30*time.Second)
	defer navCancel()

	ua := userAgents[rand.Intn(len(userAgents))]
	if req.Engine == EngineFirefox || req.Engine == EngineWebkit {
		// No distinct engine binary is available in this corpus; the
		// chromium engine renders with a UA override as a stand-in.
		ua = ua + " (engine-override:" + string(req.Engine) + ")"
	}

	headers := map[string]any{}
	for k, v := range defaultHeaders {
		headers[k] = v
	}
	for k, v := range req.ExtraHeaders {
		headers[k] = v
	}

	setupActions := []chromedp.Action{
		network.Enable(),
		chromedp.EmulateViewport(req.Viewport.Width, req.Viewport.Height, chromedp.EmulateScale(req.Viewport.DeviceScaleFactor)),
		network.SetExtraHTTPHeaders(network.Headers(headers)),
		emulation.SetUserAgentOverride(ua),
	}

	if len(req.BlockResources) > 0 {
		blocked := make(map[network.ResourceType]struct{}, len(req.BlockResources))
		for _, rt := range req.BlockResources {
			blocked[rt] = struct{}{}
		}
		setupActions = append(setupActions,
			fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}),
			chromedp.ActionFunc(func(ctx context.Context) error {
				chromedp.ListenTarget(ctx, func(ev any) {
					evt, ok := ev.(*fetch.EventRequestPaused)
					if !ok {
						return
					}
					go func() {
						if _, blockIt := blocked[evt.ResourceType]; blockIt {
							_ = fetch.FailRequest(evt.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
						} else {
							_ = fetch.ContinueRequest(evt.RequestID).Do(ctx)
						}
					}()
				})
				return nil
			}),
		)
	}

	waitPolicy := chromedp.WaitReady("body", chromedp.ByQuery)
	if len(req.Actions) > 0 {
		waitPolicy = chromedp.WaitVisible("body", chromedp.ByQuery)
	}

	setupActions = append(setupActions, chromedp.Navigate(req.URL), waitPolicy)

	if err := chromedp.Run(navCtx, setupActions...); err != nil {
		return RenderResult{}, fmt.Errorf("browser: navigate %s: %w", req.URL, err)
	}

	if req.WaitForMs > 0 {
		_ = chromedp.Run(navCtx, chromedp.Sleep(time.Duration(req.WaitForMs)*time.Millisecond))
	}

	result := RenderResult{}
	maxActionTime := time.Duration(req.MaxActionTimeMs) * time.Millisecond
	if maxActionTime <= 0 {
		maxActionTime = 30 * time.Second
	}
	actionDeadline := time.Now().Add(maxActionTime)

	for _, action := range req.Actions {
		if time.Now().After(actionDeadline) {
			break
		}
		actionCtx, actionCancel := context.WithTimeout(navCtx, 5*time.Second)
		err := chromedp.Run(actionCtx, action.Run)
		actionCancel()
		if err != nil {
			result.ActionErrors = append(result.ActionErrors, fmt.Sprintf("%s: %v", action.Name, err))
		}
	}

	var html string
	if err := chromedp.Run(navCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return RenderResult{}, fmt.Errorf("browser: capture html: %w", err)
	}
	result.HTML = html

	if req.ScreenshotDir != "" {
		path, err := captureScreenshot(navCtx, req.ScreenshotDir)
		if err != nil {
			result.ActionErrors = append(result.ActionErrors, fmt.Sprintf("screenshot: %v", err))
		} else {
			result.ScreenshotPath = path
		}
	}

	return result, nil
}

func captureScreenshot(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return "", err
	}
	path := fmt.Sprintf("%s/%d.png", dir, time.Now().UnixNano())
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
