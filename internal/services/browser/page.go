package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// pageSession is a single tab. A ListenTarget hook accumulates console
// messages, network events, and JS errors from the moment the page is
// opened; getters drain them so one session can visit several URLs.
type pageSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	navTimeout  time.Duration
	settleDelay time.Duration
	logger      arbor.ILogger

	mu            sync.Mutex
	console       []models.ConsoleMessage
	events        []*models.NetworkEvent
	pending       map[network.RequestID]int
	jsErrors      []models.JSError
	mainRequestID network.RequestID
	redirectChain []string
	docStatus     int
	navActive     bool
	closed        bool
}

var _ interfaces.PageSession = (*pageSession)(nil)

// listen subscribes to CDP events for the lifetime of the page
func (s *pageSession) listen() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			s.onConsole(e)
		case *runtime.EventExceptionThrown:
			s.onException(e)
		case *log.EventEntryAdded:
			s.onLogEntry(e)
		case *network.EventRequestWillBeSent:
			s.onRequest(e)
		case *network.EventResponseReceived:
			s.onResponse(e)
		case *network.EventLoadingFailed:
			s.onLoadingFailed(e)
		}
	})
}

func (s *pageSession) onConsole(ev *runtime.EventConsoleAPICalled) {
	parts := make([]string, 0, len(ev.Args))
	for _, arg := range ev.Args {
		parts = append(parts, formatRemoteObject(arg))
	}
	text := strings.Join(parts, " ")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = append(s.console, models.ConsoleMessage{
		Type:      ev.Type.String(),
		Text:      text,
		Timestamp: nowISO(),
	})
	if ev.Type == runtime.APITypeError {
		s.jsErrors = append(s.jsErrors, models.JSError{
			Type:      "console-error",
			Message:   text,
			Timestamp: nowISO(),
		})
	}
}

func (s *pageSession) onException(ev *runtime.EventExceptionThrown) {
	if ev.ExceptionDetails == nil {
		return
	}
	d := ev.ExceptionDetails

	message := d.Text
	if d.Exception != nil {
		if desc := formatRemoteObject(d.Exception); desc != "" {
			message = desc
		}
	}

	var stack string
	if d.StackTrace != nil {
		frames := make([]string, 0, len(d.StackTrace.CallFrames))
		for _, f := range d.StackTrace.CallFrames {
			frames = append(frames, fmt.Sprintf("%s (%s:%d:%d)", f.FunctionName, f.URL, f.LineNumber, f.ColumnNumber))
		}
		stack = strings.Join(frames, "\n")
	}

	kind := "uncaught"
	if strings.Contains(message, "in promise") {
		kind = "unhandled-rejection"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jsErrors = append(s.jsErrors, models.JSError{
		Type:      kind,
		Message:   message,
		Source:    d.URL,
		Line:      int(d.LineNumber),
		Column:    int(d.ColumnNumber),
		Stack:     stack,
		Timestamp: nowISO(),
	})
}

func (s *pageSession) onLogEntry(ev *log.EventEntryAdded) {
	if ev.Entry == nil {
		return
	}
	// JavaScript errors reported through the log domain that never hit
	// the runtime exception path, e.g. CSP violations.
	if ev.Entry.Source == log.SourceJavascript && ev.Entry.Level == log.LevelError {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.jsErrors = append(s.jsErrors, models.JSError{
			Type:      "console-error",
			Message:   ev.Entry.Text,
			Source:    ev.Entry.URL,
			Line:      int(ev.Entry.LineNumber),
			Timestamp: nowISO(),
		})
	}
}

func (s *pageSession) onRequest(ev *network.EventRequestWillBeSent) {
	if ev.Request == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Type == network.ResourceTypeDocument && s.navActive {
		if s.mainRequestID == "" {
			s.mainRequestID = ev.RequestID
		}
		if ev.RequestID == s.mainRequestID && ev.RedirectResponse != nil {
			s.redirectChain = append(s.redirectChain, ev.RedirectResponse.URL)
		}
	}

	event := &models.NetworkEvent{
		URL:       ev.Request.URL,
		Method:    ev.Request.Method,
		Timestamp: nowISO(),
	}
	s.events = append(s.events, event)
	s.pending[ev.RequestID] = len(s.events) - 1
}

func (s *pageSession) onResponse(ev *network.EventResponseReceived) {
	if ev.Response == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.pending[ev.RequestID]; ok && idx < len(s.events) {
		s.events[idx].Status = int(ev.Response.Status)
		s.events[idx].StatusText = ev.Response.StatusText
		s.events[idx].Headers = flattenHeaders(ev.Response.Headers)
	}
	if ev.RequestID == s.mainRequestID {
		s.docStatus = int(ev.Response.Status)
	}
}

func (s *pageSession) onLoadingFailed(ev *network.EventLoadingFailed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.pending[ev.RequestID]; ok && idx < len(s.events) {
		s.events[idx].Failure = ev.ErrorText
	}
}

// SetViewport resizes the emulated screen
func (s *pageSession) SetViewport(ctx context.Context, width, height int) error {
	return s.run(ctx, s.navTimeout, chromedp.EmulateViewport(int64(width), int64(height)))
}

// Navigate loads the URL and waits for the page to settle. Navigation
// failures come back inside the result so partial evidence survives;
// only context cancellation is returned as an error.
func (s *pageSession) Navigate(ctx context.Context, url string) (*models.NavigationResult, error) {
	s.mu.Lock()
	s.navActive = true
	s.mainRequestID = ""
	s.redirectChain = nil
	s.docStatus = 0
	s.mu.Unlock()

	start := time.Now()
	err := s.run(ctx, s.navTimeout,
		chromedp.Navigate(url),
		chromedp.Sleep(s.settleDelay),
	)
	loadTime := time.Since(start).Milliseconds()

	s.mu.Lock()
	s.navActive = false
	result := &models.NavigationResult{
		FinalURL:      url,
		Status:        s.docStatus,
		RedirectChain: append([]string(nil), s.redirectChain...),
		LoadTimeMs:    loadTime,
	}
	s.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result.Error = err.Error()
		return result, nil
	}

	var finalURL string
	if locErr := s.run(ctx, s.navTimeout, chromedp.Location(&finalURL)); locErr == nil && finalURL != "" {
		result.FinalURL = finalURL
	}
	if result.Status == 0 {
		// Responses served from cache or bfcache skip the network
		// events; treat a completed navigation as a 200.
		result.Status = 200
	}

	return result, nil
}

// Screenshot captures a full-page PNG
func (s *pageSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.navTimeout, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// HTML returns the serialized DOM
func (s *pageSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.navTimeout, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return html, nil
}

// VisibleText returns the rendered text of the page body
func (s *pageSession) VisibleText(ctx context.Context) (string, error) {
	var text string
	if err := s.run(ctx, s.navTimeout,
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
	); err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return text, nil
}

// Evaluate runs a JavaScript expression in the page
func (s *pageSession) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return s.run(ctx, s.navTimeout, chromedp.Evaluate(expression, out))
}

// ConsoleMessages drains accumulated console entries
func (s *pageSession) ConsoleMessages() []models.ConsoleMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.console
	s.console = nil
	return drained
}

// NetworkEvents drains accumulated request/response pairs
func (s *pageSession) NetworkEvents() []models.NetworkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := make([]models.NetworkEvent, 0, len(s.events))
	for _, e := range s.events {
		drained = append(drained, *e)
	}
	s.events = nil
	s.pending = make(map[network.RequestID]int)
	return drained
}

// JSErrors drains accumulated exceptions and console errors
func (s *pageSession) JSErrors() []models.JSError {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.jsErrors
	s.jsErrors = nil
	return drained
}

func (s *pageSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return nil
}

// run executes chromedp actions against this page, honoring both the
// caller's context and the navigation timeout
func (s *pageSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	defer close(done)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func formatRemoteObject(obj *runtime.RemoteObject) string {
	if obj == nil {
		return ""
	}
	if len(obj.Value) > 0 {
		return strings.Trim(string(obj.Value), `"`)
	}
	if obj.Description != "" {
		return obj.Description
	}
	return string(obj.Type)
}

func flattenHeaders(headers network.Headers) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = fmt.Sprint(v)
	}
	return out
}
