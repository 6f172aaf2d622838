// Package collysource fetches the vendor price page with gocolly and walks its option list.
package collysource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/ramtracker/internal/ram"
)

// ErrSelectNotFound is returned when the page has no select element with the configured name.
var ErrSelectNotFound = errors.New("option select not found")

// Config controls collector behavior.
type Config struct {
	URL        string
	SelectName string
	UserAgent  string
	// SkipValue is the placeholder option value ignored during the walk.
	SkipValue   string
	Timeout     time.Duration
	RandomDelay time.Duration
	Headers     http.Header
}

// Source implements ram.Source using the Colly collector.
type Source struct {
	cfg           Config
	clock         ram.Clock
	baseCollector *colly.Collector
	sleep         func(context.Context, time.Duration) error
}

var _ ram.Source = (*Source)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnHTML(string, colly.HTMLCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Source.
func New(cfg Config, clock ram.Clock) *Source {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	c.DetectCharset = true
	c.AllowURLRevisit = true
	return &Source{
		cfg:           cfg,
		clock:         clock,
		baseCollector: c,
		sleep:         sleepContext,
	}
}

// fetchState collects the callback results of one visit.
type fetchState struct {
	snapshot ram.Snapshot
	found    bool
	err      error
}

// Fetch downloads the page and returns its decoded body together with the option triples.
func (s *Source) Fetch(ctx context.Context) (ram.Snapshot, error) {
	if s.cfg.URL == "" {
		return ram.Snapshot{}, fmt.Errorf("source url is required")
	}
	if s.cfg.RandomDelay > 0 {
		if err := s.sleep(ctx, time.Duration(rand.Int63n(int64(s.cfg.RandomDelay)))); err != nil {
			return ram.Snapshot{}, fmt.Errorf("delay fetch: %w", err)
		}
	}

	state := &fetchState{}
	collector := s.buildCollector()
	s.configureCollectorHooks(collector, state)

	if err := runCollector(ctx, collector, s.cfg.URL, state); err != nil {
		return ram.Snapshot{}, err
	}
	if !state.found {
		return ram.Snapshot{}, fmt.Errorf("select %q: %w", s.cfg.SelectName, ErrSelectNotFound)
	}
	state.snapshot.FetchedAt = s.clock.Now()
	return state.snapshot, nil
}

func (s *Source) buildCollector() *colly.Collector {
	collector := s.baseCollector.Clone()
	collector.DetectCharset = true
	collector.AllowURLRevisit = true
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	timeout := s.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func (s *Source) configureCollectorHooks(hooks collectorHooks, state *fetchState) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range s.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		state.snapshot.URL = r.Request.URL.String()
		state.snapshot.Body = append([]byte(nil), r.Body...)
	})

	hooks.OnHTML(selectSelector(s.cfg.SelectName), func(e *colly.HTMLElement) {
		if state.found {
			return
		}
		state.found = true
		state.snapshot.Options = walkSelect(e.DOM, s.skipValue())
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		state.err = err
	})
}

func (s *Source) skipValue() string {
	if s.cfg.SkipValue == "" {
		return "0"
	}
	return s.cfg.SkipValue
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, state *fetchState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if state.err != nil {
			return fmt.Errorf("colly response failed: %w", state.err)
		}
		return nil
	}
}

// ExtractOptions walks the named select of an already decoded HTML document.
func ExtractOptions(r io.Reader, selectName, skipValue string) ([]ram.RawOption, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	sel := doc.Find(selectSelector(selectName)).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("select %q: %w", selectName, ErrSelectNotFound)
	}
	return walkSelect(sel, skipValue), nil
}

func selectSelector(name string) string {
	return fmt.Sprintf("select[name=%q]", name)
}

// walkSelect emits one RawOption per optgroup > option, skipping the placeholder and
// any value that is not an integer.
func walkSelect(sel *goquery.Selection, skipValue string) []ram.RawOption {
	var out []ram.RawOption
	sel.Find("optgroup").Each(func(_ int, group *goquery.Selection) {
		groupLabel, _ := group.Attr("label")
		group.Find("option").Each(func(_ int, opt *goquery.Selection) {
			value := strings.TrimSpace(opt.AttrOr("value", ""))
			if value == skipValue {
				return
			}
			id, err := strconv.Atoi(value)
			if err != nil {
				return
			}
			out = append(out, ram.RawOption{
				ProductID:  id,
				Label:      strings.TrimSpace(opt.Text()),
				GroupLabel: groupLabel,
			})
		})
	})
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
