package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"DealScanner/internal/domain"
	"DealScanner/internal/scanner"
)

const userAgent = "DealScanner/1.0"

// Selectors locate offer fields inside one listing item.
type Selectors struct {
	Item          string
	Title         string
	Price         string
	OriginalPrice string
	Link          string
	Image         string
}

// SelectorScanner scrapes an HTML listing page with CSS selectors.
type SelectorScanner struct {
	name      string
	store     string
	listURL   string
	pages     int
	pageParam string
	selectors Selectors
	client    *http.Client
	now       func() time.Time
}

var _ scanner.Scanner = (*SelectorScanner)(nil)

// SelectorOptions configures a SelectorScanner.
type SelectorOptions struct {
	Name      string
	Store     string
	ListURL   string
	Pages     int
	PageParam string
	Selectors Selectors
	Client    *http.Client
	Now       func() time.Time
}

// NewSelectorScanner wires an HTTP client; pages defaults to 1.
func NewSelectorScanner(opts SelectorOptions) *SelectorScanner {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 20 * time.Second}
	}
	if opts.Pages <= 0 {
		opts.Pages = 1
	}
	if opts.PageParam == "" {
		opts.PageParam = "page"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SelectorScanner{
		name:      opts.Name,
		store:     opts.Store,
		listURL:   opts.ListURL,
		pages:     opts.Pages,
		pageParam: opts.PageParam,
		selectors: opts.Selectors,
		client:    opts.Client,
		now:       opts.Now,
	}
}

// Name identifies the source inside the registry.
func (s *SelectorScanner) Name() string {
	return s.name
}

// Scan fetches every configured page and returns the offers found, in page
// order. A page with no items ends the scan early.
func (s *SelectorScanner) Scan(ctx context.Context, _ domain.Window) ([]domain.RawOffer, error) {
	if s.listURL == "" || s.selectors.Item == "" {
		return nil, fmt.Errorf("source %s: list url and item selector are required", s.name)
	}

	base, err := url.Parse(s.listURL)
	if err != nil {
		return nil, fmt.Errorf("source %s: invalid list url: %w", s.name, err)
	}

	var results []domain.RawOffer
	for page := 1; page <= s.pages; page++ {
		pageURL := s.listURL
		if s.pages > 1 {
			if pageURL, err = buildPageURL(s.listURL, s.pageParam, page); err != nil {
				return nil, fmt.Errorf("source %s: %w", s.name, err)
			}
		}

		doc, err := s.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("source %s page %d: %w", s.name, page, err)
		}

		offers := s.extractOffers(doc, base)
		results = append(results, offers...)
		if len(offers) == 0 {
			break
		}
	}
	return results, nil
}

func (s *SelectorScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", req.URL.Host, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (s *SelectorScanner) extractOffers(doc *goquery.Document, base *url.URL) []domain.RawOffer {
	observed := s.now().UTC()
	var offers []domain.RawOffer
	doc.Find(s.selectors.Item).Each(func(_ int, item *goquery.Selection) {
		offer, ok := parseItem(item, s.selectors, base)
		if !ok {
			return
		}
		offer.Store = s.store
		offer.SourceName = s.name
		offer.ObservedAt = observed
		offers = append(offers, offer)
	})
	return offers
}

// parseItem reads one listing item. Items without a title or link are
// skipped.
func parseItem(item *goquery.Selection, sel Selectors, base *url.URL) (domain.RawOffer, bool) {
	title := collapseSpaces(pick(item, sel.Title).Text())
	href, _ := pick(item, sel.Link).Attr("href")
	link := absolute(base, href)
	if title == "" || link == "" {
		return domain.RawOffer{}, false
	}

	offer := domain.RawOffer{
		Title:      title,
		ProductURL: link,
	}
	if sel.Price != "" {
		offer.Price = ParsePrice(pick(item, sel.Price).Text())
	}
	if sel.OriginalPrice != "" {
		offer.OriginalPrice = ParsePrice(pick(item, sel.OriginalPrice).Text())
	}
	if sel.Image != "" {
		img := pick(item, sel.Image)
		src, ok := img.Attr("src")
		if !ok || strings.HasPrefix(src, "data:") {
			src, _ = img.Attr("data-src")
		}
		offer.ImageURL = absolute(base, src)
	}
	return offer, true
}

// pick returns the first match of selector inside item, or item itself when
// the selector is empty.
func pick(item *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return item
	}
	return item.Find(selector).First()
}

func absolute(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func buildPageURL(base, param string, page int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid list url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set(param, strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
