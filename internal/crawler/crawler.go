// Package crawler pulls story candidates from the tracked publishers, trying
// RSS feeds first and falling back to scraping listing pages.
package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/HarrisAD/ai-marketing-news/internal/globaltime"
	"github.com/HarrisAD/ai-marketing-news/internal/langdetect"
	"github.com/HarrisAD/ai-marketing-news/internal/model"
)

const (
	fetchTimeout  = 15 * time.Second
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	minTitleChars = 10
)

// Section headings and boilerplate that feeds sometimes emit as item titles.
var badTitleFragments = []string{
	"News", "Company", "Product", "Safety", "Security", "Global Affairs",
	"Policy", "Research", "Learn More", "Next", "FEATURED", "The Latest",
	"More on the Cloud Blog", "Tag:", "Announcements", "Updates",
}

// Options bound what one crawl run collects.
type Options struct {
	DaysBack     int
	MaxPerSource int
}

func (o Options) withDefaults() Options {
	if o.DaysBack <= 0 {
		o.DaysBack = 7
	}
	if o.MaxPerSource <= 0 {
		o.MaxPerSource = 20
	}
	return o
}

// Crawler collects candidates from a source registry. Safe for reuse across
// runs.
type Crawler struct {
	registry   *Registry
	opts       Options
	httpClient *http.Client
	feedParser *gofeed.Parser
	logger     zerolog.Logger
}

func New(registry *Registry, opts Options, logger zerolog.Logger) *Crawler {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &Crawler{
		registry:   registry,
		opts:       opts.withDefaults(),
		httpClient: &http.Client{Timeout: fetchTimeout},
		feedParser: parser,
		logger:     logger.With().Str("component", "crawler").Logger(),
	}
}

// Crawl fetches candidates from the requested domains (all registered sources
// when empty). A failing source is logged and skipped; Crawl only errors when
// every requested source is unknown.
func (c *Crawler) Crawl(ctx context.Context, domains []string) ([]model.Candidate, error) {
	sources, unknown := c.registry.Select(domains)
	for _, domain := range unknown {
		c.logger.Warn().Str("domain", domain).Msg("unknown source domain requested")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no known sources among %v", domains)
	}

	cutoff := globaltime.Now().AddDate(0, 0, -c.opts.DaysBack)

	var all []model.Candidate
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidates := c.crawlSource(ctx, source, cutoff)
		c.logger.Info().
			Str("source", source.Name).
			Int("candidates", len(candidates)).
			Msg("crawled source")
		all = append(all, candidates...)
	}

	return all, nil
}

func (c *Crawler) crawlSource(ctx context.Context, source Source, cutoff time.Time) []model.Candidate {
	var candidates []model.Candidate

	for _, feedURL := range source.RSSURLs {
		items, err := c.parseFeed(ctx, feedURL, source, cutoff)
		if err != nil {
			c.logger.Warn().Err(err).Str("feed", feedURL).Msg("feed fetch failed")
			continue
		}
		candidates = append(candidates, items...)
		if len(candidates) >= c.opts.MaxPerSource {
			break
		}
	}

	if len(candidates) < c.opts.MaxPerSource {
		for _, pageURL := range source.FallbackURLs {
			items, err := c.scrapeListing(ctx, pageURL, source)
			if err != nil {
				c.logger.Warn().Err(err).Str("page", pageURL).Msg("listing scrape failed")
				continue
			}
			candidates = append(candidates, items...)
			if len(candidates) >= c.opts.MaxPerSource {
				break
			}
		}
	}

	if len(candidates) > c.opts.MaxPerSource {
		candidates = candidates[:c.opts.MaxPerSource]
	}
	return candidates
}

func (c *Crawler) parseFeed(ctx context.Context, feedURL string, source Source, cutoff time.Time) ([]model.Candidate, error) {
	feed, err := c.feedParser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var candidates []model.Candidate
	for _, item := range feed.Items {
		published := itemPublished(item)
		if published.IsZero() || published.Before(cutoff) {
			continue
		}

		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if link == "" || !usableTitle(title) {
			continue
		}

		description := strings.TrimSpace(item.Description)
		candidates = append(candidates, model.Candidate{
			CanonicalURL:  link,
			Title:         title,
			Description:   description,
			PublishedDate: published.UTC(),
			SourceDomain:  source.Domain,
			SourceName:    source.Name,
			Language:      candidateLanguage(feed.Language, title+" "+description),
		})
	}

	return candidates, nil
}

// candidateLanguage prefers the language the feed declares for itself over
// statistical detection on the visible text.
func candidateLanguage(declared, text string) string {
	if code := langdetect.NormalizeCode(declared); code != "" {
		return code
	}
	return langdetect.DetectISO6391(text)
}

// scrapeListing pulls article links off a listing page. Listing pages carry
// no publish dates, so crawl time stands in.
func (c *Crawler) scrapeListing(ctx context.Context, pageURL string, source Source) ([]model.Candidate, error) {
	doc, err := c.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	now := globaltime.Now().UTC()
	seen := make(map[string]bool)
	var candidates []model.Candidate

	selectors := []string{
		`a[href*="/blog/"]`, `a[href*="/news/"]`, `a[href*="/post/"]`,
		`a[href*="/article/"]`, "article a", ".post-title a", ".entry-title a",
	}
	for _, selector := range selectors {
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			href, ok := sel.Attr("href")
			title := strings.TrimSpace(sel.Text())
			if !ok || !usableTitle(title) {
				return true
			}

			absolute := resolveLink(pageURL, href)
			if absolute == "" || !strings.Contains(absolute, source.Domain) || seen[absolute] {
				return true
			}
			seen[absolute] = true

			candidates = append(candidates, model.Candidate{
				CanonicalURL:  absolute,
				Title:         title,
				PublishedDate: now,
				SourceDomain:  source.Domain,
				SourceName:    source.Name,
				Language:      langdetect.DetectISO6391(title),
			})
			return len(candidates) < c.opts.MaxPerSource
		})
		if len(candidates) >= c.opts.MaxPerSource {
			break
		}
	}

	return candidates, nil
}

func (c *Crawler) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch page: HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

func itemPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

func usableTitle(title string) bool {
	if len(strings.TrimSpace(title)) < minTitleChars {
		return false
	}
	for _, fragment := range badTitleFragments {
		if strings.Contains(title, fragment) {
			return false
		}
	}
	return true
}

func resolveLink(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(ref)
	if resolved.Host == "" {
		return ""
	}
	return resolved.String()
}
