// Package scraper collects job listings from Google's jobs search surface
// for a list of companies and writes them as a run-numbered scrape CSV for
// the keyword filter to consume.
package scraper

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ygulsen/applypilot/internal/config"
	"github.com/ygulsen/applypilot/internal/jobs"
)

// Pager is the slice of the browsing session the scraper needs.
type Pager interface {
	Navigate(ctx context.Context, url string) error
	Eval(ctx context.Context, expr string, out any) error
	OuterHTML(ctx context.Context) (string, error)
	Sleep(ctx context.Context, d time.Duration) error
}

// Listing-card selectors for the Google jobs panel, most specific first.
// These rot as Google reshuffles class names; parse failures surface as a
// zero-listing warning per company rather than an error.
var (
	cardSelectors    = []string{"li.iFjolb", "div.PwjeAc", "div[data-job-card]"}
	titleSelectors   = []string{"div.BjJfJf", "div[role='heading']", "h3"}
	companySelectors = []string{"div.vNEEBe", "div.company"}
	locSelectors     = []string{"div.Qk80Jf", "div.location"}
)

// Scraper drives one browser session through the companies list.
type Scraper struct {
	page    Pager
	cfg     config.ScraperConfig
	limiter *rate.Limiter
	log     *zap.Logger
}

func New(page Pager, cfg config.ScraperConfig, logger *zap.Logger) *Scraper {
	return &Scraper{
		page:    page,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:     logger.Named("scraper"),
	}
}

// ReadCompanies loads the companies list, one name per line, skipping blanks
// and #-comments.
func ReadCompanies(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening companies file: %w", err)
	}
	defer f.Close()

	var companies []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		companies = append(companies, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading companies file: %w", err)
	}
	if len(companies) == 0 {
		return nil, fmt.Errorf("companies file %s lists no companies", path)
	}
	return companies, nil
}

// Run scrapes every company and writes the collected listings to the next
// run-numbered file matching pattern under the configured output directory.
func (s *Scraper) Run(ctx context.Context, pattern string) (string, int, error) {
	companies, err := ReadCompanies(s.cfg.CompaniesFile)
	if err != nil {
		return "", 0, err
	}

	var all []jobs.Record
	for _, company := range companies {
		records, err := s.scrapeCompany(ctx, company)
		if err != nil {
			if ctx.Err() != nil {
				return "", 0, ctx.Err()
			}
			// One broken company page must not lose the rest of the run.
			s.log.Warn("Company scrape failed, continuing.",
				zap.String("company", company), zap.Error(err))
			continue
		}
		if len(records) == 0 {
			s.log.Warn("No listings parsed for company.", zap.String("company", company))
		}
		all = append(all, records...)
	}

	outPath, run, err := jobs.NextRunFile(s.cfg.OutputDir, pattern)
	if err != nil {
		return "", 0, err
	}
	if err := jobs.WriteRecords(outPath, all, ""); err != nil {
		return "", 0, err
	}
	s.log.Info("Scrape run written.",
		zap.Int("run", run), zap.Int("listings", len(all)), zap.String("file", outPath))
	return outPath, len(all), nil
}

func (s *Scraper) scrapeCompany(ctx context.Context, company string) ([]jobs.Record, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	pageCtx, cancel := context.WithTimeout(ctx, s.cfg.PageTimeout)
	defer cancel()

	searchURL := "https://www.google.com/search?q=" +
		url.QueryEscape(company+" jobs") + "&ibp=htl;jobs"
	if err := s.page.Navigate(pageCtx, searchURL); err != nil {
		return nil, err
	}

	// Scroll the results panel to exhaustion so lazily rendered cards land
	// in the DOM before it is captured.
	for i := 0; i < s.cfg.MaxScrolls; i++ {
		if err := s.limiter.Wait(pageCtx); err != nil {
			break
		}
		var atBottom bool
		script := `(() => {
			const panel = document.querySelector('div[role="list"], ul') || document.scrollingElement;
			const before = panel.scrollTop;
			panel.scrollTop = panel.scrollHeight;
			window.scrollBy(0, window.innerHeight);
			return panel.scrollTop === before;
		})()`
		if err := s.page.Eval(pageCtx, script, &atBottom); err != nil {
			return nil, fmt.Errorf("scrolling listings for %s: %w", company, err)
		}
		if atBottom {
			break
		}
		if err := s.page.Sleep(pageCtx, 500*time.Millisecond); err != nil {
			break
		}
	}

	html, err := s.page.OuterHTML(pageCtx)
	if err != nil {
		return nil, err
	}
	records, err := ParseListings(html, company)
	if err != nil {
		return nil, err
	}
	s.log.Info("Company scraped.", zap.String("company", company), zap.Int("listings", len(records)))
	return records, nil
}

// ParseListings extracts listing records from a captured jobs page. The
// company argument is the fallback when a card carries no company of its own.
func ParseListings(html, company string) ([]jobs.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing listings page: %w", err)
	}

	var records []jobs.Record
	doc.Find(strings.Join(cardSelectors, ", ")).Each(func(_ int, card *goquery.Selection) {
		title := firstText(card, titleSelectors)
		if title == "" {
			return
		}
		cardCompany := firstText(card, companySelectors)
		if cardCompany == "" {
			cardCompany = company
		}
		records = append(records, jobs.Record{
			Title:    title,
			Company:  cardCompany,
			Location: firstText(card, locSelectors),
			URL:      cardURL(card),
		})
	})
	return records, nil
}

func firstText(card *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(card.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// cardURL digs an application link out of a card: a share URL when present,
// otherwise the first absolute link.
func cardURL(card *goquery.Selection) string {
	if share, ok := card.Attr("data-share-url"); ok && share != "" {
		return share
	}
	result := ""
	card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.HasPrefix(href, "http") {
			result = href
			return false
		}
		return true
	})
	if result != "" {
		return result
	}
	if parent := card.Closest("a[href]"); parent.Length() > 0 {
		if href, ok := parent.Attr("href"); ok && strings.HasPrefix(href, "http") {
			return href
		}
	}
	return ""
}
