// Package lister discovers a trading day's archives on a directory listing page.
//
// Names are found by pattern matching the raw page text rather than walking
// link tags, because the listing is not guaranteed to be well-formed HTML.
// When the page does parse, anchor hrefs are used to learn where each name is
// actually served from.
package lister

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dtnitsch/aemo-scada/models"
	"github.com/dtnitsch/aemo-scada/pkg/resolver"
)

// Getter fetches a page body; *fetcher.Fetcher satisfies it.
type Getter interface {
	GetBytes(ctx context.Context, url string) ([]byte, error)
}

// NoArchivesFoundError means the listing loaded but nothing matched the day.
type NoArchivesFoundError struct {
	Date       string
	Prefix     string
	ListingURL string
}

func (e *NoArchivesFoundError) Error() string {
	return fmt.Sprintf("no %s archives for %s found at %s (wrong date, or the feed has not published yet)",
		strings.TrimSuffix(e.Prefix, "_"), e.Date, e.ListingURL)
}

// Pattern returns the archive-name pattern for prefix and a YYYYMMDD day.
func Pattern(prefix, yyyymmdd string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(prefix) + regexp.QuoteMeta(yyyymmdd) + `\d{4}_\d+\.zip`)
}

// MatchArchives returns the distinct archive names in body, in first-seen
// order. Names differing only in case are the same archive.
func MatchArchives(body []byte, prefix, yyyymmdd string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range Pattern(prefix, yyyymmdd).FindAll(body, -1) {
		name := string(m)
		key := strings.ToUpper(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names
}

// anchorHrefs maps each name to the first anchor href that ends with it.
// Pages that do not parse simply yield no hrefs.
func anchorHrefs(body []byte, names []string) map[string]string {
	hrefs := make(map[string]string, len(names))
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return hrefs
	}

	wanted := make(map[string]string, len(names))
	for _, n := range names {
		wanted[strings.ToLower(n)] = n
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		i := strings.LastIndex(href, "/")
		name, ok := wanted[strings.ToLower(href[i+1:])]
		if !ok {
			return
		}
		if _, done := hrefs[name]; !done {
			hrefs[name] = href
		}
	})
	return hrefs
}

// ListArchives fetches listingURL and returns the day's archives, resolved to
// absolute URLs and sorted in processing order.
func ListArchives(ctx context.Context, g Getter, listingURL string, date time.Time, prefix string) ([]models.ArchiveReference, error) {
	day := date.Format("20060102")

	body, err := g.GetBytes(ctx, listingURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing %s: %w", listingURL, err)
	}

	names := MatchArchives(body, prefix, day)
	if len(names) == 0 {
		return nil, &NoArchivesFoundError{Date: date.Format("2006-01-02"), Prefix: prefix, ListingURL: listingURL}
	}

	hrefs := anchorHrefs(body, names)
	refs := make([]models.ArchiveReference, 0, len(names))
	for _, name := range names {
		ref, err := models.ParseArchiveName(name)
		if err != nil {
			return nil, err
		}
		ref.Href = name
		if h, ok := hrefs[name]; ok {
			ref.Href = h
		}
		ref.URL, err = resolver.Resolve(ref.Href, listingURL)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", name, err)
		}
		refs = append(refs, ref)
	}

	models.SortArchives(refs)
	return refs, nil
}
