// Package importer bulk-loads categories and feeds from files.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// ErrInvalidFeedList is returned for a feed list that is not a JSON object
// with a "feeds" array.
var ErrInvalidFeedList = errors.New("invalid feed list: expected an object with a \"feeds\" array")

// FeedAdder is implemented by manager.Manager.
type FeedAdder interface {
	AddFeed(ctx context.Context, url string) error
}

// CategoryAdder is implemented by manager.Manager.
type CategoryAdder interface {
	AddCategory(name string) error
}

// ItemError records why one item failed to import.
type ItemError struct {
	Item string
	Err  error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Item, e.Err)
}

// Report summarizes an import. Failed counts every item not added,
// including malformed list items that have no entry in Errors.
type Report struct {
	Added  int
	Failed int
	Errors []ItemError
}

func (r *Report) fail(item string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, ItemError{Item: item, Err: err})
}

// FeedList is a decoded JSON feed list.
type FeedList struct {
	URLs []string
	// Invalid counts items without a usable "url".
	Invalid int
}

// ReadCategoryList reads one category name per line. Surrounding
// whitespace is trimmed and blank lines are dropped.
func ReadCategoryList(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read category list: %w", err)
	}
	return names, nil
}

// ReadFeedList decodes {"feeds": [{"url": "..."}, ...]}.
func ReadFeedList(r io.Reader) (FeedList, error) {
	var list FeedList

	data, err := io.ReadAll(r)
	if err != nil {
		return list, fmt.Errorf("read feed list: %w", err)
	}

	var doc struct {
		Feeds *[]json.RawMessage `json:"feeds"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(data), &doc); err != nil {
		return list, fmt.Errorf("%w: %v", ErrInvalidFeedList, err)
	}
	if doc.Feeds == nil {
		return list, ErrInvalidFeedList
	}

	for _, item := range *doc.Feeds {
		var feed struct {
			URL any `json:"url"`
		}
		if err := json.Unmarshal(item, &feed); err != nil {
			list.Invalid++
			continue
		}
		url, ok := feed.URL.(string)
		if !ok || strings.TrimSpace(url) == "" {
			list.Invalid++
			continue
		}
		list.URLs = append(list.URLs, strings.TrimSpace(url))
	}
	return list, nil
}

// ImportCategories adds each name. Existing or invalid names count as
// failures and do not stop the import.
func ImportCategories(ctx context.Context, target CategoryAdder, names []string) Report {
	var report Report
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			report.fail(name, err)
			continue
		}
		if err := target.AddCategory(name); err != nil {
			report.fail(name, err)
			continue
		}
		report.Added++
	}
	return report
}

// ImportFeeds adds each URL in order. invalid is the number of malformed
// list items already dropped; they are counted as failures.
func ImportFeeds(ctx context.Context, target FeedAdder, urls []string, invalid int) Report {
	report := Report{Failed: invalid}
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			report.fail(url, err)
			continue
		}
		if err := target.AddFeed(ctx, url); err != nil {
			report.fail(url, err)
			continue
		}
		report.Added++
	}
	return report
}
