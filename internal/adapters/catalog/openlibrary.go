// Package catalog resolves book identifiers to catalog metadata.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/okian/readfeed/internal/domain/types"
	"github.com/okian/readfeed/pkg/logger"
)

const (
	defaultBaseURL   = "https://openlibrary.org"
	defaultTimeout   = 10 * time.Second
	defaultRetries   = 2
	defaultChunkSize = 50
	maxBodyBytes     = 8 << 20

	bibkeyPrefix = "ISBN:"
)

// OpenLibrary is a SubjectResolver backed by the Open Library books API.
type OpenLibrary struct {
	baseURL      string
	timeout      time.Duration
	retries      int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	chunkSize    int
	log          logger.Logger

	client *http.Client
}

// NewOpenLibrary constructs a client with retrying transport.
func NewOpenLibrary(opts ...Option) *OpenLibrary {
	o := &OpenLibrary{
		baseURL:      defaultBaseURL,
		timeout:      defaultTimeout,
		retries:      defaultRetries,
		retryWaitMin: 200 * time.Millisecond,
		retryWaitMax: 2 * time.Second,
		chunkSize:    defaultChunkSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Get().Named("catalog")
	}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = o.retries
	rc.RetryWaitMin = o.retryWaitMin
	rc.RetryWaitMax = o.retryWaitMax
	rc.HTTPClient.Timeout = o.timeout
	o.client = rc.StandardClient()
	return o
}

// ResolveSubjects looks ids up in batches. Unknown ids are simply absent from
// the result. An error is returned only when no batch succeeded.
func (o *OpenLibrary) ResolveSubjects(ctx context.Context, ids []string) ([]types.SubjectMetadata, error) {
	var (
		out  []types.SubjectMetadata
		errs []error
		ok   int
	)
	for start := 0; start < len(ids); start += o.chunkSize {
		end := min(start+o.chunkSize, len(ids))
		batch, err := o.lookup(ctx, ids[start:end])
		if err != nil {
			o.log.Warn(ctx, "catalog batch failed",
				logger.Int("ids", end-start),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		ok++
		out = append(out, batch...)
	}
	if ok == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (o *OpenLibrary) lookup(ctx context.Context, ids []string) ([]types.SubjectMetadata, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = bibkeyPrefix + id
	}
	q := url.Values{}
	q.Set("bibkeys", strings.Join(keys, ","))
	q.Set("format", "json")
	q.Set("jscmd", "data")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/books?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrCatalogStatus, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read catalog response: %w", err)
	}
	return parseBooks(body)
}

// parseBooks decodes a jscmd=data response: an object keyed by bibkey.
func parseBooks(body []byte) ([]types.SubjectMetadata, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrCatalogResponse
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, ErrCatalogResponse
	}

	var out []types.SubjectMetadata
	root.ForEach(func(key, book gjson.Result) bool {
		id, found := strings.CutPrefix(key.String(), bibkeyPrefix)
		if !found || id == "" || !book.IsObject() {
			return true
		}
		var authors []string
		for _, a := range book.Get("authors.#.name").Array() {
			if s := a.String(); s != "" {
				authors = append(authors, s)
			}
		}
		cover := book.Get("cover.large").String()
		if cover == "" {
			cover = book.Get("cover.medium").String()
		}
		out = append(out, types.SubjectMetadata{
			ID:       id,
			Title:    book.Get("title").String(),
			Author:   strings.Join(authors, ", "),
			CoverURL: cover,
		})
		return true
	})
	return out, nil
}
