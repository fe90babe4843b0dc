package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"audioembed/types"

	"golang.org/x/sync/errgroup"
)

// ResolverOptions bounds what a single request may ask for
type ResolverOptions struct {
	MaxItems      int
	FetchTimeout  time.Duration
	MaxFetchBytes int64
	Workers       int
}

// Resolver turns request input into a batch of raw items
type Resolver struct {
	client *http.Client
	opts   ResolverOptions
}

// NewResolver creates a resolver. A nil client uses a fresh http.Client.
func NewResolver(client *http.Client, opts ResolverOptions) *Resolver {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Resolver{client: client, opts: opts}
}

// SplitURLs flattens repeated and comma-separated url values
func SplitURLs(values ...string) []string {
	var urls []string
	for _, v := range values {
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// Resolve validates input and builds the batch. Nothing is allocated before
// validation passes. Every URL is fetched even when others fail; failed items
// keep their error and the batch is returned together with a
// *types.BatchError listing all of them.
func (r *Resolver) Resolve(ctx context.Context, requestID string, input types.Input) (*types.Batch, error) {
	hasUploads := len(input.Uploads) > 0
	hasURLs := len(input.URLs) > 0

	switch {
	case hasUploads && hasURLs:
		return nil, types.InvalidRequest("provide either audio uploads or urls, not both")
	case !hasUploads && !hasURLs:
		return nil, types.InvalidRequest("need to provide either an audio or url argument")
	}

	n := len(input.Uploads) + len(input.URLs)
	if r.opts.MaxItems > 0 && n > r.opts.MaxItems {
		return nil, types.InvalidRequest("batch of %d items exceeds the limit of %d", n, r.opts.MaxItems)
	}

	batch := &types.Batch{RequestID: requestID}
	if hasUploads {
		for i, up := range input.Uploads {
			if len(up.Data) == 0 {
				return nil, types.InvalidRequest("upload %d (%q) is empty", i, up.Filename)
			}
			batch.Items = append(batch.Items, &types.AudioItem{
				Index:        i,
				Key:          up.Filename,
				Raw:          up.Data,
				DeclaredType: up.ContentType,
			})
		}
		return batch, nil
	}

	for i, raw := range input.URLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, types.InvalidRequest("invalid url %q", raw)
		}
		batch.Items = append(batch.Items, &types.AudioItem{Index: i, Key: raw})
	}

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for _, item := range batch.Items {
		g.Go(func() error {
			data, contentType, err := r.fetch(ctx, item.Key)
			if err != nil {
				item.Err = types.NewError(types.KindFetch, item.Index, item.Key, err)
				return nil
			}
			item.Raw = data
			item.DeclaredType = contentType
			return nil
		})
	}
	_ = g.Wait()

	if be := types.NewBatchError(string(types.PhaseResolve), batch); be != nil {
		return batch, be
	}
	return batch, nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if r.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.FetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	body := io.Reader(resp.Body)
	if r.opts.MaxFetchBytes > 0 {
		body = io.LimitReader(resp.Body, r.opts.MaxFetchBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", err
	}
	if r.opts.MaxFetchBytes > 0 && int64(len(data)) > r.opts.MaxFetchBytes {
		return nil, "", fmt.Errorf("body exceeds %d bytes", r.opts.MaxFetchBytes)
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty body")
	}
	return data, resp.Header.Get("Content-Type"), nil
}
