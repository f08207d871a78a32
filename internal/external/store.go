package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mailroom/internal/config"
	"mailroom/internal/types"
)

// storeTimestampFormat is the timestamp layout the document store uses in
// record fields and filter expressions.
const storeTimestampFormat = "2006-01-02 15:04:05.000Z"

// StoreFactory builds authenticated StoreClient handles. Each request path
// acquires its own handle so no session state is shared across requests.
type StoreFactory struct {
	base     *BaseClient
	baseURL  string
	email    string
	password types.SecretString
	logger   types.Logger
}

// NewStoreFactory creates a factory from store configuration. The supplied
// options are applied to the underlying BaseClient.
func NewStoreFactory(cfg config.StoreConfig, logger types.Logger, opts ...BaseClientOption) *StoreFactory {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &StoreFactory{
		base:     NewBaseClient(httpClient, "document-store", DefaultRetryPolicy(), "mailroom/1.0", opts...),
		baseURL:  cfg.BaseURL,
		email:    cfg.AdminEmail,
		password: cfg.AdminPassword,
		logger:   logger,
	}
}

// Authed authenticates with the store's admin credentials and returns a
// client handle carrying the session token.
func (f *StoreFactory) Authed(ctx context.Context) (*StoreClient, error) {
	body, err := json.Marshal(map[string]string{
		"identity": f.email,
		"password": f.password.Unmask(),
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode auth payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.baseURL+"/api/admins/auth-with-password", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build auth request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStore,
			fmt.Sprintf("store authentication failed with status %d", resp.StatusCode),
			nil,
		)
	}

	var authResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStore, "failed to decode auth response", err)
	}
	if authResp.Token == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamStore, "store auth response missing token", nil)
	}

	return &StoreClient{
		base:    f.base,
		baseURL: f.baseURL,
		token:   authResp.Token,
		logger:  f.logger,
	}, nil
}

// Ping checks store reachability without authenticating. Used by the
// health endpoint.
func (f *StoreFactory) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}

	resp, err := f.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("store health returned %d", resp.StatusCode)
	}
	return nil
}

// StoreClient is an authenticated handle onto the document store's REST API.
// It is valid for the lifetime of one request path and must not be cached
// across requests.
type StoreClient struct {
	base    *BaseClient
	baseURL string
	token   string
	logger  types.Logger
}

// listQuery carries the supported record-list query parameters.
type listQuery struct {
	filter  string
	sort    string
	page    int
	perPage int
	expand  string
}

func (q listQuery) encode() string {
	values := url.Values{}
	if q.filter != "" {
		values.Set("filter", q.filter)
	}
	if q.sort != "" {
		values.Set("sort", q.sort)
	}
	if q.page > 0 {
		values.Set("page", strconv.Itoa(q.page))
	}
	if q.perPage > 0 {
		values.Set("perPage", strconv.Itoa(q.perPage))
	}
	if q.expand != "" {
		values.Set("expand", q.expand)
	}
	return values.Encode()
}

func (c *StoreClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode store payload", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build store request", err)
	}
	req.Header.Set("Authorization", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.base.Do(req)
}

// decodeOrError consumes the response. 2xx decodes into out (when non-nil);
// 404 maps to a generic not-found; everything else maps to an upstream error
// that never echoes store response bodies to callers.
func (c *StoreClient) decodeOrError(resp *http.Response, out any) error {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return types.NewAppError(types.ErrCodeUpstreamStore, "failed to decode store response", err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return types.NewAppError(types.ErrCodeNotFoundRecord, "record not found", nil)
	default:
		c.logger.Warn("store request failed",
			"status", resp.StatusCode,
			"path", resp.Request.URL.Path)
		return types.NewAppError(
			types.ErrCodeUpstreamStore,
			fmt.Sprintf("store request failed with status %d", resp.StatusCode),
			nil,
		)
	}
}

// listRecords fetches a page of records from a collection.
func listRecords[T any](ctx context.Context, c *StoreClient, collection string, q listQuery) ([]T, error) {
	path := "/api/collections/" + url.PathEscape(collection) + "/records"
	if encoded := q.encode(); encoded != "" {
		path += "?" + encoded
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var page struct {
		Items []T `json:"items"`
	}
	if err := c.decodeOrError(resp, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// listPageSize is the batch size used when walking a full collection.
const listPageSize = 500

// allRecords walks every page of a listing and concatenates the results.
// A page shorter than the batch size ends the walk.
func allRecords[T any](ctx context.Context, c *StoreClient, collection string, q listQuery) ([]T, error) {
	q.perPage = listPageSize
	var all []T
	for page := 1; ; page++ {
		q.page = page
		batch, err := listRecords[T](ctx, c, collection, q)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < listPageSize {
			return all, nil
		}
	}
}

// firstMatch returns the first record matching the query, or (nil, nil) when
// no record matches.
func firstMatch[T any](ctx context.Context, c *StoreClient, collection string, q listQuery) (*T, error) {
	q.perPage = 1
	items, err := listRecords[T](ctx, c, collection, q)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// getRecord fetches a single record by id.
func getRecord[T any](ctx context.Context, c *StoreClient, collection, id string, expand string) (*T, error) {
	path := "/api/collections/" + url.PathEscape(collection) + "/records/" + url.PathEscape(id)
	if expand != "" {
		path += "?expand=" + url.QueryEscape(expand)
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var record T
	if err := c.decodeOrError(resp, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// createRecord inserts a record and returns the stored representation.
func createRecord[T any](ctx context.Context, c *StoreClient, collection string, body any) (*T, error) {
	path := "/api/collections/" + url.PathEscape(collection) + "/records"

	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	var record T
	if err := c.decodeOrError(resp, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// updateRecord applies a partial update to a record by id.
func updateRecord[T any](ctx context.Context, c *StoreClient, collection, id string, body any) (*T, error) {
	path := "/api/collections/" + url.PathEscape(collection) + "/records/" + url.PathEscape(id)

	resp, err := c.do(ctx, http.MethodPatch, path, body)
	if err != nil {
		return nil, err
	}

	var record T
	if err := c.decodeOrError(resp, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// deleteRecord removes a record by id.
func deleteRecord(ctx context.Context, c *StoreClient, collection, id string) error {
	path := "/api/collections/" + url.PathEscape(collection) + "/records/" + url.PathEscape(id)

	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return c.decodeOrError(resp, nil)
}

// FileURL builds the public download URL for a file attached to a record.
func (c *StoreClient) FileURL(collection, recordID, filename string) string {
	return fmt.Sprintf("%s/api/files/%s/%s/%s",
		c.baseURL,
		url.PathEscape(collection),
		url.PathEscape(recordID),
		url.PathEscape(filename),
	)
}

// storeTimestamp formats a time in the store's filter timestamp layout.
func storeTimestamp(t time.Time) string {
	return t.UTC().Format(storeTimestampFormat)
}
