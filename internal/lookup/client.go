// Package lookup queries the upstream marketplace for activity listings.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Upstream endpoints. Listing and keyword search share one path.
const (
	SearchPath = "/api/shop/activity"
	DetailPath = "/api/shop/activity_detail"
)

// Listing defaults used when a ListQuery leaves them empty.
const (
	DefaultCateID  = "14"
	DefaultCate2ID = "0"
	defaultCount   = 10
)

const maxBodyBytes = 4 << 20

// ErrUpstream marks a failed lookup: transport error, bad HTTP status or
// a non-success envelope. Callers treat it as a retryable miss.
var ErrUpstream = errors.New("upstream lookup failed")

// Signer computes the request token upstream expects next to the form
// fields. The algorithm lives outside this package.
type Signer interface {
	Sign(path string, form url.Values) (string, error)
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(path string, form url.Values) (string, error)

func (f SignerFunc) Sign(path string, form url.Values) (string, error) { return f(path, form) }

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration // per request (default: 10s)
	City      string
	Lon       string
	Lat       string
	UserAgent string
	Signer    Signer // optional
}

// Location overrides the client's default position for one request.
// Empty fields keep the default.
type Location struct {
	City string
	Lon  string
	Lat  string
}

// ListQuery selects a page of the category listing.
type ListQuery struct {
	CateID  string
	Cate2ID string
	Area    string
	Street  string
	Page    int
	Count   int
	Location
}

// Client talks to the upstream activity API.
type Client struct {
	baseURL string
	http    *http.Client
	opts    Options
}

// New returns a client with a bounded per-request timeout.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		opts:    opts,
	}
}

// Search runs a keyword search from the default location.
func (c *Client) Search(ctx context.Context, keyword string, page, count int) (*SearchResult, error) {
	return c.SearchAt(ctx, keyword, page, count, Location{})
}

// SearchAt runs a keyword search from loc.
func (c *Client) SearchAt(ctx context.Context, keyword string, page, count int, loc Location) (*SearchResult, error) {
	form := url.Values{}
	form.Set("page", strconv.Itoa(max(page, 1)))
	form.Set("count", strconv.Itoa(positiveOr(count, defaultCount)))
	form.Set("title", keyword)
	c.setLocation(form, loc, true)

	body, err := c.post(ctx, SearchPath, form)
	if err != nil {
		return nil, err
	}
	return decodeSearch(body)
}

// List returns one page of the category listing.
func (c *Client) List(ctx context.Context, q ListQuery) (*SearchResult, error) {
	form := url.Values{}
	form.Set("cate_id", nonEmpty(q.CateID, DefaultCateID))
	form.Set("cate2_id", nonEmpty(q.Cate2ID, DefaultCate2ID))
	form.Set("area", q.Area)
	form.Set("street", q.Street)
	form.Set("page", strconv.Itoa(max(q.Page, 1)))
	form.Set("count", strconv.Itoa(positiveOr(q.Count, defaultCount)))
	c.setLocation(form, q.Location, true)

	body, err := c.post(ctx, SearchPath, form)
	if err != nil {
		return nil, err
	}
	return decodeSearch(body)
}

// Detail fetches one listing with its goods and shop information.
func (c *Client) Detail(ctx context.Context, activityID int64, loc Location) (*Detail, error) {
	form := url.Values{}
	form.Set("activitygoods_id", strconv.FormatInt(activityID, 10))
	c.setLocation(form, loc, false)

	body, err := c.post(ctx, DetailPath, form)
	if err != nil {
		return nil, err
	}
	return decodeDetail(body)
}

func (c *Client) setLocation(form url.Values, loc Location, withCity bool) {
	form.Set("lon", nonEmpty(loc.Lon, c.opts.Lon))
	form.Set("lat", nonEmpty(loc.Lat, c.opts.Lat))
	if withCity {
		form.Set("city", nonEmpty(loc.City, c.opts.City))
	}
}

// post signs form, sends it and returns the body of a 200 response.
func (c *Client) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	if c.opts.Signer != nil {
		token, err := c.opts.Signer.Sign(path, form)
		if err != nil {
			return nil, fmt.Errorf("failed to sign request: %w", err)
		}
		form.Set("rqtoken", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "*/*")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}
	return body, nil
}

// decodeEnvelope checks the success code and returns the data payload.
func decodeEnvelope(body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode body: %w", ErrUpstream, err)
	}
	if env.Code != 1 {
		return nil, fmt.Errorf("%w: code %d: %s", ErrUpstream, env.Code, env.Msg)
	}
	if isNull(env.Data) {
		return nil, fmt.Errorf("%w: response has no data", ErrUpstream)
	}
	return env.Data, nil
}

func decodeSearch(body []byte) (*SearchResult, error) {
	data, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}

	var page struct {
		Data []rawItem `json:"data"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("%w: decode items: %w", ErrUpstream, err)
	}
	// An empty list is a valid page; a missing one is a failed search.
	if page.Data == nil {
		return nil, fmt.Errorf("%w: response has no item list", ErrUpstream)
	}

	res := &SearchResult{Items: make([]Item, 0, len(page.Data))}
	for _, raw := range page.Data {
		if it, ok := raw.item(); ok {
			res.Items = append(res.Items, it)
		} else {
			res.Unpriced = append(res.Unpriced, int64(raw.ActivityID))
		}
	}
	return res, nil
}

func decodeDetail(body []byte) (*Detail, error) {
	data, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}

	var raw rawDetail
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode detail: %w", ErrUpstream, err)
	}
	if raw.ID == 0 {
		return nil, fmt.Errorf("%w: detail has no id", ErrUpstream)
	}
	return raw.detail()
}

func isNull(b json.RawMessage) bool {
	s := strings.TrimSpace(string(b))
	return s == "" || s == "null"
}

func nonEmpty(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
