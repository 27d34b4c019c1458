package bili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://api.bilibili.com"
	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// searchPageSize is the platform maximum; one call per page keeps the
	// upstream request count down.
	searchPageSize = 50
)

// CodeRateLimited is the platform code for throttled requests.
const CodeRateLimited = -412

// APIError is a non-zero platform response code.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bili: api code %d: %s", e.Code, e.Message)
}

// RateLimited reports whether the error is the platform's throttle code.
func (e *APIError) RateLimited() bool { return e.Code == CodeRateLimited }

// Client is a façade over the platform API. It owns the WBI key cache and
// refreshes it lazily on the first signed call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	now        func() time.Time

	mu     sync.Mutex
	imgKey string
	subKey string
}

// New returns a client talking to the public API.
func New() *Client {
	return NewWithBase(defaultBaseURL, &http.Client{Timeout: 30 * time.Second})
}

// NewWithBase points the client at an alternate API origin. Used by tests.
func NewWithBase(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		now:        time.Now,
	}
}

// ResetKeys drops the cached key pair, forcing a refresh on the next signed
// call.
func (c *Client) ResetKeys() {
	c.mu.Lock()
	c.imgKey, c.subKey = "", ""
	c.mu.Unlock()
}

// RefreshKeys fetches the nav endpoint and extracts the WBI key pair from
// its two image URLs. Fatal for signed calls if it fails.
func (c *Client) RefreshKeys(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshKeysLocked(ctx)
}

func (c *Client) refreshKeysLocked(ctx context.Context) error {
	var nav navResponse
	if err := c.get(ctx, c.baseURL+"/x/web-interface/nav", nil, &nav); err != nil {
		return fmt.Errorf("fetch nav: %w", err)
	}

	// The nav endpoint reports code -101 when not logged in but still
	// carries wbi_img, which is all we need.
	img := keyFromURL(nav.Data.WbiImg.ImgURL)
	sub := keyFromURL(nav.Data.WbiImg.SubURL)
	if img == "" || sub == "" {
		return fmt.Errorf("nav response missing wbi_img keys: %s", nav.Message)
	}

	c.imgKey, c.subKey = img, sub
	return nil
}

// keyFromURL takes the filename stem between the last '/' and the last '.'.
func keyFromURL(u string) string {
	slash := strings.LastIndexByte(u, '/')
	dot := strings.LastIndexByte(u, '.')
	if slash < 0 || dot <= slash+1 {
		return ""
	}
	return u[slash+1 : dot]
}

// keys returns the cached pair, refreshing it first if absent. The mutex is
// held across the refresh so concurrent callers trigger a single fetch.
func (c *Client) keys(ctx context.Context) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.imgKey == "" || c.subKey == "" {
		if err := c.refreshKeysLocked(ctx); err != nil {
			return "", "", err
		}
	}
	return c.imgKey, c.subKey, nil
}

// SearchOpts are the video search filters.
type SearchOpts struct {
	Keyword  string
	Page     int
	Order    string // click, pubdate, dm, stow
	Duration int    // 0 all, 1 <10min, 2 10-30min, 3 30-60min, 4 >60min
	Tids     int    // category id, 0 = all
	Days     int    // publish window in days back from now, 0 = unbounded
}

// SearchVideos runs a signed keyword video search. Results come back in the
// requested order; the client does not re-sort them.
func (c *Client) SearchVideos(ctx context.Context, opts SearchOpts) (*SearchResult, error) {
	if opts.Page <= 0 {
		opts.Page = 1
	}
	if opts.Order == "" {
		opts.Order = "click"
	}

	params := map[string]string{
		"keyword":     opts.Keyword,
		"search_type": "video",
		"page":        strconv.Itoa(opts.Page),
		"page_size":   strconv.Itoa(searchPageSize),
		"order":       opts.Order,
	}
	if opts.Duration > 0 {
		params["duration"] = strconv.Itoa(opts.Duration)
	}
	if opts.Tids > 0 {
		params["tids"] = strconv.Itoa(opts.Tids)
	}
	if opts.Days > 0 {
		end := c.now().Unix()
		begin := end - int64(opts.Days)*86400
		params["pubtime_begin_s"] = strconv.FormatInt(begin, 10)
		params["pubtime_end_s"] = strconv.FormatInt(end, 10)
	}

	var resp searchResponse
	if err := c.signedGet(ctx, "/x/web-interface/wbi/search/type", params, &resp); err != nil {
		return nil, fmt.Errorf("search %q page %d: %w", opts.Keyword, opts.Page, err)
	}
	if err := apiError(resp.Code, resp.Message); err != nil {
		return nil, err
	}

	return &SearchResult{
		Results:    resp.Data.Result,
		NumPages:   resp.Data.NumPages,
		NumResults: resp.Data.NumResults,
		PageSize:   resp.Data.PageSize,
		Page:       resp.Data.Page,
	}, nil
}

// SearchUsers runs a signed keyword user search. Order is "0" (default),
// "fans" or "level".
func (c *Client) SearchUsers(ctx context.Context, keyword string, page int, order string) ([]UserItem, error) {
	if page <= 0 {
		page = 1
	}
	params := map[string]string{
		"keyword":     keyword,
		"search_type": "bili_user",
		"page":        strconv.Itoa(page),
	}
	if order != "" && order != "0" {
		params["order"] = order
	}

	var resp userSearchResponse
	if err := c.signedGet(ctx, "/x/web-interface/wbi/search/type", params, &resp); err != nil {
		return nil, fmt.Errorf("search users %q page %d: %w", keyword, page, err)
	}
	if err := apiError(resp.Code, resp.Message); err != nil {
		return nil, err
	}
	return resp.Data.Result, nil
}

// GetUserVideos lists one user's uploads. Category is fixed to all.
func (c *Client) GetUserVideos(ctx context.Context, mid int64, page, pageSize int, order string) (*UserVideosResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 30
	}
	if order == "" {
		order = "pubdate"
	}
	params := map[string]string{
		"mid":   strconv.FormatInt(mid, 10),
		"pn":    strconv.Itoa(page),
		"ps":    strconv.Itoa(pageSize),
		"order": order,
		"tid":   "0",
	}

	var resp userVideosResponse
	if err := c.signedGet(ctx, "/x/space/wbi/arc/search", params, &resp); err != nil {
		return nil, fmt.Errorf("user %d videos page %d: %w", mid, page, err)
	}
	if err := apiError(resp.Code, resp.Message); err != nil {
		return nil, err
	}

	return &UserVideosResult{
		Results:  resp.Data.List.Vlist,
		Total:    resp.Data.Page.Count,
		Page:     resp.Data.Page.Pn,
		PageSize: resp.Data.Page.Ps,
	}, nil
}

// ResolveStreamID fetches the first page's cid for a video. Unsigned. Some
// fraction of videos legitimately have none; callers treat that as a
// degraded result, not a crawl failure.
func (c *Client) ResolveStreamID(ctx context.Context, bvid string) (string, error) {
	var resp viewResponse
	url := c.baseURL + "/x/web-interface/view?bvid=" + escape(bvid)
	if err := c.get(ctx, url, nil, &resp); err != nil {
		return "", fmt.Errorf("view %s: %w", bvid, err)
	}
	if err := apiError(resp.Code, resp.Message); err != nil {
		return "", err
	}

	cid := resp.Data.Cid
	if cid == 0 && len(resp.Data.Pages) > 0 {
		cid = resp.Data.Pages[0].Cid
	}
	if cid == 0 {
		return "", fmt.Errorf("view %s: no cid in response", bvid)
	}
	return strconv.FormatInt(cid, 10), nil
}

// ResolvePlayURL requests the segmented-stream manifest for a bvid/cid pair
// and returns the first audio-only track's base URL.
func (c *Client) ResolvePlayURL(ctx context.Context, bvid, cid string) (string, error) {
	params := map[string]string{
		"bvid":  bvid,
		"cid":   cid,
		"qn":    "0",
		"fnval": "16",
		"fnver": "0",
		"fourk": "1",
	}

	var resp playURLResponse
	if err := c.signedGet(ctx, "/x/player/wbi/playurl", params, &resp); err != nil {
		return "", fmt.Errorf("playurl %s: %w", bvid, err)
	}
	if err := apiError(resp.Code, resp.Message); err != nil {
		return "", err
	}
	if len(resp.Data.Dash.Audio) == 0 {
		return "", fmt.Errorf("playurl %s: no audio track", bvid)
	}
	return resp.Data.Dash.Audio[0].BaseURL, nil
}

// signedGet signs params with the cached key pair and performs a GET.
func (c *Client) signedGet(ctx context.Context, path string, params map[string]string, out any) error {
	img, sub, err := c.keys(ctx)
	if err != nil {
		return err
	}
	query := Sign(params, img, sub, c.now())
	headers := map[string]string{
		"Referer": "https://www.bilibili.com",
		// Minimal cookie to pass the platform's request validation.
		"Cookie": "buvid3=placeholder",
	}
	return c.get(ctx, c.baseURL+path+"?"+query, headers, out)
}

func (c *Client) get(ctx context.Context, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(code int, message string) error {
	if code == 0 {
		return nil
	}
	return &APIError{Code: code, Message: message}
}
