package feeder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/starknet"
	"github.com/NethermindEth/katana/utils"
)

// ErrNotFound is returned when the gateway does not know the requested object. It is not
// retried.
var ErrNotFound = errors.New("not found on feeder gateway")

// LatestBlock is the block id that resolves to the gateway's head.
const LatestBlock = "latest"

type Backoff func(wait time.Duration) time.Duration

// Client queries the feeder gateway of another Katana node.
type Client struct {
	url        string
	client     *http.Client
	backoff    Backoff
	maxRetries int
	maxWait    time.Duration
	minWait    time.Duration
	log        utils.SimpleLogger
	userAgent  string
	listener   EventListener
	timeouts   atomic.Pointer[Timeouts]
}

func (c *Client) WithListener(l EventListener) *Client {
	c.listener = l
	return c
}

func (c *Client) WithBackoff(b Backoff) *Client {
	c.backoff = b
	return c
}

func (c *Client) WithMaxRetries(num int) *Client {
	c.maxRetries = num
	return c
}

func (c *Client) WithMaxWait(d time.Duration) *Client {
	c.maxWait = d
	return c
}

func (c *Client) WithMinWait(d time.Duration) *Client {
	c.minWait = d
	return c
}

func (c *Client) WithLogger(log utils.SimpleLogger) *Client {
	c.log = log
	return c
}

func (c *Client) WithUserAgent(ua string) *Client {
	c.userAgent = ua
	return c
}

func (c *Client) WithTimeouts(t *Timeouts) *Client {
	c.timeouts.Store(t)
	return c
}

func ExponentialBackoff(wait time.Duration) time.Duration {
	return wait * 2
}

func NopBackoff(d time.Duration) time.Duration {
	return 0
}

// NewClient creates a client for the gateway mounted at clientURL, for example
// "http://localhost:5050/feeder_gateway".
func NewClient(clientURL string) *Client {
	client := &Client{
		url:        clientURL,
		client:     &http.Client{},
		backoff:    ExponentialBackoff,
		maxRetries: 10,
		maxWait:    4 * time.Second,
		minWait:    250 * time.Millisecond,
		log:        utils.NewNopZapLogger(),
		listener:   &SelectiveListener{},
	}
	client.timeouts.Store(NewTimeouts(DefaultTimeout))
	return client
}

func (c *Client) buildQueryString(endpoint string, args map[string]string) string {
	base, err := url.Parse(c.url)
	if err != nil {
		panic("Malformed feeder base URL")
	}

	base = base.JoinPath(endpoint)
	params := url.Values{}
	for k, v := range args {
		params.Add(k, v)
	}
	base.RawQuery = params.Encode()
	return base.String()
}

// get performs a "GET" http request with the given URL and returns the response body
func (c *Client) get(ctx context.Context, queryURL string) (io.ReadCloser, error) {
	var err error
	wait := time.Duration(0)
	for range c.maxRetries + 1 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, queryURL, http.NoBody)
		if err != nil {
			return nil, err
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		timeouts := c.timeouts.Load()
		reqCtx, cancel := context.WithTimeout(ctx, timeouts.Current())
		start := time.Now()
		var res *http.Response
		res, err = c.client.Do(req.WithContext(reqCtx))
		if err == nil {
			c.listener.OnResponse(req.URL.Path, res.StatusCode, time.Since(start))
			switch res.StatusCode {
			case http.StatusOK:
				timeouts.Decrease()
				return &cancelOnClose{ReadCloser: res.Body, cancel: cancel}, nil
			case http.StatusNotFound:
				res.Body.Close()
				cancel()
				return nil, ErrNotFound
			}
			err = errors.New(res.Status)
			res.Body.Close()
		} else if ctx.Err() == nil {
			timeouts.Increase()
		}
		cancel()

		if wait < c.minWait {
			wait = c.minWait
		} else {
			wait = min(c.backoff(wait), c.maxWait)
		}
		c.log.Debugw("Failed query to feeder, retrying...",
			"req", req.URL.String(),
			"retryAfter", wait.String(),
			"err", err,
			"newHTTPTimeout", timeouts.Current().String(),
		)
	}
	return nil, err
}

// cancelOnClose releases the request context once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func getJSON[T any](ctx context.Context, c *Client, endpoint string, args map[string]string) (*T, error) {
	body, err := c.get(ctx, c.buildQueryString(endpoint, args))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	v := new(T)
	if err = json.NewDecoder(body).Decode(v); err != nil {
		return nil, err
	}
	return v, nil
}

// BlockID renders a block number the way the gateway expects it.
func BlockID(number uint64) string {
	return strconv.FormatUint(number, 10)
}

func (c *Client) Block(ctx context.Context, blockID string) (*starknet.Block, error) {
	return getJSON[starknet.Block](ctx, c, "get_block", map[string]string{
		"blockNumber": blockID,
	})
}

func (c *Client) StateUpdate(ctx context.Context, blockID string) (*starknet.StateUpdate, error) {
	return getJSON[starknet.StateUpdate](ctx, c, "get_state_update", map[string]string{
		"blockNumber": blockID,
	})
}

func (c *Client) StateUpdateWithBlock(ctx context.Context, blockID string) (*starknet.StateUpdateWithBlock, error) {
	return getJSON[starknet.StateUpdateWithBlock](ctx, c, "get_state_update", map[string]string{
		"blockNumber":  blockID,
		"includeBlock": "true",
	})
}

func (c *Client) ClassDefinition(ctx context.Context, classHash *felt.Felt) (*starknet.ClassDefinition, error) {
	return getJSON[starknet.ClassDefinition](ctx, c, "get_class_by_hash", map[string]string{
		"classHash": classHash.String(),
	})
}
