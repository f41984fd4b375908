package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"go.uber.org/zap"
)

// RESTOptions tunes paging and retry behavior of the REST client.
type RESTOptions struct {
	BaseURL       string
	Timeout       time.Duration
	PageDelay     time.Duration
	RateLimitWait time.Duration
	ErrorWait     time.Duration
	MaxRetries    int
}

// RESTClient fetches historical klines from the public market data API.
type RESTClient struct {
	client *gobinance.Client
	opts   RESTOptions
	logger *zap.Logger
}

func NewRESTClient(opts RESTOptions, logger *zap.Logger) *RESTClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultRESTBaseURL
	}
	if opts.PageDelay < 0 {
		opts.PageDelay = 0
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	// Public endpoints need no credentials.
	client := gobinance.NewClient("", "")
	client.BaseURL = opts.BaseURL
	if opts.Timeout > 0 {
		client.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	return &RESTClient{
		client: client,
		opts:   opts,
		logger: logger.Named("binance.rest"),
	}
}

// GetKlines returns every kline of interval whose open time lies in [start, end],
// requesting MaxKlinesPerPage klines at a time.
func (c *RESTClient) GetKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]Kline, error) {
	var all []Kline
	from := start.UnixMilli()
	to := end.UnixMilli()

	for page := 0; from <= to; page++ {
		if page > 0 && c.opts.PageDelay > 0 {
			if err := sleep(ctx, c.opts.PageDelay); err != nil {
				return nil, err
			}
		}

		raw, err := c.fetchPage(ctx, symbol, interval, from, to)
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			break
		}

		klines := ParseKlineList(raw)
		if skipped := len(raw) - len(klines); skipped > 0 {
			c.logger.Warn("skipped unparsable klines",
				zap.String("symbol", symbol),
				zap.String("interval", interval),
				zap.Int("skipped", skipped))
		}
		all = append(all, klines...)

		last := raw[len(raw)-1]
		from = last.CloseTime + 1
		if len(raw) < MaxKlinesPerPage {
			break
		}
	}

	return all, nil
}

// fetchPage requests one page and retries failures up to MaxRetries times.
func (c *RESTClient) fetchPage(ctx context.Context, symbol, interval string, from, to int64) ([]*gobinance.Kline, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		raw, err := c.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from).
			EndTime(to).
			Limit(MaxKlinesPerPage).
			Do(ctx)
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = mapError(err)
		wait := c.opts.ErrorWait
		if errors.Is(lastErr, ErrRateLimited) {
			wait = c.opts.RateLimitWait
		}
		c.logger.Warn("kline page request failed",
			zap.String("symbol", symbol),
			zap.String("interval", interval),
			zap.Int64("from", from),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(lastErr))

		if attempt == c.opts.MaxRetries {
			break
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// mapError translates API errors into package errors.
func mapError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == codeTooManyRequests || apiErr.Code == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		}
		return fmt.Errorf("api error %d: %s", apiErr.Code, apiErr.Message)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
