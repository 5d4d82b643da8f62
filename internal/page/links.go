package page

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LinkStatus issues a GET for link and returns the response status code. Any
// completed request is a Success whatever its status; callers assert on the
// code. Requests are paced by the link check rate.
func (p *Page) LinkStatus(ctx context.Context, link string) (code int, res Result) {
	defer p.record("link_status", time.Now(), &res)
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, failed(err, "wait to probe %s", link)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return 0, failed(err, "build request for %s", link)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return 0, failed(err, "GET %s", link)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	p.logger.Info("Link status.", zap.String("url", link), zap.Int("status", resp.StatusCode))
	return resp.StatusCode, succeeded()
}

const randomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString returns n characters drawn from upper case letters and
// digits, for unique form input.
func (p *Page) RandomString(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(randomAlphabet[p.rng.IntN(len(randomAlphabet))])
	}
	return b.String()
}
