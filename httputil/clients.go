package httputil

import (
	"crypto/tls"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"autoria_scraper/config"
)

// Clients holds one HTTP client per remote endpoint so each carries its own
// timeout. They share a transport.
type Clients struct {
	Detail  *http.Client
	Contact *http.Client
}

func NewClients(cfg *config.ScraperConfig) *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.Concurrency * 2

	if cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
			transport.ForceAttemptHTTP2 = false
			transport.TLSNextProto = make(map[string]func(string, *tls.Conn) http.RoundTripper)
			log.Printf("Scraping through proxy: %s", proxyURL.Host)
		} else {
			log.Printf("Ignoring invalid PROXY_URL: %v", err)
		}
	}

	var rt http.RoundTripper = transport
	if cfg.RequestRate > 0 {
		rt = newLimitedTransport(transport, cfg.RequestRate, cfg.Concurrency)
		log.Printf("API requests capped at %.2f/s", cfg.RequestRate)
	}

	return &Clients{
		Detail:  newClient(rt, cfg.DetailTimeout),
		Contact: newClient(rt, cfg.ContactTimeout),
	}
}

// limitedTransport waits for a limiter token before each request. The wait
// counts against the request's context, so client timeouts still apply.
type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func newLimitedTransport(base http.RoundTripper, perSecond float64, burst int) *limitedTransport {
	if burst < 1 {
		burst = 1
	}
	return &limitedTransport{
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

func newClient(transport http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
