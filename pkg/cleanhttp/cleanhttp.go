package cleanhttp

import (
	"context"
	"net"
	"net/http"
	"time"
)

// UserAgent identifies solvent to channel servers.
const UserAgent = "solvent/1"

var DefaultTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

var DefaultClient = &http.Client{
	Transport: DefaultTransport,
}

// Do sends the request with the tuned client, stamping the user agent
// when the caller didn't set one.
func Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}

	return DefaultClient.Do(req)
}

// Get fetches a URL under a context.
func Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	return Do(req)
}
