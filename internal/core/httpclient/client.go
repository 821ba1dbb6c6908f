// Package httpclient configures the HTTP client used to call the grid service.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewOutbound creates the client used for raster downloads. The overall
// deadline of an attempt is set per request by the caller, so the client
// itself only bounds dialing, TLS and the wait for response headers.
func NewOutbound(headerTimeout time.Duration) *http.Client {
	if headerTimeout <= 0 {
		headerTimeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}
