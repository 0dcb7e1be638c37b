package httpx

import (
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultTimeout        = 30 * time.Second
)

// Options 描述 HTTP client 的网络策略。零值字段使用默认值。
type Options struct {
	UserAgent string

	// ConnectTimeout 覆盖拨号、TLS 握手与等待响应头。
	ConnectTimeout time.Duration
	// Timeout 是单个请求（含读完 body）的总超时。
	Timeout time.Duration

	// RetryMax 表示传输层错误的最大重试次数（不含首次尝试）。
	RetryMax int
}

// Transport 把“固定 UA + 有界重试”固化为统一策略。
type Transport struct {
	Base      http.RoundTripper
	UserAgent string

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" && t.UserAgent != "" {
			r.Header.Set("User-Agent", t.UserAgent)
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// NewClient 构造带超时、UA 与有界重试的 HTTP client。代理遵循 HTTP(S)_PROXY 环境变量。
func NewClient(opts Options) *http.Client {
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   connect,
		ResponseHeaderTimeout: connect,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}

	return &http.Client{
		Transport: &Transport{
			Base:      base,
			UserAgent: opts.UserAgent,
			RetryMax:  opts.RetryMax,
		},
		Timeout: timeout,
	}
}
