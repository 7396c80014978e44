package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure taxonomy for everything the endpoint can do to us. Callers match
// with errors.Is; the orchestrator needs ErrRateLimit distinguishable from
// ErrEndpoint for backoff decisions, and ErrAuth is never retried.
var (
	ErrAuth      = errors.New("authentication failed")
	ErrNetwork   = errors.New("network failure")
	ErrRateLimit = errors.New("rate limited")
	ErrEndpoint  = errors.New("endpoint error")
	ErrParse     = errors.New("unexpected response shape")
)

// statusError maps a non-2xx response to the taxonomy. The body is never
// included: provider error text can echo request headers.
func statusError(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimit, code)
	default:
		return fmt.Errorf("%w: status %d", ErrEndpoint, code)
	}
}

// Describe renders a failure as user-facing text safe to drop into a chat
// log: the kind and, for endpoint errors, the status code, never the raw
// provider body.
func Describe(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "认证失败，请在设置中检查 API Key"
	case errors.Is(err, ErrRateLimit):
		return "请求过于频繁，模型服务暂时限流"
	case errors.Is(err, ErrNetwork):
		return "无法连接模型服务"
	case errors.Is(err, ErrParse):
		return "模型服务返回了无法识别的内容"
	case errors.Is(err, ErrEndpoint):
		return "模型服务出错 (" + err.Error() + ")"
	default:
		return "生成回复失败"
	}
}
