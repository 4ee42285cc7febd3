package contract

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// UpstreamError 承载 HTTP 上游错误的最小诊断信息。
// 后端实现提供状态码与简短消息，便于 dispatch 记录结构化日志字段。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}

// HTTPError 为 HTTP 后端共用的上游错误；同时实现 net.Error，
// 408 视为超时，5xx 视为临时故障，经 TransportError 归入网络类。
type HTTPError struct {
	Backend string
	Status  int
	Msg     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s upstream %d: %s", e.Backend, e.Status, e.Msg)
}

func (e *HTTPError) Timeout() bool           { return e.Status == http.StatusRequestTimeout }
func (e *HTTPError) Temporary() bool         { return e.Status/100 == 5 }
func (e *HTTPError) UpstreamStatus() int     { return e.Status }
func (e *HTTPError) UpstreamMessage() string { return e.Msg }

// ReadHTTPError 读取响应体前 4KiB 作为消息。调用方负责关闭 Body。
func ReadHTTPError(backend string, resp *http.Response) *HTTPError {
	slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &HTTPError{Backend: backend, Status: resp.StatusCode, Msg: strings.TrimSpace(string(slurp))}
}

var _ UpstreamError = (*HTTPError)(nil)
