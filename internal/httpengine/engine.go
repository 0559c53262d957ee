// Package httpengine implements the HTTP Engine (spec §4.3): builds, sends,
// and records a single HTTP interaction, producing request/response
// snapshots including raw wire-format text and a reproducible command-line
// invocation.
//
// Grounded on the teacher's HTTP plugin (plugins/http/plugin.go), which
// wraps resty and flattens a response into a result map; generalized here to
// build both snapshots, classify transport errors per §4.3's taxonomy, and
// assemble the raw-wire-format diagnostics §4.3/P9 require (the teacher
// plugin never needed those since it had no "show me the exact bytes" use
// case).
package httpengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"
)

// Request is the normalized, already-interpolated HTTP request to execute.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Params  map[string]string
}

// RequestSnapshot captures exactly what was sent.
type RequestSnapshot struct {
	Method     string            `json:"method"`
	URL        string            `json:"url"`
	Host       string            `json:"host"`
	Headers    map[string]string `json:"headers"`
	Params     map[string]string `json:"params"`
	Body       any               `json:"body,omitempty"`
	RawRequest string            `json:"raw_request"`
	Command    string            `json:"command"`
}

// ResponseSnapshot captures what came back, or is absent/zero on error.
type ResponseSnapshot struct {
	StatusCode     int               `json:"status_code"`
	Headers        map[string]string `json:"headers"`
	Body           any               `json:"body"`
	ByteSize       int               `json:"byte_size"`
	ResponseTimeMS int64             `json:"response_time_ms"`
	RawResponse    string            `json:"raw_response"`
}

// Result is the outcome of one execute() call.
type Result struct {
	Request  RequestSnapshot
	Response ResponseSnapshot
	Err      error // classified per §4.3's error taxonomy; nil on any HTTP status
}

// Engine executes HTTP steps. A single *resty.Client is reused across calls
// (matching plugins/http/plugin.go's one-client-per-process shape); timeouts
// are set per-request since each Step may declare its own.
type Engine struct {
	client *resty.Client
}

// New builds an Engine. defaultTimeout is used when a step doesn't override it.
func New(defaultTimeout time.Duration) *Engine {
	client := resty.New().SetTimeout(defaultTimeout)
	return &Engine{client: client}
}

// Execute builds, sends, and records one HTTP interaction. It never returns
// a transport error as Go's `error` return — per §4.3 "any HTTP status is
// treated as a completed interaction" — instead Result.Err carries the
// classified diagnostic and Result is still populated as far as possible.
func (e *Engine) Execute(ctx context.Context, req Request, baseURL string, timeout time.Duration) Result {
	fullURL := assembleURL(req.URL, baseURL)
	headers := sanitizeHeaders(req.Headers)

	reqSnapshot := buildRequestSnapshot(req.Method, fullURL, headers, req.Params, req.Body)

	client := e.client
	if timeout > 0 {
		client = e.client.Clone().SetTimeout(timeout)
	}

	start := time.Now()
	resp, err := client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParams(req.Params).
		SetBody(req.Body).
		Execute(strings.ToUpper(req.Method), fullURL)
	elapsed := time.Since(start)

	if err != nil {
		return Result{
			Request: reqSnapshot,
			Err:     classifyError(err, timeout),
		}
	}

	body := decodeBody(resp.Body())
	respHeaders := flattenHeaders(resp.Header())
	respSnapshot := ResponseSnapshot{
		StatusCode:     resp.StatusCode(),
		Headers:        respHeaders,
		Body:           body,
		ByteSize:       byteSize(body, resp.Body()),
		ResponseTimeMS: elapsed.Milliseconds(),
		RawResponse:    buildRawResponse(resp, respHeaders),
	}

	return Result{Request: reqSnapshot, Response: respSnapshot}
}

// assembleURL implements §4.3's URL assembly rule.
func assembleURL(raw, baseURL string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if baseURL == "" {
		return raw
	}
	base := strings.TrimSuffix(baseURL, "/")
	path := raw
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// sanitizeHeaders strips non-printable ASCII per §4.3 and drops entries that
// become empty.
func sanitizeHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		ck := stripNonPrintableASCII(k)
		cv := stripNonPrintableASCII(v)
		if ck == "" || cv == "" {
			continue
		}
		out[ck] = cv
	}
	return out
}

func stripNonPrintableASCII(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 || r > 0x7E {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func buildRequestSnapshot(method, fullURL string, headers, params map[string]string, body any) RequestSnapshot {
	host := hostOf(fullURL)
	allHeaders := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		allHeaders[k] = v
	}
	if _, ok := allHeaders["Host"]; !ok {
		allHeaders["Host"] = host
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
		if len(bodyBytes) > 0 {
			allHeaders["Content-Length"] = strconv.Itoa(len(bodyBytes))
		}
	}

	return RequestSnapshot{
		Method:     strings.ToUpper(method),
		URL:        fullURL,
		Host:       host,
		Headers:    headers,
		Params:     params,
		Body:       body,
		RawRequest: buildRawRequest(method, fullURL, allHeaders, bodyBytes),
		Command:    buildCommand(method, fullURL, headers, bodyBytes),
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// buildRawRequest renders an HTTP/1.1 wire-format request: request line,
// headers in order, blank line, body. Per P9 each header/body element
// appears exactly once.
func buildRawRequest(method, fullURL string, headers map[string]string, body []byte) string {
	u, _ := url.Parse(fullURL)
	pathAndQuery := "/"
	if u != nil {
		pathAndQuery = u.RequestURI()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", strings.ToUpper(method), pathAndQuery)
	for _, k := range sortedKeys(headers) {
		fmt.Fprintf(&b, "%s: %s\r\n", k, headers[k])
	}
	b.WriteString("\r\n")
	if len(body) > 0 {
		b.Write(body)
	}
	return b.String()
}

// buildRawResponse renders the status line, headers, and body of the reply.
func buildRawResponse(resp *resty.Response, headers map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %s\r\n", resp.Status())
	for _, k := range sortedKeys(headers) {
		fmt.Fprintf(&b, "%s: %s\r\n", k, headers[k])
	}
	b.WriteString("\r\n")
	b.Write(resp.Body())
	return b.String()
}

// buildCommand renders a reproducible curl-style invocation.
func buildCommand(method, fullURL string, headers map[string]string, body []byte) string {
	var b strings.Builder
	b.WriteString("curl -X ")
	b.WriteString(strings.ToUpper(method))
	for _, k := range sortedKeys(headers) {
		fmt.Fprintf(&b, " -H %q", k+": "+headers[k])
	}
	if len(body) > 0 {
		fmt.Fprintf(&b, " -d %q", string(body))
	}
	fmt.Fprintf(&b, " %q", fullURL)
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func flattenHeaders(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// decodeBody parses the response as JSON via gabs when possible, falling
// back to the raw string. Using gabs (pulled in but unused by the teacher)
// for the JSON document assembly matches spec §4.3's "decoded body".
func decodeBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	parsed, err := gabs.ParseJSON(raw)
	if err != nil {
		return string(raw)
	}
	return parsed.Data()
}

func byteSize(decoded any, raw []byte) int {
	if s, ok := decoded.(string); ok {
		return len([]byte(s))
	}
	if decoded == nil {
		return 0
	}
	reencoded, err := json.Marshal(decoded)
	if err != nil {
		return len(raw)
	}
	return len(reencoded)
}

// classifyError maps a transport failure onto §4.3's fixed error taxonomy.
func classifyError(err error, timeout time.Duration) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("Timeout after %dms", timeout.Milliseconds())
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return errors.New("Server not found (DNS)")
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if isRefused(opErr) {
			return errors.New("Connection refused by server")
		}
	}

	if isRefusedText(err.Error()) {
		return errors.New("Connection refused by server")
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("Timeout after %dms", timeout.Milliseconds())
	}

	return err
}

func isRefused(opErr *net.OpError) bool {
	return strings.Contains(strings.ToLower(opErr.Err.Error()), "refused")
}

func isRefusedText(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "connection refused")
}
