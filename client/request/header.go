package request

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

func (h *Handler) addLine(parts ...string) {
	for _, p := range parts {
		h.header.WriteString(p)
	}
	h.header.WriteString("\r\n")
}

// AddRequestHeaderFirst writes the method verb and a trailing space. It
// reports whether the method carries a body.
func (h *Handler) AddRequestHeaderFirst(m Method) bool {
	verb := m.String()
	if verb == "" {
		return false
	}
	h.header.WriteString(verb)
	h.header.WriteByte(' ')
	return m == MethodPost || m == MethodPatch
}

// AddRequestHeaderLast terminates the request line.
func (h *Handler) AddRequestHeaderLast() {
	h.header.WriteString(" HTTP/1.1\r\n")
}

// AddRequestHeader writes the full request line for path plus extras.
func (h *Handler) AddRequestHeader(m Method, path, extras string) {
	h.AddRequestHeaderFirst(m)
	if !strings.HasPrefix(path, "/") {
		h.header.WriteByte('/')
	}
	h.header.WriteString(path)
	h.header.WriteString(extras)
	h.AddRequestHeaderLast()
}

func (h *Handler) AddHostHeader(host string) { h.addLine("Host: ", host) }

func (h *Handler) AddContentTypeHeader(v string) { h.addLine("Content-Type: ", v) }

func (h *Handler) AddContentLengthHeader(n int) { h.addLine("Content-Length: ", strconv.Itoa(n)) }

func (h *Handler) AddUAHeader(ua string) { h.addLine("User-Agent: ", ua) }

func (h *Handler) AddConnectionHeader(keepAlive bool) {
	if keepAlive {
		h.addLine("Connection: keep-alive")
		return
	}
	h.addLine("Connection: close")
}

// AddAuthHeader writes an Authorization header carrying the token
// placeholder.
func (h *Handler) AddAuthHeader(t AuthType) {
	h.addLine("Authorization: ", t.scheme(), AuthPlaceholder)
}

func (h *Handler) AddETagHeader() { h.addLine("X-Firebase-ETag: true") }

func (h *Handler) AddIfMatchHeader(etag string) { h.addLine("if-match: ", etag) }

func (h *Handler) AddSSEHeader() { h.addLine("Accept: text/event-stream") }

// AddHeader writes a custom header line.
func (h *Handler) AddHeader(name, value string) { h.addLine(name, ": ", value) }

// Finish writes Content-Length for body carrying methods and the blank
// line ending the header block.
func (h *Handler) Finish() {
	if h.Method.HasBody() {
		h.AddContentLengthHeader(h.BodyLen())
	}
	h.header.WriteString("\r\n")
}

// Header returns the header block with the token placeholder replaced.
func (h *Handler) Header(token string) string {
	s := h.header.String()
	if token != "" {
		s = strings.ReplaceAll(s, AuthPlaceholder, token)
	}
	return s
}

// RawHeader returns the header block as built.
func (h *Handler) RawHeader() string { return h.header.String() }

// SetHeader replaces the header block.
func (h *Handler) SetHeader(s string) {
	h.header.Reset()
	h.header.WriteString(s)
}

// HostPort returns the Host header value for host and port. The
// default HTTP and HTTPS ports are left out.
func HostPort(host string, port int) string {
	if port == 0 || port == DefaultPort || port == 80 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Relocate rewrites the request line path and the Host header.
func (h *Handler) Relocate(host string, port int, path string) {
	if path == "" {
		path = "/"
	}
	lines := strings.Split(h.header.String(), "\r\n")
	for i, line := range lines {
		if i == 0 {
			if parts := strings.SplitN(line, " ", 3); len(parts) == 3 {
				lines[i] = parts[0] + " " + path + " " + parts[2]
			}
			continue
		}
		if len(line) > 5 && strings.EqualFold(line[:5], "host:") {
			lines[i] = "Host: " + HostPort(host, port)
		}
	}
	h.SetHeader(strings.Join(lines, "\r\n"))
}

// SplitURL returns the host, port and path plus query of u. u may carry
// a scheme or start directly with the host. Port is zero when absent.
func SplitURL(u string) (host string, port int, path string) {
	if strings.Contains(u, "://") {
		if parsed, err := url.Parse(u); err == nil {
			host = parsed.Host
			path = parsed.RequestURI()
			if parsed.Path == "" && parsed.RawQuery == "" {
				path = ""
			}
			return splitPort(host, path)
		}
	}

	host = u
	if i := strings.IndexAny(u, "/?"); i > -1 {
		host = u[:i]
		path = u[i:]
		if path[0] == '?' {
			path = "/" + path
		}
	}
	return splitPort(host, path)
}

func splitPort(hostport, path string) (string, int, string) {
	h, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, 0, path
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return hostport, 0, path
	}
	return h, port, path
}
