package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// DefaultMaxBodyBytes bounds how much of a request body is inspected.
const DefaultMaxBodyBytes int64 = 1 << 20

type guardResultContextKey struct{}

// GuardResultFromContext returns the result stored by Guard.
func GuardResultFromContext(ctx context.Context) (*goGuard.GuardResult, bool) {
	res, ok := ctx.Value(guardResultContextKey{}).(*goGuard.GuardResult)
	return res, ok
}

type options struct {
	maxBody int64
}

// Option tunes Guard.
type Option func(*options)

// WithMaxBodyBytes caps the body read for inspection. Larger bodies are
// rejected with 413.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBody = n
		}
	}
}

// Guard runs engine.Guard in front of next. Rejections are written as
// {"errors": [...]} with the status of the first item.
//
// The client IP is taken from RemoteAddr; put chi's middleware.RealIP
// ahead of Guard when running behind a proxy.
func Guard(engine *goGuard.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := options{maxBody: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeErrors(w, errors.New("guard: nil engine"))
				return
			}
			start := time.Now()

			req, err := newRequest(r, o.maxBody)
			if err != nil {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}

			ctx := goGuard.WithClientIP(r.Context(), req.IP)
			ctx = goGuard.WithUserAgent(ctx, req.Header("user-agent"))

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ev := goGuard.AuditEvent{
				Method: req.Method,
				Route:  req.Route,
			}
			if json.Valid(req.Body) {
				ev.Request = json.RawMessage(req.Body)
			}

			res, err := engine.Guard(ctx, req)
			if err != nil {
				items := writeErrors(ww, err)
				ev.Message = items[0].Msg
				ev.Desc = items[0].Desc
			} else {
				ev.UserID = res.Subject
				next.ServeHTTP(ww, r.WithContext(context.WithValue(ctx, guardResultContextKey{}, res)))
			}

			ev.Status = ww.Status()
			if ev.Status == 0 {
				ev.Status = http.StatusOK
			}
			ev.DurationMS = time.Since(start).Milliseconds()
			engine.RecordActivity(ctx, ev)
		})
	}
}

// newRequest builds the engine's view of r. The body is restored so the
// handler can still read it.
func newRequest(r *http.Request, maxBody int64) (*goGuard.Request, error) {
	req := &goGuard.Request{
		IP:      clientIP(r.RemoteAddr),
		Headers: make(map[string]string, len(r.Header)),
		Method:  r.Method,
		Route:   r.URL.Path,
		Path:    r.URL.RequestURI(),
		Params:  map[string]string{},
		Query:   map[string]string{},
	}

	for k, v := range r.Header {
		req.Headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	if r.Host != "" && req.Headers["host"] == "" {
		req.Headers["host"] = r.Host
	}

	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			req.Route = pattern
		}
		for i, key := range rctx.URLParams.Keys {
			if key == "*" || i >= len(rctx.URLParams.Values) {
				continue
			}
			req.Params[key] = rctx.URLParams.Values[i]
		}
	}

	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			req.Query[k] = v[0]
		}
	}

	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		_ = r.Body.Close()
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > maxBody {
			return nil, errors.New("body too large")
		}
		req.Body = body
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	return req, nil
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func writeErrors(w http.ResponseWriter, err error) []goGuard.ErrorItem {
	items := goGuard.ErrorList(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(items[0].Status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(map[string]any{"errors": items})
	return items
}
