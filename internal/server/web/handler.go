// Package web is the HTTP surface: a gorilla/mux router that sends GET to
// the listing renderer or the delivery encoder and POST to the ingest
// parser, plus the server that owns the listener.
package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/smugglebox/internal/common"
	"github.com/dmitrijs2005/smugglebox/internal/logging"
	"github.com/dmitrijs2005/smugglebox/internal/server/delivery"
	"github.com/dmitrijs2005/smugglebox/internal/server/ingest"
	"github.com/dmitrijs2005/smugglebox/internal/server/listing"
	"github.com/dmitrijs2005/smugglebox/internal/server/sandbox"
)

// Mirror receives every successfully stored upload.
type Mirror interface {
	MirrorAsync(ctx context.Context, p sandbox.Path)
}

// Handler serves the file exchange.
type Handler struct {
	sandbox  *sandbox.Sandbox
	listing  *listing.Renderer
	delivery *delivery.Encoder
	ingest   *ingest.Parser
	mirror   Mirror
	limiter  *rate.Limiter
	logger   logging.Logger
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithMirror mirrors stored uploads through m.
func WithMirror(m Mirror) HandlerOption {
	return func(h *Handler) { h.mirror = m }
}

// WithRateLimit caps the request rate across all clients. A non-positive
// limit leaves requests unlimited.
func WithRateLimit(perSecond float64, burst int) HandlerOption {
	return func(h *Handler) {
		if perSecond > 0 {
			h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewHandler wires the components into a Handler.
func NewHandler(sb *sandbox.Sandbox, lr *listing.Renderer, de *delivery.Encoder, ip *ingest.Parser, l logging.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		sandbox:  sb,
		listing:  lr,
		delivery: de,
		ingest:   ip,
		logger:   l.With("module", "web"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Router returns the routing table. Paths are not cleaned by the router so
// that traversal attempts reach the sandbox and are refused there instead of
// being redirected.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter().SkipClean(true)
	r.Use(h.requestID, h.accessLog)
	if h.limiter != nil {
		r.Use(h.rateLimit)
	}

	r.PathPrefix("/").Methods(http.MethodGet).HandlerFunc(h.get)
	r.PathPrefix("/").Methods(http.MethodPost).HandlerFunc(h.post)

	return r
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := h.sandbox.Resolve(r.URL.Path)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	fi, err := os.Stat(p.Abs)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	if fi.IsDir() {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := h.listing.Render(w, p); err != nil {
			h.fail(ctx, w, err)
		}
		return
	}

	if err := h.delivery.Serve(ctx, w, p); err != nil {
		h.fail(ctx, w, err)
	}
}

// post stores the upload. The request path plays no part in where the file
// lands; only the filename from the body does.
func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.ingest.Ingest(ctx, r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		// A missing directory on the write path is a server-side failure.
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("store upload: %v", err)
		}
		h.fail(ctx, w, err)
		return
	}

	if h.mirror != nil {
		h.mirror.MirrorAsync(ctx, res.Path)
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// fail maps err to a status code and writes a short plain-text reply. The
// full error only goes to the log.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	code, msg := StatusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error(ctx, "request failed", "request_id", RequestID(ctx), "error", err)
	} else {
		h.logger.Info(ctx, "request rejected", "request_id", RequestID(ctx), "status", code, "error", err)
	}
	http.Error(w, msg, code)
}

// StatusFor maps an error to the HTTP status and the message sent to the
// client.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrUnsupportedContentType):
		return http.StatusBadRequest, common.ErrUnsupportedContentType.Error()
	case errors.Is(err, common.ErrMalformedMultipart):
		return http.StatusBadRequest, common.ErrMalformedMultipart.Error()
	case errors.Is(err, common.ErrMissingFilename):
		return http.StatusBadRequest, common.ErrMissingFilename.Error()
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, http.StatusText(http.StatusForbidden)
	case errors.Is(err, common.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, http.StatusText(http.StatusNotFound)
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}
