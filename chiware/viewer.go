// Package chiware exposes read-only audit browsing over HTTP. It mounts
// chi routes on top of a pgxtrail Reader: per-entity history listing
// with query-parameter filters and pagination, plus cross-entity
// transaction lookup. The audit core never depends on this package.
package chiware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ostraca/audittrail"
	"github.com/ostraca/audittrail/pgxtrail"
)

// ActorExtractor retrieves the caller identity from the request context.
// Each host application injects its own implementation (e.g. from an
// auth middleware mounted above the viewer); a nil return leaves the
// request anonymous.
type ActorExtractor func(context.Context) *audittrail.Actor

// Viewer serves the audit history of configured entities as JSON. All
// routes are read-only; access control is whatever role checker the
// reader's configuration carries, consulted with the actor attached by
// the extractor.
type Viewer struct {
	reader    *pgxtrail.Reader
	logger    zerolog.Logger
	extractor ActorExtractor
}

// NewViewer creates a Viewer backed by reader. The extractor may be
// nil, in which case requests carry no actor.
func NewViewer(reader *pgxtrail.Reader, logger zerolog.Logger, extractor ActorExtractor) *Viewer {
	return &Viewer{reader: reader, logger: logger, extractor: extractor}
}

// Routes returns the viewer's routes, ready to mount on a host router:
//
//	GET /audits/{entity}             entity history, filtered and paginated
//	GET /audits/{entity}/{objectID}  history of a single object
//	GET /transactions/{hash}         entries across entities for one transaction
func (v *Viewer) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(v.logRequests, v.attachActor)
	r.Get("/audits/{entity}", v.handleHistory)
	r.Get("/audits/{entity}/{objectID}", v.handleObjectHistory)
	r.Get("/transactions/{hash}", v.handleTransaction)
	return r
}

// logRequests tags every request with an id (client-supplied or fresh)
// and logs method, path, status and duration once it completes.
func (v *Viewer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ExtractRequestID(r)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		v.logger.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("audit request served")
	})
}

// attachActor resolves the caller through the extractor and stores the
// result on the request context for the reader's role checks. The
// remote address fills in when the extractor left the IP empty.
func (v *Viewer) attachActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v.extractor != nil {
			if actor := v.extractor(r.Context()); actor != nil {
				if actor.IP == "" {
					actor.IP = ExtractIP(r.RemoteAddr)
				}
				r = r.WithContext(audittrail.WithActor(r.Context(), *actor))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (v *Viewer) handleHistory(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")

	opts, page, pageSize, err := parseListParams(r.URL.Query())
	if err != nil {
		v.renderError(w, r, err)
		return
	}

	q, err := v.reader.CreateQuery(r.Context(), entity, opts)
	if err != nil {
		v.renderError(w, r, err)
		return
	}

	pg, err := v.reader.Paginate(r.Context(), q, page, pageSize)
	if err != nil {
		v.renderError(w, r, err)
		return
	}

	v.renderJSON(w, http.StatusOK, v.newPagePayload(pg))
}

// handleObjectHistory is handleHistory with the object id pinned from
// the path, overriding any object_id query parameter.
func (v *Viewer) handleObjectHistory(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")

	opts, page, pageSize, err := parseListParams(r.URL.Query())
	if err != nil {
		v.renderError(w, r, err)
		return
	}
	opts[audittrail.OptObjectID] = chi.URLParam(r, "objectID")

	q, err := v.reader.CreateQuery(r.Context(), entity, opts)
	if err != nil {
		v.renderError(w, r, err)
		return
	}

	pg, err := v.reader.Paginate(r.Context(), q, page, pageSize)
	if err != nil {
		v.renderError(w, r, err)
		return
	}

	v.renderJSON(w, http.StatusOK, v.newPagePayload(pg))
}

func (v *Viewer) handleTransaction(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")

	grouped, err := v.reader.ByTransactionHash(r.Context(), hash)
	if err != nil {
		v.renderError(w, r, err)
		return
	}

	payload := transactionPayload{
		TransactionHash: hash,
		Entities:        make(map[string][]entryPayload, len(grouped)),
	}
	for entity, entries := range grouped {
		payload.Entities[entity] = v.newEntryPayloads(entries)
	}

	v.renderJSON(w, http.StatusOK, payload)
}

// parseListParams splits a query string into pagination bounds and
// query options. page, page_size and strict are handled here; every
// other parameter passes through as a query option so the reader stays
// the single validation authority. Repeated parameters fold into an IN
// filter.
func parseListParams(query url.Values) (audittrail.Options, int, int, error) {
	// The reader must not bound the query itself; Paginate does that.
	opts := audittrail.Options{audittrail.OptPage: nil}
	page, pageSize := 1, 0

	for key, values := range query {
		if len(values) == 0 || values[0] == "" {
			continue
		}
		switch key {
		case audittrail.OptPage:
			n, err := strconv.Atoi(values[0])
			if err != nil || n < 1 {
				return nil, 0, 0, fmt.Errorf("parameter %q=%q: %w", key, values[0], audittrail.ErrInvalidOption)
			}
			page = n
		case audittrail.OptPageSize:
			n, err := strconv.Atoi(values[0])
			if err != nil || n < 1 {
				return nil, 0, 0, fmt.Errorf("parameter %q=%q: %w", key, values[0], audittrail.ErrInvalidOption)
			}
			pageSize = n
		case audittrail.OptStrict:
			b, err := strconv.ParseBool(values[0])
			if err != nil {
				return nil, 0, 0, fmt.Errorf("parameter %q=%q: %w", key, values[0], audittrail.ErrInvalidOption)
			}
			opts[audittrail.OptStrict] = b
		default:
			if len(values) == 1 {
				opts[key] = values[0]
			} else {
				opts[key] = values
			}
		}
	}

	return opts, page, pageSize, nil
}

// ---------- Responses ----------

// entryPayload is the JSON shape of one audit entry. Diffs render
// canonically with source metadata stripped; an archived payload that
// cannot be decoded surfaces as null instead of failing the listing.
type entryPayload struct {
	ID                int64           `json:"id"`
	Type              string          `json:"type"`
	ObjectID          string          `json:"object_id"`
	Discriminator     string          `json:"discriminator,omitempty"`
	TransactionHash   string          `json:"transaction_hash,omitempty"`
	BlameID           any             `json:"blame_id,omitempty"`
	BlameUser         string          `json:"blame_user,omitempty"`
	BlameUserFqdn     string          `json:"blame_user_fqdn,omitempty"`
	BlameUserFirewall string          `json:"blame_user_firewall,omitempty"`
	IP                string          `json:"ip,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	Diffs             json.RawMessage `json:"diffs"`
	ExtraFields       map[string]any  `json:"extra_fields,omitempty"`
}

// pagePayload mirrors pgxtrail.Page.
type pagePayload struct {
	Results         []entryPayload `json:"results"`
	CurrentPage     int            `json:"current_page"`
	HasPreviousPage bool           `json:"has_previous_page"`
	HasNextPage     bool           `json:"has_next_page"`
	PreviousPage    *int           `json:"previous_page,omitempty"`
	NextPage        *int           `json:"next_page,omitempty"`
	NumPages        int            `json:"num_pages"`
	HaveToPaginate  bool           `json:"have_to_paginate"`
	NumResults      int64          `json:"num_results"`
	PageSize        int            `json:"page_size"`
}

type transactionPayload struct {
	TransactionHash string                    `json:"transaction_hash"`
	Entities        map[string][]entryPayload `json:"entities"`
}

type errorPayload struct {
	Error string `json:"error"`
}

func (v *Viewer) newPagePayload(pg *pgxtrail.Page) pagePayload {
	return pagePayload{
		Results:         v.newEntryPayloads(pg.Results),
		CurrentPage:     pg.CurrentPage,
		HasPreviousPage: pg.HasPreviousPage,
		HasNextPage:     pg.HasNextPage,
		PreviousPage:    pg.PreviousPage,
		NextPage:        pg.NextPage,
		NumPages:        pg.NumPages,
		HaveToPaginate:  pg.HaveToPaginate,
		NumResults:      pg.NumResults,
		PageSize:        pg.PageSize,
	}
}

func (v *Viewer) newEntryPayloads(entries []*audittrail.Entry) []entryPayload {
	out := make([]entryPayload, 0, len(entries))
	for _, e := range entries {
		out = append(out, v.newEntryPayload(e))
	}
	return out
}

func (v *Viewer) newEntryPayload(e *audittrail.Entry) entryPayload {
	p := entryPayload{
		ID:                e.ID,
		Type:              e.Type,
		ObjectID:          e.ObjectID,
		Discriminator:     e.Discriminator,
		TransactionHash:   e.TransactionHash,
		BlameID:           e.BlameID,
		BlameUser:         e.BlameUser,
		BlameUserFqdn:     e.BlameUserFqdn,
		BlameUserFirewall: e.BlameUserFirewall,
		IP:                e.IP,
		CreatedAt:         e.CreatedAt,
		Diffs:             json.RawMessage("null"),
	}
	if extras := e.ExtraFields(); len(extras) > 0 {
		p.ExtraFields = extras
	}

	diffs, err := e.Diffs(false)
	if err != nil {
		v.logger.Warn().
			Err(err).
			Int64("id", e.ID).
			Str("object_id", e.ObjectID).
			Msg("audit entry carries malformed diffs")
		return p
	}
	raw, err := diffs.MarshalJSON()
	if err != nil {
		v.logger.Warn().Err(err).Int64("id", e.ID).Msg("audit diffs failed to render")
		return p
	}
	p.Diffs = raw
	return p
}

func (v *Viewer) renderJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		v.logger.Error().Err(err).Msg("encoding audit response")
	}
}

// renderError maps reading-API sentinels onto HTTP statuses: unknown
// entities read as absent resources, denied ones as forbidden and bad
// caller input as bad requests. Anything else stays opaque and is
// logged server-side.
func (v *Viewer) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, audittrail.ErrNotAuditable):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, audittrail.ErrAccessDenied):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, audittrail.ErrInvalidOption),
		errors.Is(err, audittrail.ErrUnsupportedField),
		errors.Is(err, audittrail.ErrEmptyFilter),
		errors.Is(err, audittrail.ErrInvalidDirection),
		errors.Is(err, audittrail.ErrNegativeBound):
		status, msg = http.StatusBadRequest, err.Error()
	default:
		v.logger.Error().Err(err).Str("path", r.URL.Path).Msg("audit request failed")
	}

	v.renderJSON(w, status, errorPayload{Error: msg})
}

// ExtractRequestID returns the request id from common headers.
func ExtractRequestID(r *http.Request) string {
	if v := r.Header.Get("X-Request-Id"); v != "" {
		return v
	}
	if v := r.Header.Get("X-Correlation-ID"); v != "" {
		return v
	}
	return ""
}

// ExtractIP strips the port from a host:port address.
func ExtractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
