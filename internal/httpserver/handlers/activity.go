package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/lookup"
)

const (
	maxSearchCount   = 100
	defaultListCount = 10
)

// ActivitySearch proxies a keyword search to upstream so a client can
// find the activity id to monitor.
func ActivitySearch(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		keyword := strings.TrimSpace(q.Get("keyword"))

		page, count, ok := paging(w, q, d.SearchCount)
		if !ok {
			return
		}

		res, err := d.Activities.SearchAt(r.Context(), keyword, page, count, location(q))
		if err != nil {
			upstreamError(w, d, "activity search failed", err, logger.String("keyword", keyword))
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ActivityList proxies one page of the category listing.
func ActivityList(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		page, count, ok := paging(w, q, defaultListCount)
		if !ok {
			return
		}

		res, err := d.Activities.List(r.Context(), lookup.ListQuery{
			CateID:   q.Get("cate_id"),
			Cate2ID:  q.Get("cate2_id"),
			Area:     q.Get("area"),
			Street:   q.Get("street"),
			Page:     page,
			Count:    count,
			Location: location(q),
		})
		if err != nil {
			upstreamError(w, d, "activity list failed", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ActivityDetail proxies the detail of one listing.
func ActivityDetail(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "id must be a positive integer")
			return
		}

		q := r.URL.Query()
		detail, err := d.Activities.Detail(r.Context(), id, lookup.Location{Lon: q.Get("lon"), Lat: q.Get("lat")})
		if err != nil {
			upstreamError(w, d, "activity detail failed", err, logger.Int64("activity_id", id))
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

// paging reads page and count, capping count. It writes a 400 and
// returns false on bad input.
func paging(w http.ResponseWriter, q url.Values, defCount int) (page, count int, ok bool) {
	page, err := intParam(q.Get("page"), 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return 0, 0, false
	}
	count, err = intParam(q.Get("count"), defCount)
	if err != nil || count < 1 {
		writeError(w, http.StatusBadRequest, "count must be a positive integer")
		return 0, 0, false
	}
	return page, min(count, maxSearchCount), true
}

func location(q url.Values) lookup.Location {
	return lookup.Location{
		City: strings.TrimSpace(q.Get("city")),
		Lon:  strings.TrimSpace(q.Get("lon")),
		Lat:  strings.TrimSpace(q.Get("lat")),
	}
}

func upstreamError(w http.ResponseWriter, d deps.Deps, msg string, err error, fields ...logger.Field) {
	d.Logger.Warn(msg, append(fields, logger.Error(err))...)
	switch {
	case errors.Is(err, lookup.ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream request failed")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "upstream request timed out")
	default:
		writeError(w, http.StatusInternalServerError, "lookup failed")
	}
}

func intParam(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
