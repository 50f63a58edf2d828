package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mnohosten/pagecache/pkg/bufferpool"
	"github.com/mnohosten/pagecache/pkg/storage"
)

var (
	errBadPageID      = errors.New("page id must be a non-negative integer")
	errFlushInvalidID = errors.New("cannot flush the invalid page id")
)

func writeSuccess(w http.ResponseWriter, result interface{}) {
	response := map[string]interface{}{
		"ok":     true,
		"result": result,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadPageID), errors.Is(err, errFlushInvalidID):
		statusCode = http.StatusBadRequest
	case errors.Is(err, bufferpool.ErrPageNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, bufferpool.ErrPagePinned):
		statusCode = http.StatusConflict
	case errors.Is(err, bufferpool.ErrPoolExhausted):
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":    false,
		"error": err.Error(),
	})
}

func pageIDParam(r *http.Request) (storage.PageID, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return storage.InvalidPageID, errBadPageID
	}
	return storage.PageID(id), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.startTime).String(),
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	result := map[string]interface{}{
		"pool": s.pool.Stats(),
	}
	if s.disk != nil {
		result["disk"] = s.disk.Stats()
	}
	writeSuccess(w, result)
}

func (s *Server) handleFrameInfo(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	pin, dirty, resident := s.pool.FrameInfo(id)
	writeSuccess(w, map[string]interface{}{
		"page_id":   id,
		"resident":  resident,
		"pin_count": pin,
		"dirty":     dirty,
	})
}

// handleFetch warms a page into the cache: it is fetched, inspected and
// released again, so the admin surface never holds pins of its own.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := s.pool.FetchPage(id)
	if err != nil {
		writeError(w, err)
		return
	}
	pin, dirty, _ := s.pool.FrameInfo(id)
	if err := s.pool.UnpinPage(id, false); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]interface{}{
		"page_id":   page.ID,
		"pin_count": pin - 1,
		"dirty":     dirty,
	})
}

func (s *Server) handleUnpin(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	dirty := r.URL.Query().Get("dirty") == "true"

	// Unpinning below zero is fatal in the pool contract; the console
	// checks first so a stray request cannot take the process down.
	if pin, _, resident := s.pool.FrameInfo(id); resident && pin == 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":    false,
			"error": "page is not pinned",
		})
		return
	}

	if err := s.pool.UnpinPage(id, dirty); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]interface{}{"page_id": id})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if id == storage.InvalidPageID {
		writeError(w, errFlushInvalidID)
		return
	}

	if err := s.pool.FlushPage(id); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]interface{}{"page_id": id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.pool.DeletePage(id); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]interface{}{"page_id": id})
}
