package server

import (
	"context"
	"net/http"
	"strings"
	"time"
)

func parseLoadSearch(r *http.Request, normalize func(string) string) loadSearch {
	q := r.URL.Query()
	return loadSearch{
		EquipmentType: normalize(q.Get("equipment_type")),
		Origin:        normalize(q.Get("origin")),
		Destination:   normalize(q.Get("destination")),
	}
}

func (s *Server) handleLoadsSearch(w http.ResponseWriter, r *http.Request) {
	params := parseLoadSearch(r, strings.TrimSpace)
	if issues := s.validateStruct(params); len(issues) > 0 {
		writeErr(w, &validationError{Issues: issues})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	loads, err := s.searchLoads(ctx, params)
	if err != nil {
		writeErr(w, err)
		return
	}
	if loads == nil {
		loads = []Load{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"loads": loads, "error": false, "error_message": nil})
}

// handleLoadsQuery 兼容入口：参数会去掉多余引号；无参数时返回全部
func (s *Server) handleLoadsQuery(w http.ResponseWriter, r *http.Request) {
	params := parseLoadSearch(r, normalizeParam)
	if issues := s.validateStruct(params); len(issues) > 0 {
		writeErr(w, &validationError{Issues: issues})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		loads []Load
		err   error
	)
	if params.empty() {
		loads, err = s.listLoads(ctx)
	} else {
		loads, err = s.searchLoads(ctx, params)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	if loads == nil {
		loads = []Load{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loads":         loads,
		"count":         len(loads),
		"error":         false,
		"error_message": nil,
	})
}

func (s *Server) handleLoadsList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	loads, err := s.listLoads(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	if loads == nil {
		loads = []Load{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"loads": loads, "count": len(loads)})
}

func (s *Server) handleLoadGet(w http.ResponseWriter, r *http.Request) {
	loadID := strings.TrimSpace(pathParam(r, "load_id"))
	if loadID == "" {
		writeErr(w, &apiError{Status: http.StatusBadRequest, Message: "Invalid load ID"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	l, err := s.getLoad(ctx, loadID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if l == nil {
		writeErr(w, notFound("Load not found", "LOAD_NOT_FOUND"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"load": l})
}
