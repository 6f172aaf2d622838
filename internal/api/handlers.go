package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/ramtracker/internal/ram"
)

type ramOptionResponse struct {
	ID              int         `json:"id"`
	NameRaw         string      `json:"name_raw"`
	Category        string      `json:"category"`
	Brand           string      `json:"brand"`
	Capacity        string      `json:"capacity"`
	Speed           string      `json:"speed"`
	Latency         string      `json:"latency"`
	IsDualChannel   bool        `json:"is_dual_channel"`
	IsTracked       bool        `json:"is_tracked"`
	LatestPrice     *int        `json:"latest_price"`
	LatestStatus    *ram.Status `json:"latest_status"`
	LatestScrapedAt *time.Time  `json:"latest_scraped_at"`
}

type trackResponse struct {
	ProductID      int  `json:"product_id"`
	AlreadyTracked bool `json:"already_tracked"`
}

func (s *Server) listRAMOptions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := s.queries.ListCatalogWithLatest(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, "list ram options", err)
		return
	}
	out := make([]ramOptionResponse, 0, len(entries))
	for _, e := range entries {
		resp := ramOptionResponse{
			ID:            e.Product.ID,
			NameRaw:       e.Product.RawLabel,
			Category:      e.Product.Category,
			Brand:         e.Product.Brand,
			Capacity:      e.Product.Capacity,
			Speed:         e.Product.Speed,
			Latency:       e.Product.Latency,
			IsDualChannel: e.Product.IsDualChannel,
			IsTracked:     e.IsTracked,
		}
		if e.Latest != nil {
			obs := *e.Latest
			resp.LatestPrice = &obs.Price
			resp.LatestStatus = &obs.Status
			resp.LatestScrapedAt = &obs.ScrapedAt
		}
		out = append(out, resp)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPrices(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ramID(w, r)
	if !ok {
		return
	}
	hist, found, err := s.queries.PriceHistory(r.Context(), id)
	if err != nil {
		s.internalError(w, r, "price history", err)
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "RAM not found or no price history")
		return
	}
	s.writeJSON(w, http.StatusOK, hist)
}

func (s *Server) getChartData(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ramID(w, r)
	if !ok {
		return
	}
	chart, found, err := s.queries.ChartSeries(r.Context(), id)
	if err != nil {
		s.internalError(w, r, "chart data", err)
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "RAM not found or no chart data")
		return
	}
	s.writeJSON(w, http.StatusOK, chart)
}

func (s *Server) trackRAM(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ramID(w, r)
	if !ok {
		return
	}
	res, err := s.queries.Track(r.Context(), id)
	if err != nil {
		s.internalError(w, r, "track ram", err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyTracked {
		status = http.StatusOK
	}
	s.writeJSON(w, status, trackResponse{ProductID: res.ProductID, AlreadyTracked: res.AlreadyTracked})
}

func (s *Server) listTracked(w http.ResponseWriter, r *http.Request) {
	members, err := s.queries.Tracked(r.Context())
	if err != nil {
		s.internalError(w, r, "list tracked", err)
		return
	}
	if members == nil {
		members = []ram.TrackingMembership{}
	}
	s.writeJSON(w, http.StatusOK, members)
}

func (s *Server) ramID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "ram_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "ram_id must be an integer")
		return 0, false
	}
	return id, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error(op+" failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.Error(err),
	)
	s.writeError(w, http.StatusInternalServerError, "internal server error")
}
