package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tournevent/shipping/pkg/shipper"
)

func (s *Server) handleCalculateRates(w http.ResponseWriter, r *http.Request) {
	var req calculateRatesRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.svc.Quote(r.Context(), req.toQuery())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.svc.Create(r.Context(), req.toCreate())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Track(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleTrackingWebhook answers carriers with {"accepted": true} once the
// delivery is applied or recognized as a duplicate.
func (s *Server) handleTrackingWebhook(w http.ResponseWriter, r *http.Request) {
	var body trackingWebhookBody
	if !s.decode(w, r, &body) {
		return
	}
	event, err := body.toEvent()
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := s.svc.Webhook(r.Context(), event)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var req exportCSVRequest
	if !s.decode(w, r, &req) {
		return
	}

	out, err := s.svc.ExportCSV(r.Context(), req.ShipmentIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="shipments.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		s.logger.Ctx(r.Context()).Warn("Failed to write CSV export", zap.Error(err))
	}
}

func (s *Server) handleParcelTemplates(w http.ResponseWriter, r *http.Request) {
	templates, sizes := s.svc.ParcelTemplates()
	writeJSON(w, http.StatusOK, parcelTemplatesResponse{Templates: templates, FallbackSizes: sizes})
}

func (s *Server) handlePickupPoints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := shipper.PickupQuery{
		Country:    strings.ToUpper(strings.TrimSpace(q.Get("country"))),
		PostalCode: strings.TrimSpace(q.Get("postalCode")),
	}
	if query.Country == "" || query.PostalCode == "" {
		writeBadRequest(w, "country and postalCode are required")
		return
	}
	if v := q.Get("weight"); v != "" {
		grams, err := strconv.ParseInt(v, 10, 64)
		if err != nil || grams < 0 {
			writeBadRequest(w, "weight must be a whole number of grams")
			return
		}
		query.WeightGrams = grams
	}
	if v := q.Get("radius"); v != "" {
		radius, err := strconv.Atoi(v)
		if err != nil || radius < 0 {
			writeBadRequest(w, "radius must be a whole number of kilometers")
			return
		}
		query.Radius = radius
	}

	points, err := s.svc.PickupPoints(r.Context(), query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if points == nil {
		points = []shipper.PickupPoint{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pickupPoints": points})
}

func (s *Server) handleListCarrierAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.CarrierAccounts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleUpsertCarrierAccount(w http.ResponseWriter, r *http.Request) {
	var req carrierAccountRequest
	if !s.decode(w, r, &req) {
		return
	}

	account := req.toModel()
	if err := s.svc.UpsertCarrierAccount(r.Context(), account); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}
