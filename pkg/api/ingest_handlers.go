package api

import (
	"net/http"

	"github.com/dgreene/pulse/pkg/httputil"
	"github.com/dgreene/pulse/pkg/ingest"
)

// createEvent handles POST /events
func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	var event ingest.Event
	if !httputil.ParseJSONOrError(w, r, &event) {
		return
	}

	receipt, err := s.ingest.RecordEvent(r.Context(), event)
	if err != nil {
		if validationErr := event.Validate(); validationErr != nil {
			httputil.WriteBadRequest(w, validationErr.Error())
			return
		}
		s.logger.WithError(err).Error("failed to record event")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, receipt)
}

// createOrder handles POST /orders
func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var order ingest.Order
	if !httputil.ParseJSONOrError(w, r, &order) {
		return
	}

	receipt, err := s.ingest.RecordOrder(r.Context(), order)
	if err != nil {
		if validationErr := order.Validate(); validationErr != nil {
			httputil.WriteBadRequest(w, validationErr.Error())
			return
		}
		s.logger.WithError(err).Error("failed to record order")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, receipt)
}
