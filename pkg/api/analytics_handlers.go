package api

import (
	"errors"
	"net/http"

	"github.com/dgreene/pulse/pkg/analytics"
	"github.com/dgreene/pulse/pkg/httputil"
)

// Query parameter defaults mirror the dashboard's standard views.
const (
	defaultDashboardHours = 24
	defaultCohortWeeks    = 12
	defaultFunnelDays     = 7
	defaultRevenueDays    = 30
	defaultRFMLimit       = 1000
)

// getDashboardMetrics handles GET /analytics/dashboard
func (s *Server) getDashboardMetrics(w http.ResponseWriter, r *http.Request) {
	hours, ok := httputil.ParseQueryIntOrError(w, r, "hours", defaultDashboardHours)
	if !ok {
		return
	}

	rows, err := s.analytics.DashboardMetrics(r.Context(), analytics.DashboardParams{Hours: hours})
	if err != nil {
		s.writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, rows)
}

// getCohortAnalysis handles GET /analytics/cohorts
func (s *Server) getCohortAnalysis(w http.ResponseWriter, r *http.Request) {
	weeks, ok := httputil.ParseQueryIntOrError(w, r, "weeks", defaultCohortWeeks)
	if !ok {
		return
	}
	source := httputil.ParseQueryString(r, "source", "")

	rows, err := s.analytics.CohortAnalysis(r.Context(), analytics.CohortParams{Weeks: weeks, Source: source})
	if err != nil {
		s.writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, rows)
}

// getFunnelAnalysis handles GET /analytics/funnel
func (s *Server) getFunnelAnalysis(w http.ResponseWriter, r *http.Request) {
	days, ok := httputil.ParseQueryIntOrError(w, r, "days", defaultFunnelDays)
	if !ok {
		return
	}

	rows, err := s.analytics.FunnelAnalysis(r.Context(), analytics.FunnelParams{Days: days})
	if err != nil {
		s.writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, rows)
}

// getRevenueAnalysis handles GET /analytics/revenue
func (s *Server) getRevenueAnalysis(w http.ResponseWriter, r *http.Request) {
	days, ok := httputil.ParseQueryIntOrError(w, r, "days", defaultRevenueDays)
	if !ok {
		return
	}

	rows, err := s.analytics.RollingRevenue(r.Context(), analytics.RevenueParams{Days: days})
	if err != nil {
		s.writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, rows)
}

// getRFMSegmentation handles GET /analytics/rfm
func (s *Server) getRFMSegmentation(w http.ResponseWriter, r *http.Request) {
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", defaultRFMLimit)
	if !ok {
		return
	}

	rows, err := s.analytics.RFMAnalysis(r.Context(), analytics.RFMParams{Limit: limit})
	if err != nil {
		s.writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, rows)
}

// getRealtimeMetrics handles GET /analytics/realtime
func (s *Server) getRealtimeMetrics(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.analytics.Realtime(r.Context()))
}

// executeCustomQuery handles POST /analytics/custom-query
func (s *Server) executeCustomQuery(w http.ResponseWriter, r *http.Request) {
	var req CustomQueryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.QueryType == "" {
		httputil.WriteBadRequest(w, "query_type is required")
		return
	}

	res, err := s.analytics.CustomQuery(r.Context(), req.QueryType, req.Days)
	if err != nil {
		s.writeAnalyticsError(w, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// triggerRefresh handles POST /admin/refresh-views
func (s *Server) triggerRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.refresher.Refresh(r.Context()); err != nil {
		if errors.Is(err, analytics.ErrRefreshInProgress) {
			httputil.WriteConflict(w, "a refresh cycle is already running")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{
		"message": "Materialized views refreshed successfully",
	})
}

// getRefreshStatus handles GET /admin/refresh-status
func (s *Server) getRefreshStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.refresher.Status())
}

// writeAnalyticsError maps service errors onto HTTP status codes.
func (s *Server) writeAnalyticsError(w http.ResponseWriter, err error) {
	switch {
	case analytics.IsValidationError(err):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, analytics.ErrUnknownOperation):
		httputil.WriteNotFoundError(w, err.Error())
	case analytics.IsQueryTimeout(err):
		httputil.WriteGatewayTimeout(w, err.Error())
	default:
		s.logger.WithError(err).Error("analytics request failed")
		httputil.WriteInternalError(w, err)
	}
}
