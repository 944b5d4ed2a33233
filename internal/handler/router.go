package handler

import (
	"github.com/gorilla/mux"
)

func NewRouter(decisions *DecisionHandler, health *HealthHandler, middleware ...mux.MiddlewareFunc) *mux.Router {
	router := mux.NewRouter()
	for _, mw := range middleware {
		router.Use(mw)
	}

	router.HandleFunc("/health", health.Health).Methods("GET")
	router.HandleFunc("/health/ready", health.Ready).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/decisions", decisions.Evaluate).Methods("POST")
	api.HandleFunc("/referrals", decisions.RecordReferral).Methods("POST")
	api.HandleFunc("/referrals/top", decisions.TopReferrers).Methods("GET")
	api.HandleFunc("/referrals/{refereeId}/settlement", decisions.SettleOutcome).Methods("POST")
	api.HandleFunc("/referrals/{referrerId}/stats", decisions.ReferralStats).Methods("GET")
	api.HandleFunc("/partners/snapshot", decisions.Snapshot).Methods("GET")
	api.HandleFunc("/partners/reload", decisions.ReloadPartners).Methods("POST")

	return router
}
