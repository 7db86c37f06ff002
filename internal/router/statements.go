package router

import (
	"net/http"

	"github.com/statement-extract/bank-statement-api/internal/handlers"
	"github.com/statement-extract/bank-statement-api/internal/middleware"
	"github.com/statement-extract/bank-statement-api/internal/services"
	"github.com/statement-extract/bank-statement-api/internal/utils"

	"github.com/gorilla/mux"
)

func NewRouter(svc services.StatementService, logger *utils.Logger) http.Handler {
	r := mux.NewRouter()

	// Middlewares
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Recovery(logger))

	stmtHandler := handlers.NewStatementHandler(svc, logger)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	// Statement endpoints
	api.HandleFunc("/statements/extract", stmtHandler.ExtractStatement).Methods(http.MethodPost)
	api.HandleFunc("/statements/{id}/document", stmtHandler.DownloadStatement).Methods(http.MethodGet)
	api.HandleFunc("/statements/{id}", stmtHandler.GetStatement).Methods(http.MethodGet)
	api.HandleFunc("/statements", stmtHandler.ListStatements).Methods(http.MethodGet)

	return r
}
