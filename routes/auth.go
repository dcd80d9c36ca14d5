// routes/auth.go
package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/eGGnogSC/qbinvoice/internal/auth"
)

// RegisterAuthRoutes registers the OAuth routes. None of them need a
// companyId with stored tokens.
func RegisterAuthRoutes(router *mux.Router, authHandler *auth.Handler) {
	authRouter := router.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/authorize", authHandler.AuthorizeHandler).Methods(http.MethodGet)
	authRouter.HandleFunc("/callback", authHandler.CallbackHandler).Methods(http.MethodGet)
	authRouter.HandleFunc("/refresh", authHandler.RefreshHandler).Methods(http.MethodPost)
	authRouter.HandleFunc("/disconnect", authHandler.DisconnectHandler).Methods(http.MethodPost)
}
