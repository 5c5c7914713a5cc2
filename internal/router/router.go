package router

import (
	"net/http"

	"github.com/chatpesa/backend/internal/auth"
	"github.com/chatpesa/backend/internal/handlers"
	"github.com/chatpesa/backend/internal/middleware"
)

// New returns an http.Handler serving the API under /api/v1. Everything except
// registration, login and the payment webhook sits behind bearer auth.
func New(
	authSvc auth.Service,
	authHandler *auth.Handler,
	wallet *handlers.WalletHandler,
	pricing *handlers.PricingHandler,
	sessions *handlers.SessionHandler,
	requests *handlers.RequestHandler,
	billing *handlers.BillingHandler,
) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"
	authed := middleware.JWTAuth(authSvc)

	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)

	// Gateway callback: authenticated by provider_ref dedup, not a user token.
	mux.HandleFunc("POST "+base+"/payments/webhook", wallet.DepositWebhook)

	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(h))
	}

	handle("GET "+base+"/wallet", wallet.GetBalance)
	handle("GET "+base+"/wallet/entries", wallet.ListEntries)

	handle("GET "+base+"/users/{id}/pricing", pricing.GetPricing)
	handle("PUT "+base+"/pricing", pricing.PublishPricing)

	handle("POST "+base+"/sessions", sessions.Purchase)
	handle("GET "+base+"/sessions", sessions.List)
	handle("GET "+base+"/sessions/{id}", sessions.Get)
	handle("POST "+base+"/sessions/{id}/activate", sessions.Activate)
	handle("POST "+base+"/sessions/{id}/pause", sessions.Pause)
	handle("POST "+base+"/sessions/{id}/cancel", sessions.Cancel)
	handle("POST "+base+"/sessions/{id}/touch", sessions.Touch)

	handle("POST "+base+"/requests", requests.Create)
	handle("GET "+base+"/requests", requests.List)
	handle("GET "+base+"/requests/{id}", requests.Get)
	handle("POST "+base+"/requests/{id}/respond", requests.Respond)
	handle("POST "+base+"/requests/{id}/cancel", requests.Cancel)
	handle("POST "+base+"/requests/{id}/complete", requests.Complete)

	handle("POST "+base+"/messages/authorize", billing.Authorize)
	handle("POST "+base+"/messages/charge", billing.Charge)

	return mux
}
