package fakebackend

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler returns the chi router serving every endpoint under BasePath.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	routes := func(r chi.Router) {
		r.Use(s.intercept)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.login)
			r.Post("/register", s.register)
			r.Post("/send-otp", s.sendOTP)
			r.Post("/verify-otp", s.verifyOTP)
			r.Post("/mfa/verify", s.verifyMFA)
			r.Post("/refresh", s.refresh)
			r.Post("/logout", s.logout)
			r.Post("/forgot-password", s.forgotPassword)
			r.Post("/reset-password", s.resetPassword)
			r.Post("/qr/generate", s.qrGenerate)
			r.Get("/qr/status/{id}", s.qrStatus)
			r.Post("/qr/confirm", s.qrConfirm)
		})
		r.Get("/users/by-email", s.profileByEmail)
		r.Get("/orders", s.orders)
		r.Get("/products", s.products)
	}

	if s.cfg.BasePath == "" {
		routes(r)
	} else {
		r.Route(s.cfg.BasePath, routes)
	}
	return r
}

// intercept counts calls and serves responses queued by RespondNext.
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path[len(s.cfg.BasePath):]
		if resp, ok := s.record(path); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resp.status)
			_, _ = w.Write([]byte(resp.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}
