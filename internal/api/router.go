package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"beacon/internal/auth"
	"beacon/internal/config"
	"beacon/internal/db"
	"beacon/internal/notify"
	"beacon/internal/ws"
)

type Server struct {
	router *chi.Mux
	config *config.Config
	hub    *ws.Hub
}

func NewServer(
	cfg *config.Config,
	database *db.DB,
	emailSender notify.Sender,
	smsSender notify.Sender,
	users *db.UserRepository,
	pending *db.PendingRegistrationRepository,
	otpCodes *db.OTPRepository,
	sessions *db.SessionRepository,
	refreshTokens *db.RefreshTokenRepository,
	contacts *db.ContactRepository,
	places *db.SafePlaceRepository,
	messages *db.MessageRepository,
	preferences *db.PreferenceRepository,
) (*Server, error) {
	ipResolver, err := NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("initializing client IP resolver: %w", err)
	}

	registerLimiter := NewRateLimiter(5, time.Minute)
	verifyLimiter := NewRateLimiter(5, time.Minute)
	loginLimiter := NewRateLimiter(10, time.Minute)
	otpLimiter := NewRateLimiter(5, time.Minute)
	refreshLimiter := NewRateLimiter(30, time.Minute)

	jwtService := auth.NewJWTService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	otpService := auth.NewOTPService(cfg.Auth.OTPTTL)

	hub := ws.NewHub(messages)

	authHandler := NewAuthHandler(
		users,
		pending,
		otpCodes,
		sessions,
		refreshTokens,
		jwtService,
		otpService,
		emailSender,
		smsSender,
		ipResolver,
		hub,
	)
	userHandler := NewUserHandler(users, hub, cfg.Storage.AvatarDir, cfg.Server.BaseURL)
	contactHandler := NewContactHandler(contacts)
	preferenceHandler := NewPreferenceHandler(preferences)
	placeHandler := NewSafePlaceHandler(places)
	messageHandler := NewMessageHandler(messages, users)
	wsHandler := NewWebSocketHandler(hub, jwtService, users)
	healthHandler := NewHealthHandler(database)

	authMiddleware := NewAuthMiddleware(jwtService)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(securityHeadersMiddleware)
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Get("/health", healthHandler.Check)

	fileServer := http.FileServer(http.Dir(cfg.Storage.AvatarDir))
	r.Handle("/uploads/avatars/*", http.StripPrefix("/uploads/avatars/", fileServer))

	// JSON endpoints get a tight body cap; the avatar upload route carries
	// its own, larger limit.
	jsonBodyLimit := maxBodySizeMiddleware(1 << 20)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(jsonBodyLimit)
			r.With(RateLimitMiddleware(registerLimiter, ipResolver)).Post("/register", authHandler.Register)
			r.With(RateLimitMiddleware(verifyLimiter, ipResolver)).Post("/verify-registration", authHandler.VerifyRegistration)
			r.With(RateLimitMiddleware(loginLimiter, ipResolver)).Post("/login", authHandler.Login)
			r.With(RateLimitMiddleware(refreshLimiter, ipResolver)).Post("/refresh", authHandler.Refresh)
			r.With(RateLimitMiddleware(otpLimiter, ipResolver)).Post("/send-otp", authHandler.SendOTP)
			r.Post("/logout", authHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireAuth)
				r.Get("/sessions", authHandler.ListSessions)
				r.Post("/sessions/revoke", authHandler.RevokeSession)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.With(jsonBodyLimit).Get("/me", userHandler.GetMe)
			r.With(jsonBodyLimit).Patch("/me", userHandler.UpdateMe)
			r.Put("/me/avatar", userHandler.UploadAvatar)
			r.With(jsonBodyLimit).Delete("/me", userHandler.DeleteMe)

			r.With(jsonBodyLimit).Get("/me/prefs", preferenceHandler.List)
			r.With(jsonBodyLimit).Post("/me/prefs", preferenceHandler.Upsert)
			r.With(jsonBodyLimit).Delete("/me/prefs/{key}", preferenceHandler.Delete)
		})

		r.Route("/contacts", func(r chi.Router) {
			r.Use(jsonBodyLimit)
			r.Use(authMiddleware.RequireAuth)
			r.Post("/", contactHandler.Create)
			r.Get("/", contactHandler.List)
			r.Get("/{id}", contactHandler.Get)
			r.Patch("/{id}", contactHandler.Update)
			r.Delete("/{id}", contactHandler.Delete)
		})

		r.Route("/safe-places", func(r chi.Router) {
			r.Use(jsonBodyLimit)
			r.Use(authMiddleware.RequireAuth)
			r.Post("/", placeHandler.Create)
			r.Get("/", placeHandler.List)
			r.Get("/{id}", placeHandler.Get)
			r.Patch("/{id}", placeHandler.Update)
			r.Delete("/{id}", placeHandler.Delete)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Use(jsonBodyLimit)
			r.Use(authMiddleware.RequireAuth)
			r.Get("/", messageHandler.GetConversation)
		})
	})

	wsUpgradeLimiter := NewRateLimiter(10, time.Minute)
	r.With(RateLimitMiddleware(wsUpgradeLimiter, ipResolver)).Get("/ws", wsHandler.ServeWS)

	return &Server{
		router: r,
		config: cfg,
		hub:    hub,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Shutdown() {
	s.hub.Shutdown()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
