package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/metal-pod/backend/internal/achievement"
	"github.com/metal-pod/backend/internal/economy"
	"github.com/metal-pod/backend/internal/progress"
	"github.com/metal-pod/backend/internal/save"
	"github.com/metal-pod/backend/internal/tracker"
)

const maxBodyBytes = 1 << 16

// Service is the gameplay surface the HTTP API drives. *tracker.Tracker
// implements it.
type Service interface {
	Achievements(ctx context.Context) ([]achievement.Status, error)
	Achievement(ctx context.Context, id string) (achievement.Status, error)
	Save(ctx context.Context) (*save.Data, error)
	Report(ctx context.Context, rep progress.Report) error
	Trigger(ctx context.Context, name string) error
	BuyUpgrade(ctx context.Context, id string) (int, error)
	BuyCosmetic(ctx context.Context, id string) error
	Equip(ctx context.Context, id string) error
	ForceUnlock(ctx context.Context, id string) error
	ForceLock(ctx context.Context, id string) error
	ResetAll(ctx context.Context) error
	Reevaluate(ctx context.Context) (int, error)
}

var _ Service = (*tracker.Tracker)(nil)

type ServerOptions struct {
	AllowedOrigins []string
	AuthToken      string
	Logger         *zap.Logger
}

type Server struct {
	svc            Service
	broadcaster    *Broadcaster
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	logger         *zap.Logger
}

func NewServer(svc Service, broadcaster *Broadcaster, opts ServerOptions) *Server {
	s := &Server{
		svc:            svc,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      opts.AuthToken,
		logger:         opts.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// Snapshot builds the websocket connect message from svc.
func Snapshot(svc Service) SnapshotFunc {
	return func(ctx context.Context) (SnapshotPayload, error) {
		all, err := svc.Achievements(ctx)
		if err != nil {
			return SnapshotPayload{}, err
		}
		data, err := svc.Save(ctx)
		if err != nil {
			return SnapshotPayload{}, err
		}
		return SnapshotPayload{Achievements: all, Currency: data.Currency}, nil
	}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/achievements", s.handleAchievements)
	mux.HandleFunc("GET /api/achievements/{id}", s.handleAchievement)
	mux.HandleFunc("GET /api/save", s.handleSave)
	mux.HandleFunc("POST /api/reports", s.handleReport)
	mux.HandleFunc("POST /api/triggers/{name}", s.handleTrigger)
	mux.HandleFunc("POST /api/shop/upgrades/{id}", s.handleBuyUpgrade)
	mux.HandleFunc("POST /api/shop/cosmetics/{id}", s.handleBuyCosmetic)
	mux.HandleFunc("POST /api/shop/cosmetics/{id}/equip", s.handleEquip)
	mux.HandleFunc("POST /api/debug/unlock/{id}", s.handleForceUnlock)
	mux.HandleFunc("POST /api/debug/lock/{id}", s.handleForceLock)
	mux.HandleFunc("POST /api/debug/reset", s.handleReset)
	mux.HandleFunc("POST /api/debug/reevaluate", s.handleReevaluate)
}

// Handler returns the routed API wrapped in auth and security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(s.requireAuth(mux))
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade error", zap.Error(err))
		return
	}

	c, err := s.broadcaster.AddClient(r.Context(), conn)
	if err != nil {
		s.logger.Warn("ws client rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	s.logger.Info("websocket client connected", zap.String("remote", r.RemoteAddr))

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.logger.Info("websocket client disconnected", zap.String("remote", r.RemoteAddr))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	all, err := s.svc.Achievements(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if c := r.URL.Query().Get("category"); c != "" {
		filtered := all[:0]
		for _, st := range all {
			if string(st.Category) == c {
				filtered = append(filtered, st)
			}
		}
		all = filtered
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleAchievement(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Achievement(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.Save(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var rep progress.Report
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rep); err != nil {
		writeError(w, http.StatusBadRequest, "invalid report: "+err.Error())
		return
	}
	if err := s.svc.Report(r.Context(), rep); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	s.noContent(w, s.svc.Trigger(r.Context(), r.PathValue("name")))
}

func (s *Server) handleBuyUpgrade(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	level, err := s.svc.BuyUpgrade(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": achievement.CanonicalUpgradeID(id), "level": level})
}

func (s *Server) handleBuyCosmetic(w http.ResponseWriter, r *http.Request) {
	s.noContent(w, s.svc.BuyCosmetic(r.Context(), r.PathValue("id")))
}

func (s *Server) handleEquip(w http.ResponseWriter, r *http.Request) {
	s.noContent(w, s.svc.Equip(r.Context(), r.PathValue("id")))
}

func (s *Server) handleForceUnlock(w http.ResponseWriter, r *http.Request) {
	s.noContent(w, s.svc.ForceUnlock(r.Context(), r.PathValue("id")))
}

func (s *Server) handleForceLock(w http.ResponseWriter, r *http.Request) {
	s.noContent(w, s.svc.ForceLock(r.Context(), r.PathValue("id")))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.noContent(w, s.svc.ResetAll(r.Context()))
}

func (s *Server) handleReevaluate(w http.ResponseWriter, r *http.Request) {
	passes, err := s.svc.Reevaluate(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"passes": passes})
}

func (s *Server) noContent(w http.ResponseWriter, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, code, err.Error())
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, achievement.ErrUnknownAchievement),
		errors.Is(err, economy.ErrUnknownItem):
		return http.StatusNotFound
	case errors.Is(err, economy.ErrInsufficientFunds),
		errors.Is(err, economy.ErrMaxLevel),
		errors.Is(err, economy.ErrAlreadyOwned),
		errors.Is(err, economy.ErrNotOwned):
		return http.StatusConflict
	case errors.Is(err, achievement.ErrUnknownTrigger),
		errors.Is(err, progress.ErrUnknownReport),
		errors.Is(err, progress.ErrInvalidReport):
		return http.StatusBadRequest
	case errors.Is(err, economy.ErrNoSave),
		errors.Is(err, progress.ErrNoSave),
		errors.Is(err, tracker.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorPayload{Message: msg})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Metal-Pod-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	return parsed.Host == r.Host || host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
