package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"dailete/internal/acquire"
	"dailete/internal/catalog"
	"dailete/internal/config"
	"dailete/internal/logging"
	"dailete/internal/metrics"
	"dailete/internal/services"
)

const maxRequestBody = 1 << 16

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	storageDir   string
	baseAddress  string
	extension    string
	metricsAllow []netip.Prefix

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// podcastView is the JSON shape of a subscription.
type podcastView struct {
	ID        string    `json:"id"`
	FeedURL   string    `json:"feed_url"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// episodeView is the JSON shape of a processed episode.
type episodeView struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	FileSize         int64     `json:"file_size"`
	OriginalSeconds  float64   `json:"original_seconds"`
	FinalSeconds     float64   `json:"final_seconds"`
	TimeSavedSeconds float64   `json:"time_saved_seconds"`
	Outcome          string    `json:"outcome"`
	ProcessedAt      time.Time `json:"processed_at"`
}

type pendingView struct {
	ID        int64     `json:"id"`
	PodcastID string    `json:"podcast_id"`
	EpisodeID string    `json:"episode_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type addPodcastRequest struct {
	FeedURL string `json:"feed_url"`
}

type queueRequest struct {
	PodcastID string `json:"podcast_id"`
	EpisodeID string `json:"episode_id"`
	URL       string `json:"url"`
}

type queueResponse struct {
	Item  pendingView `json:"item"`
	Added bool        `json:"added"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:        strings.TrimSpace(cfg.Server.Bind),
		logger:      logger,
		daemon:      d,
		storageDir:  cfg.Paths.StorageDir,
		baseAddress: cfg.Server.BaseAddress,
		extension:   cfg.Encoding.Extension,
	}
	// Validated at config load; a bad entry here only narrows access.
	srv.metricsAllow, _ = cfg.MetricsAllowPrefixes()
	srv.server = &http.Server{
		Handler:           otelhttp.NewHandler(srv.routes(cfg.Server.APIToken), "dailete"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", s.handleStatus)
	api.HandleFunc("GET /api/podcasts", s.handleListPodcasts)
	api.HandleFunc("POST /api/podcasts", s.handleAddPodcast)
	api.HandleFunc("DELETE /api/podcasts/{id}", s.handleRemovePodcast)
	api.HandleFunc("GET /api/podcasts/{id}/episodes", s.handleEpisodes)
	api.HandleFunc("GET /api/queue", s.handleListQueue)
	api.HandleFunc("POST /api/queue", s.handleQueue)

	mux := http.NewServeMux()
	mux.Handle("/api/", authMiddleware(token, api))
	mux.Handle("GET /metrics", metricsMiddleware(s.metricsAllow, token, metrics.Handler()))
	mux.HandleFunc("GET /podcasts/{podcast}/{file}", s.handleArtifact)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err), logging.String(logging.FieldEventType, "api_server_failed"))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr reports the bound listener address.
func (s *apiServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleListPodcasts(w http.ResponseWriter, r *http.Request) {
	podcasts, err := s.daemon.store.ListPodcasts(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	views := make([]podcastView, 0, len(podcasts))
	for _, podcast := range podcasts {
		views = append(views, toPodcastView(podcast))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"podcasts": views})
}

func (s *apiServer) handleAddPodcast(w http.ResponseWriter, r *http.Request) {
	var req addPodcastRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	podcast, err := s.daemon.AddPodcast(r.Context(), req.FeedURL)
	if errors.Is(err, catalog.ErrPodcastExists) && podcast != nil {
		s.writeJSON(w, http.StatusOK, toPodcastView(*podcast))
		return
	}
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toPodcastView(*podcast))
}

func (s *apiServer) handleRemovePodcast(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.RemovePodcast(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	podcastID := r.PathValue("id")
	podcast, err := s.daemon.store.GetPodcast(r.Context(), podcastID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if podcast == nil {
		s.writeError(w, http.StatusNotFound, "podcast not found")
		return
	}
	episodes, err := s.daemon.store.ListEpisodes(r.Context(), podcastID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	views := make([]episodeView, 0, len(episodes))
	for _, episode := range episodes {
		views = append(views, episodeView{
			ID:               episode.ID,
			URL:              catalog.PublicURL(s.baseAddress, podcastID, episode.ID, s.extension),
			FileSize:         episode.FileSize,
			OriginalSeconds:  episode.Original.Seconds(),
			FinalSeconds:     episode.Final.Seconds(),
			TimeSavedSeconds: episode.TimeSaved.Seconds(),
			Outcome:          episode.Outcome,
			ProcessedAt:      episode.ProcessedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"podcast": toPodcastView(*podcast), "episodes": views})
}

func (s *apiServer) handleListQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.daemon.store.ListPending(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	views := make([]pendingView, 0, len(items))
	for _, item := range items {
		views = append(views, toPendingView(item))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, added, err := s.daemon.QueueEpisode(r.Context(), req.PodcastID, req.EpisodeID, req.URL)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, queueResponse{Item: toPendingView(*item), Added: added})
}

// handleArtifact serves processed episodes. It is not behind the API token
// because podcast clients download enclosures anonymously.
func (s *apiServer) handleArtifact(w http.ResponseWriter, r *http.Request) {
	podcastID := r.PathValue("podcast")
	file := r.PathValue("file")
	episodeID, ok := strings.CutSuffix(file, "."+s.extension)
	if !ok || acquire.ValidateID(podcastID) != nil || acquire.ValidateID(episodeID) != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.storageDir, podcastID, file))
}

func toPodcastView(p catalog.Podcast) podcastView {
	return podcastView{ID: p.ID, FeedURL: p.FeedURL, Title: p.DisplayName(), CreatedAt: p.CreatedAt}
}

func toPendingView(p catalog.PendingEpisode) pendingView {
	return pendingView{ID: p.ID, PodcastID: p.PodcastID, EpisodeID: p.EpisodeID, URL: p.URL, CreatedAt: p.CreatedAt}
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps error markers onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrPodcastExists):
		return http.StatusConflict
	case errors.Is(err, services.ErrFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log().Error("api request failed", logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.String(logging.FieldErrorHint, "check daemon logs and catalog health"),
		)
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err), logging.String(logging.FieldEventType, "api_encode_failed"))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
