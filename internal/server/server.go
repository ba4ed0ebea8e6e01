// Package server provides the HTTP API and the background poller.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bryan-buckman/readless/internal/database"
	"github.com/bryan-buckman/readless/internal/digest"
	"github.com/bryan-buckman/readless/internal/importer"
	"github.com/bryan-buckman/readless/internal/manager"
	"github.com/bryan-buckman/readless/internal/opml"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// maxUploadSize bounds OPML uploads.
const maxUploadSize = 10 << 20

// Server is the main HTTP server.
type Server struct {
	mgr    *manager.Manager
	poller *Poller
	router chi.Router
	log    logrus.FieldLogger
	now    func() time.Time

	mu   sync.Mutex
	http *http.Server
}

// New creates a server for mgr. poller may be nil.
func New(mgr *manager.Manager, poller *Poller, log logrus.FieldLogger) *Server {
	s := &Server{
		mgr:    mgr,
		poller: poller,
		log:    log,
		now:    time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/feeds", s.handleListFeeds)
		r.Post("/feeds", s.handleAddFeed)
		r.Patch("/feeds", s.handleRenameFeed)
		r.Delete("/feeds", s.handleRemoveFeed)
		r.Post("/feeds/toggle", s.handleToggleFeed)
		r.Post("/feeds/refresh", s.handleRefresh)
		r.Get("/feeds/entries", s.handleFeedEntries)

		r.Get("/entries", s.handleAllEntries)
		r.Post("/entries/read", s.handleMarkRead)
		r.Get("/entries/category", s.handleGetEntryCategory)
		r.Put("/entries/category", s.handleSetEntryCategory)

		r.Get("/categories", s.handleListCategories)
		r.Post("/categories", s.handleAddCategory)
		r.Put("/categories/{name}", s.handleRenameCategory)
		r.Delete("/categories/{name}", s.handleRemoveCategory)

		r.Post("/backdate", s.handleBackdate)
		r.Get("/digest", s.handleDigest)
		r.Post("/import-opml", s.handleImportOPML)
		r.Get("/export-opml", s.handleExportOPML)
	})

	s.router = r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the poller and serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	if s.poller != nil {
		s.poller.Start()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.log.WithField("addr", addr).Info("Server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the poller and drains open requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.poller != nil {
		s.poller.Stop()
	}
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// --- Feed Handlers ---

type feedRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.GetFeeds())
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if !decode(w, r, &req) || !requireField(w, req.URL, "url") {
		return
	}
	if err := s.mgr.AddFeed(r.Context(), req.URL); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok", "url": req.URL})
}

func (s *Server) handleRenameFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if !decode(w, r, &req) || !requireField(w, req.URL, "url") || !requireField(w, req.Title, "title") {
		return
	}
	if err := s.mgr.UpdateFeedTitle(req.URL, req.Title); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRemoveFeed(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if !requireField(w, url, "url") {
		return
	}
	if err := s.mgr.RemoveFeed(url); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleToggleFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if !decode(w, r, &req) || !requireField(w, req.URL, "url") {
		return
	}
	enabled, err := s.mgr.ToggleFeedStatus(req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "enabled": enabled})
}

type refreshResponse struct {
	URL        string            `json:"url"`
	NewEntries int               `json:"new_entries"`
	Skipped    []skippedResponse `json:"skipped"`
	Error      string            `json:"error,omitempty"`
}

type skippedResponse struct {
	Link   string `json:"link"`
	Reason string `json:"reason"`
}

func toRefreshResponse(url string, res manager.RefreshResult, err error) refreshResponse {
	out := refreshResponse{URL: url, NewEntries: res.NewEntries, Skipped: []skippedResponse{}}
	for _, sk := range res.Skipped {
		out.Skipped = append(out.Skipped, skippedResponse{Link: sk.Link, Reason: string(sk.Reason)})
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// handleRefresh refreshes one feed when a url is given, or every enabled
// feed otherwise.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if req.URL != "" {
		res, err := s.mgr.RefreshFeed(ctx, req.URL)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRefreshResponse(req.URL, res, nil))
		return
	}

	results := s.mgr.RefreshAll(ctx)
	total := 0
	out := make([]refreshResponse, 0, len(results))
	for _, fr := range results {
		total += fr.Result.NewEntries
		out = append(out, toRefreshResponse(fr.URL, fr.Result, fr.Err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"new_entries": total,
		"feeds":       out,
	})
}

func (s *Server) handleFeedEntries(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if !requireField(w, url, "url") {
		return
	}
	entries, err := s.mgr.GetEntries(url)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Entry Handlers ---

func (s *Server) handleAllEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.mgr.GetAllEntries()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Links []string `json:"links"`
		Read  *bool    `json:"read"`
	}
	if !decode(w, r, &req) {
		return
	}
	isRead := true
	if req.Read != nil {
		isRead = *req.Read
	}
	if err := s.mgr.SetEntryReadStatus(isRead, req.Links...); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "updated": len(req.Links)})
}

func (s *Server) handleGetEntryCategory(w http.ResponseWriter, r *http.Request) {
	link := r.URL.Query().Get("link")
	if !requireField(w, link, "link") {
		return
	}
	category, err := s.mgr.GetEntryCategory(link)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"link": link, "category": category})
}

func (s *Server) handleSetEntryCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Link     string `json:"link"`
		Category string `json:"category"`
	}
	if !decode(w, r, &req) || !requireField(w, req.Link, "link") || !requireField(w, req.Category, "category") {
		return
	}
	if err := s.mgr.SetEntryCategory(req.Link, req.Category); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Category Handlers ---

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.mgr.GetCategories()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.mgr.AddCategory(req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok", "name": req.Name})
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.mgr.RenameCategory(chi.URLParam(r, "name"), req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "name": req.Name})
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.RemoveCategory(chi.URLParam(r, "name")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Maintenance Handlers ---

func (s *Server) handleBackdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Days *int `json:"days"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Days == nil {
		http.Error(w, "days is required", http.StatusBadRequest)
		return
	}
	report, err := s.mgr.BackdateFeeds(*req.Days)
	if err != nil {
		s.writeError(w, err)
		return
	}
	failed := map[string]string{}
	for url, ferr := range report.Failed {
		failed[url] = ferr.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"cutoff":  report.Cutoff,
		"updated": report.Updated,
		"removed": report.Removed,
		"failed":  failed,
	})
}

// handleDigest serves ?days=N (default 7) or ?start=YYYY-MM-DD&end=YYYY-MM-DD
// as JSON, or as Markdown with format=markdown.
func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		start, end time.Time
		err        error
	)
	switch {
	case q.Get("start") != "" || q.Get("end") != "":
		start, end, err = digest.ParseRange(q.Get("start"), q.Get("end"))
	case q.Get("range") != "":
		start, end, err = digest.Range(q.Get("range"), s.now().UTC())
	default:
		days := 7
		if v := q.Get("days"); v != "" {
			days, err = strconv.Atoi(v)
			if err != nil {
				http.Error(w, "days must be an integer", http.StatusBadRequest)
				return
			}
		}
		start, end, err = digest.LastDays(days, s.now().UTC())
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := s.mgr.GetEntriesByDateRange(start, end)
	if err != nil {
		s.writeError(w, err)
		return
	}
	d := digest.Build(entries, start, end)

	if q.Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		fmt.Fprint(w, digest.RenderMarkdown(d))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, _, err := r.FormFile("opml")
	if err != nil {
		http.Error(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	feeds, err := opml.Parse(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse OPML: %v", err), http.StatusBadRequest)
		return
	}

	urls := make([]string, len(feeds))
	for i, f := range feeds {
		urls[i] = f.URL
	}
	report := importer.ImportFeeds(r.Context(), s.mgr, urls, 0)

	errs := make([]string, 0, len(report.Errors))
	for _, e := range report.Errors {
		errs = append(errs, e.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"imported": report.Added,
		"failed":   report.Failed,
		"total":    len(feeds),
		"errors":   errs,
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	feeds := s.mgr.GetFeeds()
	entries := make([]opml.FeedEntry, len(feeds))
	for i, f := range feeds {
		entries[i] = opml.FeedEntry{Title: f.Title, URL: f.URL}
	}

	data, err := opml.Export("readless feeds", entries, s.now())
	if err != nil {
		http.Error(w, "Failed to export", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=readless-feeds.opml")
	w.Write(data)
}

// --- Helpers ---

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func requireField(w http.ResponseWriter, value, name string) bool {
	if value == "" {
		http.Error(w, name+" is required", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, manager.ErrUnknownFeed), errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, database.ErrDefaultCategory),
		errors.Is(err, database.ErrInvalidName),
		errors.Is(err, manager.ErrInvalidArgument),
		errors.Is(err, manager.ErrNoFeeds):
		return http.StatusBadRequest
	case errors.Is(err, manager.ErrFetchFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
