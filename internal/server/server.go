package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/vidscribe/internal/config"
	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
	"github.com/GriffinCanCode/vidscribe/internal/jobstore"
	"github.com/GriffinCanCode/vidscribe/internal/pipeline"
	"github.com/GriffinCanCode/vidscribe/internal/syncx"
	"github.com/GriffinCanCode/vidscribe/internal/trace"
)

// Processor runs a job.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Jobs persists job state.
type Jobs interface {
	Create(ctx context.Context, input, title string) (*jobstore.Job, error)
	Update(ctx context.Context, j *jobstore.Job) error
	SetProgress(ctx context.Context, id string, percent int, message string) error
	Get(ctx context.Context, id string) (*jobstore.Job, error)
	List(ctx context.Context, limit int) ([]jobstore.Job, error)
}

// HealthFunc reports component states for /healthz.
type HealthFunc func() map[string]string

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	proc    Processor
	jobs    Jobs
	events  *pipeline.EventLog
	cfg     config.Server
	health  HealthFunc
	slots   *syncx.Semaphore
	running *syncx.Registry[string, context.CancelFunc]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	conns map[*websocket.Conn]*client
}

// client is one WebSocket connection. All writes go through send so a
// connection sees messages in the order they were queued.
type client struct {
	conn    *websocket.Conn
	limiter *rateLimiter
	send    chan any
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, limiter: &rateLimiter{}, send: make(chan any, SendQueueSize)}
}

// enqueue queues msg without blocking and reports whether it fit.
func (c *client) enqueue(msg any) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// New creates a server and starts broadcasting events from the log.
func New(proc Processor, jobs Jobs, events *pipeline.EventLog, cfg config.Server, health HealthFunc) *Server {
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = DefaultMaxJobs
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		proc:       proc,
		jobs:       jobs,
		events:     events,
		cfg:        cfg,
		health:     health,
		slots:      syncx.NewSemaphore(cfg.MaxJobs),
		running:    syncx.NewRegistry[string, context.CancelFunc](),
		ctx:        ctx,
		cancel:     cancel,
		conns:      make(map[*websocket.Conn]*client),
	}
	if events != nil {
		go s.broadcastEvents()
	}
	return s
}

// Close cancels running jobs and waits for them to record their outcome.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/jobs/{id}/events", s.handleJobEvents)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.handleCancelJob)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Apply middleware: trace -> CORS
	return corsMiddleware(s.cfg.CORSOrigins, trace.Middleware(mux))
}

func corsMiddleware(origins []string, next http.Handler) http.Handler {
	wildcard := len(origins) == 0 || slices.Contains(origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch origin := r.Header.Get("Origin"); {
		case wildcard:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case slices.Contains(origins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes)).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.InvalidArgument, "decode request"))
		return
	}
	if req.Input == "" {
		writeError(w, apperrors.New(apperrors.InvalidArgument, "input is required"))
		return
	}

	job, err := s.jobs.Create(r.Context(), req.Input, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	trace.Logger(r.Context()).Info("job queued", "job_id", job.ID, "input", job.Input)

	queued := *job
	s.wg.Add(1)
	go s.runJob(trace.WithJob(r.Context(), job.ID), job)

	writeJSON(w, http.StatusAccepted, queued)
}

// runJob waits for a slot, runs the pipeline and records the outcome. It
// keeps the request's trace but not its cancellation.
func (s *Server) runJob(reqCtx context.Context, job *jobstore.Job) {
	defer s.wg.Done()
	tc, _ := trace.FromContext(reqCtx)
	ctx, cancel := context.WithCancel(trace.WithContext(s.ctx, tc))
	defer cancel()
	s.running.Store(job.ID, cancel)
	defer s.running.LoadAndDelete(job.ID)
	log := trace.Logger(ctx)

	if err := s.slots.Acquire(ctx); err != nil {
		s.finish(job, nil, err)
		return
	}
	defer s.slots.Release()

	res, err := s.proc.Process(ctx, pipeline.Request{
		JobID: job.ID,
		Input: job.Input,
		Title: job.Title,
		Progress: func(percent int, message string) bool {
			if err := s.jobs.SetProgress(context.WithoutCancel(ctx), job.ID, percent, message); err != nil {
				log.Warn("failed to record progress", "error", err)
			}
			return ctx.Err() == nil
		},
	})
	s.finish(job, res, err)
}

func (s *Server) finish(job *jobstore.Job, res *pipeline.Result, err error) {
	switch {
	case err == nil:
		job.Status = jobstore.StatusDone
		job.Progress = pipeline.ProgressDone
		job.Message = "done"
		job.FramesTotal, job.FramesUnique = res.FramesTotal, res.FramesUnique
		job.TextsTotal, job.TextsUnique = res.TextsTotal, res.TextsUnique
		job.Document = res.Document()
	case errors.Is(err, context.Canceled) || errors.Is(err, pipeline.ErrCancelled):
		job.Status = jobstore.StatusCancelled
		job.Message = "cancelled"
	default:
		job.Status = jobstore.StatusFailed
		job.Error = err.Error()
	}
	if uerr := s.jobs.Update(context.Background(), job); uerr != nil {
		trace.Logger(s.ctx).Error("failed to record job outcome", "job_id", job.ID, "error", uerr)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []jobstore.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	events := []pipeline.Event{}
	if s.events != nil {
		events = append(events, s.events.Job(r.PathValue("id"))...)
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.cancelJob(id) {
		writeError(w, apperrors.Newf(apperrors.JobNotFound, "job %s is not running", id))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) cancelJob(id string) bool {
	cancel, ok := s.running.Load(id)
	if ok {
		cancel()
	}
	return ok
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":       "ok",
		"running_jobs": s.slots.InUse(),
	}
	if s.health != nil {
		for k, v := range s.health() {
			body[k] = v
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.CORSOrigins,
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newClient(conn)
	go s.writeLoop(ctx, c)

	s.mu.Lock()
	s.conns[conn] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !c.limiter.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			c.enqueue(ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "cancel":
			var cm CancelMessage
			if err := json.Unmarshal(msg, &cm); err != nil {
				continue
			}
			if !s.cancelJob(cm.JobID) {
				c.enqueue(ErrorMessage{Type: "error", Message: "job " + cm.JobID + " is not running"})
				continue
			}
			log.Info("job cancelled by client", "job_id", cm.JobID)
		default:
			c.enqueue(ErrorMessage{Type: "error", Message: "unknown message type " + strconv.Quote(base.Type)})
		}
	}
}

func (s *Server) broadcastEvents() {
	for {
		var evt pipeline.Event
		select {
		case <-s.ctx.Done():
			return
		case evt = <-s.events.Events():
		}

		var msg any
		switch evt.Type {
		case pipeline.EventProgress:
			msg = ProgressMessage{Type: "progress", JobID: evt.JobID, Percent: evt.Percent, Message: evt.Message}
		case pipeline.EventDone:
			msg = DoneMessage{Type: "done", JobID: evt.JobID, Document: evt.Message}
		case pipeline.EventFailed:
			msg = FailedMessage{Type: "failed", JobID: evt.JobID, Error: evt.Message}
		default:
			continue
		}

		s.mu.RLock()
		for _, c := range s.conns {
			if !c.enqueue(msg) {
				trace.Logger(s.ctx).Warn("websocket send queue full, dropping event",
					"job_id", evt.JobID, "type", evt.Type)
			}
		}
		s.mu.RUnlock()
	}
}

// writeLoop drains c.send in order until ctx or the server is done.
func (s *Server) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				trace.Logger(ctx).Debug("websocket write error", "error", err)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.Internal
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	status := http.StatusInternalServerError
	switch code {
	case apperrors.InvalidArgument, apperrors.ConfigInvalid:
		status = http.StatusBadRequest
	case apperrors.NotFound, apperrors.JobNotFound:
		status = http.StatusNotFound
	case apperrors.Unavailable, apperrors.OCRUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code.String()})
}
