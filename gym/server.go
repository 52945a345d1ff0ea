package gym

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeu5/taxi-rl/rl"
	"github.com/zeu5/taxi-rl/taxi"
	"k8s.io/klog/v2"
)

// Server exposes the registry over the gym http api
type Server struct {
	Addr string

	registry *Registry
	metrics  *metrics
	prom     *prometheus.Registry
	router   *gin.Engine
	server   *http.Server
}

func NewServer(addr string, registry *Registry) *Server {
	if registry == nil {
		registry = NewRegistry()
	}
	prom := prometheus.NewRegistry()
	prom.MustRegister(collectors.NewGoCollector())

	s := &Server{
		Addr:     addr,
		registry: registry,
		metrics:  newMetrics(prom),
		prom:     prom,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.instrument)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(prom, promhttp.HandlerOpts{})))

	envs := r.Group("/v1/envs")
	envs.POST("/", s.handleCreate)
	envs.GET("/", s.handleList)
	envs.POST("/:id/reset/", s.handleReset)
	envs.POST("/:id/step/", s.handleStep)
	envs.GET("/:id/action_space/", s.handleActionSpace)
	envs.GET("/:id/action_space/sample", s.handleSample)
	envs.GET("/:id/action_space/contains/:x", s.handleContains)
	envs.GET("/:id/observation_space/", s.handleObservationSpace)
	envs.POST("/:id/close/", s.handleClose)

	s.router = r
	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, used to serve from tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is cancelled
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		klog.InfoS("Starting gym server", "addr", s.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	klog.InfoS("Stopping gym server", "addr", s.Addr)
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) instrument(c *gin.Context) {
	start := time.Now()
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	s.metrics.requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	s.metrics.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownInstance):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownEnv),
		errors.Is(err, ErrSeedUnsupported),
		errors.Is(err, rl.ErrActionOutOfRange),
		errors.Is(err, taxi.ErrNotReset):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, code int, err error) {
	klog.V(2).InfoS("Request failed", "path", c.Request.URL.Path, "code", code, "err", err)
	c.AbortWithStatusJSON(code, gin.H{"message": err.Error()})
}

func (s *Server) instance(c *gin.Context) (*instance, bool) {
	i, err := s.registry.get(c.Param("id"))
	if err != nil {
		abort(c, statusFor(err), err)
		return nil, false
	}
	return i, true
}

type createRequest struct {
	EnvID string `json:"env_id" binding:"required"`
	Seed  uint64 `json:"seed"`
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	id, err := s.registry.Create(req.EnvID, req.Seed)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	s.metrics.instances.Inc()
	klog.V(1).InfoS("Created environment", "env_id", req.EnvID, "instance_id", id)
	c.JSON(http.StatusOK, gin.H{"instance_id": id})
}

func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"all_envs": s.registry.Instances()})
}

// resetRequest is optional, an empty body resets without reseeding
type resetRequest struct {
	Seed *uint64 `json:"seed"`
}

func (s *Server) handleReset(c *gin.Context) {
	i, ok := s.instance(c)
	if !ok {
		return
	}
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abort(c, http.StatusBadRequest, err)
		return
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	if req.Seed != nil {
		seeder, ok := i.env.(Seeder)
		if !ok {
			abort(c, statusFor(ErrSeedUnsupported), fmt.Errorf("%w: %s", ErrSeedUnsupported, i.envID))
			return
		}
		seeder.Seed(*req.Seed)
	}
	obs, err := i.env.Reset(c.Request.Context())
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"observation": obs})
}

type stepRequest struct {
	Action *int `json:"action" binding:"required"`
}

func (s *Server) handleStep(c *gin.Context) {
	i, ok := s.instance(c)
	if !ok {
		return
	}
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	res, err := i.env.Step(c.Request.Context(), *req.Action)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	s.metrics.steps.WithLabelValues(i.envID).Inc()
	if res.Over() {
		s.metrics.episodes.WithLabelValues(i.envID).Inc()
	}
	c.JSON(http.StatusOK, gin.H{
		"observation": res.State,
		"reward":      res.Reward,
		"done":        res.Done,
		"truncated":   res.Truncated,
		"info":        gin.H{},
	})
}

func discrete(n int) gin.H {
	return gin.H{"info": gin.H{"name": "Discrete", "n": n}}
}

func (s *Server) handleActionSpace(c *gin.Context) {
	i, ok := s.instance(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, discrete(i.env.ActionCount()))
}

func (s *Server) handleObservationSpace(c *gin.Context) {
	i, ok := s.instance(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, discrete(i.env.StateCount()))
}

func (s *Server) handleSample(c *gin.Context) {
	i, ok := s.instance(c)
	if !ok {
		return
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	a, err := i.env.SampleAction(c.Request.Context())
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"action": a})
}

func (s *Server) handleContains(c *gin.Context) {
	i, ok := s.instance(c)
	if !ok {
		return
	}
	x, err := strconv.Atoi(c.Param("x"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": x >= 0 && x < i.env.ActionCount()})
}

func (s *Server) handleClose(c *gin.Context) {
	if err := s.registry.Close(c.Param("id")); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	s.metrics.instances.Dec()
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}
