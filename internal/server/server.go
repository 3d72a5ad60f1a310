// Package server exposes the query engine over HTTP. Routing only: TLS,
// static assets, and the web UI are deployment concerns outside this module.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wikiwalk/wikiwalk/internal/graph"
	"github.com/wikiwalk/wikiwalk/internal/metrics"
	"github.com/wikiwalk/wikiwalk/internal/pathcache"
	"github.com/wikiwalk/wikiwalk/internal/store"
)

// PathData is the wire shape of a path query response.
type PathData struct {
	Paths    [][]uint32 `json:"paths"`
	Degrees  int        `json:"degrees"`
	Count    int        `json:"count"`
	Duration int64      `json:"duration"`
}

// StatusData reports which generation the server is holding.
type StatusData struct {
	DumpDate    string `json:"dump_date"`
	VertexCount string `json:"vertex_count"`
	EdgeCount   string `json:"edge_count"`
}

// Server binds one graph generation to the HTTP surface. The EdgeDB and
// sidecar are held for process lifetime; generation reloads are handled by
// restarting the process.
type Server struct {
	db      *graph.EdgeDB
	sidecar *store.Sidecar
	cache   *pathcache.Cache
	timeout time.Duration
}

// New wires the server. cacheSize <= 0 selects the default; timeout <= 0
// selects graph.DefaultTimeout.
func New(db *graph.EdgeDB, sidecar *store.Sidecar, cacheSize int, timeout time.Duration) (*Server, error) {
	if timeout <= 0 {
		timeout = graph.DefaultTimeout
	}
	s := &Server{db: db, sidecar: sidecar, timeout: timeout}
	cache, err := pathcache.New(cacheSize, func(ctx context.Context, key pathcache.Key) (*graph.Result, error) {
		return db.FindPaths(ctx, key.Source, key.Target)
	})
	if err != nil {
		return nil, err
	}
	s.cache = cache
	return s, nil
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/paths/:source_id/:dest_id", s.handlePaths)
	r.GET("/status", s.handleStatus)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (s *Server) handlePaths(c *gin.Context) {
	source, ok := parseID(c, "source_id")
	if !ok {
		return
	}
	target, ok := parseID(c, "dest_id")
	if !ok {
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()
	res, err := s.cache.Get(ctx, pathcache.Key{Source: source, Target: target})
	elapsed := time.Since(start)

	switch {
	case err == nil:
		metrics.Queries.WithLabelValues("ok").Inc()
		c.JSON(http.StatusOK, PathData{
			Paths:    res.Paths,
			Degrees:  res.Degrees,
			Count:    res.Count,
			Duration: elapsed.Milliseconds(),
		})
	case errors.Is(err, graph.ErrNoPath):
		metrics.Queries.WithLabelValues("no_path").Inc()
		c.JSON(http.StatusOK, PathData{
			Paths:    [][]uint32{},
			Duration: elapsed.Milliseconds(),
		})
	case isNoSuchVertex(err):
		metrics.Queries.WithLabelValues("no_such_vertex").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, graph.ErrTimeout):
		metrics.Queries.WithLabelValues("timeout").Inc()
		log.Printf("query %d -> %d timed out after %s", source, target, elapsed.Round(time.Millisecond))
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "query timed out"})
	case errors.Is(err, graph.ErrCancelled):
		metrics.Queries.WithLabelValues("cancelled").Inc()
		c.JSON(http.StatusBadGateway, gin.H{"error": "query cancelled"})
	default:
		metrics.Queries.WithLabelValues("error").Inc()
		log.Printf("query %d -> %d failed: %v", source, target, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	var st StatusData
	var err error
	if st.DumpDate, err = s.sidecar.BuildInfo("dump_date"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	st.VertexCount, _ = s.sidecar.BuildInfo("vertex_count")
	st.EdgeCount, _ = s.sidecar.BuildInfo("edge_count")
	c.JSON(http.StatusOK, st)
}

func parseID(c *gin.Context, name string) (uint32, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint32(v), true
}

func isNoSuchVertex(err error) bool {
	var nsv *graph.NoSuchVertexError
	return errors.As(err, &nsv)
}
