package visualization

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MontagueM/NeuronImperialProject/internal/activity"
	"github.com/MontagueM/NeuronImperialProject/internal/network"
	"github.com/MontagueM/NeuronImperialProject/internal/propagation"
	"github.com/MontagueM/NeuronImperialProject/internal/waveform"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>neuronsim</title></head>
<body>
<h1>neuronsim</h1>
<p>{{.Neurons}} neurons, {{.Edges}} edges, seed {{.Seed}}</p>
<table>
<tr><th>layer</th><th>neurons</th><th>edges</th><th>excitatory</th></tr>
{{range .Layers}}<tr><td>{{.Layer}}</td><td>{{.Neurons}}</td><td>{{.Edges}}</td><td>{{.ExcitatoryEdges}}</td></tr>
{{end}}</table>
<img src="/api/activity.svg?seed={{.Seed}}" alt="activity">
<p><a href="/api/graph">graph</a> | <a href="/api/cascade?seed={{.Seed}}">cascade</a></p>
</body>
</html>
`))

// CascadeResponse is the body of /api/cascade.
type CascadeResponse struct {
	Seed      int                       `json:"seed"`
	Events    []propagation.FiringEvent `json:"events"`
	Histogram activity.Histogram        `json:"histogram"`
	Truncated bool                      `json:"truncated"`
	Stats     propagation.Stats         `json:"stats"`
}

// Server serves a generated network and runs cascades over it on request.
// Every request gets its own engine, seeded from the server's RNG seed
// and the requested neuron, so repeated requests return the same cascade.
type Server struct {
	graph      *network.Graph
	tmpl       *waveform.Template
	config     propagation.Config
	rngSeed    uint64
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a new network visualization server.
func NewServer(g *network.Graph, tmpl *waveform.Template, cfg propagation.Config, rngSeed uint64) *Server {
	return &Server{
		graph:   g,
		tmpl:    tmpl,
		config:  cfg,
		rngSeed: rngSeed,
	}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/graph", s.handleGraph)
	mux.HandleFunc("/api/cascade", s.handleCascade)
	mux.HandleFunc("/api/activity.svg", s.handleActivity)
	return mux
}

// ListenAndServe starts the HTTP server on addr ("localhost:0" lets the OS
// pick a port) and blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	seed, err := s.seedParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	indexTemplate.Execute(w, map[string]interface{}{
		"Neurons": s.graph.Len(),
		"Edges":   s.graph.EdgeCount(),
		"Seed":    seed,
		"Layers":  s.graph.Stats(),
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RenderJSON(s.graph))
}

func (s *Server) handleCascade(w http.ResponseWriter, r *http.Request) {
	seed, err := s.seedParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.cascade(r.Context(), seed)
	if err != nil {
		http.Error(w, "cascade error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CascadeResponse{
		Seed:      seed,
		Events:    res.Events,
		Histogram: activity.Aggregate(res.Events),
		Truncated: res.Truncated,
		Stats:     res.Stats,
	})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	seed, err := s.seedParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.cascade(r.Context(), seed)
	if err != nil {
		http.Error(w, "cascade error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	if err := WriteActivity(w, activity.Aggregate(res.Events), "svg"); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
	}
}

// seedParam reads the "seed" query parameter, defaulting to neuron 0.
func (s *Server) seedParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("seed")
	if raw == "" {
		return 0, nil
	}
	seed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid seed %q", raw)
	}
	if !s.graph.Has(seed) {
		return 0, fmt.Errorf("seed %d out of range [0, %d)", seed, s.graph.Len())
	}
	return seed, nil
}

func (s *Server) cascade(ctx context.Context, seed int) (*propagation.Result, error) {
	rng := rand.New(rand.NewPCG(s.rngSeed, uint64(seed)+1))
	return propagation.NewEngine(s.graph, s.tmpl, s.config, rng).Run(ctx, seed)
}
