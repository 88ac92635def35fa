// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/smartdevs17/contract-gateway/internal/contract"
	"github.com/smartdevs17/contract-gateway/internal/metrics"
	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// emptyName is shown when the contract has no name stored.
const emptyName = "(empty)"

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableCORS    bool          `json:"enable_cors"`
}

// ContractReader is the read-only gateway the handlers call.
type ContractReader interface {
	ReadName(ctx context.Context) (string, error)
	ReadBalance(ctx context.Context) (contract.Balance, error)
}

// HTTPServer serves the contract's read calls as JSON
type HTTPServer struct {
	config         *ServerConfig
	server         *http.Server
	router         *mux.Router
	descriptor     *contract.Descriptor
	reader         ContractReader
	metricsManager *metrics.Manager
	logger         *logrus.Entry
	now            func() time.Time
	stopMetrics    chan struct{}
	stopOnce       sync.Once
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	config *ServerConfig,
	descriptor *contract.Descriptor,
	reader ContractReader,
	metricsManager *metrics.Manager,
) *HTTPServer {
	server := &HTTPServer{
		config:         config,
		descriptor:     descriptor,
		reader:         reader,
		metricsManager: metricsManager,
		logger:         utils.ComponentLogger("http_server"),
		now:            time.Now,
		stopMetrics:    make(chan struct{}),
	}

	// Setup router
	server.setupRouter()

	// Create HTTP server
	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	// preflight requests are answered by the CORS middleware
	methods := []string{http.MethodGet}
	if s.config.EnableCORS {
		methods = append(methods, http.MethodOptions)
	}

	s.router.HandleFunc("/health", s.healthHandler).Methods(methods...)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/getName", s.getNameHandler).Methods(methods...)
	api.HandleFunc("/getBalance", s.getBalanceHandler).Methods(methods...)
	api.HandleFunc("/contractInfo", s.contractInfoHandler).Methods(methods...)

	s.router.HandleFunc("/contractApiTest", s.contractAPITestHandler).Methods(methods...)

	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler()).Methods(http.MethodGet)
	}
}

// Handler returns the router, mainly for tests
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":          s.server.Addr,
		"contract_address": s.contractAddress(),
		"network":          s.network(),
		"metrics_enabled":  s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	for _, endpoint := range []string{
		"GET /contractApiTest - contract data with timestamp",
		"GET /api/getName - contract name",
		"GET /api/getBalance - contract balance",
		"GET /api/contractInfo - name and balance",
		"GET /health - health check",
	} {
		s.logger.Info("Endpoint available: " + endpoint)
	}

	// Update system metrics so they appear on first scrape
	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("http_server", true)
		go s.systemMetricsUpdater()
	}

	// Create a channel to receive startup errors
	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Give the server a moment to start and check for immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.metricsManager.UpdateSystemMetrics()
		case <-s.stopMetrics:
			return
		}
	}
}

// Stop stops the HTTP server. It is safe to call more than once.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	s.stopOnce.Do(func() { close(s.stopMetrics) })

	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("http_server", false)
	}
	return s.server.Shutdown(ctx)
}

// Handlers

// healthHandler never touches the chain
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		Message:         "API is running",
		ContractAddress: s.contractAddress(),
		Network:         s.network(),
	})
}

func (s *HTTPServer) getNameHandler(w http.ResponseWriter, r *http.Request) {
	name, err := s.reader.ReadName(r.Context())
	if err != nil {
		s.writeError(w, r, "Error getting name", err)
		return
	}

	s.requestLogger(r).WithField("name", displayName(name)).Info("API call: get name")
	s.writeJSON(w, http.StatusOK, NameResponse{Success: true, Name: displayName(name)})
}

func (s *HTTPServer) getBalanceHandler(w http.ResponseWriter, r *http.Request) {
	balance, err := s.reader.ReadBalance(r.Context())
	if err != nil {
		s.writeError(w, r, "Error getting balance", err)
		return
	}

	s.requestLogger(r).WithField("balance_eth", balance.Ether).Info("API call: get balance")
	s.writeJSON(w, http.StatusOK, BalanceResponse{Success: true, Balance: newBalanceView(balance)})
}

func (s *HTTPServer) contractInfoHandler(w http.ResponseWriter, r *http.Request) {
	info, err := s.readContractInfo(r.Context())
	if err != nil {
		s.writeError(w, r, "Error getting contract info", err)
		return
	}

	s.requestLogger(r).WithFields(logrus.Fields{
		"name":        info.Data.Name,
		"balance_eth": info.Data.Balance.Eth,
	}).Info("API call: contract info")
	s.writeJSON(w, http.StatusOK, info)
}

func (s *HTTPServer) contractAPITestHandler(w http.ResponseWriter, r *http.Request) {
	info, err := s.readContractInfo(r.Context())
	if err != nil {
		s.writeError(w, r, "Error fetching contract data", err)
		return
	}

	s.requestLogger(r).WithFields(logrus.Fields{
		"name":        info.Data.Name,
		"balance_eth": info.Data.Balance.Eth,
		"balance_wei": info.Data.Balance.Wei,
	}).Info("Contract API test: data fetched")

	timestamp := s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	s.writeJSON(w, http.StatusOK, ContractAPITestResponse{ContractInfoResponse: *info, Timestamp: timestamp})
}

// readContractInfo runs both reads concurrently; the first failure wins.
func (s *HTTPServer) readContractInfo(ctx context.Context) (*ContractInfoResponse, error) {
	var (
		name    string
		balance contract.Balance
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		name, err = s.reader.ReadName(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		balance, err = s.reader.ReadBalance(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ContractInfoResponse{
		Success:         true,
		ContractAddress: s.contractAddress(),
		Network:         s.network(),
		Data: ContractData{
			Name:    displayName(name),
			Balance: newBalanceView(balance),
		},
	}, nil
}

func (s *HTTPServer) contractAddress() string {
	return utils.NormalizeAddress(s.descriptor.Address().Hex())
}

func (s *HTTPServer) network() string {
	return s.descriptor.Network().Name
}

func displayName(name string) string {
	if name == "" {
		return emptyName
	}
	return name
}

// Utility Methods

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError logs err once and writes the 500 failure envelope
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, message string, err error) {
	s.requestLogger(r).WithError(err).Error(message)
	s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Success: false, Error: err.Error()})
}
