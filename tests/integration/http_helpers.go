package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/handlers"
	middlewareCustom "github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/providers"
	"github.com/BradenHooton/sentinel/internal/routes"
	"github.com/BradenHooton/sentinel/internal/services"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	pkglogger "github.com/BradenHooton/sentinel/pkg/logger"
)

const testTokenSecret = "test-secret-32-characters-long-for-testing"

// StubProvider answers lookups from a fixed table and counts calls
type StubProvider struct {
	mu       sync.Mutex
	partials map[string]*providers.Partial
	calls    int
}

// NewStubProvider creates an empty stub provider
func NewStubProvider() *StubProvider {
	return &StubProvider{partials: make(map[string]*providers.Partial)}
}

// Set registers the answer for an address
func (p *StubProvider) Set(ip string, partial *providers.Partial) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.partials[ip] = partial
}

// Calls returns how many lookups reached the provider
func (p *StubProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *StubProvider) Name() string  { return providers.NameIPQualityScore }
func (p *StubProvider) Enabled() bool { return true }

func (p *StubProvider) Lookup(ctx context.Context, ip string) (*providers.Partial, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if partial, ok := p.partials[ip]; ok {
		return partial, nil
	}
	zero := 0
	return &providers.Partial{FraudScore: &zero}, nil
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Provider *StubProvider

	// Dependency references for inspection in tests
	Guard *services.BruteForceGuard
	Audit *services.AuditService
}

// NewTestServer initializes the full stack against a real database and a stub provider
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	repos := InitializeRepositories(db)
	clock := services.SystemClock()
	provider := NewStubProvider()

	auditService := services.NewAuditService(repos.Decisions, repos.Events, nil,
		pkglogger.NewSecurityAuditLogger(logger, "test"), logger,
		services.AuditConfig{QueueSize: 256, WriteTimeout: 5 * time.Second})

	guardConfig := services.DefaultGuardConfig()
	guardConfig.SweepInterval = 0
	guard := services.NewBruteForceGuard(guardConfig, clock, auditService, logger)

	intelService := services.NewIntelligenceService(repos.Intelligence, []providers.Provider{provider}, services.IntelligenceConfig{
		SuspiciousTTL:   time.Hour,
		CleanTTL:        24 * time.Hour,
		ProviderTimeout: 2 * time.Second,
		CacheSize:       1000,
		Precedence:      services.DefaultPrecedence,
	}, clock, logger)

	fraudScorer := services.NewFraudScorer(repos.Orders, clock, logger, "test")
	engine := services.NewDecisionEngine(intelService, guard, auditService, services.DecisionConfig{
		TrustedCountries:         []string{"US"},
		BlacklistBlockConfidence: 75,
	}, clock)

	ipConfig, _ := pkghttp.NewIPConfig(nil)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.RequestContext(ipConfig))
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(r, routes.Handlers{
		Intelligence: handlers.NewIntelligenceHandler(intelService, logger),
		Login:        handlers.NewLoginHandler(guard, clock.Now),
		Orders:       handlers.NewOrderHandler(fraudScorer, logger),
		Decisions:    handlers.NewDecisionHandler(engine, auditService, logger),
	}, routes.Options{
		Tokens:    auth.NewTokenValidator(testTokenSecret),
		IPConfig:  ipConfig,
		RateLimit: middlewareCustom.RateLimitConfig{RequestsPerMinute: 10000},
		Health:    db,
		Logger:    logger,
	})

	return &TestServer{
		Server:   httptest.NewServer(r),
		DB:       db,
		Provider: provider,
		Guard:    guard,
		Audit:    auditService,
	}
}

// Close shuts down the test server and drains the audit queue
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	ts.Guard.Close()
	ts.Audit.Close()
}

// ServiceToken signs a service token carrying every scope
func ServiceToken() (string, error) {
	claims := &models.ServiceClaims{
		Type:    models.TokenTypeService,
		Service: "integration-tests",
		Scopes:  []string{models.ScopeAll},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testTokenSecret))
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes a request carrying a full-scope service token
func (ts *TestServer) RequestWithAuth(method, path string, body interface{}) (*http.Response, error) {
	token, err := ServiceToken()
	if err != nil {
		return nil, err
	}
	return ts.Request(method, path, body, map[string]string{"Authorization": "Bearer " + token})
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
