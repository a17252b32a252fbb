package honeyguard

import (
	"crypto/subtle"
	"encoding/base64"
	"math/rand"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/oarkflow/log"
	"golang.org/x/crypto/bcrypt"
)

// Server exposes the decoy surfaces and the operator dashboard API on one
// fiber app. Every decoy request is analyzed; the dashboard sits behind basic
// auth.
type Server struct {
	app    *fiber.App
	engine *Engine
	cfg    Config
	logger log.Logger
}

func NewServer(engine *Engine, cfg Config, logger log.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(cors.New())

	s := &Server{app: app, engine: engine, cfg: cfg, logger: logger}
	s.routes()
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("honeypot listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)

	s.app.Post("/auth/login", s.handleLogin)
	s.app.Get("/auth/:provider", s.handleOAuth)

	api := s.app.Group("/api", s.basicAuth)
	api.Get("/alerts", s.handleAlerts)
	api.Post("/alerts/:id/resolve", s.handleResolveAlert)
	api.Get("/activity", s.handleActivity)
	api.Get("/stats", s.handleStats)
	api.Get("/threats/summary", s.handleThreatSummary)
	api.Get("/threats/live", s.handleThreatsLive)
	api.Get("/ips/:ip/attempts", s.handleIPAttempts)
	api.Post("/test-alert", s.handleTestAlert)
	api.Get("/metrics", s.handleMetrics)

	// Everything else is a decoy 404: record the probe, classify it.
	s.app.Use(s.handlePathProbe)
}

func (s *Server) clientIP(c *fiber.Ctx) string {
	if ip := c.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := c.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	return c.IP()
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// handleLogin is the primary decoy. It always rejects, after a jittered delay
// that mimics a real credential check.
func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		req = loginRequest{}
	}

	ev := Event{
		Type:       EventLoginAttempt,
		Identity:   req.Email,
		Secret:     req.Password,
		IP:         s.clientIP(c),
		ClientSig:  c.Get("User-Agent"),
		ObservedAt: time.Now(),
	}
	s.engine.Analyze(c.UserContext(), ev, true)

	time.Sleep(time.Duration(500+rand.Intn(1000)) * time.Millisecond)
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
}

func (s *Server) handleOAuth(c *fiber.Ctx) error {
	provider := c.Params("provider")
	ev := Event{
		Type:       EventOAuthAttempt,
		Identity:   c.Query("login_hint"),
		IP:         s.clientIP(c),
		ClientSig:  c.Get("User-Agent"),
		Provider:   provider,
		Payload:    c.OriginalURL(),
		ObservedAt: time.Now(),
	}
	s.engine.Analyze(c.UserContext(), ev, true)

	time.Sleep(time.Duration(300+rand.Intn(700)) * time.Millisecond)
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error": "Authentication provider temporarily unavailable",
	})
}

func (s *Server) handlePathProbe(c *fiber.Ctx) error {
	ev := Event{
		Type:       EventPathProbe,
		IP:         s.clientIP(c),
		ClientSig:  c.Get("User-Agent"),
		Payload:    c.OriginalURL(),
		ObservedAt: time.Now(),
	}
	s.engine.Analyze(c.UserContext(), ev, true)
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	health := s.engine.HealthCheck()
	status := fiber.StatusOK
	for _, v := range health {
		if v != "ok" {
			status = fiber.StatusServiceUnavailable
			break
		}
	}
	return c.Status(status).JSON(health)
}

// basicAuth protects the dashboard API. The password is checked against the
// configured bcrypt hash; an unconfigured dashboard rejects everything.
func (s *Server) basicAuth(c *fiber.Ctx) error {
	if s.cfg.Dashboard.Username == "" || s.cfg.Dashboard.PasswordHash == "" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Dashboard not configured"})
	}
	header := c.Get("Authorization")
	if !strings.HasPrefix(header, "Basic ") {
		c.Set("WWW-Authenticate", `Basic realm="honeyguard"`)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Dashboard.Username)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(s.cfg.Dashboard.PasswordHash), []byte(password)) == nil
	if !userOK || !passOK {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return c.Next()
}

func (s *Server) handleAlerts(c *fiber.Ctx) error {
	store := s.engine.Store()
	if store == nil {
		return c.JSON([]Alert{})
	}
	alerts, err := store.RecentAlerts(c.QueryInt("limit", 50))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(alerts)
}

func (s *Server) handleResolveAlert(c *fiber.Ctx) error {
	store := s.engine.Store()
	if store == nil {
		return fiber.NewError(fiber.StatusNotFound, "no store configured")
	}
	if err := store.ResolveAlert(c.Params("id")); err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return c.JSON(fiber.Map{"resolved": true})
}

func (s *Server) handleActivity(c *fiber.Ctx) error {
	store := s.engine.Store()
	if store == nil {
		return c.JSON([]ActivityRecord{})
	}
	records, err := store.RecentActivity(c.QueryInt("limit", 50))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(records)
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	store := s.engine.Store()
	if store == nil {
		return c.JSON(StoreStats{})
	}
	stats, err := store.Stats()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(stats)
}

func (s *Server) handleThreatSummary(c *fiber.Ctx) error {
	return c.JSON(s.engine.Ledger().Summary())
}

func (s *Server) handleThreatsLive(c *fiber.Ctx) error {
	return c.JSON(s.engine.Ledger().Snapshot())
}

func (s *Server) handleIPAttempts(c *fiber.Ctx) error {
	store := s.engine.Store()
	if store == nil {
		return c.JSON([]AttemptRecord{})
	}
	since := time.Duration(c.QueryInt("minutes", 60)) * time.Minute
	records, err := store.FailedAttempts(c.Params("ip"), KeyIP, since)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(records)
}

// handleTestAlert sends a synthetic alert through the real dispatch path so
// operators can verify channel credentials.
func (s *Server) handleTestAlert(c *fiber.Ctx) error {
	alert := &Alert{
		ID:          "test-" + time.Now().Format("20060102150405"),
		Title:       "Test Alert",
		Description: "Notification channel verification",
		Severity:    SeverityLow,
		ReasonCode:  "test",
		IP:          s.clientIP(c),
		CreatedAt:   time.Now(),
	}
	result := s.engine.Dispatcher().Dispatch(c.UserContext(), alert)
	if result.RateLimited {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Alert cooldown active"})
	}
	attempts := make([]fiber.Map, 0, len(result.Attempts))
	for _, a := range result.Attempts {
		entry := fiber.Map{"channel": a.Channel, "success": a.Success}
		if a.Err != nil {
			entry["error"] = a.Err.Error()
		}
		attempts = append(attempts, entry)
	}
	return c.JSON(fiber.Map{"dispatched": true, "attempts": attempts})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/plain; version=0.0.4")
	return c.SendString(s.engine.Metrics().ExportPrometheus())
}
