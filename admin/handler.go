package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"svcguard/circuitbreaker"
	"svcguard/client"
	"svcguard/loadbalance"
	"svcguard/middleware"
	"svcguard/registry"
)

// Response is the envelope of every JSON answer.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ServiceRequest registers one instance. Timeout is a Go duration string.
type ServiceRequest struct {
	Name            string `json:"name"`
	InstanceID      string `json:"instance_id"`
	BaseURL         string `json:"base_url"`
	HealthCheckPath string `json:"health_check_path"`
	Timeout         string `json:"timeout"`
	MaxRetries      int    `json:"max_retries"`
	Weight          int    `json:"weight"`
}

func (r ServiceRequest) config() (registry.ServiceConfig, error) {
	cfg := registry.ServiceConfig{
		Name:            r.Name,
		InstanceID:      r.InstanceID,
		BaseURL:         r.BaseURL,
		HealthCheckPath: r.HealthCheckPath,
		MaxRetries:      r.MaxRetries,
		Weight:          r.Weight,
	}
	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return cfg, err
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// InstanceView is one registered instance as the API shows it.
type InstanceView struct {
	Name            string                `json:"name"`
	InstanceID      string                `json:"instance_id"`
	BaseURL         string                `json:"base_url"`
	HealthCheckPath string                `json:"health_check_path"`
	Timeout         string                `json:"timeout"`
	MaxRetries      int                   `json:"max_retries"`
	Weight          int                   `json:"weight"`
	Status          registry.HealthStatus `json:"status"`
	LastCheckedAt   time.Time             `json:"last_checked_at"`
}

func newInstanceView(inst registry.Instance) InstanceView {
	return InstanceView{
		Name:            inst.Config.Name,
		InstanceID:      inst.Config.InstanceID,
		BaseURL:         inst.Config.BaseURL,
		HealthCheckPath: inst.Config.HealthCheckPath,
		Timeout:         inst.Config.Timeout.String(),
		MaxRetries:      inst.Config.MaxRetries,
		Weight:          inst.Config.Weight,
		Status:          inst.Health.Status,
		LastCheckedAt:   inst.Health.LastCheckedAt,
	}
}

// CallRequest sends one request through the client, for operators poking at
// a service by hand.
type CallRequest struct {
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
	Strategy string `json:"strategy"`
	HashKey  string `json:"hash_key"`
	Body     string `json:"body"`
}

type CallView struct {
	Status    int       `json:"status"`
	Instance  string    `json:"instance"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

type Handler struct {
	client          *client.Client
	defaultStrategy loadbalance.Strategy
}

func NewHandler(c *client.Client, defaultStrategy loadbalance.Strategy) *Handler {
	return &Handler{client: c, defaultStrategy: defaultStrategy}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/stats", h.Stats)
	e.GET("/breakers", h.Breakers)
	e.POST("/health-check", h.HealthCheckAll)

	services := e.Group("/services")
	services.GET("", h.ListServices)
	services.POST("", h.RegisterService)
	services.DELETE("/:name", h.UnregisterService)
	services.DELETE("/:name/instances/:instance", h.UnregisterInstance)
	services.GET("/:name/health", h.ServiceHealth)
	services.POST("/:name/call", h.Call)
}

// Health reports the admin process itself as up.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "ok"})
}

func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "success", Data: h.client.GetStats()})
}

func (h *Handler) Breakers(c echo.Context) error {
	return c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    map[string]any{"breakers": h.client.Breakers().Snapshots()},
	})
}

func (h *Handler) HealthCheckAll(c echo.Context) error {
	status := h.client.HealthCheckAll(c.Request().Context())
	return c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "success", Data: status})
}

func (h *Handler) ListServices(c echo.Context) error {
	all := h.client.Registry().GetAll()
	views := make([]InstanceView, 0, len(all))
	for _, inst := range all {
		views = append(views, newInstanceView(inst))
	}
	return c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    map[string]any{"services": views},
	})
}

func (h *Handler) RegisterService(c echo.Context) error {
	var req ServiceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	cfg, err := req.config()
	if err != nil {
		return badRequest(c, "invalid timeout: "+err.Error())
	}
	if err := h.client.RegisterService(cfg); err != nil {
		if errors.Is(err, registry.ErrInvalidConfig) {
			return badRequest(c, err.Error())
		}
		return c.JSON(http.StatusInternalServerError, Response{Code: http.StatusInternalServerError, Message: err.Error()})
	}
	return c.JSON(http.StatusCreated, Response{Code: http.StatusCreated, Message: "registered"})
}

func (h *Handler) UnregisterService(c echo.Context) error {
	name := c.Param("name")
	if !h.client.UnregisterService(name) {
		return notFound(c, "service not found: "+name)
	}
	return c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "unregistered"})
}

func (h *Handler) UnregisterInstance(c echo.Context) error {
	name, instance := c.Param("name"), c.Param("instance")
	if !h.client.Registry().UnregisterInstance(name, instance) {
		return notFound(c, "instance not found: "+name+"/"+instance)
	}
	return c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "unregistered"})
}

func (h *Handler) ServiceHealth(c echo.Context) error {
	name := c.Param("name")
	var views []InstanceView
	for _, inst := range h.client.Registry().GetAll() {
		if inst.Config.Name == name {
			views = append(views, newInstanceView(inst))
		}
	}
	if len(views) == 0 {
		return notFound(c, "service not found: "+name)
	}

	data := map[string]any{
		"healthy":   h.client.Registry().IsHealthy(name),
		"instances": views,
	}
	if b, ok := h.client.Breakers().Get(name); ok {
		data["breaker"] = b.Snapshot()
	}
	return c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "success", Data: data})
}

func (h *Handler) Call(c echo.Context) error {
	name := c.Param("name")
	var req CallRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	strategy := h.defaultStrategy
	if req.Strategy != "" {
		s, err := loadbalance.ParseStrategy(req.Strategy)
		if err != nil {
			return badRequest(c, err.Error())
		}
		strategy = s
	}

	opts := client.CallOptions[[]byte]{Method: req.Method, HashKey: req.HashKey}
	if req.Body != "" {
		opts.Body = []byte(req.Body)
	}
	if id := c.Request().Header.Get(middleware.RequestIDHeader); id != "" {
		opts.Header = http.Header{middleware.RequestIDHeader: {id}}
	}

	res, err := h.client.Do(c.Request().Context(), name, req.Endpoint, opts, strategy)
	if err != nil {
		status := statusFor(err)
		return c.JSON(status, Response{Code: status, Message: err.Error()})
	}
	return c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data: CallView{
			Status:    res.Status,
			Instance:  res.Instance,
			Body:      string(res.Data),
			Timestamp: res.Timestamp,
		},
	})
}

// statusFor maps a call error to the admin API status. Upstream and
// transport failures are 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, client.ErrServiceUnavailable), errors.Is(err, circuitbreaker.ErrOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, client.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, middleware.ErrRequestTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, Response{Code: http.StatusBadRequest, Message: msg})
}

func notFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, Response{Code: http.StatusNotFound, Message: msg})
}
