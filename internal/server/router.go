// Package server exposes the broker pipelines over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/broker"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/directory"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	subjectContextKey    = "identity_broker_subject"
	requestTagContextKey = "identity_broker_request_tag"

	// RequestTagHeader carries the request tag echoed on every response.
	RequestTagHeader = "X-Request-Tag"
)

var (
	errMissingAuthenticator = errors.New("server: authenticator dependency required")
	errMissingSessions      = errors.New("server: session resolver dependency required")
	errMissingPeople        = errors.New("server: people directory dependency required")
	errMissingLoginURL      = errors.New("server: login url required")
	errMissingLogoutURL     = errors.New("server: logout url required")
)

// Authenticator exchanges provider tokens for session tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (broker.Login, error)
}

// SessionResolver resolves session tokens.
type SessionResolver interface {
	Authorize(authorizationHeader string) (string, error)
	CurrentUser(ctx context.Context, authorizationHeader string) (broker.CurrentUser, error)
}

// PeopleDirectory serves authenticated people lookups.
type PeopleDirectory interface {
	Editors(ctx context.Context, role string) ([]directory.EditorAlias, error)
	Person(ctx context.Context, id string) (directory.Person, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Authenticator Authenticator
	Sessions      SessionResolver
	People        PeopleDirectory
	LoginURL      string
	LogoutURL     string
	Gatherer      prometheus.Gatherer
	Logger        *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the broker routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Authenticator == nil:
		return nil, errMissingAuthenticator
	case deps.Sessions == nil:
		return nil, errMissingSessions
	case deps.People == nil:
		return nil, errMissingPeople
	case strings.TrimSpace(deps.LoginURL) == "":
		return nil, errMissingLoginURL
	case strings.TrimSpace(deps.LogoutURL) == "":
		return nil, errMissingLogoutURL
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(tagRequest())
	router.Use(accessLog(logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		authenticator: deps.Authenticator,
		sessions:      deps.Sessions,
		people:        deps.People,
		loginURL:      deps.LoginURL,
		logoutURL:     deps.LogoutURL,
		logger:        logger,
	}

	router.GET("/health", handler.handleHealth)
	router.GET("/auth-login", handler.handleLoginProxy)
	router.GET("/auth-logout", handler.handleLogoutProxy)
	router.GET("/authenticate", handler.handleAuthenticate)
	router.GET("/authenticate/:token", handler.handleAuthenticate)
	router.GET("/current-user", handler.handleCurrentUser)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/editors", handler.handleEditors)
	protected.GET("/people/:id", handler.handlePerson)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", RequestTagHeader},
		ExposeHeaders:    []string{RequestTagHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func tagRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		tag := strings.TrimSpace(c.GetHeader(RequestTagHeader))
		if tag == "" {
			tag = uuid.NewString()
		}
		c.Set(requestTagContextKey, tag)
		c.Header(RequestTagHeader, tag)
		c.Next()
	}
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Info("request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
			zap.String("request_tag", c.GetString(requestTagContextKey)),
		)
	}
}

type httpHandler struct {
	authenticator Authenticator
	sessions      SessionResolver
	people        PeopleDirectory
	loginURL      string
	logoutURL     string
	logger        *zap.Logger
}

type errorPayload struct {
	OK  bool   `json:"ok"`
	Msg string `json:"msg"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleLoginProxy(c *gin.Context) {
	c.Redirect(http.StatusMovedPermanently, h.loginURL)
}

func (h *httpHandler) handleLogoutProxy(c *gin.Context) {
	c.Redirect(http.StatusMovedPermanently, h.logoutURL)
}

func (h *httpHandler) handleAuthenticate(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = c.Param("token")
	}

	login, err := h.authenticator.Authenticate(c.Request.Context(), token)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Redirect(http.StatusFound, login.RedirectURL)
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	current, err := h.sessions.CurrentUser(c.Request.Context(), c.GetHeader("Authorization"))
	if err != nil {
		// Every session failure is a 401; the message still names the cause.
		status, msg := errorResponse(err)
		h.logServerFault(c, status, err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{Msg: msg})
		return
	}
	c.JSON(http.StatusOK, current)
}

func (h *httpHandler) handleEditors(c *gin.Context) {
	role := c.Query("role")
	editors, err := h.people.Editors(c.Request.Context(), role)
	if err != nil {
		if errors.Is(err, broker.ErrInvalidRole) {
			c.AbortWithStatusJSON(http.StatusNotFound, errorPayload{
				Msg: fmt.Sprintf("Invalid role %s", directory.NormalizeRole(role)),
			})
			return
		}
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, editors)
}

func (h *httpHandler) handlePerson(c *gin.Context) {
	person, err := h.people.Person(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, person)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	subject, err := h.sessions.Authorize(c.GetHeader("Authorization"))
	if err != nil {
		if errors.Is(err, broker.ErrInvalidToken) {
			h.logger.Info("session authorization failed", zap.Error(err))
		} else {
			h.logger.Warn("session authorization failed", zap.Error(err))
		}
		h.abortWithError(c, err)
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}

func (h *httpHandler) abortWithError(c *gin.Context, err error) {
	status, msg := errorResponse(err)
	h.logServerFault(c, status, err)
	c.AbortWithStatusJSON(status, errorPayload{Msg: msg})
}

func (h *httpHandler) logServerFault(c *gin.Context, status int, err error) {
	if status < http.StatusInternalServerError {
		return
	}
	h.logger.Error("request failed",
		zap.String("path", c.Request.URL.Path),
		zap.String("request_tag", c.GetString(requestTagContextKey)),
		zap.Error(err),
	)
}

func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, broker.ErrMissingToken):
		return http.StatusUnauthorized, "No token"
	case errors.Is(err, broker.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, broker.ErrUserNotFound):
		return http.StatusUnauthorized, "User not found"
	case errors.Is(err, broker.ErrIdentityNotFound):
		return http.StatusUnauthorized, "Identity not found"
	case errors.Is(err, broker.ErrProfileNotFound):
		return http.StatusUnauthorized, "Profile not found"
	case errors.Is(err, broker.ErrPersonNotFound):
		return http.StatusNotFound, "Person not found"
	case errors.Is(err, broker.ErrInvalidRole):
		return http.StatusNotFound, "Invalid role"
	case errors.Is(err, broker.ErrDownstreamUnavailable):
		return http.StatusServiceUnavailable, "Service unavailable"
	case errors.Is(err, broker.ErrStorage):
		return http.StatusInternalServerError, "Storage error"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
