package routes

import (
	"net/http"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civicsync/controllers"
	"civicsync/middlewares"
)

// Handlers groups the controllers mounted on the router.
type Handlers struct {
	Auth       *controllers.AuthController
	Issues     *controllers.IssueController
	Admin      *controllers.AdminController
	Moderation *controllers.ModerationController
	Changes    *controllers.ChangesController
	Health     *controllers.HealthController
}

// Options holds the router settings that are not controllers.
type Options struct {
	JWTSecret     string
	IssueLimitKey string
	IssueDailyCap int
	ImageLimitKey string
	ImageDailyCap int
	// MaxImageBytes caps bodies of the routes that carry a photo.
	MaxImageBytes int64
	RateCounter   middlewares.Counter
	// Sentry enables panic reporting; sentry.Init must have run.
	Sentry   bool
	Gatherer prometheus.Gatherer
}

// CORS lets browser clients on any origin call the API.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"authorization", "x-client-info", "apikey", "content-type"},
		ExposeHeaders:   []string{"Content-Length", "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	})
}

// imageGuards bound the cost of anonymous calls that reach the model and
// the bucket.
func imageGuards(opts Options) []gin.HandlerFunc {
	guards := []gin.HandlerFunc{middlewares.OptionalAuth(opts.JWTSecret)}
	if opts.MaxImageBytes > 0 {
		guards = append(guards, middlewares.BodyLimit(opts.MaxImageBytes))
	}
	if opts.RateCounter != nil {
		guards = append(guards, middlewares.IssueRateLimiter(opts.RateCounter, opts.ImageLimitKey, opts.ImageDailyCap))
	}
	return guards
}

// SetupRouter builds the gin engine with every route group.
func SetupRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Sentry {
		r.Use(sentrygin.New(sentrygin.Options{
			Repanic:         true,
			WaitForDelivery: false,
			Timeout:         10 * time.Second,
		}))
	}
	r.Use(CORS())

	r.GET("/ping", h.Health.Ping)
	r.GET("/healthz", h.Health.Healthz)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(middlewares.Ginrus("API"))

	AuthRoutes(api, h.Auth, opts)
	IssueRoutes(api, h.Issues, h.Changes, opts)
	AdminRoutes(api, h.Admin, opts)
	ModerationRoutes(r, api, h.Moderation, opts)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return r
}
