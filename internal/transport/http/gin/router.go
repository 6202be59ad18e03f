package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/wiredberlin/boxoffice/internal/auth"
	redisrepo "github.com/wiredberlin/boxoffice/internal/repository/redis"
	"github.com/wiredberlin/boxoffice/internal/service"
	"github.com/wiredberlin/boxoffice/internal/service/admin"
	"github.com/wiredberlin/boxoffice/internal/service/calendar"
	"github.com/wiredberlin/boxoffice/internal/service/catalog"
	"github.com/wiredberlin/boxoffice/internal/service/checkin"
	"github.com/wiredberlin/boxoffice/internal/service/checkout"
	"github.com/wiredberlin/boxoffice/internal/service/content"
	"github.com/wiredberlin/boxoffice/internal/service/newsletter"
	"github.com/wiredberlin/boxoffice/internal/service/orders"
	"github.com/wiredberlin/boxoffice/internal/service/payments"
	"github.com/wiredberlin/boxoffice/internal/upstream"
)

// Options carries the transport-level collaborators of the router.
type Options struct {
	Idempotency *redisrepo.IdempotencyStore
	// Auth nil makes every caller the mock admin.
	Auth              *auth.Authenticator
	CheckoutLimiter   Limiter
	NewsletterLimiter Limiter
	CORSOrigins       []string
	// Breakers feeds the upstream section of /healthz. Optional.
	Breakers BreakerStates
}

// BreakerStates is satisfied by *upstream.Client.
type BreakerStates interface {
	States() map[string]string
}

const maxWebhookBody = 1 << 20

func NewRouter(
	svcs *service.Services,
	opts Options,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		MetricsMiddleware(),
		CORS(opts.CORSOrigins),
		SessionMiddleware(opts.Auth, logger),
	)
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", handleHealth(opts.Breakers))

	api := r.Group("/api")

	tickets := api.Group("/tickets")
	{
		tickets.GET("/events/:slug/products", handleListProducts(svcs))
		tickets.POST("/checkout", RateLimit(opts.CheckoutLimiter, logger), handleCheckout(svcs, opts.Idempotency))
		tickets.GET("/orders/:id", handleGetOrder(svcs))
		tickets.POST("/validate", handleValidate(svcs))
		tickets.POST("/voucher", handleCheckVoucher(svcs))
	}

	api.GET("/events/:slug/calendar.ics", handleCalendar(svcs))
	api.POST("/newsletter", RateLimit(opts.NewsletterLimiter, logger), handleNewsletter(svcs))

	hooks := api.Group("/webhooks")
	{
		hooks.POST("/stripe", handlePaymentWebhook(svcs))
		hooks.POST("/cms", handleContentWebhook(svcs))
		hooks.POST("/pretix", handlePlatformWebhook(svcs))
	}

	adm := api.Group("/admin")
	{
		adm.GET("/checkins", handleListCheckIns(svcs))

		docs := adm.Group("", RequireRole(auth.RoleAdmin))
		docs.POST("/artists", handleCreateArtist(svcs))
		docs.PUT("/artists/:id", handleUpdateArtist(svcs))
		docs.DELETE("/artists/:id", handleDeleteArtist(svcs))
		docs.POST("/events", handleCreateEvent(svcs))
		docs.PUT("/events/:id", handleUpdateEvent(svcs))
		docs.DELETE("/events/:id", handleDeleteEvent(svcs))
		docs.GET("/events/:slug/orders", handleOrderCounts(svcs))
	}

	return r
}

// --- Tickets ---

// @Summary  List sellable products of an event
// @Param    slug    path   string  true   "Event slug"
// @Param    locale  query  string  false  "Locale for product names"
// @Success  200  {object}  catalog.Catalog
// @Failure  404  {object}  ErrorResponse
// @Failure  502  {object}  ErrorResponse
// @Router   /api/tickets/events/{slug}/products [get]
func handleListProducts(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		cat, err := svcs.Catalog.Products(c.Request.Context(), c.Param("slug"), c.Query("locale"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, cat, "public, max-age=15")
	}
}

// @Summary  Start checkout (idempotent)
// @Param    req  body  CheckoutRequest  true  "cart"
// @Header   201  {string}  Idempotency-Key  "echo"
// @Success  201  {object}  CheckoutResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "sold out / idem in progress"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Failure  502  {object}  ErrorResponse
// @Router   /api/tickets/checkout [post]
func handleCheckout(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemCheckout(idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				replay(c, idemKey, payload)
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					replay(c, idemKey, payload)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		res, err := svcs.Checkout.Checkout(c.Request.Context(), req.toService())
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := CheckoutResponse{OrderID: res.OrderID.String(), URL: res.URL}

		if idemStorageKey != "" {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func replay(c *gin.Context, idemKey, payload string) {
	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, contentTypeJSON, []byte(payload))
}

// @Summary  Get order status
// @Param    id  path  string  true  "Order ID (uuid)"
// @Success  200  {object}  OrderResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /api/tickets/orders/{id} [get]
func handleGetOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid order id")
			return
		}

		o, err := svcs.Orders.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, orderResponse(o))
	}
}

// @Summary  Validate a ticket at the door
// @Param    req  body  ValidateRequest  true  "scanned code"
// @Success  200  {object}  checkin.Result
// @Failure  400  {object}  ErrorResponse
// @Failure  401  {object}  ErrorResponse
// @Failure  403  {object}  ErrorResponse
// @Failure  429  {object}  ErrorResponse
// @Router   /api/tickets/validate [post]
func handleValidate(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.CheckIn.Validate(c.Request.Context(), checkin.Request{
			Code:      req.Code,
			EventSlug: req.EventSlug,
			Caller:    identity(c),
			ClientIP:  c.ClientIP(),
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Check a voucher code
// @Param    req  body  VoucherRequest  true  "voucher"
// @Success  200  {object}  catalog.VoucherResult
// @Failure  400  {object}  ErrorResponse
// @Router   /api/tickets/voucher [post]
func handleCheckVoucher(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VoucherRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Catalog.CheckVoucher(c.Request.Context(), req.EventSlug, req.Code)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

// --- Public site ---

// @Summary  Download an event as iCalendar
// @Param    slug    path   string  true   "Event slug"
// @Param    locale  query  string  false  "Locale of the event link"
// @Success  200  {string}  string  "text/calendar"
// @Failure  404  {object}  ErrorResponse
// @Router   /api/events/{slug}/calendar.ics [get]
func handleCalendar(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		locale := c.DefaultQuery("locale", "de")

		body, ev, err := svcs.Calendar.EventICS(c.Request.Context(), c.Param("slug"), locale)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Content-Disposition", `attachment; filename="`+ev.Slug+`.ics"`)
		writeWithCache(c, http.StatusOK, contentTypeCalendar, []byte(body), "public, max-age=300")
	}
}

// @Summary  Subscribe to the newsletter
// @Param    req  body  NewsletterRequest  true  "subscriber"
// @Success  200  {object}  NewsletterResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  429  {object}  ErrorResponse
// @Router   /api/newsletter [post]
func handleNewsletter(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req NewsletterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		created, err := svcs.Newsletter.Subscribe(c.Request.Context(), req.Email, req.Locale, req.Source)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, NewsletterResponse{Subscribed: true, Created: created})
	}
}

// --- Webhooks ---

// @Summary  Payment processor webhook
// @Success  200  {object}  WebhookResponse
// @Failure  401  {object}  ErrorResponse
// @Failure  502  {object}  ErrorResponse
// @Router   /api/webhooks/stripe [post]
func handlePaymentWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := readBody(c)
		if !ok {
			return
		}

		out, err := svcs.Payments.HandleWebhook(c.Request.Context(), body, c.Request.Header)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, WebhookResponse{Received: true, Outcome: string(out)})
	}
}

// @Summary  CMS publish webhook
// @Success  200  {object}  content.Result
// @Failure  401  {object}  ErrorResponse
// @Router   /api/webhooks/cms [post]
func handleContentWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := readBody(c)
		if !ok {
			return
		}

		sig := c.GetHeader("sanity-webhook-signature")
		if sig == "" {
			sig = c.GetHeader("X-Signature")
		}

		res, err := svcs.Content.HandleWebhook(c.Request.Context(), body, sig)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Ticketing platform webhook
// @Success  200  {object}  WebhookResponse
// @Failure  401  {object}  ErrorResponse
// @Router   /api/webhooks/pretix [post]
func handlePlatformWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := readBody(c)
		if !ok {
			return
		}

		n, err := svcs.Catalog.HandlePlatformWebhook(c.Request.Context(), body, c.GetHeader("X-Pretix-Signature"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, WebhookResponse{Received: true, Outcome: n.Action})
	}
}

func readBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)

	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "unreadable body")
		return nil, false
	}

	return body, true
}

// --- Admin ---

// @Summary  Recent door scans
// @Param    eventSlug  query  string  true   "Event slug"
// @Param    limit      query  int     false  "page size"
// @Success  200  {array}  domain.CheckInLog
// @Failure  401  {object}  ErrorResponse
// @Failure  403  {object}  ErrorResponse
// @Router   /api/admin/checkins [get]
func handleListCheckIns(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 50)

		logs, err := svcs.CheckIn.Recent(c.Request.Context(), identity(c), c.Query("eventSlug"), limit)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, logs)
	}
}

// @Summary  Order counts by status
// @Param    slug  path  string  true  "Event slug"
// @Success  200  {object}  map[string]int64
// @Router   /api/admin/events/{slug}/orders [get]
func handleOrderCounts(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := svcs.Orders.Counts(c.Request.Context(), c.Param("slug"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, counts)
	}
}

// @Summary  Create artist
// @Param    req  body  admin.ArtistInput  true  "artist"
// @Success  201  {object}  cms.Document
// @Failure  400  {object}  ErrorResponse
// @Router   /api/admin/artists [post]
func handleCreateArtist(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req admin.ArtistInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		doc, err := svcs.Admin.CreateArtist(c.Request.Context(), req)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, doc)
	}
}

// @Summary  Update artist
// @Param    id   path  string             true  "Document ID"
// @Param    req  body  admin.ArtistInput  true  "changed fields"
// @Success  200  {object}  cms.Document
// @Router   /api/admin/artists/{id} [put]
func handleUpdateArtist(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req admin.ArtistInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		doc, err := svcs.Admin.UpdateArtist(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, doc)
	}
}

// @Summary  Delete artist
// @Param    id  path  string  true  "Document ID"
// @Success  200  {object}  cms.Document
// @Router   /api/admin/artists/{id} [delete]
func handleDeleteArtist(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := svcs.Admin.DeleteArtist(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, doc)
	}
}

// @Summary  Create event
// @Param    req  body  admin.EventInput  true  "event"
// @Success  201  {object}  cms.Document
// @Failure  400  {object}  ErrorResponse
// @Router   /api/admin/events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req admin.EventInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		doc, err := svcs.Admin.CreateEvent(c.Request.Context(), req)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, doc)
	}
}

// @Summary  Update event
// @Param    id   path  string            true  "Document ID"
// @Param    req  body  admin.EventInput  true  "changed fields"
// @Success  200  {object}  cms.Document
// @Router   /api/admin/events/{id} [put]
func handleUpdateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req admin.EventInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		doc, err := svcs.Admin.UpdateEvent(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, doc)
	}
}

// @Summary  Delete event
// @Param    id  path  string  true  "Document ID"
// @Success  200  {object}  cms.Document
// @Router   /api/admin/events/{id} [delete]
func handleDeleteEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := svcs.Admin.DeleteEvent(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, doc)
	}
}

// --- Helpers ---

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// respondErr maps service errors to status codes. Upstream and internal
// details stay in the log.
func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var rl *checkin.RateLimitedError

	switch {
	// validation
	case errors.Is(err, checkout.ErrInvalidCart),
		errors.Is(err, checkout.ErrUnknownProduct),
		errors.Is(err, checkout.ErrProductInactive),
		errors.Is(err, checkout.ErrProductUnpriced),
		errors.Is(err, checkout.ErrQuantityLimit):
		badRequest(c, rootMessage(err))
	case errors.Is(err, checkin.ErrInvalidRequest),
		errors.Is(err, catalog.ErrInvalidVoucher),
		errors.Is(err, newsletter.ErrInvalidEmail),
		errors.Is(err, admin.ErrInvalidInput),
		errors.Is(err, orders.ErrEmptyOrder):
		badRequest(c, rootMessage(err))
	case errors.Is(err, catalog.ErrInvalidPayload),
		errors.Is(err, content.ErrInvalidPayload),
		errors.Is(err, payments.ErrInvalidPayload):
		// parser detail stays in the log
		_ = c.Error(err)
		badRequest(c, "invalid payload")

	// auth
	case errors.Is(err, checkin.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
	case errors.Is(err, checkin.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "insufficient role"})
	case errors.Is(err, payments.ErrInvalidSignature),
		errors.Is(err, content.ErrInvalidSignature),
		errors.Is(err, catalog.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})

	// not found
	case errors.Is(err, catalog.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, catalog.ErrNotTicketed):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event has no ticket shop"})
	case errors.Is(err, calendar.ErrNoSchedule):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event has no start time yet"})
	case errors.Is(err, orders.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not found"})
	case errors.Is(err, admin.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "document not found"})

	// conflicts
	case errors.Is(err, checkout.ErrSoldOut):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Not enough tickets left."})
	case errors.Is(err, orders.ErrOrderConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "order conflict"})

	case errors.As(err, &rl):
		tooManyRequests(c, rl.RetryAfter)

	// upstream
	case errors.Is(err, checkout.ErrUpstream),
		errors.Is(err, catalog.ErrUpstream),
		errors.Is(err, payments.ErrUpstream),
		errors.Is(err, admin.ErrUpstream),
		errors.Is(err, upstream.ErrUnavailable):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "upstream service unavailable, please try again"})

	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// rootMessage strips the op chain, leaving the sentinel and its detail.
func rootMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, "service."); i >= 0 {
		if j := strings.Index(msg[i:], ": "); j >= 0 {
			return msg[i+j+2:]
		}
	}
	return msg
}

// handleHealth always answers 200. An open upstream breaker marks the
// service degraded, since mock fallbacks and cached reads keep serving.
func handleHealth(breakers BreakerStates) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		upstreams := map[string]string{}

		if breakers != nil {
			upstreams = breakers.States()
		}

		for _, st := range upstreams {
			if st != "closed" {
				status = "degraded"
				break
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": status, "upstreams": upstreams})
	}
}
