package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"pos-checkout/internal/cart"
	"pos-checkout/internal/service"
	"pos-checkout/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

// Handler contains HTTP handlers
type Handler struct {
	carts    *service.CartService
	held     *service.HeldOrderQueue
	checkout *service.CheckoutService
	catalog  *service.CatalogService
	sessions SessionStore
	lockTTL  time.Duration
}

// NewHandler creates a new HTTP handler
func NewHandler(
	carts *service.CartService,
	held *service.HeldOrderQueue,
	checkout *service.CheckoutService,
	catalog *service.CatalogService,
	sessions SessionStore,
	lockTTL time.Duration,
) *Handler {
	return &Handler{
		carts:    carts,
		held:     held,
		checkout: checkout,
		catalog:  catalog,
		sessions: sessions,
		lockTTL:  lockTTL,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/catalog/items", h.listItems)
		v1.GET("/customers", h.searchCustomers)
		v1.GET("/payment-methods", h.listPaymentMethods)

		v1.GET("/cart", h.getCart)
		v1.DELETE("/cart", h.clearCart)
		v1.POST("/cart/items", h.addItem)
		v1.POST("/cart/selection", h.selectOption)
		v1.POST("/cart/selection/confirm", h.confirmSelection)
		v1.DELETE("/cart/selection", h.cancelSelection)
		v1.POST("/cart/lines/:key/increment", h.incrementLine)
		v1.POST("/cart/lines/:key/decrement", h.decrementLine)
		v1.PUT("/cart/lines/:key", h.updateLine)
		v1.DELETE("/cart/lines/:key", h.removeLine)
		v1.PUT("/cart/discount", h.setDiscount)
		v1.PUT("/cart/paid", h.setPaidAmount)
		v1.PUT("/cart/customer", h.setCustomer)
		v1.PUT("/cart/payment-method", h.setPaymentMethod)

		v1.GET("/held-orders", h.listHeldOrders)
		v1.POST("/held-orders", h.holdOrder)
		v1.POST("/held-orders/:index/restore", h.restoreHeldOrder)

		v1.POST("/checkout", h.checkoutCart)
		v1.GET("/sales/:id", h.getSale)
	}
}

type addItemRequest struct {
	ItemID int64 `json:"item_id" binding:"required"`
}

type selectOptionRequest struct {
	GroupID  int64 `json:"group_id" binding:"required"`
	OptionID int64 `json:"option_id" binding:"required"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

// idRequest selects an entity; a null id clears the selection
type idRequest struct {
	ID *int64 `json:"id"`
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

func lineKey(c *gin.Context) cart.LineKey {
	return cart.LineKey(c.Param("key"))
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports whether the session store is reachable
func (h *Handler) readinessCheck(c *gin.Context) {
	if err := h.sessions.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listItems(c *gin.Context) {
	items, err := h.catalog.ListItems(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.respondError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) searchCustomers(c *gin.Context) {
	customers, err := h.catalog.SearchCustomers(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.respondError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (h *Handler) listPaymentMethods(c *gin.Context) {
	methods, err := h.catalog.ListPaymentMethods(c.Request.Context())
	if err != nil {
		h.respondError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_methods": methods})
}

func (h *Handler) getCart(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	crt, err := h.loadCart(c.Request.Context(), sid)
	if err != nil {
		h.internalError(c, sid, "failed to load cart", err)
		return
	}
	c.JSON(http.StatusOK, service.NewCartView(crt))
}

func (h *Handler) clearCart(c *gin.Context) {
	h.withCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		h.carts.ClearCart(crt)
		return http.StatusOK, service.NewCartView(crt), nil
	})
}

func (h *Handler) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h.withCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		result, err := h.carts.AddToCart(ctx, crt, req.ItemID)
		if err != nil {
			return 0, nil, err
		}
		if result.Pending != nil {
			return http.StatusAccepted, gin.H{"pending": result.Pending, "cart": service.NewCartView(crt)}, nil
		}
		return http.StatusOK, gin.H{"line": result.Line, "cart": service.NewCartView(crt)}, nil
	})
}

func (h *Handler) selectOption(c *gin.Context) {
	var req selectOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h.withCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		pending, err := h.carts.SelectVariantOption(ctx, crt, req.GroupID, req.OptionID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, gin.H{"pending": pending}, nil
	})
}

func (h *Handler) confirmSelection(c *gin.Context) {
	h.withCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		line, err := h.carts.ConfirmVariantSelection(ctx, crt)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, gin.H{"line": line, "cart": service.NewCartView(crt)}, nil
	})
}

func (h *Handler) cancelSelection(c *gin.Context) {
	h.withCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		h.carts.CancelVariantSelection(crt)
		return http.StatusOK, service.NewCartView(crt), nil
	})
}

func (h *Handler) incrementLine(c *gin.Context) {
	key := lineKey(c)
	h.withCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		if _, err := h.carts.IncrementQuantity(ctx, crt, key); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, service.NewCartView(crt), nil
	})
}

func (h *Handler) decrementLine(c *gin.Context) {
	key := lineKey(c)
	h.withCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		if err := h.carts.DecrementQuantity(crt, key); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, service.NewCartView(crt), nil
	})
}

func (h *Handler) updateLine(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	key := lineKey(c)
	h.withCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		adj, err := h.carts.UpdateQuantity(ctx, crt, key, *req.Quantity)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, gin.H{"adjustment": adj, "cart": service.NewCartView(crt)}, nil
	})
}

func (h *Handler) removeLine(c *gin.Context) {
	key := lineKey(c)
	h.withCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		if err := h.carts.RemoveLine(crt, key); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, service.NewCartView(crt), nil
	})
}

func (h *Handler) setDiscount(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h.withCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		h.carts.SetDiscount(crt, req.Amount)
		return http.StatusOK, service.NewCartView(crt), nil
	})
}

func (h *Handler) setPaidAmount(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h.withCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		h.carts.SetPaidAmount(crt, req.Amount)
		return http.StatusOK, service.NewCartView(crt), nil
	})
}

func (h *Handler) setCustomer(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h.withCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		if err := h.carts.SetCustomer(ctx, crt, req.ID); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, service.NewCartView(crt), nil
	})
}

func (h *Handler) setPaymentMethod(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h.withCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		if err := h.carts.SetPaymentMethod(ctx, crt, req.ID); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, service.NewCartView(crt), nil
	})
}

func (h *Handler) listHeldOrders(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	orders, err := h.held.List(c.Request.Context(), sid)
	if err != nil {
		h.respondError(c, sid, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"held_orders": orders})
}

func (h *Handler) holdOrder(c *gin.Context) {
	h.withStoredCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		order, err := h.held.Hold(ctx, sid, crt)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, gin.H{"held_order": order, "cart": service.NewCartView(crt)}, nil
	})
}

func (h *Handler) restoreHeldOrder(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid held order index",
		})
		return
	}

	h.withStoredCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		if _, err := h.held.Restore(ctx, sid, index, crt); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, service.NewCartView(crt), nil
	})
}

// checkoutKey scopes a client idempotency key to its session
func checkoutKey(sid, requested string) string {
	if requested == "" {
		return ""
	}
	return sid + ":" + requested
}

func (h *Handler) checkoutCart(c *gin.Context) {
	requested := c.GetHeader(idempotencyHeader)
	h.withStoredCart(c, func(ctx context.Context, sid string, crt *cart.Cart) (int, interface{}, error) {
		save := func(ctx context.Context, crt *cart.Cart) error {
			return h.sessions.SaveCart(ctx, sid, crt)
		}

		result, err := h.checkout.CheckoutSession(ctx, crt, checkoutKey(sid, requested), save)
		if err != nil {
			return 0, nil, err
		}

		// the stored cart keeps its checkout key and is reset on next load
		if err := save(ctx, crt); err != nil {
			util.SessionLogger(sid).Warn("Failed to save cart after checkout",
				zap.Int64("sale_id", result.Sale.ID),
				zap.Error(err))
		}

		if result.Replayed {
			return http.StatusOK, result, nil
		}
		return http.StatusCreated, result, nil
	})
}

// getSale handles get sale by ID
func (h *Handler) getSale(c *gin.Context) {
	saleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid sale ID",
		})
		return
	}

	sale, lines, err := h.checkout.GetSale(c.Request.Context(), saleID)
	if err != nil {
		h.respondError(c, "", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sale":  sale,
		"lines": lines,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
