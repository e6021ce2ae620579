package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pos-checkout/internal/cart"
	"pos-checkout/internal/service"
	"pos-checkout/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionHeader = "X-Session-ID"

// SessionStore keeps the per-session cart and serializes mutations of it
type SessionStore interface {
	LoadCart(ctx context.Context, sessionID string) (*cart.Cart, error)
	SaveCart(ctx context.Context, sessionID string, c *cart.Cart) error
	AcquireSessionLock(ctx context.Context, sessionID string, ttl time.Duration) (string, error)
	ReleaseSessionLock(ctx context.Context, sessionID, token string) error
	Ping(ctx context.Context) error
}

// cartOp mutates the session cart and returns the response body
type cartOp func(ctx context.Context, sessionID string, crt *cart.Cart) (int, interface{}, error)

func sessionID(c *gin.Context) (string, bool) {
	id := c.GetHeader(sessionHeader)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "missing " + sessionHeader + " header",
		})
		return "", false
	}
	return id, true
}

// withCart loads the session cart under the session lock, runs op and saves
// the cart when op succeeds
func (h *Handler) withCart(c *gin.Context, op cartOp) {
	h.runCartOp(c, op, true)
}

// withStoredCart is withCart for ops that write the session cart themselves,
// together with their other side effects
func (h *Handler) withStoredCart(c *gin.Context, op cartOp) {
	h.runCartOp(c, op, false)
}

func (h *Handler) runCartOp(c *gin.Context, op cartOp, save bool) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	token, err := h.sessions.AcquireSessionLock(ctx, sid, h.lockTTL)
	if err != nil {
		h.internalError(c, sid, "failed to lock session", err)
		return
	}
	if token == "" {
		c.JSON(http.StatusConflict, gin.H{
			"error": "another request for this session is in progress",
		})
		return
	}
	defer func() {
		if err := h.sessions.ReleaseSessionLock(context.Background(), sid, token); err != nil {
			util.SessionLogger(sid).Warn("Failed to release session lock", zap.Error(err))
		}
	}()

	crt, err := h.loadCart(ctx, sid)
	if err != nil {
		h.internalError(c, sid, "failed to load cart", err)
		return
	}

	status, body, err := op(ctx, sid, crt)
	if err != nil {
		h.respondError(c, sid, err)
		return
	}

	if save {
		if err := h.sessions.SaveCart(ctx, sid, crt); err != nil {
			h.internalError(c, sid, "failed to save cart", err)
			return
		}
	}
	c.JSON(status, body)
}

// loadCart returns the session cart. A stored cart that already became a
// sale is returned reset.
func (h *Handler) loadCart(ctx context.Context, sid string) (*cart.Cart, error) {
	crt, err := h.sessions.LoadCart(ctx, sid)
	if err != nil {
		return nil, err
	}
	if _, err := h.checkout.Reconcile(ctx, crt); err != nil {
		return nil, err
	}
	return crt, nil
}

// respondError maps service errors to HTTP responses
func (h *Handler) respondError(c *gin.Context, sid string, err error) {
	var (
		vErr     *service.ValidationError
		stockErr *service.StockError
		nfErr    *service.NotFoundError
		txErr    *service.TransactionError
	)

	switch {
	case errors.As(err, &vErr):
		body := gin.H{"error": vErr.Error(), "code": vErr.Code}
		if len(vErr.Missing) > 0 {
			body["missing"] = vErr.Missing
		}
		c.JSON(http.StatusUnprocessableEntity, body)

	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":     stockErr.Error(),
			"item_id":   stockErr.ItemID,
			"available": stockErr.Available,
			"remaining": stockErr.Remaining,
			"conflict":  stockErr.Conflict,
		})

	case errors.As(err, &nfErr):
		c.JSON(http.StatusNotFound, gin.H{"error": nfErr.Error()})

	case errors.As(err, &txErr):
		util.RecordSpanError(c.Request.Context(), err)
		util.SessionLogger(sid).Error("Sale transaction failed", zap.Error(txErr.Err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": txErr.Error()})

	default:
		h.internalError(c, sid, "internal error", err)
	}
}

func (h *Handler) internalError(c *gin.Context, sid, msg string, err error) {
	util.RecordSpanError(c.Request.Context(), err)
	util.SessionLogger(sid).Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
