package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orders    *service.OrderService
	locks     *service.LockService
	catalog   *service.CatalogService
	redis     *redisclient.Client
	uploadDir string
}

// NewHandler creates a new HTTP handler
func NewHandler(orders *service.OrderService, locks *service.LockService, catalog *service.CatalogService, redis *redisclient.Client, uploadDir string) *Handler {
	return &Handler{
		orders:    orders,
		locks:     locks,
		catalog:   catalog,
		redis:     redis,
		uploadDir: uploadDir,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(sessionMiddleware(h.redis))
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.PUT("/orders/:id/status", adminOnly(), h.updateOrderStatus)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/archive", h.archiveOrder)
		v1.POST("/orders/:id/unarchive", h.unarchiveOrder)
		v1.POST("/orders/:id/restore", adminOnly(), h.restoreOrder)
		v1.POST("/orders/:id/delete", adminOnly(), h.deleteOrder)
		v1.POST("/orders/:id/payment-proof", h.uploadPaymentProof)

		v1.GET("/products", h.listProducts)
		v1.POST("/products", adminOnly(), h.createProduct)
		v1.PUT("/products/:id", adminOnly(), h.editProduct)
		v1.POST("/products/:id/archive", adminOnly(), h.archiveProduct)
		v1.POST("/products/:id/unarchive", adminOnly(), h.unarchiveProduct)
		v1.POST("/products/:id/lock", adminOnly(), h.lockProduct)
		v1.POST("/products/:id/unlock", adminOnly(), h.unlockProduct)

		v1.GET("/reports/sales", adminOnly(), h.salesReport)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Unix()})
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid id"})
		return 0, false
	}
	return id, true
}

// respondError maps domain errors to HTTP responses. Lock conflicts carry the
// holder identity and expiry so the client can show who holds the lock.
func respondError(c *gin.Context, err error) {
	var conflict *models.LockConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusLocked, gin.H{
			"success":     false,
			"message":     "Product is currently being edited",
			"locked_by":   conflict.HolderID,
			"locked_by_name": conflict.HolderName,
			"lock_expiry": conflict.Expiry,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized),
		errors.Is(err, models.ErrNotLockHolder):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrAlreadyTerminal),
		errors.Is(err, models.ErrNoOpTransition),
		errors.Is(err, models.ErrBackwardTransition),
		errors.Is(err, models.ErrUnknownStatus),
		errors.Is(err, models.ErrNotArchivable),
		errors.Is(err, models.ErrAlreadyArchived),
		errors.Is(err, models.ErrNotArchived),
		errors.Is(err, models.ErrNotCancellable),
		errors.Is(err, models.ErrAlreadyCancelled),
		errors.Is(err, models.ErrNotCancelled),
		errors.Is(err, models.ErrNotLocked):
		status = http.StatusBadRequest
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	c.JSON(status, gin.H{"success": false, "message": message})
}

type createOrderRequest struct {
	Items []service.CartLine `json:"items" binding:"required,min=1"`
}

func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}

	user := currentUser(c)
	order, items, err := h.orders.Create(c.Request.Context(), user.UserID, req.Items)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "order": order, "items": items})
}

func (h *Handler) listOrders(c *gin.Context) {
	archived := c.Query("archived") == "true"
	user := currentUser(c)

	orders, err := h.orders.List(c.Request.Context(), user.UserID, user.IsAdmin(), archived)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(orders) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "No orders found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := idParam(c)
	if !ok {
		return
	}

	order, items, err := h.orders.Get(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	user := currentUser(c)
	if !user.IsAdmin() && order.UserID != user.UserID {
		respondError(c, models.ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "order": order, "items": items})
}

type statusUpdateRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := idParam(c)
	if !ok {
		return
	}

	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}

	order, err := h.orders.Transition(c.Request.Context(), orderID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := idParam(c)
	if !ok {
		return
	}

	user := currentUser(c)
	order, err := h.orders.Cancel(c.Request.Context(), orderID, user.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

func (h *Handler) archiveOrder(c *gin.Context) {
	orderID, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.orders.Archive(c.Request.Context(), orderID, currentUser(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Order archived"})
}

func (h *Handler) unarchiveOrder(c *gin.Context) {
	orderID, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.orders.Unarchive(c.Request.Context(), orderID, currentUser(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Order unarchived"})
}

func (h *Handler) restoreOrder(c *gin.Context) {
	orderID, ok := idParam(c)
	if !ok {
		return
	}

	order, err := h.orders.RestoreCancelled(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

func (h *Handler) deleteOrder(c *gin.Context) {
	orderID, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.orders.DeleteCancelled(c.Request.Context(), orderID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Order deleted"})
}

func (h *Handler) uploadPaymentProof(c *gin.Context) {
	orderID, ok := idParam(c)
	if !ok {
		return
	}

	file, err := c.FormFile("proof")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing proof file"})
		return
	}

	filename := fmt.Sprintf("order-%d-%s%s", orderID, uuid.New().String(), filepath.Ext(file.Filename))
	dest := filepath.Join(h.uploadDir, filename)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to store proof"})
		return
	}

	user := currentUser(c)
	if err := h.orders.AttachPaymentProof(c.Request.Context(), orderID, user.UserID, filename); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "proof": filename})
}

func (h *Handler) listProducts(c *gin.Context) {
	includeArchived := c.Query("archived") == "true" && currentUser(c).IsAdmin()

	products, err := h.catalog.List(c.Request.Context(), includeArchived)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "products": products})
}

type productRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Price       int64  `json:"price" binding:"required,min=0"`
	TotalStock  int    `json:"total_stock" binding:"min=0"`
}

func (h *Handler) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}

	product := &models.Product{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		TotalStock:  req.TotalStock,
	}
	if err := h.catalog.Create(c.Request.Context(), currentUser(c), product); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "product": product})
}

func (h *Handler) editProduct(c *gin.Context) {
	productID, ok := idParam(c)
	if !ok {
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}

	user := currentUser(c)
	product, err := h.locks.Edit(c.Request.Context(), productID, holderID(user), user.Name, service.ProductUpdate{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		TotalStock:  req.TotalStock,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "product": product})
}

func (h *Handler) archiveProduct(c *gin.Context) {
	h.setProductArchived(c, true)
}

func (h *Handler) unarchiveProduct(c *gin.Context) {
	h.setProductArchived(c, false)
}

func (h *Handler) setProductArchived(c *gin.Context, archived bool) {
	productID, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.catalog.SetArchived(c.Request.Context(), currentUser(c), productID, archived); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) lockProduct(c *gin.Context) {
	productID, ok := idParam(c)
	if !ok {
		return
	}

	user := currentUser(c)
	product, err := h.locks.Acquire(c.Request.Context(), productID, holderID(user), user.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "product": product})
}

func (h *Handler) unlockProduct(c *gin.Context) {
	productID, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.locks.Release(c.Request.Context(), productID, holderID(currentUser(c))); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Lock released"})
}

func holderID(user *models.SessionUser) string {
	return strconv.FormatInt(user.UserID, 10)
}

func (h *Handler) salesReport(c *gin.Context) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid from date"})
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid to date"})
			return
		}
		to = parsed
	}

	report, err := h.orders.SalesReport(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}
