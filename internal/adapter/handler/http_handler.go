package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
	"github.com/rl1809/pos-backoffice/internal/core/service"
)

const (
	defaultPageSize = 20
	tsvContentType  = "text/tab-separated-values"
)

type HTTPHandler struct {
	// MetricsPath is where the metrics handler is mounted.
	MetricsPath string

	orders    *service.OrderService
	inventory *service.InventoryService
	bulk      *service.BulkService
	metrics   http.Handler
	logger    *zap.Logger
}

type OrderRequest struct {
	Items []domain.OrderLine `json:"items" binding:"required,min=1,dive"`
}

type StockRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type SearchQuery struct {
	Reference string `form:"reference" binding:"omitempty,max=64"`
	Status    string `form:"status" binding:"omitempty,oneof=FULFILLABLE UNFULFILLABLE CANCELLED INVOICED"`
	From      string `form:"from"`
	To        string `form:"to"`
	Page      int    `form:"page" binding:"omitempty,min=0"`
	Size      int    `form:"size" binding:"omitempty,min=1,max=100"`
}

// NewHTTPHandler builds the REST surface. metricsHandler may be nil, in which
// case /metrics is not served.
func NewHTTPHandler(orders *service.OrderService, inventory *service.InventoryService, bulk *service.BulkService, metricsHandler http.Handler, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		MetricsPath: "/metrics",
		orders:      orders,
		inventory:   inventory,
		bulk:        bulk,
		metrics:     metricsHandler,
		logger:      logger.Named("http"),
	}
}

func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(h.logger), AccessLog(h.logger))
	h.Register(r)
	return r
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	if h.metrics != nil {
		r.GET(h.MetricsPath, gin.WrapH(h.metrics))
	}

	api := r.Group("/api")

	orders := api.Group("/orders")
	orders.POST("", h.CreateOrder)
	orders.GET("", h.SearchOrders)
	orders.GET("/:ref", h.GetOrder)
	orders.PUT("/:ref", h.UpdateOrder)
	orders.POST("/:ref/cancel", h.CancelOrder)
	orders.POST("/:ref/invoice", h.InvoiceOrder)
	orders.GET("/:ref/invoice", h.GetInvoice)

	inventory := api.Group("/inventory")
	inventory.POST("/upload", h.UploadInventory)
	inventory.GET("/:barcode", h.GetStock)
	inventory.PUT("/:barcode", h.UpdateStock)

	api.POST("/products/upload", h.UploadProducts)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid order: "+err.Error())
		return
	}

	order, err := h.orders.Create(c.Request.Context(), req.Items)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderResponse(order))
}

func (h *HTTPHandler) UpdateOrder(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid order: "+err.Error())
		return
	}

	order, err := h.orders.Update(c.Request.Context(), c.Param("ref"), req.Items)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(order))
}

func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	order, err := h.orders.Cancel(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(order))
}

func (h *HTTPHandler) InvoiceOrder(c *gin.Context) {
	inv, err := h.orders.MarkInvoiced(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, invoiceResponse(inv))
}

func (h *HTTPHandler) GetInvoice(c *gin.Context) {
	inv, err := h.orders.GetInvoice(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, invoiceResponse(inv))
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetByRef(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(order))
}

func (h *HTTPHandler) SearchOrders(c *gin.Context) {
	var q SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid search: "+err.Error())
		return
	}

	filter := domain.OrderFilter{
		ReferenceContains: q.Reference,
		Status:            domain.OrderStatus(q.Status),
		Page:              q.Page,
		Size:              q.Size,
	}
	if filter.Size == 0 {
		filter.Size = defaultPageSize
	}
	var err error
	if filter.From, err = parseTime(q.From); err != nil {
		badRequest(c, "from: "+domain.MessageOf(err))
		return
	}
	if filter.To, err = parseTime(q.To); err != nil {
		badRequest(c, "to: "+domain.MessageOf(err))
		return
	}

	page, err := h.orders.Search(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := OrderPageResponse{
		Orders: make([]OrderResponse, len(page.Orders)),
		Total:  page.Total,
		Page:   page.Page,
		Size:   page.Size,
	}
	for i := range page.Orders {
		resp.Orders[i] = orderResponse(&page.Orders[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) GetStock(c *gin.Context) {
	level, err := h.inventory.Get(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stockLevelResponse(level))
}

func (h *HTTPHandler) UpdateStock(c *gin.Context) {
	var req StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid stock update: "+err.Error())
		return
	}

	level, err := h.inventory.Update(c.Request.Context(), c.Param("barcode"), *req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stockLevelResponse(level))
}

func (h *HTTPHandler) UploadInventory(c *gin.Context) {
	body, closeBody, err := uploadBody(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	defer closeBody()

	rows, err := ParseInventoryTSV(body)
	if err != nil {
		h.fail(c, err)
		return
	}
	results, err := h.bulk.UpdateInventory(c.Request.Context(), rows)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.writeResults(c, results)
}

func (h *HTTPHandler) UploadProducts(c *gin.Context) {
	body, closeBody, err := uploadBody(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	defer closeBody()

	rows, err := ParseProductTSV(body)
	if err != nil {
		h.fail(c, err)
		return
	}
	results, err := h.bulk.CreateProducts(c.Request.Context(), rows)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.writeResults(c, results)
}

// writeResults answers with JSON, or with a TSV results file when the caller
// asks for one via ?format=tsv or the Accept header.
func (h *HTTPHandler) writeResults(c *gin.Context, results []domain.RowResult) {
	if c.Query("format") == "tsv" || strings.Contains(c.GetHeader("Accept"), tsvContentType) {
		c.Header("Content-Type", tsvContentType+"; charset=utf-8")
		c.Status(http.StatusOK)
		if err := WriteResultsTSV(c.Writer, results); err != nil {
			h.logger.Error("Write bulk results", zap.Error(err))
		}
		return
	}
	c.JSON(http.StatusOK, bulkResponse(results))
}

// uploadBody accepts either a multipart form with a "file" field or the raw
// TSV as the request body.
func uploadBody(c *gin.Context) (io.Reader, func(), error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, nil, err
		}
		f, err := fh.Open()
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	}
	return c.Request.Body, func() {}, nil
}

// parseTime accepts RFC 3339 timestamps, plain dates, or unix seconds.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, domain.Validation("%q is not a timestamp", s)
	}
	return time.Unix(secs, 0), nil
}
