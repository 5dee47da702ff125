package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
	"github.com/rl1809/pos-backoffice/internal/logger"
)

const RequestIDHeader = "X-Request-ID"

type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type OrderItemResponse struct {
	ProductID    int64           `json:"product_id"`
	Barcode      string          `json:"barcode"`
	Quantity     int             `json:"quantity"`
	SellingPrice decimal.Decimal `json:"selling_price"`
}

type OrderResponse struct {
	Reference string              `json:"reference"`
	OrderTime time.Time           `json:"order_time"`
	Status    domain.OrderStatus  `json:"status"`
	Items     []OrderItemResponse `json:"items"`
	Total     decimal.Decimal     `json:"total"`
}

type OrderPageResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int64           `json:"total"`
	Page   int             `json:"page"`
	Size   int             `json:"size"`
}

type InvoiceResponse struct {
	OrderReference string          `json:"order_reference"`
	InvoiceNumber  string          `json:"invoice_number"`
	InvoicedAt     time.Time       `json:"invoiced_at"`
	Total          decimal.Decimal `json:"total"`
}

type StockLevelResponse struct {
	ProductID int64     `json:"product_id"`
	Barcode   string    `json:"barcode"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RowResultResponse struct {
	Line    int              `json:"line"`
	Key     string           `json:"key"`
	Status  domain.RowStatus `json:"status"`
	Comment string           `json:"comment,omitempty"`
}

type BulkResponse struct {
	Results []RowResultResponse `json:"results"`
	Failed  int                 `json:"failed"`
}

func orderResponse(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemResponse{
			ProductID:    item.ProductID,
			Barcode:      item.Barcode,
			Quantity:     item.Quantity,
			SellingPrice: item.SellingPrice,
		}
	}
	return OrderResponse{
		Reference: o.Reference,
		OrderTime: o.OrderTime,
		Status:    o.Status,
		Items:     items,
		Total:     o.Total(),
	}
}

func invoiceResponse(inv *domain.Invoice) InvoiceResponse {
	return InvoiceResponse{
		OrderReference: inv.OrderReference,
		InvoiceNumber:  inv.InvoiceNumber,
		InvoicedAt:     inv.InvoicedAt,
		Total:          inv.Total,
	}
}

func stockLevelResponse(s *domain.StockLevel) StockLevelResponse {
	return StockLevelResponse{ProductID: s.ProductID, Barcode: s.Barcode, Quantity: s.Quantity, UpdatedAt: s.UpdatedAt}
}

func bulkResponse(results []domain.RowResult) BulkResponse {
	resp := BulkResponse{Results: make([]RowResultResponse, len(results))}
	for i, r := range results {
		resp.Results[i] = RowResultResponse{Line: r.Line, Key: r.Key, Status: r.Status, Comment: r.Comment}
		if r.Failed() {
			resp.Failed++
		}
	}
	return resp
}

// StatusFor maps a core error onto an HTTP status code.
func StatusFor(err error) int {
	if domain.IsFatal(err) {
		return http.StatusInternalServerError
	}
	switch domain.CodeOf(err) {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidTransition, domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeExternalDependency:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	log := logger.FromContext(c.Request.Context(), h.logger)

	resp := ErrorResponse{
		Code:      string(domain.CodeOf(err)),
		Message:   domain.MessageOf(err),
		RequestID: c.GetString(RequestIDHeader),
	}
	if status == http.StatusInternalServerError {
		log.Error("Request failed", zap.Error(err), zap.Bool("fatal", domain.IsFatal(err)))
		if resp.Code == "" {
			resp.Code, resp.Message = "INTERNAL", "internal error"
		}
	} else {
		log.Info("Request rejected", zap.String("code", resp.Code), zap.String("message", resp.Message))
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Code:      string(domain.CodeValidation),
		Message:   message,
		RequestID: c.GetString(RequestIDHeader),
	})
}
