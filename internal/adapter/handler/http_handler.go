package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

type HTTPHandler struct {
	items     *service.ItemService
	movements *service.MovementService
	orders    *service.OrderService
	stock     *service.StockService
	logger    *zap.Logger
}

// Response is the envelope written for every request.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data"`
}

type PageResponse[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

type ItemRequest struct {
	Name  string           `json:"name" binding:"required"`
	Price *decimal.Decimal `json:"price" binding:"required"`
}

type ItemResponse struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	RemainingStock *int            `json:"remainingStock,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type MovementRequest struct {
	ItemID int64  `json:"itemId" binding:"required,gt=0"`
	Qty    int    `json:"qty" binding:"required,gt=0"`
	Type   string `json:"type" binding:"required,oneof=T W"`
}

type MovementResponse struct {
	ID       int64  `json:"id"`
	ItemID   int64  `json:"itemId"`
	ItemName string `json:"itemName"`
	Qty      int    `json:"qty"`
	Type     string `json:"type"`
}

type OrderRequest struct {
	ItemID int64            `json:"itemId" binding:"required,gt=0"`
	Qty    int              `json:"qty" binding:"required,gt=0"`
	Price  *decimal.Decimal `json:"price" binding:"required"`
}

type OrderResponse struct {
	OrderNo  string          `json:"orderNo"`
	ItemID   int64           `json:"itemId"`
	ItemName string          `json:"itemName"`
	Qty      int             `json:"qty"`
	Price    decimal.Decimal `json:"price"`
}

type StockResponse struct {
	ItemID         int64 `json:"itemId"`
	RemainingStock int   `json:"remainingStock"`
}

func NewHTTPHandler(
	items *service.ItemService,
	movements *service.MovementService,
	orders *service.OrderService,
	stock *service.StockService,
	logger *zap.Logger,
) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{items: items, movements: movements, orders: orders, stock: stock, logger: logger}
}

// NewRouter wires every route onto a gin engine traced with otelgin.
func NewRouter(h *HTTPHandler, serviceName string, tp trace.TracerProvider) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(serviceName, otelgin.WithTracerProvider(tp)))

	r.GET("/health", h.HealthCheck)

	items := r.Group("/items")
	items.GET("", h.ListItems)
	items.POST("", h.CreateItem)
	items.GET("/:id", h.GetItem)
	items.PUT("/:id", h.UpdateItem)
	items.DELETE("/:id", h.DeleteItem)
	items.GET("/:id/stock", h.RemainingStock)

	inventory := r.Group("/inventory")
	inventory.GET("", h.ListMovements)
	inventory.POST("", h.CreateMovement)
	inventory.GET("/:id", h.GetMovement)
	inventory.PUT("/:id", h.UpdateMovement)
	inventory.DELETE("/:id", h.DeleteMovement)

	orders := r.Group("/orders")
	orders.GET("", h.ListOrders)
	orders.POST("", h.CreateOrder)
	orders.GET("/:orderNo", h.GetOrder)
	orders.PUT("/:orderNo", h.UpdateOrder)
	orders.DELETE("/:orderNo", h.DeleteOrder)

	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) GetItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	item, err := h.items.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Item found", toItemResponse(*item, true))
}

func (h *HTTPHandler) ListItems(c *gin.Context) {
	page, ok := pageQuery(c, domain.ItemSort)
	if !ok {
		return
	}
	includeStock, _ := strconv.ParseBool(c.DefaultQuery("includeStock", "false"))

	res, err := h.items.List(c.Request.Context(), page, includeStock)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Items retrieved successfully", toPageResponse(res, func(item domain.ItemStock) ItemResponse {
		return toItemResponse(item, includeStock)
	}))
}

func (h *HTTPHandler) CreateItem(c *gin.Context) {
	var req ItemRequest
	if !bind(c, &req) {
		return
	}
	item, err := h.items.Create(c.Request.Context(), service.ItemInput{Name: req.Name, Price: *req.Price})
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Item created successfully", toItemResponse(domain.ItemStock{Item: *item}, false))
}

func (h *HTTPHandler) UpdateItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ItemRequest
	if !bind(c, &req) {
		return
	}
	item, err := h.items.Update(c.Request.Context(), id, service.ItemInput{Name: req.Name, Price: *req.Price})
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Item updated successfully", toItemResponse(domain.ItemStock{Item: *item}, false))
}

func (h *HTTPHandler) DeleteItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.items.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Item deleted successfully", nil)
}

func (h *HTTPHandler) RemainingStock(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	stock, err := h.stock.RemainingStock(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Remaining stock", StockResponse{ItemID: id, RemainingStock: stock})
}

func (h *HTTPHandler) GetMovement(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	m, err := h.movements.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Inventory found", toMovementResponse(*m))
}

func (h *HTTPHandler) ListMovements(c *gin.Context) {
	page, ok := pageQuery(c, domain.MovementSort)
	if !ok {
		return
	}
	res, err := h.movements.List(c.Request.Context(), page)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Inventory retrieved successfully", toPageResponse(res, toMovementResponse))
}

func (h *HTTPHandler) CreateMovement(c *gin.Context) {
	var req MovementRequest
	if !bind(c, &req) {
		return
	}
	m, err := h.movements.Create(c.Request.Context(), req.input())
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Inventory created successfully", toMovementResponse(*m))
}

func (h *HTTPHandler) UpdateMovement(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req MovementRequest
	if !bind(c, &req) {
		return
	}
	m, err := h.movements.Update(c.Request.Context(), id, req.input())
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Inventory updated successfully", toMovementResponse(*m))
}

func (h *HTTPHandler) DeleteMovement(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.movements.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Inventory deleted successfully", nil)
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("orderNo"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Order found", toOrderResponse(*o))
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	page, ok := pageQuery(c, domain.OrderSort)
	if !ok {
		return
	}
	res, err := h.orders.List(c.Request.Context(), page)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Orders retrieved successfully", toPageResponse(res, toOrderResponse))
}

// CreateOrder honours an optional Idempotency-Key header.
func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req OrderRequest
	if !bind(c, &req) {
		return
	}
	o, err := h.orders.CreateWithKey(c.Request.Context(), c.GetHeader(idempotencyHeader), req.input())
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Order created successfully", toOrderResponse(*o))
}

func (h *HTTPHandler) UpdateOrder(c *gin.Context) {
	var req OrderRequest
	if !bind(c, &req) {
		return
	}
	o, err := h.orders.Update(c.Request.Context(), c.Param("orderNo"), req.input())
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Order updated successfully", toOrderResponse(*o))
}

func (h *HTTPHandler) DeleteOrder(c *gin.Context) {
	if err := h.orders.Delete(c.Request.Context(), c.Param("orderNo")); err != nil {
		h.writeError(c, err)
		return
	}
	ok200(c, "Order deleted successfully", nil)
}

func (r MovementRequest) input() service.MovementInput {
	return service.MovementInput{ItemID: r.ItemID, Quantity: r.Qty, Kind: domain.MovementKind(r.Type)}
}

func (r OrderRequest) input() service.OrderInput {
	return service.OrderInput{ItemID: r.ItemID, Quantity: r.Qty, Price: *r.Price}
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	var invalid *domain.ValidationError
	if errors.As(err, &invalid) {
		validationFailed(c, map[string]string{invalid.Field: invalid.Message})
		return
	}
	message := err.Error()
	if kind == domain.KindInternal {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		message = "internal error"
	}
	c.JSON(status, Response{Success: false, Message: message, Code: string(kind)})
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindDuplicateResource, domain.KindDuplicateRequest, domain.KindItemInUse:
		return http.StatusConflict
	case domain.KindInsufficientStock:
		return http.StatusUnprocessableEntity
	case domain.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func ok200(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func bind(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		validationFailed(c, fieldMessages(req, fieldErrs))
	} else {
		badRequest(c, "malformed request body: "+err.Error())
	}
	return false
}

// fieldMessages keys each failure by the field's JSON name.
func fieldMessages(req any, fieldErrs validator.ValidationErrors) map[string]string {
	typ := reflect.TypeOf(req)
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := fe.Field()
		if f, ok := typ.FieldByName(fe.StructField()); ok {
			if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
				name = tag
			}
		}
		switch fe.Tag() {
		case "required":
			out[name] = name + " is required"
		case "gt":
			out[name] = name + " must be positive"
		case "oneof":
			out[name] = name + " must be one of: " + fe.Param()
		default:
			out[name] = name + " is invalid"
		}
	}
	return out
}

func validationFailed(c *gin.Context, fields map[string]string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Message: "Validation failed",
		Code:    string(domain.KindValidation),
		Data:    fields,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Message: message, Code: string(domain.KindValidation)})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id: "+c.Param("id"))
		return 0, false
	}
	return id, true
}

func pageQuery(c *gin.Context, sorts domain.SortSpec) (domain.Page, bool) {
	number, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil {
		validationFailed(c, map[string]string{"page": "page must be an integer"})
		return domain.Page{}, false
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(domain.DefaultPageSize)))
	if err != nil {
		validationFailed(c, map[string]string{"size": "size must be an integer"})
		return domain.Page{}, false
	}
	sort, err := sorts.Parse(c.Query("sortBy"), c.Query("sortDirection"))
	if err != nil {
		var invalid *domain.ValidationError
		errors.As(err, &invalid)
		validationFailed(c, map[string]string{invalid.Field: invalid.Message})
		return domain.Page{}, false
	}
	return domain.NewPage(number, size).WithSort(sort), true
}

func toPageResponse[T, R any](res domain.PageResult[T], convert func(T) R) PageResponse[R] {
	out := PageResponse[R]{
		Content:       make([]R, 0, len(res.Content)),
		Page:          res.Page,
		Size:          res.Size,
		TotalElements: res.TotalElements,
	}
	for _, v := range res.Content {
		out.Content = append(out.Content, convert(v))
	}
	if res.Size > 0 {
		out.TotalPages = int((res.TotalElements + int64(res.Size) - 1) / int64(res.Size))
	}
	return out
}

func toItemResponse(item domain.ItemStock, withStock bool) ItemResponse {
	resp := ItemResponse{
		ID:        item.ID,
		Name:      item.Name,
		Price:     item.Price,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
	if withStock {
		stock := item.RemainingStock
		resp.RemainingStock = &stock
	}
	return resp
}

func toMovementResponse(m domain.Movement) MovementResponse {
	return MovementResponse{ID: m.ID, ItemID: m.ItemID, ItemName: m.ItemName, Qty: m.Quantity, Type: string(m.Kind)}
}

func toOrderResponse(o domain.Order) OrderResponse {
	return OrderResponse{OrderNo: o.OrderNo, ItemID: o.ItemID, ItemName: o.ItemName, Qty: o.Quantity, Price: o.Price}
}
