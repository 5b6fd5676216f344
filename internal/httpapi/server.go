// Package httpapi exposes the ledger service over HTTP.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/cipherledger/internal/faults"
	"github.com/MarkoPoloResearchLab/cipherledger/internal/oplog"
	"github.com/MarkoPoloResearchLab/cipherledger/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	healthPath          = "/healthz"
	transportKeyPath    = "/keys/transport"
	transactionsPath    = "/transactions"
	transactionPath     = "/transactions/:id"
	processPath         = "/transactions/process"
	pathParamID         = "id"
	requestIDHeader     = "X-Request-ID"
	requestDescription  = "uri="
	fieldBody           = "body"
	logFieldMethod      = "method"
	logFieldPath        = "path"
	logFieldStatus      = "status"
	logFieldLatency     = "latency"
	logFieldRequestID   = "request_id"
	accessLogMessage    = "http request"
	healthStatusOK      = "ok"
	corsMaxAge          = 12 * time.Hour
	defaultPageQuery    = "0"
	defaultSizeQuery    = "10"
	queryPage           = "page"
	querySize           = "size"
	queryTransactionID  = "transactionId"
	querySourceAccount  = "sourceAccount"
	queryDestination    = "destinationAccount"
	queryAmount         = "amount"
	ginContextRequestID = "request_id"
)

var (
	errMalformedBody  = errors.New("request body is not valid JSON")
	errMalformedQuery = errors.New("query parameter is not a number")
)

// Config holds router settings.
type Config struct {
	AllowedOrigins []string
}

// Handler serves ledger routes.
type Handler struct {
	service *ledger.Service
	mapper  *faults.Mapper
	logger  *zap.Logger
}

// NewHandler wires a Handler. A nil logger discards access logs.
func NewHandler(service *ledger.Service, mapper *faults.Mapper, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, mapper: mapper, logger: logger}
}

// NewRouter builds the gin engine with recovery, CORS, request ids and access logs.
func NewRouter(cfg Config, handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{"Content-Type", "Origin", "Accept", requestIDHeader},
			ExposeHeaders: []string{requestIDHeader},
			MaxAge:        corsMaxAge,
		}))
	}
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(handler.logger))

	router.GET(healthPath, func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": healthStatusOK})
	})
	router.GET(transportKeyPath, handler.handleTransportKey)
	router.GET(transactionsPath, handler.handleList)
	router.POST(transactionsPath, handler.handleCreate)
	router.POST(processPath, handler.handleTransfer)
	router.GET(transactionPath, handler.handleGet)
	router.PUT(transactionPath, handler.handleUpdate)
	router.DELETE(transactionPath, handler.handleDelete)
	return router
}

func (handler *Handler) handleTransportKey(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, publicKeyResponse{PublicKey: handler.service.TransportPublicKey()})
}

func (handler *Handler) handleList(ctx *gin.Context) {
	pageRequest, err := parsePageRequest(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	page, err := handler.service.FindAll(ctx.Request.Context(), pageRequest)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newPageResponse(page))
}

func (handler *Handler) handleGet(ctx *gin.Context) {
	entryID, err := parseEntryID(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	entry, err := handler.service.Get(ctx.Request.Context(), entryID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newEntryResponse(entry))
}

func (handler *Handler) handleCreate(ctx *gin.Context) {
	request, err := handler.bindEntryRequest(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	entryID, err := handler.service.Create(ctx.Request.Context(), request)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, createdResponse{ID: entryID.Int64()})
}

func (handler *Handler) handleUpdate(ctx *gin.Context) {
	entryID, err := parseEntryID(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	sealed, err := bindSealedEntryRequest(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	entry, err := handler.service.UpdateSealed(ctx.Request.Context(), entryID, sealed)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newEntryResponse(entry))
}

func (handler *Handler) handleDelete(ctx *gin.Context) {
	entryID, err := parseEntryID(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if err := handler.service.Delete(ctx.Request.Context(), entryID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *Handler) handleTransfer(ctx *gin.Context) {
	request := ledger.TransferRequest{
		CorrelationID:      optionalQuery(ctx, queryTransactionID),
		SourceAccount:      optionalQuery(ctx, querySourceAccount),
		DestinationAccount: optionalQuery(ctx, queryDestination),
		Amount:             optionalQuery(ctx, queryAmount),
	}
	transfer, err := handler.service.ProcessTransfer(ctx.Request.Context(), request)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, newTransferResponse(transfer))
}

func (handler *Handler) bindEntryRequest(ctx *gin.Context) (ledger.EntryRequest, error) {
	sealed, err := bindSealedEntryRequest(ctx)
	if err != nil {
		return ledger.EntryRequest{}, err
	}
	return handler.service.OpenEntryRequest(sealed)
}

func bindSealedEntryRequest(ctx *gin.Context) (ledger.SealedEntryRequest, error) {
	var body entryRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		return ledger.SealedEntryRequest{}, ledger.NewValidationError(ledger.FieldViolation{Field: fieldBody, Err: errMalformedBody})
	}
	return body.toSealed(), nil
}

func (handler *Handler) respondError(ctx *gin.Context, err error) {
	outcome, details := handler.mapper.Map(err, requestDescription+ctx.Request.URL.Path)
	ctx.JSON(outcome.HTTPStatus(), errorResponse{
		Timestamp: ledgerTime(details.Timestamp),
		Message:   details.Message,
		Details:   details.Details,
	})
}

func parseEntryID(ctx *gin.Context) (ledger.EntryID, error) {
	entryID, err := ledger.ParseEntryID(ctx.Param(pathParamID))
	if err != nil {
		return 0, ledger.NewValidationError(ledger.FieldViolation{Field: ledger.FieldID, Err: err})
	}
	return entryID, nil
}

func parsePageRequest(ctx *gin.Context) (ledger.PageRequest, error) {
	var violations []ledger.FieldViolation
	number, err := strconv.Atoi(ctx.DefaultQuery(queryPage, defaultPageQuery))
	if err != nil {
		violations = append(violations, ledger.FieldViolation{Field: ledger.FieldPage, Err: errMalformedQuery})
	}
	size, err := strconv.Atoi(ctx.DefaultQuery(querySize, defaultSizeQuery))
	if err != nil {
		violations = append(violations, ledger.FieldViolation{Field: ledger.FieldSize, Err: errMalformedQuery})
	}
	if len(violations) > 0 {
		return ledger.PageRequest{}, ledger.NewValidationError(violations...)
	}
	return ledger.NewPageRequest(number, size)
}

func optionalQuery(ctx *gin.Context, name string) *string {
	value, ok := ctx.GetQuery(name)
	if !ok {
		return nil
	}
	return &value
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := ctx.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		ctx.Set(ginContextRequestID, requestID)
		ctx.Writer.Header().Set(requestIDHeader, requestID)
		ctx.Request = ctx.Request.WithContext(oplog.WithRequestID(ctx.Request.Context(), requestID))
		ctx.Next()
	}
}

func accessLogMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()
		logger.Info(accessLogMessage,
			zap.String(logFieldMethod, ctx.Request.Method),
			zap.String(logFieldPath, faults.Mask(ctx.Request.URL.Path)),
			zap.Int(logFieldStatus, ctx.Writer.Status()),
			zap.Duration(logFieldLatency, time.Since(started)),
			zap.String(logFieldRequestID, ctx.GetString(ginContextRequestID)),
		)
	}
}
