package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/lunchfund/pkg/fund"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	paramID               = "id"
	paramName             = "name"
	queryLimit            = "limit"
	errorCodeInvalid      = "invalid_payload"
	errorCodeValidation   = "validation_failed"
	errorCodeNotFound     = "not_found"
	errorCodeNonZero      = "non_zero_balance"
	errorCodeExists       = "already_exists"
	errorCodeInternal     = "internal_error"
	messageInternal       = "internal error"
	messageExpectedJSON   = "expected JSON body"
	shutdownGracePeriod   = 5 * time.Second
	corsPreflightLifetime = 12 * time.Hour
)

// Run serves the fund API until ctx is cancelled.
func Run(ctx context.Context, cfg Config, service *fund.Service, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if service == nil {
		return fmt.Errorf("fund service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{logger: logger, service: service, cfg: cfg}
	router := setupRouter(cfg, handler, gatherer)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("lunchfund api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           corsPreflightLifetime,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	api.GET("/members", handler.handleListMembers)
	api.POST("/members", handler.handleRegisterMember)
	api.DELETE("/members/:name", handler.handleDeleteMember)

	api.GET("/balances", handler.handleBalances)
	api.GET("/balances/:name", handler.handleBalanceOf)
	api.GET("/status", handler.handleStatus)

	api.GET("/deposits", handler.handleListDeposits)
	api.POST("/deposits", handler.handleRecordDeposit)
	api.PUT("/deposits/:id", handler.handleUpdateDeposit)
	api.DELETE("/deposits/:id", handler.handleDeleteDeposit)

	api.GET("/meals", handler.handleListMeals)
	api.POST("/meals", handler.handleRecordMeal)
	api.GET("/meals/:id", handler.handleGetMeal)
	api.PUT("/meals/:id", handler.handleUpdateMeal)
	api.DELETE("/meals/:id", handler.handleDeleteMeal)

	api.GET("/notices", handler.handleListNotices)
	api.POST("/notices", handler.handlePostNotice)
	api.DELETE("/notices/:id", handler.handleDeleteNotice)

	api.GET("/export", handler.handleExport)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service *fund.Service
	cfg     Config
}

func (handler *httpHandler) handleListMembers(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	members, err := handler.service.ListMembers(requestCtx)
	if err != nil {
		handler.respondError(ctx, "list members failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"members": members})
}

func (handler *httpHandler) handleRegisterMember(ctx *gin.Context) {
	var request memberRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, messageExpectedJSON))
		return
	}
	name, err := fund.NewMemberName(request.Name)
	if err != nil {
		handler.respondError(ctx, "register member failed", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.RegisterMember(requestCtx, name); err != nil {
		handler.respondError(ctx, "register member failed", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"member": name})
}

func (handler *httpHandler) handleDeleteMember(ctx *gin.Context) {
	name, err := fund.NewMemberName(ctx.Param(paramName))
	if err != nil {
		handler.respondError(ctx, "delete member failed", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.DeleteMember(requestCtx, name); err != nil {
		handler.respondError(ctx, "delete member failed", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleBalances(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balances, err := handler.service.Balances(requestCtx)
	if err != nil {
		handler.respondError(ctx, "balances failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balances": balances})
}

func (handler *httpHandler) handleBalanceOf(ctx *gin.Context) {
	name, err := fund.NewMemberName(ctx.Param(paramName))
	if err != nil {
		handler.respondError(ctx, "balance failed", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balance, err := handler.service.BalanceOf(requestCtx, name)
	if err != nil {
		handler.respondError(ctx, "balance failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"member": name, "balance": balance})
}

func (handler *httpHandler) handleStatus(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	totals, err := handler.service.Totals(requestCtx)
	if err != nil {
		handler.respondError(ctx, "status failed", err)
		return
	}
	negative, err := handler.service.NegativeBalances(requestCtx)
	if err != nil {
		handler.respondError(ctx, "status failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"totals": totals, "negative_balances": negative})
}

func (handler *httpHandler) handleListDeposits(ctx *gin.Context) {
	limit, ok := handler.listLimit(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	deposits, err := handler.service.ListDeposits(requestCtx, limit)
	if err != nil {
		handler.respondError(ctx, "list deposits failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deposits": deposits})
}

func (handler *httpHandler) handleRecordDeposit(ctx *gin.Context) {
	input, ok := handler.bindDeposit(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	depositID, err := handler.service.RecordDeposit(requestCtx, input)
	if err != nil {
		handler.respondError(ctx, "record deposit failed", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"id": depositID})
}

func (handler *httpHandler) handleUpdateDeposit(ctx *gin.Context) {
	depositID, ok := handler.pathID(ctx)
	if !ok {
		return
	}
	input, ok := handler.bindDeposit(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.UpdateDeposit(requestCtx, fund.DepositID(depositID), input); err != nil {
		handler.respondError(ctx, "update deposit failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"id": depositID})
}

func (handler *httpHandler) handleDeleteDeposit(ctx *gin.Context) {
	depositID, ok := handler.pathID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.DeleteDeposit(requestCtx, fund.DepositID(depositID)); err != nil {
		handler.respondError(ctx, "delete deposit failed", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleListMeals(ctx *gin.Context) {
	limit, ok := handler.listLimit(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	meals, err := handler.service.ListMeals(requestCtx, limit)
	if err != nil {
		handler.respondError(ctx, "list meals failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"meals": meals})
}

func (handler *httpHandler) handleRecordMeal(ctx *gin.Context) {
	input, ok := handler.bindMeal(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	mealID, err := handler.service.RecordMeal(requestCtx, input)
	if err != nil {
		handler.respondError(ctx, "record meal failed", err)
		return
	}
	handler.respondWithMeal(ctx, requestCtx, http.StatusCreated, mealID)
}

func (handler *httpHandler) handleGetMeal(ctx *gin.Context) {
	mealID, ok := handler.pathID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	handler.respondWithMeal(ctx, requestCtx, http.StatusOK, fund.MealID(mealID))
}

func (handler *httpHandler) handleUpdateMeal(ctx *gin.Context) {
	mealID, ok := handler.pathID(ctx)
	if !ok {
		return
	}
	input, ok := handler.bindMeal(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.UpdateMeal(requestCtx, fund.MealID(mealID), input); err != nil {
		handler.respondError(ctx, "update meal failed", err)
		return
	}
	handler.respondWithMeal(ctx, requestCtx, http.StatusOK, fund.MealID(mealID))
}

func (handler *httpHandler) handleDeleteMeal(ctx *gin.Context) {
	mealID, ok := handler.pathID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.DeleteMeal(requestCtx, fund.MealID(mealID)); err != nil {
		handler.respondError(ctx, "delete meal failed", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleListNotices(ctx *gin.Context) {
	limit, ok := handler.listLimit(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	notices, err := handler.service.ListNotices(requestCtx, limit)
	if err != nil {
		handler.respondError(ctx, "list notices failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"notices": notices})
}

func (handler *httpHandler) handlePostNotice(ctx *gin.Context) {
	var request noticeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, messageExpectedJSON))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	noticeID, err := handler.service.PostNotice(requestCtx, request.Date, request.Content)
	if err != nil {
		handler.respondError(ctx, "post notice failed", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"id": noticeID})
}

func (handler *httpHandler) handleDeleteNotice(ctx *gin.Context) {
	noticeID, ok := handler.pathID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.DeleteNotice(requestCtx, fund.NoticeID(noticeID)); err != nil {
		handler.respondError(ctx, "delete notice failed", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleExport(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	snapshot, err := handler.service.Export(requestCtx)
	if err != nil {
		handler.respondError(ctx, "export failed", err)
		return
	}
	ctx.JSON(http.StatusOK, snapshot)
}

func (handler *httpHandler) respondWithMeal(ctx *gin.Context, requestCtx context.Context, status int, mealID fund.MealID) {
	detail, err := handler.service.GetMeal(requestCtx, mealID)
	if err != nil {
		handler.respondError(ctx, "meal fetch failed", err)
		return
	}
	ctx.JSON(status, gin.H{"meal": detail})
}

func (handler *httpHandler) bindDeposit(ctx *gin.Context) (fund.DepositInput, bool) {
	var request depositRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, messageExpectedJSON))
		return fund.DepositInput{}, false
	}
	input, err := request.toInput()
	if err != nil {
		handler.respondError(ctx, "deposit payload rejected", err)
		return fund.DepositInput{}, false
	}
	return input, true
}

func (handler *httpHandler) bindMeal(ctx *gin.Context) (fund.MealInput, bool) {
	var request mealRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, messageExpectedJSON))
		return fund.MealInput{}, false
	}
	input, err := request.toInput()
	if err != nil {
		handler.respondError(ctx, "meal payload rejected", err)
		return fund.MealInput{}, false
	}
	return input, true
}

func (handler *httpHandler) pathID(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(paramID), 10, 64)
	if err != nil || id <= 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, "id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (handler *httpHandler) listLimit(ctx *gin.Context) (int, bool) {
	raw := ctx.Query(queryLimit)
	if raw == "" {
		return handler.cfg.ListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxListLimit {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, fmt.Sprintf("limit must be between 1 and %d", maxListLimit)))
		return 0, false
	}
	return limit, true
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) respondError(ctx *gin.Context, message string, err error) {
	status, code := mapToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error(message, zap.Error(err))
		ctx.JSON(status, errorResponse(code, messageInternal))
		return
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func mapToHTTPStatus(source error) (int, string) {
	if errors.Is(source, fund.ErrValidation) {
		return http.StatusBadRequest, errorCodeValidation
	}
	if errors.Is(source, fund.ErrNotFound) {
		return http.StatusNotFound, errorCodeNotFound
	}
	if errors.Is(source, fund.ErrNonZeroBalance) {
		return http.StatusConflict, errorCodeNonZero
	}
	if errors.Is(source, fund.ErrAlreadyExists) {
		return http.StatusConflict, errorCodeExists
	}
	return http.StatusInternalServerError, errorCodeInternal
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
