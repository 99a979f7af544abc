// Package telemetry turns fund operation records into zap logs and Prometheus counters.
package telemetry

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/lunchfund/pkg/fund"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricsNamespace  = "lunchfund"
	labelOperation    = "operation"
	labelStatus       = "status"
	logMessageOK      = "fund operation"
	logMessageFailed  = "fund operation failed"
	logMessageAudit   = "audit flush failed"
	statusRejected    = "rejected"
	fieldOperation    = "operation"
	fieldMember       = "member"
	fieldMealID       = "meal_id"
	fieldDepositID    = "deposit_id"
	fieldNoticeID     = "notice_id"
	fieldAmount       = "amount"
	fieldStatus       = "status"
	fieldAuditFailure = "audit_error"
)

// Metrics holds the counters exported on /metrics.
type Metrics struct {
	Operations    *prometheus.CounterVec
	AuditFailures prometheus.Counter
}

// NewMetrics registers the fund counters on registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Fund operations by name and outcome.",
		}, []string{labelOperation, labelStatus}),
		AuditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "audit_failures_total",
			Help:      "Committed operations whose audit trail could not be fully recorded.",
		}),
	}
	if registerer == nil {
		return metrics, nil
	}
	for _, collector := range []prometheus.Collector{metrics.Operations, metrics.AuditFailures} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

// OperationLogger implements fund.OperationLogger.
type OperationLogger struct {
	logger  *zap.Logger
	metrics *Metrics
}

// NewOperationLogger wires logger and metrics. Either may be nil.
func NewOperationLogger(logger *zap.Logger, metrics *Metrics) *OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLogger{logger: logger, metrics: metrics}
}

// LogOperation writes one log line per operation. Validation failures are logged
// at warn level with status "rejected"; everything else that failed is an error.
func (operationLogger *OperationLogger) LogOperation(_ context.Context, entry fund.OperationLog) {
	status := entry.Status
	if entry.Error != nil && isClientError(entry.Error) {
		status = statusRejected
	}
	if operationLogger.metrics != nil {
		operationLogger.metrics.Operations.WithLabelValues(entry.Operation, status).Inc()
	}

	fields := operationFields(entry, status)
	switch {
	case entry.Error == nil:
		operationLogger.logger.Info(logMessageOK, fields...)
	case status == statusRejected:
		operationLogger.logger.Warn(logMessageFailed, append(fields, zap.Error(entry.Error))...)
	default:
		operationLogger.logger.Error(logMessageFailed, append(fields, zap.Error(entry.Error))...)
	}

	if entry.AuditError != nil {
		if operationLogger.metrics != nil {
			operationLogger.metrics.AuditFailures.Inc()
		}
		operationLogger.logger.Warn(logMessageAudit, append(fields, zap.NamedError(fieldAuditFailure, entry.AuditError))...)
	}
}

func operationFields(entry fund.OperationLog, status string) []zap.Field {
	fields := []zap.Field{
		zap.String(fieldOperation, entry.Operation),
		zap.String(fieldStatus, status),
	}
	if !entry.Member.IsZero() {
		fields = append(fields, zap.String(fieldMember, entry.Member.String()))
	}
	if entry.MealID != 0 {
		fields = append(fields, zap.Int64(fieldMealID, int64(entry.MealID)))
	}
	if entry.DepositID != 0 {
		fields = append(fields, zap.Int64(fieldDepositID, int64(entry.DepositID)))
	}
	if entry.NoticeID != 0 {
		fields = append(fields, zap.Int64(fieldNoticeID, int64(entry.NoticeID)))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64(fieldAmount, entry.Amount.Int64()))
	}
	return fields
}

func isClientError(err error) bool {
	return errors.Is(err, fund.ErrValidation) ||
		errors.Is(err, fund.ErrNotFound) ||
		errors.Is(err, fund.ErrNonZeroBalance) ||
		errors.Is(err, fund.ErrAlreadyExists)
}
