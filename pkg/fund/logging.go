package fund

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing fund operation.
type OperationLog struct {
	Operation  string
	Member     MemberName
	MealID     MealID
	DepositID  DepositID
	NoticeID   NoticeID
	Amount     Amount
	Status     string
	Error      error
	AuditError error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithAuditRecorder wires the recorder that receives the audit trail of committed operations.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(service *Service) {
		service.auditor = recorder
	}
}
