package fund

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// AuditAction is the kind of mutation an audit entry describes.
type AuditAction string

const (
	AuditActionInsert AuditAction = "insert"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
)

// Audited entity names.
const (
	AuditEntityMember  = "member"
	AuditEntityDeposit = "deposit"
	AuditEntityMeal    = "meal"
	AuditEntityNotice  = "notice"
)

// AuditEntry is an append-only record of one mutation.
// Payload holds {"before": ..., "after": ...} snapshots of the entity.
type AuditEntry struct {
	ID             string          `json:"id"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
	Action         AuditAction     `json:"action"`
	Entity         string          `json:"entity"`
	EntityID       string          `json:"entity_id"`
	Payload        json.RawMessage `json:"payload"`
}

// AuditRecorder persists audit entries. Failures never undo the audited mutation.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc adapts a plain function to AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

// RecordAudit calls fn.
func (fn AuditRecorderFunc) RecordAudit(ctx context.Context, entry AuditEntry) error {
	return fn(ctx, entry)
}

type auditPayload struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

type pendingAudit struct {
	action   AuditAction
	entity   string
	entityID string
	before   any
	after    any
}

// auditTrail collects the mutations of one transaction. It is flushed only after commit.
type auditTrail struct {
	entries []pendingAudit
}

func (trail *auditTrail) inserted(entity string, entityID string, after any) {
	trail.entries = append(trail.entries, pendingAudit{action: AuditActionInsert, entity: entity, entityID: entityID, after: after})
}

func (trail *auditTrail) updated(entity string, entityID string, before any, after any) {
	trail.entries = append(trail.entries, pendingAudit{action: AuditActionUpdate, entity: entity, entityID: entityID, before: before, after: after})
}

func (trail *auditTrail) deleted(entity string, entityID string, before any) {
	trail.entries = append(trail.entries, pendingAudit{action: AuditActionDelete, entity: entity, entityID: entityID, before: before})
}

func (trail *auditTrail) reset() {
	trail.entries = trail.entries[:0]
}

func (service *Service) flushAudit(ctx context.Context, trail *auditTrail) error {
	if service.auditor == nil || len(trail.entries) == 0 {
		return nil
	}
	var failures []error
	for _, pending := range trail.entries {
		payload, err := json.Marshal(auditPayload{Before: pending.before, After: pending.after})
		if err != nil {
			failures = append(failures, fmt.Errorf("%s %s %s: %w", pending.action, pending.entity, pending.entityID, err))
			continue
		}
		entry := AuditEntry{
			CreatedUnixUTC: service.nowFn(),
			Action:         pending.action,
			Entity:         pending.entity,
			EntityID:       pending.entityID,
			Payload:        payload,
		}
		if err := service.auditor.RecordAudit(ctx, entry); err != nil {
			failures = append(failures, fmt.Errorf("%s %s %s: %w", pending.action, pending.entity, pending.entityID, err))
		}
	}
	return errors.Join(failures...)
}

func mealEntityID(id MealID) string {
	return strconv.FormatInt(int64(id), 10)
}

func depositEntityID(id DepositID) string {
	return strconv.FormatInt(int64(id), 10)
}

func noticeEntityID(id NoticeID) string {
	return strconv.FormatInt(int64(id), 10)
}
