package fund

import (
	"context"
	"fmt"
	"strings"
)

// Service contains the fund domain logic over a Store.
type Service struct {
	store   Store
	nowFn   func() int64
	logger  OperationLogger
	auditor AuditRecorder
}

// DepositInput describes a manual deposit.
type DepositInput struct {
	Date   string
	Member MemberName
	Amount Amount
	Note   string
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// RegisterMember adds a member to the registry.
func (service *Service) RegisterMember(ctx context.Context, name MemberName) error {
	operation := OperationLog{Operation: OperationRegisterMember, Member: name}
	return service.runTx(ctx, &operation, func(ctx context.Context, txStore Store, trail *auditTrail) error {
		if name.IsZero() {
			return fmt.Errorf("%w: empty value", ErrInvalidMemberName)
		}
		members, err := txStore.ListMembers(ctx)
		if err != nil {
			return err
		}
		if containsMember(members, name) {
			return fmt.Errorf("%w: %s", ErrMemberExists, name)
		}
		if err := txStore.InsertMember(ctx, name); err != nil {
			return err
		}
		trail.inserted(AuditEntityMember, name.String(), memberSnapshot{Name: name})
		return nil
	})
}

// DeleteMember removes a member whose balance is exactly zero.
// Their deposits and shares go with them and meals they paid lose their payer.
// Settlements of other payers are left as recorded.
func (service *Service) DeleteMember(ctx context.Context, name MemberName) error {
	operation := OperationLog{Operation: OperationDeleteMember, Member: name}
	return service.runTx(ctx, &operation, func(ctx context.Context, txStore Store, trail *auditTrail) error {
		members, err := txStore.ListMembers(ctx)
		if err != nil {
			return err
		}
		if !containsMember(members, name) {
			return fmt.Errorf("%w: %s", ErrMemberNotFound, name)
		}
		balance, err := memberBalance(ctx, txStore, name)
		if err != nil {
			return err
		}
		if balance != 0 {
			return fmt.Errorf("%w: %s holds %d", ErrNonZeroBalance, name, balance)
		}
		deposits, err := txStore.ListDeposits(ctx, 0)
		if err != nil {
			return err
		}
		mealIDs, err := txStore.ListMealIDsByDiner(ctx, name)
		if err != nil {
			return err
		}
		if err := txStore.DeleteMember(ctx, name); err != nil {
			return err
		}
		trail.deleted(AuditEntityMember, name.String(), memberSnapshot{Name: name, Deposits: depositsOf(deposits, name), Meals: mealIDs})
		return nil
	})
}

// ListMembers returns the registry in lexicographic order.
func (service *Service) ListMembers(ctx context.Context) ([]MemberName, error) {
	return service.store.ListMembers(ctx)
}

// RecordDeposit stores a manual deposit for a registered member.
func (service *Service) RecordDeposit(ctx context.Context, input DepositInput) (DepositID, error) {
	operation := OperationLog{Operation: OperationRecordDeposit, Member: input.Member, Amount: input.Amount}
	err := service.runTx(ctx, &operation, func(ctx context.Context, txStore Store, trail *auditTrail) error {
		deposit, err := service.buildDeposit(ctx, txStore, input)
		if err != nil {
			return err
		}
		depositID, err := txStore.InsertDeposit(ctx, deposit)
		if err != nil {
			return err
		}
		deposit.ID = depositID
		operation.DepositID = depositID
		trail.inserted(AuditEntityDeposit, depositEntityID(depositID), deposit)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return operation.DepositID, nil
}

// UpdateDeposit replaces the fields of a manual deposit.
func (service *Service) UpdateDeposit(ctx context.Context, id DepositID, input DepositInput) error {
	operation := OperationLog{Operation: OperationUpdateDeposit, DepositID: id, Member: input.Member, Amount: input.Amount}
	return service.runTx(ctx, &operation, func(ctx context.Context, txStore Store, trail *auditTrail) error {
		existing, err := txStore.GetDeposit(ctx, id)
		if err != nil {
			return err
		}
		if existing.Kind == DepositKindAutoSettlement {
			return fmt.Errorf("%w: deposit %d belongs to meal %d", ErrSettlementDepositManaged, id, existing.MealID)
		}
		updated, err := service.buildDeposit(ctx, txStore, input)
		if err != nil {
			return err
		}
		updated.ID = id
		if err := txStore.UpdateDeposit(ctx, updated); err != nil {
			return err
		}
		trail.updated(AuditEntityDeposit, depositEntityID(id), existing, updated)
		return nil
	})
}

// DeleteDeposit removes a manual deposit.
func (service *Service) DeleteDeposit(ctx context.Context, id DepositID) error {
	operation := OperationLog{Operation: OperationDeleteDeposit, DepositID: id}
	return service.runTx(ctx, &operation, func(ctx context.Context, txStore Store, trail *auditTrail) error {
		existing, err := txStore.GetDeposit(ctx, id)
		if err != nil {
			return err
		}
		operation.Member = existing.Member
		operation.Amount = existing.Amount
		if existing.Kind == DepositKindAutoSettlement {
			return fmt.Errorf("%w: deposit %d belongs to meal %d", ErrSettlementDepositManaged, id, existing.MealID)
		}
		if err := txStore.DeleteDeposit(ctx, id); err != nil {
			return err
		}
		trail.deleted(AuditEntityDeposit, depositEntityID(id), existing)
		return nil
	})
}

// ListDeposits returns the newest deposits first. A non-positive limit returns all of them.
func (service *Service) ListDeposits(ctx context.Context, limit int) ([]Deposit, error) {
	return service.store.ListDeposits(ctx, limit)
}

// RecordMeal stores a meal, its shares and the payer's settlement deposit in one transaction.
func (service *Service) RecordMeal(ctx context.Context, input MealInput) (MealID, error) {
	operation := OperationLog{Operation: OperationRecordMeal, Member: input.Payer}
	err := service.runTx(ctx, &operation, func(ctx context.Context, txStore Store, trail *auditTrail) error {
		members, err := txStore.ListMembers(ctx)
		if err != nil {
			return err
		}
		detail, err := service.buildMeal(members, input)
		if err != nil {
			return err
		}
		mealID, err := txStore.InsertMeal(ctx, detail.Meal)
		if err != nil {
			return err
		}
		detail = detail.withID(mealID)
		if err := txStore.InsertShares(ctx, detail.Shares); err != nil {
			return err
		}
		trail.inserted(AuditEntityMeal, mealEntityID(mealID), detail)
		if _, err := reconcileSettlement(ctx, txStore, detail.Meal, detail.Shares, members, trail); err != nil {
			return err
		}
		operation.MealID = mealID
		operation.Amount = sumShares(detail.Shares)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return operation.MealID, nil
}

// UpdateMeal replaces a meal's header and shares wholesale and reconciles its settlement deposit.
func (service *Service) UpdateMeal(ctx context.Context, id MealID, input MealInput) error {
	operation := OperationLog{Operation: OperationUpdateMeal, MealID: id, Member: input.Payer}
	return service.runTx(ctx, &operation, func(ctx context.Context, txStore Store, trail *auditTrail) error {
		before, err := loadMealDetail(ctx, txStore, id)
		if err != nil {
			return err
		}
		members, err := txStore.ListMembers(ctx)
		if err != nil {
			return err
		}
		after, err := service.buildMeal(members, input)
		if err != nil {
			return err
		}
		after = after.withID(id)
		if err := txStore.UpdateMeal(ctx, after.Meal); err != nil {
			return err
		}
		if err := txStore.DeleteShares(ctx, id); err != nil {
			return err
		}
		if err := txStore.InsertShares(ctx, after.Shares); err != nil {
			return err
		}
		trail.updated(AuditEntityMeal, mealEntityID(id), before, after)
		if _, err := reconcileSettlement(ctx, txStore, after.Meal, after.Shares, members, trail); err != nil {
			return err
		}
		operation.Amount = sumShares(after.Shares)
		return nil
	})
}

// DeleteMeal removes a meal together with its shares and settlement deposit.
func (service *Service) DeleteMeal(ctx context.Context, id MealID) error {
	operation := OperationLog{Operation: OperationDeleteMeal, MealID: id}
	return service.runTx(ctx, &operation, func(ctx context.Context, txStore Store, trail *auditTrail) error {
		before, err := loadMealDetail(ctx, txStore, id)
		if err != nil {
			return err
		}
		operation.Member = before.Meal.Payer
		operation.Amount = sumShares(before.Shares)
		if err := removeSettlement(ctx, txStore, id, trail); err != nil {
			return err
		}
		if err := txStore.DeleteShares(ctx, id); err != nil {
			return err
		}
		if err := txStore.DeleteMeal(ctx, id); err != nil {
			return err
		}
		trail.deleted(AuditEntityMeal, mealEntityID(id), before)
		return nil
	})
}

// GetMeal returns a meal with its shares.
func (service *Service) GetMeal(ctx context.Context, id MealID) (MealDetail, error) {
	return loadMealDetail(ctx, service.store, id)
}

// ListMeals returns meal summaries, newest first. A non-positive limit returns all of them.
func (service *Service) ListMeals(ctx context.Context, limit int) ([]MealSummary, error) {
	return service.store.ListMealSummaries(ctx, limit)
}

// PostNotice stores an announcement.
func (service *Service) PostNotice(ctx context.Context, date string, content string) (NoticeID, error) {
	operation := OperationLog{Operation: OperationPostNotice}
	err := service.runTx(ctx, &operation, func(ctx context.Context, txStore Store, trail *auditTrail) error {
		normalizedDate, err := NormalizeDate(date, service.nowFn())
		if err != nil {
			return err
		}
		trimmed := strings.TrimSpace(content)
		if trimmed == "" {
			return fmt.Errorf("%w: empty value", ErrInvalidNoticeContent)
		}
		notice := Notice{Date: normalizedDate, Content: trimmed}
		noticeID, err := txStore.InsertNotice(ctx, notice)
		if err != nil {
			return err
		}
		notice.ID = noticeID
		operation.NoticeID = noticeID
		trail.inserted(AuditEntityNotice, noticeEntityID(noticeID), notice)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return operation.NoticeID, nil
}

// DeleteNotice removes an announcement.
func (service *Service) DeleteNotice(ctx context.Context, id NoticeID) error {
	operation := OperationLog{Operation: OperationDeleteNotice, NoticeID: id}
	return service.runTx(ctx, &operation, func(ctx context.Context, txStore Store, trail *auditTrail) error {
		existing, err := txStore.GetNotice(ctx, id)
		if err != nil {
			return err
		}
		if err := txStore.DeleteNotice(ctx, id); err != nil {
			return err
		}
		trail.deleted(AuditEntityNotice, noticeEntityID(id), existing)
		return nil
	})
}

// ListNotices returns the newest notices first. A non-positive limit returns all of them.
func (service *Service) ListNotices(ctx context.Context, limit int) ([]Notice, error) {
	return service.store.ListNotices(ctx, limit)
}

// Export reads every table inside one transaction.
func (service *Service) Export(ctx context.Context) (Snapshot, error) {
	var snapshot Snapshot
	err := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		var err error
		if snapshot.Members, err = txStore.ListMembers(ctx); err != nil {
			return err
		}
		if snapshot.Deposits, err = txStore.ListDeposits(ctx, 0); err != nil {
			return err
		}
		if snapshot.Meals, err = txStore.ListMeals(ctx, 0); err != nil {
			return err
		}
		if snapshot.Shares, err = txStore.ListAllShares(ctx); err != nil {
			return err
		}
		if snapshot.Notices, err = txStore.ListNotices(ctx, 0); err != nil {
			return err
		}
		if snapshot.Audit, err = txStore.ListAuditEntries(ctx, 0); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

// runTx executes fn in one transaction, flushes the audit trail after commit and logs the outcome.
func (service *Service) runTx(ctx context.Context, operation *OperationLog, fn func(ctx context.Context, txStore Store, trail *auditTrail) error) error {
	trail := &auditTrail{}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		trail.reset()
		return fn(ctx, transactionStore, trail)
	})
	if operationError == nil {
		operation.AuditError = service.flushAudit(ctx, trail)
	}
	operation.Error = operationError
	service.logOperation(ctx, *operation)
	return operationError
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = OperationStatusError
		} else {
			entry.Status = OperationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func (service *Service) buildDeposit(ctx context.Context, txStore Store, input DepositInput) (Deposit, error) {
	if input.Member.IsZero() {
		return Deposit{}, fmt.Errorf("%w: empty value", ErrInvalidMemberName)
	}
	if input.Amount <= 0 {
		return Deposit{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	date, err := NormalizeDate(input.Date, service.nowFn())
	if err != nil {
		return Deposit{}, err
	}
	members, err := txStore.ListMembers(ctx)
	if err != nil {
		return Deposit{}, err
	}
	if !containsMember(members, input.Member) {
		return Deposit{}, fmt.Errorf("%w: %s", ErrUnknownMember, input.Member)
	}
	return Deposit{
		Date:   date,
		Member: input.Member,
		Amount: input.Amount,
		Note:   strings.TrimSpace(input.Note),
		Kind:   DepositKindManual,
	}, nil
}

func (service *Service) buildMeal(members []MemberName, input MealInput) (MealDetail, error) {
	date, err := NormalizeDate(input.Date, service.nowFn())
	if err != nil {
		return MealDetail{}, err
	}
	diners, err := orderDiners(members, input.Diners)
	if err != nil {
		return MealDetail{}, err
	}
	if !input.Payer.IsZero() && !containsMember(members, input.Payer) {
		return MealDetail{}, fmt.Errorf("%w: payer %s", ErrUnknownMember, input.Payer)
	}
	split, err := CalculateSplit(input, diners)
	if err != nil {
		return MealDetail{}, err
	}
	return MealDetail{
		Meal: Meal{
			Date:       date,
			EntryMode:  split.EntryMode,
			MainMode:   split.MainMode,
			SideMode:   split.SideMode,
			MainTotal:  split.MainTotal,
			SideTotal:  split.SideTotal,
			GrandTotal: split.GrandTotal,
			GuestTotal: split.GuestTotal,
			Payer:      input.Payer,
		},
		Shares: split.Shares,
	}, nil
}

func (detail MealDetail) withID(id MealID) MealDetail {
	detail.Meal.ID = id
	shares := make([]MealShare, len(detail.Shares))
	for index, share := range detail.Shares {
		share.MealID = id
		shares[index] = share
	}
	detail.Shares = shares
	return detail
}

func loadMealDetail(ctx context.Context, store Store, id MealID) (MealDetail, error) {
	meal, err := store.GetMeal(ctx, id)
	if err != nil {
		return MealDetail{}, err
	}
	shares, err := store.ListShares(ctx, id)
	if err != nil {
		return MealDetail{}, err
	}
	return MealDetail{Meal: meal, Shares: shares}, nil
}

// orderDiners returns the selected members in registry order.
func orderDiners(members []MemberName, selected []MemberName) ([]MemberName, error) {
	if len(selected) == 0 {
		return nil, ErrNoDinersSelected
	}
	wanted := make(map[MemberName]struct{}, len(selected))
	for _, name := range selected {
		if !containsMember(members, name) {
			return nil, fmt.Errorf("%w: diner %s", ErrUnknownMember, name)
		}
		wanted[name] = struct{}{}
	}
	diners := make([]MemberName, 0, len(wanted))
	for _, member := range members {
		if _, ok := wanted[member]; ok {
			diners = append(diners, member)
		}
	}
	return diners, nil
}

func containsMember(members []MemberName, name MemberName) bool {
	for _, member := range members {
		if member == name {
			return true
		}
	}
	return false
}

func depositsOf(deposits []Deposit, name MemberName) []Deposit {
	owned := make([]Deposit, 0)
	for _, deposit := range deposits {
		if deposit.Member == name {
			owned = append(owned, deposit)
		}
	}
	return owned
}

type memberSnapshot struct {
	Name     MemberName `json:"name"`
	Deposits []Deposit  `json:"deposits,omitempty"`
	Meals    []MealID   `json:"meals,omitempty"`
}
