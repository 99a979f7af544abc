package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/lunchfund/pkg/fund"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPayloadJSON    = "{}"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectAudit     = "audit"
	errorSubjectBalance   = "balance"
	errorSubjectDeposit   = "deposit"
	errorSubjectMeal      = "meal"
	errorSubjectMember    = "member"
	errorSubjectNotice    = "notice"
	errorSubjectShare     = "share"
	errorCodeCount        = "count"
	errorCodeDelete       = "delete"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeInsert       = "insert"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeSum          = "sum"
	errorCodeUpdate       = "update"
)

// Store implements fund.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore fund.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) ListMembers(ctx context.Context) ([]fund.MemberName, error) {
	var rows []Member
	if err := store.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, wrapDriverError(errorSubjectMember, errorCodeList, err)
	}
	members := make([]fund.MemberName, 0, len(rows))
	for _, row := range rows {
		name, err := fund.NewMemberName(row.Name)
		if err != nil {
			return nil, wrapStoreError(errorSubjectMember, errorCodeInvalid, err)
		}
		members = append(members, name)
	}
	return members, nil
}

func (store *Store) InsertMember(ctx context.Context, name fund.MemberName) error {
	model := Member{Name: name.String(), CreatedAt: time.Now().UTC()}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectMember, errorCodeDuplicate, fund.ErrMemberExists)
	}
	if err != nil {
		return wrapDriverError(errorSubjectMember, errorCodeInsert, err)
	}
	return nil
}

// DeleteMember removes the member with their shares and deposits and clears their meal payments.
// The statements run explicitly so the cascade does not depend on SQLite's foreign_keys pragma.
func (store *Store) DeleteMember(ctx context.Context, name fund.MemberName) error {
	db := store.db.WithContext(ctx)
	if err := db.Where("member_name = ?", name.String()).Delete(&MealShare{}).Error; err != nil {
		return wrapDriverError(errorSubjectShare, errorCodeDelete, err)
	}
	if err := db.Where("member_name = ?", name.String()).Delete(&Deposit{}).Error; err != nil {
		return wrapDriverError(errorSubjectDeposit, errorCodeDelete, err)
	}
	if err := db.Model(&Meal{}).Where("payer_name = ?", name.String()).Update("payer_name", nil).Error; err != nil {
		return wrapDriverError(errorSubjectMeal, errorCodeUpdate, err)
	}
	result := db.Where("name = ?", name.String()).Delete(&Member{})
	if result.Error != nil {
		return wrapDriverError(errorSubjectMember, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectMember, errorCodeDelete, fund.ErrMemberNotFound)
	}
	return nil
}

func (store *Store) InsertDeposit(ctx context.Context, deposit fund.Deposit) (fund.DepositID, error) {
	model := depositModel(deposit)
	model.CreatedAt = time.Now().UTC()
	err := store.db.WithContext(ctx).Omit(clause.Associations).Create(&model).Error
	if err != nil {
		return 0, wrapDriverError(errorSubjectDeposit, errorCodeInsert, err)
	}
	return fund.DepositID(model.ID), nil
}

func (store *Store) GetDeposit(ctx context.Context, id fund.DepositID) (fund.Deposit, error) {
	var model Deposit
	err := store.db.WithContext(ctx).Where("id = ?", int64(id)).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fund.Deposit{}, wrapStoreError(errorSubjectDeposit, errorCodeGet, fund.ErrDepositNotFound)
		}
		return fund.Deposit{}, wrapDriverError(errorSubjectDeposit, errorCodeGet, err)
	}
	deposit, err := mapDeposit(model)
	if err != nil {
		return fund.Deposit{}, wrapStoreError(errorSubjectDeposit, errorCodeInvalid, err)
	}
	return deposit, nil
}

func (store *Store) UpdateDeposit(ctx context.Context, deposit fund.Deposit) error {
	model := depositModel(deposit)
	result := store.db.WithContext(ctx).
		Model(&Deposit{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"entry_date":  model.EntryDate,
			"member_name": model.MemberName,
			"amount":      model.Amount,
			"note":        model.Note,
			"kind":        model.Kind,
			"meal_id":     model.MealID,
		})
	if result.Error != nil {
		return wrapDriverError(errorSubjectDeposit, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectDeposit, errorCodeUpdate, fund.ErrDepositNotFound)
	}
	return nil
}

func (store *Store) DeleteDeposit(ctx context.Context, id fund.DepositID) error {
	result := store.db.WithContext(ctx).Where("id = ?", int64(id)).Delete(&Deposit{})
	if result.Error != nil {
		return wrapDriverError(errorSubjectDeposit, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectDeposit, errorCodeDelete, fund.ErrDepositNotFound)
	}
	return nil
}

func (store *Store) ListDeposits(ctx context.Context, limit int) ([]fund.Deposit, error) {
	var rows []Deposit
	err := withLimit(store.db.WithContext(ctx).Order("entry_date DESC, id DESC"), limit).Find(&rows).Error
	if err != nil {
		return nil, wrapDriverError(errorSubjectDeposit, errorCodeList, err)
	}
	deposits := make([]fund.Deposit, 0, len(rows))
	for _, row := range rows {
		deposit, err := mapDeposit(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectDeposit, errorCodeInvalid, err)
		}
		deposits = append(deposits, deposit)
	}
	return deposits, nil
}

func (store *Store) FindSettlementDeposit(ctx context.Context, mealID fund.MealID) (fund.Deposit, bool, error) {
	var model Deposit
	err := store.db.WithContext(ctx).
		Where("meal_id = ? AND kind = ?", int64(mealID), string(fund.DepositKindAutoSettlement)).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fund.Deposit{}, false, nil
	}
	if err != nil {
		return fund.Deposit{}, false, wrapDriverError(errorSubjectDeposit, errorCodeGet, err)
	}
	deposit, err := mapDeposit(model)
	if err != nil {
		return fund.Deposit{}, false, wrapStoreError(errorSubjectDeposit, errorCodeInvalid, err)
	}
	return deposit, true, nil
}

func (store *Store) InsertMeal(ctx context.Context, meal fund.Meal) (fund.MealID, error) {
	model := mealModel(meal)
	model.CreatedAt = time.Now().UTC()
	if err := store.db.WithContext(ctx).Omit(clause.Associations).Create(&model).Error; err != nil {
		return 0, wrapDriverError(errorSubjectMeal, errorCodeInsert, err)
	}
	return fund.MealID(model.ID), nil
}

func (store *Store) GetMeal(ctx context.Context, id fund.MealID) (fund.Meal, error) {
	var model Meal
	err := store.db.WithContext(ctx).Where("id = ?", int64(id)).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fund.Meal{}, wrapStoreError(errorSubjectMeal, errorCodeGet, fund.ErrMealNotFound)
		}
		return fund.Meal{}, wrapDriverError(errorSubjectMeal, errorCodeGet, err)
	}
	meal, err := mapMeal(model)
	if err != nil {
		return fund.Meal{}, wrapStoreError(errorSubjectMeal, errorCodeInvalid, err)
	}
	return meal, nil
}

func (store *Store) UpdateMeal(ctx context.Context, meal fund.Meal) error {
	model := mealModel(meal)
	result := store.db.WithContext(ctx).
		Model(&Meal{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"entry_date":  model.EntryDate,
			"entry_mode":  model.EntryMode,
			"main_mode":   model.MainMode,
			"side_mode":   model.SideMode,
			"main_total":  model.MainTotal,
			"side_total":  model.SideTotal,
			"grand_total": model.GrandTotal,
			"guest_total": model.GuestTotal,
			"payer_name":  model.PayerName,
		})
	if result.Error != nil {
		return wrapDriverError(errorSubjectMeal, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectMeal, errorCodeUpdate, fund.ErrMealNotFound)
	}
	return nil
}

func (store *Store) DeleteMeal(ctx context.Context, id fund.MealID) error {
	db := store.db.WithContext(ctx)
	if err := db.Where("meal_id = ?", int64(id)).Delete(&MealShare{}).Error; err != nil {
		return wrapDriverError(errorSubjectShare, errorCodeDelete, err)
	}
	if err := db.Where("meal_id = ?", int64(id)).Delete(&Deposit{}).Error; err != nil {
		return wrapDriverError(errorSubjectDeposit, errorCodeDelete, err)
	}
	result := db.Where("id = ?", int64(id)).Delete(&Meal{})
	if result.Error != nil {
		return wrapDriverError(errorSubjectMeal, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectMeal, errorCodeDelete, fund.ErrMealNotFound)
	}
	return nil
}

func (store *Store) ListMeals(ctx context.Context, limit int) ([]fund.Meal, error) {
	var rows []Meal
	err := withLimit(store.db.WithContext(ctx).Order("entry_date DESC, id DESC"), limit).Find(&rows).Error
	if err != nil {
		return nil, wrapDriverError(errorSubjectMeal, errorCodeList, err)
	}
	meals := make([]fund.Meal, 0, len(rows))
	for _, row := range rows {
		meal, err := mapMeal(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectMeal, errorCodeInvalid, err)
		}
		meals = append(meals, meal)
	}
	return meals, nil
}

func (store *Store) ListMealSummaries(ctx context.Context, limit int) ([]fund.MealSummary, error) {
	var rows []mealSummaryRow
	query := store.db.WithContext(ctx).
		Table(Meal{}.TableName()).
		Select("meals.id, meals.entry_date, meals.entry_mode, meals.payer_name, meals.guest_total, " +
			"count(meal_shares.member_name) as diners, coalesce(sum(meal_shares.total_amount),0) as member_total").
		Joins("LEFT JOIN meal_shares ON meal_shares.meal_id = meals.id").
		Group("meals.id, meals.entry_date, meals.entry_mode, meals.payer_name, meals.guest_total").
		Order("meals.entry_date DESC, meals.id DESC")
	if err := withLimit(query, limit).Scan(&rows).Error; err != nil {
		return nil, wrapDriverError(errorSubjectMeal, errorCodeList, err)
	}
	summaries := make([]fund.MealSummary, 0, len(rows))
	for _, row := range rows {
		payer, err := optionalMemberName(row.PayerName)
		if err != nil {
			return nil, wrapStoreError(errorSubjectMeal, errorCodeInvalid, err)
		}
		summaries = append(summaries, fund.MealSummary{
			ID:          fund.MealID(row.ID),
			Date:        row.EntryDate,
			EntryMode:   fund.EntryMode(row.EntryMode),
			Payer:       payer,
			Diners:      row.Diners,
			MemberTotal: fund.Amount(row.MemberTotal),
			GuestTotal:  fund.Amount(row.GuestTotal),
		})
	}
	return summaries, nil
}

func (store *Store) ListMealIDsByDiner(ctx context.Context, name fund.MemberName) ([]fund.MealID, error) {
	var ids []int64
	err := store.db.WithContext(ctx).
		Model(&MealShare{}).
		Where("member_name = ?", name.String()).
		Order("meal_id ASC").
		Pluck("meal_id", &ids).Error
	if err != nil {
		return nil, wrapDriverError(errorSubjectShare, errorCodeList, err)
	}
	mealIDs := make([]fund.MealID, 0, len(ids))
	for _, id := range ids {
		mealIDs = append(mealIDs, fund.MealID(id))
	}
	return mealIDs, nil
}

func (store *Store) InsertShares(ctx context.Context, shares []fund.MealShare) error {
	if len(shares) == 0 {
		return nil
	}
	models := make([]MealShare, 0, len(shares))
	for _, share := range shares {
		models = append(models, MealShare{
			MealID:      int64(share.MealID),
			MemberName:  share.Member.String(),
			MainAmount:  share.MainAmount.Int64(),
			SideAmount:  share.SideAmount.Int64(),
			TotalAmount: share.TotalAmount.Int64(),
		})
	}
	if err := store.db.WithContext(ctx).Omit(clause.Associations).Create(&models).Error; err != nil {
		return wrapDriverError(errorSubjectShare, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListShares(ctx context.Context, mealID fund.MealID) ([]fund.MealShare, error) {
	var rows []MealShare
	err := store.db.WithContext(ctx).Where("meal_id = ?", int64(mealID)).Order("member_name ASC").Find(&rows).Error
	if err != nil {
		return nil, wrapDriverError(errorSubjectShare, errorCodeList, err)
	}
	return mapShares(rows)
}

func (store *Store) ListAllShares(ctx context.Context) ([]fund.MealShare, error) {
	var rows []MealShare
	if err := store.db.WithContext(ctx).Order("meal_id ASC, member_name ASC").Find(&rows).Error; err != nil {
		return nil, wrapDriverError(errorSubjectShare, errorCodeList, err)
	}
	return mapShares(rows)
}

func (store *Store) DeleteShares(ctx context.Context, mealID fund.MealID) error {
	if err := store.db.WithContext(ctx).Where("meal_id = ?", int64(mealID)).Delete(&MealShare{}).Error; err != nil {
		return wrapDriverError(errorSubjectShare, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) SumDepositsByMember(ctx context.Context) (map[fund.MemberName]fund.Amount, error) {
	var rows []memberTotal
	err := store.db.WithContext(ctx).
		Model(&Deposit{}).
		Select("member_name, coalesce(sum(amount),0) as total").
		Group("member_name").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapDriverError(errorSubjectBalance, errorCodeSum, err)
	}
	return mapMemberAmounts(rows)
}

func (store *Store) SumSharesByMember(ctx context.Context) (map[fund.MemberName]fund.Amount, error) {
	var rows []memberTotal
	err := store.db.WithContext(ctx).
		Model(&MealShare{}).
		Select("member_name, coalesce(sum(total_amount),0) as total").
		Group("member_name").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapDriverError(errorSubjectBalance, errorCodeSum, err)
	}
	return mapMemberAmounts(rows)
}

func (store *Store) CountMealsByMember(ctx context.Context) (map[fund.MemberName]int, error) {
	var rows []memberTotal
	err := store.db.WithContext(ctx).
		Model(&MealShare{}).
		Select("member_name, count(*) as total").
		Group("member_name").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapDriverError(errorSubjectBalance, errorCodeCount, err)
	}
	counts := make(map[fund.MemberName]int, len(rows))
	for _, row := range rows {
		name, err := fund.NewMemberName(row.MemberName)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
		}
		counts[name] = int(row.Total)
	}
	return counts, nil
}

func (store *Store) SumDepositsFor(ctx context.Context, name fund.MemberName) (fund.Amount, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&Deposit{}).
		Select("coalesce(sum(amount),0) as total").
		Where("member_name = ?", name.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapDriverError(errorSubjectBalance, errorCodeSum, err)
	}
	total, err := fund.NewAmount(sum.Total)
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
	}
	return total, nil
}

func (store *Store) SumSharesFor(ctx context.Context, name fund.MemberName) (fund.Amount, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&MealShare{}).
		Select("coalesce(sum(total_amount),0) as total").
		Where("member_name = ?", name.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapDriverError(errorSubjectBalance, errorCodeSum, err)
	}
	total, err := fund.NewAmount(sum.Total)
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
	}
	return total, nil
}

func (store *Store) InsertNotice(ctx context.Context, notice fund.Notice) (fund.NoticeID, error) {
	model := Notice{EntryDate: notice.Date, Content: notice.Content, CreatedAt: time.Now().UTC()}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return 0, wrapDriverError(errorSubjectNotice, errorCodeInsert, err)
	}
	return fund.NoticeID(model.ID), nil
}

func (store *Store) GetNotice(ctx context.Context, id fund.NoticeID) (fund.Notice, error) {
	var model Notice
	err := store.db.WithContext(ctx).Where("id = ?", int64(id)).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fund.Notice{}, wrapStoreError(errorSubjectNotice, errorCodeGet, fund.ErrNoticeNotFound)
		}
		return fund.Notice{}, wrapDriverError(errorSubjectNotice, errorCodeGet, err)
	}
	return mapNotice(model), nil
}

func (store *Store) DeleteNotice(ctx context.Context, id fund.NoticeID) error {
	result := store.db.WithContext(ctx).Where("id = ?", int64(id)).Delete(&Notice{})
	if result.Error != nil {
		return wrapDriverError(errorSubjectNotice, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectNotice, errorCodeDelete, fund.ErrNoticeNotFound)
	}
	return nil
}

func (store *Store) ListNotices(ctx context.Context, limit int) ([]fund.Notice, error) {
	var rows []Notice
	err := withLimit(store.db.WithContext(ctx).Order("entry_date DESC, id DESC"), limit).Find(&rows).Error
	if err != nil {
		return nil, wrapDriverError(errorSubjectNotice, errorCodeList, err)
	}
	notices := make([]fund.Notice, 0, len(rows))
	for _, row := range rows {
		notices = append(notices, mapNotice(row))
	}
	return notices, nil
}

// RecordAudit appends an audit entry. It implements fund.AuditRecorder.
func (store *Store) RecordAudit(ctx context.Context, entry fund.AuditEntry) error {
	payload := string(entry.Payload)
	if payload == "" {
		payload = defaultPayloadJSON
	}
	model := AuditEntry{
		EntryID:   entry.ID,
		CreatedAt: time.Unix(entry.CreatedUnixUTC, 0).UTC(),
		Action:    string(entry.Action),
		Entity:    entry.Entity,
		EntityID:  entry.EntityID,
		Payload:   datatypes.JSON([]byte(payload)),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapDriverError(errorSubjectAudit, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListAuditEntries(ctx context.Context, limit int) ([]fund.AuditEntry, error) {
	var rows []AuditEntry
	err := withLimit(store.db.WithContext(ctx).Order("created_at DESC, sequence DESC"), limit).Find(&rows).Error
	if err != nil {
		return nil, wrapDriverError(errorSubjectAudit, errorCodeList, err)
	}
	entries := make([]fund.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, fund.AuditEntry{
			ID:             row.EntryID,
			CreatedUnixUTC: row.CreatedAt.Unix(),
			Action:         fund.AuditAction(row.Action),
			Entity:         row.Entity,
			EntityID:       row.EntityID,
			Payload:        []byte(row.Payload),
		})
	}
	return entries, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return fund.WrapError(errorOperationStore, subject, code, err)
}

func wrapDriverError(subject string, code string, err error) error {
	return fund.StorageError(errorOperationStore, subject, code, err)
}

func withLimit(query *gorm.DB, limit int) *gorm.DB {
	if limit > 0 {
		return query.Limit(limit)
	}
	return query
}

type sqlSum struct {
	Total int64
}

type memberTotal struct {
	MemberName string
	Total      int64
}

type mealSummaryRow struct {
	ID          int64
	EntryDate   string
	EntryMode   string
	PayerName   *string
	GuestTotal  int64
	Diners      int
	MemberTotal int64
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

func depositModel(deposit fund.Deposit) Deposit {
	model := Deposit{
		ID:         int64(deposit.ID),
		EntryDate:  deposit.Date,
		MemberName: deposit.Member.String(),
		Amount:     deposit.Amount.Int64(),
		Note:       deposit.Note,
		Kind:       string(deposit.Kind),
	}
	if model.Kind == "" {
		model.Kind = string(fund.DepositKindManual)
	}
	if deposit.MealID != 0 {
		mealID := int64(deposit.MealID)
		model.MealID = &mealID
	}
	return model
}

func mapDeposit(row Deposit) (fund.Deposit, error) {
	member, err := fund.NewMemberName(row.MemberName)
	if err != nil {
		return fund.Deposit{}, err
	}
	amount, err := fund.NewAmount(row.Amount)
	if err != nil {
		return fund.Deposit{}, err
	}
	kind, err := fund.ParseDepositKind(row.Kind)
	if err != nil {
		return fund.Deposit{}, err
	}
	deposit := fund.Deposit{
		ID:     fund.DepositID(row.ID),
		Date:   row.EntryDate,
		Member: member,
		Amount: amount,
		Note:   row.Note,
		Kind:   kind,
	}
	if row.MealID != nil {
		deposit.MealID = fund.MealID(*row.MealID)
	}
	return deposit, nil
}

func mealModel(meal fund.Meal) Meal {
	model := Meal{
		ID:         int64(meal.ID),
		EntryDate:  meal.Date,
		EntryMode:  string(meal.EntryMode),
		MainMode:   string(meal.MainMode),
		SideMode:   string(meal.SideMode),
		MainTotal:  meal.MainTotal.Int64(),
		SideTotal:  meal.SideTotal.Int64(),
		GrandTotal: meal.GrandTotal.Int64(),
		GuestTotal: meal.GuestTotal.Int64(),
	}
	if !meal.Payer.IsZero() {
		payer := meal.Payer.String()
		model.PayerName = &payer
	}
	return model
}

func mapMeal(row Meal) (fund.Meal, error) {
	entryMode, err := fund.ParseEntryMode(row.EntryMode)
	if err != nil {
		return fund.Meal{}, err
	}
	mainMode, err := fund.ParseSplitMode(row.MainMode)
	if err != nil {
		return fund.Meal{}, err
	}
	sideMode, err := fund.ParseSplitMode(row.SideMode)
	if err != nil {
		return fund.Meal{}, err
	}
	payer, err := optionalMemberName(row.PayerName)
	if err != nil {
		return fund.Meal{}, err
	}
	return fund.Meal{
		ID:         fund.MealID(row.ID),
		Date:       row.EntryDate,
		EntryMode:  entryMode,
		MainMode:   mainMode,
		SideMode:   sideMode,
		MainTotal:  fund.Amount(row.MainTotal),
		SideTotal:  fund.Amount(row.SideTotal),
		GrandTotal: fund.Amount(row.GrandTotal),
		GuestTotal: fund.Amount(row.GuestTotal),
		Payer:      payer,
	}, nil
}

func mapShares(rows []MealShare) ([]fund.MealShare, error) {
	shares := make([]fund.MealShare, 0, len(rows))
	for _, row := range rows {
		member, err := fund.NewMemberName(row.MemberName)
		if err != nil {
			return nil, wrapStoreError(errorSubjectShare, errorCodeInvalid, err)
		}
		shares = append(shares, fund.MealShare{
			MealID:      fund.MealID(row.MealID),
			Member:      member,
			MainAmount:  fund.Amount(row.MainAmount),
			SideAmount:  fund.Amount(row.SideAmount),
			TotalAmount: fund.Amount(row.TotalAmount),
		})
	}
	return shares, nil
}

func mapMemberAmounts(rows []memberTotal) (map[fund.MemberName]fund.Amount, error) {
	totals := make(map[fund.MemberName]fund.Amount, len(rows))
	for _, row := range rows {
		name, err := fund.NewMemberName(row.MemberName)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
		}
		totals[name] = fund.Amount(row.Total)
	}
	return totals, nil
}

func mapNotice(row Notice) fund.Notice {
	return fund.Notice{ID: fund.NoticeID(row.ID), Date: row.EntryDate, Content: row.Content}
}

func optionalMemberName(value *string) (fund.MemberName, error) {
	if value == nil || *value == "" {
		return fund.MemberName{}, nil
	}
	return fund.NewMemberName(*value)
}
