package fund

import (
	"context"
	"errors"
	"sort"
	"testing"
)

var errStoreFailure = errors.New("store error")

type stubState struct {
	members       []MemberName
	deposits      map[DepositID]Deposit
	meals         map[MealID]Meal
	shares        map[MealID][]MealShare
	notices       map[NoticeID]Notice
	audit         []AuditEntry
	nextDepositID DepositID
	nextMealID    MealID
	nextNoticeID  NoticeID
}

func (state *stubState) clone() *stubState {
	cloned := &stubState{
		members:       append([]MemberName(nil), state.members...),
		deposits:      make(map[DepositID]Deposit, len(state.deposits)),
		meals:         make(map[MealID]Meal, len(state.meals)),
		shares:        make(map[MealID][]MealShare, len(state.shares)),
		notices:       make(map[NoticeID]Notice, len(state.notices)),
		audit:         append([]AuditEntry(nil), state.audit...),
		nextDepositID: state.nextDepositID,
		nextMealID:    state.nextMealID,
		nextNoticeID:  state.nextNoticeID,
	}
	for id, deposit := range state.deposits {
		cloned.deposits[id] = deposit
	}
	for id, meal := range state.meals {
		cloned.meals[id] = meal
	}
	for id, shares := range state.shares {
		cloned.shares[id] = append([]MealShare(nil), shares...)
	}
	for id, notice := range state.notices {
		cloned.notices[id] = notice
	}
	return cloned
}

// stubStore keeps fund tables in memory. WithTx works on a copy that replaces
// the committed state only when fn succeeds.
type stubStore struct {
	state *stubState

	listMembersError    error
	insertDepositError  error
	insertSharesError   error
	findSettlementError error
	sumDepositsError    error
	insertNoticeError   error
}

func newStubStore(test *testing.T, members ...string) *stubStore {
	test.Helper()
	store := &stubStore{
		state: &stubState{
			deposits: make(map[DepositID]Deposit),
			meals:    make(map[MealID]Meal),
			shares:   make(map[MealID][]MealShare),
			notices:  make(map[NoticeID]Notice),
		},
	}
	for _, raw := range members {
		if err := store.InsertMember(context.Background(), mustMemberName(test, raw)); err != nil {
			test.Fatalf("seed member %s: %v", raw, err)
		}
	}
	return store
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	draft := &stubStore{
		state:               store.state.clone(),
		listMembersError:    store.listMembersError,
		insertDepositError:  store.insertDepositError,
		insertSharesError:   store.insertSharesError,
		findSettlementError: store.findSettlementError,
		sumDepositsError:    store.sumDepositsError,
		insertNoticeError:   store.insertNoticeError,
	}
	if err := fn(ctx, draft); err != nil {
		return err
	}
	store.state = draft.state
	return nil
}

func (store *stubStore) ListMembers(ctx context.Context) ([]MemberName, error) {
	if store.listMembersError != nil {
		return nil, store.listMembersError
	}
	return append([]MemberName(nil), store.state.members...), nil
}

func (store *stubStore) InsertMember(ctx context.Context, name MemberName) error {
	for _, member := range store.state.members {
		if member == name {
			return ErrMemberExists
		}
	}
	store.state.members = append(store.state.members, name)
	sort.Slice(store.state.members, func(left, right int) bool {
		return store.state.members[left].String() < store.state.members[right].String()
	})
	return nil
}

func (store *stubStore) DeleteMember(ctx context.Context, name MemberName) error {
	store.state.members = withoutMember(store.state.members, name)
	for id, deposit := range store.state.deposits {
		if deposit.Member == name {
			delete(store.state.deposits, id)
		}
	}
	for mealID, shares := range store.state.shares {
		kept := make([]MealShare, 0, len(shares))
		for _, share := range shares {
			if share.Member != name {
				kept = append(kept, share)
			}
		}
		store.state.shares[mealID] = kept
	}
	for id, meal := range store.state.meals {
		if meal.Payer == name {
			meal.Payer = MemberName{}
			store.state.meals[id] = meal
		}
	}
	return nil
}

func (store *stubStore) InsertDeposit(ctx context.Context, deposit Deposit) (DepositID, error) {
	if store.insertDepositError != nil {
		return 0, store.insertDepositError
	}
	store.state.nextDepositID++
	deposit.ID = store.state.nextDepositID
	store.state.deposits[deposit.ID] = deposit
	return deposit.ID, nil
}

func (store *stubStore) GetDeposit(ctx context.Context, id DepositID) (Deposit, error) {
	deposit, ok := store.state.deposits[id]
	if !ok {
		return Deposit{}, ErrDepositNotFound
	}
	return deposit, nil
}

func (store *stubStore) UpdateDeposit(ctx context.Context, deposit Deposit) error {
	if _, ok := store.state.deposits[deposit.ID]; !ok {
		return ErrDepositNotFound
	}
	store.state.deposits[deposit.ID] = deposit
	return nil
}

func (store *stubStore) DeleteDeposit(ctx context.Context, id DepositID) error {
	if _, ok := store.state.deposits[id]; !ok {
		return ErrDepositNotFound
	}
	delete(store.state.deposits, id)
	return nil
}

func (store *stubStore) ListDeposits(ctx context.Context, limit int) ([]Deposit, error) {
	deposits := make([]Deposit, 0, len(store.state.deposits))
	for _, deposit := range store.state.deposits {
		deposits = append(deposits, deposit)
	}
	sort.Slice(deposits, func(left, right int) bool { return deposits[left].ID > deposits[right].ID })
	if limit > 0 && len(deposits) > limit {
		deposits = deposits[:limit]
	}
	return deposits, nil
}

func (store *stubStore) FindSettlementDeposit(ctx context.Context, mealID MealID) (Deposit, bool, error) {
	if store.findSettlementError != nil {
		return Deposit{}, false, store.findSettlementError
	}
	for _, deposit := range store.state.deposits {
		if deposit.Kind == DepositKindAutoSettlement && deposit.MealID == mealID {
			return deposit, true, nil
		}
	}
	return Deposit{}, false, nil
}

func (store *stubStore) InsertMeal(ctx context.Context, meal Meal) (MealID, error) {
	store.state.nextMealID++
	meal.ID = store.state.nextMealID
	store.state.meals[meal.ID] = meal
	return meal.ID, nil
}

func (store *stubStore) GetMeal(ctx context.Context, id MealID) (Meal, error) {
	meal, ok := store.state.meals[id]
	if !ok {
		return Meal{}, ErrMealNotFound
	}
	return meal, nil
}

func (store *stubStore) UpdateMeal(ctx context.Context, meal Meal) error {
	if _, ok := store.state.meals[meal.ID]; !ok {
		return ErrMealNotFound
	}
	store.state.meals[meal.ID] = meal
	return nil
}

func (store *stubStore) DeleteMeal(ctx context.Context, id MealID) error {
	if _, ok := store.state.meals[id]; !ok {
		return ErrMealNotFound
	}
	delete(store.state.meals, id)
	delete(store.state.shares, id)
	return nil
}

func (store *stubStore) ListMeals(ctx context.Context, limit int) ([]Meal, error) {
	meals := make([]Meal, 0, len(store.state.meals))
	for _, meal := range store.state.meals {
		meals = append(meals, meal)
	}
	sort.Slice(meals, func(left, right int) bool { return meals[left].ID > meals[right].ID })
	if limit > 0 && len(meals) > limit {
		meals = meals[:limit]
	}
	return meals, nil
}

func (store *stubStore) ListMealSummaries(ctx context.Context, limit int) ([]MealSummary, error) {
	meals, err := store.ListMeals(ctx, limit)
	if err != nil {
		return nil, err
	}
	summaries := make([]MealSummary, 0, len(meals))
	for _, meal := range meals {
		shares := store.state.shares[meal.ID]
		summaries = append(summaries, MealSummary{
			ID:          meal.ID,
			Date:        meal.Date,
			EntryMode:   meal.EntryMode,
			Payer:       meal.Payer,
			Diners:      len(shares),
			MemberTotal: sumShares(shares),
			GuestTotal:  meal.GuestTotal,
		})
	}
	return summaries, nil
}

func (store *stubStore) ListMealIDsByDiner(ctx context.Context, name MemberName) ([]MealID, error) {
	mealIDs := make([]MealID, 0)
	for mealID, shares := range store.state.shares {
		for _, share := range shares {
			if share.Member == name {
				mealIDs = append(mealIDs, mealID)
				break
			}
		}
	}
	sort.Slice(mealIDs, func(left, right int) bool { return mealIDs[left] < mealIDs[right] })
	return mealIDs, nil
}

func (store *stubStore) InsertShares(ctx context.Context, shares []MealShare) error {
	if store.insertSharesError != nil {
		return store.insertSharesError
	}
	for _, share := range shares {
		store.state.shares[share.MealID] = append(store.state.shares[share.MealID], share)
	}
	return nil
}

func (store *stubStore) ListShares(ctx context.Context, mealID MealID) ([]MealShare, error) {
	return append([]MealShare(nil), store.state.shares[mealID]...), nil
}

func (store *stubStore) ListAllShares(ctx context.Context) ([]MealShare, error) {
	all := make([]MealShare, 0)
	for _, shares := range store.state.shares {
		all = append(all, shares...)
	}
	return all, nil
}

func (store *stubStore) DeleteShares(ctx context.Context, mealID MealID) error {
	delete(store.state.shares, mealID)
	return nil
}

func (store *stubStore) SumDepositsByMember(ctx context.Context) (map[MemberName]Amount, error) {
	if store.sumDepositsError != nil {
		return nil, store.sumDepositsError
	}
	totals := make(map[MemberName]Amount)
	for _, deposit := range store.state.deposits {
		totals[deposit.Member] += deposit.Amount
	}
	return totals, nil
}

func (store *stubStore) SumSharesByMember(ctx context.Context) (map[MemberName]Amount, error) {
	totals := make(map[MemberName]Amount)
	for _, shares := range store.state.shares {
		for _, share := range shares {
			totals[share.Member] += share.TotalAmount
		}
	}
	return totals, nil
}

func (store *stubStore) CountMealsByMember(ctx context.Context) (map[MemberName]int, error) {
	counts := make(map[MemberName]int)
	for _, shares := range store.state.shares {
		for _, share := range shares {
			counts[share.Member]++
		}
	}
	return counts, nil
}

func (store *stubStore) SumDepositsFor(ctx context.Context, name MemberName) (Amount, error) {
	totals, err := store.SumDepositsByMember(ctx)
	if err != nil {
		return 0, err
	}
	return totals[name], nil
}

func (store *stubStore) SumSharesFor(ctx context.Context, name MemberName) (Amount, error) {
	totals, err := store.SumSharesByMember(ctx)
	if err != nil {
		return 0, err
	}
	return totals[name], nil
}

func (store *stubStore) InsertNotice(ctx context.Context, notice Notice) (NoticeID, error) {
	if store.insertNoticeError != nil {
		return 0, store.insertNoticeError
	}
	store.state.nextNoticeID++
	notice.ID = store.state.nextNoticeID
	store.state.notices[notice.ID] = notice
	return notice.ID, nil
}

func (store *stubStore) GetNotice(ctx context.Context, id NoticeID) (Notice, error) {
	notice, ok := store.state.notices[id]
	if !ok {
		return Notice{}, ErrNoticeNotFound
	}
	return notice, nil
}

func (store *stubStore) DeleteNotice(ctx context.Context, id NoticeID) error {
	delete(store.state.notices, id)
	return nil
}

func (store *stubStore) ListNotices(ctx context.Context, limit int) ([]Notice, error) {
	notices := make([]Notice, 0, len(store.state.notices))
	for _, notice := range store.state.notices {
		notices = append(notices, notice)
	}
	sort.Slice(notices, func(left, right int) bool { return notices[left].ID > notices[right].ID })
	if limit > 0 && len(notices) > limit {
		notices = notices[:limit]
	}
	return notices, nil
}

func (store *stubStore) ListAuditEntries(ctx context.Context, limit int) ([]AuditEntry, error) {
	return append([]AuditEntry(nil), store.state.audit...), nil
}

// RecordAudit lets the stub double as the service's audit recorder.
func (store *stubStore) RecordAudit(ctx context.Context, entry AuditEntry) error {
	store.state.audit = append(store.state.audit, entry)
	return nil
}

func (store *stubStore) settlementDeposits() []Deposit {
	settlements := make([]Deposit, 0)
	for _, deposit := range store.state.deposits {
		if deposit.Kind == DepositKindAutoSettlement {
			settlements = append(settlements, deposit)
		}
	}
	sort.Slice(settlements, func(left, right int) bool { return settlements[left].ID < settlements[right].ID })
	return settlements
}

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

type recorderAuditor struct {
	entries []AuditEntry
	err     error
}

func (auditor *recorderAuditor) RecordAudit(_ context.Context, entry AuditEntry) error {
	if auditor.err != nil {
		return auditor.err
	}
	auditor.entries = append(auditor.entries, entry)
	return nil
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return fixedNowUnixUTC }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustMemberName(test *testing.T, raw string) MemberName {
	test.Helper()
	name, err := NewMemberName(raw)
	if err != nil {
		test.Fatalf("member name: %v", err)
	}
	return name
}

func mustMemberNames(test *testing.T, raws ...string) []MemberName {
	test.Helper()
	names := make([]MemberName, 0, len(raws))
	for _, raw := range raws {
		names = append(names, mustMemberName(test, raw))
	}
	return names
}

func mustRecordDeposit(test *testing.T, service *Service, member string, amount Amount) DepositID {
	test.Helper()
	depositID, err := service.RecordDeposit(context.Background(), DepositInput{
		Date:   depositDate,
		Member: mustMemberName(test, member),
		Amount: amount,
	})
	if err != nil {
		test.Fatalf("record deposit: %v", err)
	}
	return depositID
}

func mustRecordMeal(test *testing.T, service *Service, input MealInput) MealID {
	test.Helper()
	mealID, err := service.RecordMeal(context.Background(), input)
	if err != nil {
		test.Fatalf("record meal: %v", err)
	}
	return mealID
}

func withoutMember(members []MemberName, name MemberName) []MemberName {
	remaining := make([]MemberName, 0, len(members))
	for _, member := range members {
		if member != name {
			remaining = append(remaining, member)
		}
	}
	return remaining
}
