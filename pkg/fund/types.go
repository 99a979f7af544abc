package fund

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	dateLayout          = "2006-01-02"
	maxMemberNameLength = 64
)

// Amount is a non-negative sum of whole currency units.
type Amount int64

// MemberName identifies a fund member. The name is the member's only identity.
type MemberName struct {
	value string
}

// MealID identifies a stored meal.
type MealID int64

// DepositID identifies a stored deposit.
type DepositID int64

// NoticeID identifies a stored notice.
type NoticeID int64

// DepositKind distinguishes member top-ups from payer reimbursements.
type DepositKind string

const (
	DepositKindManual         DepositKind = "manual"
	DepositKindAutoSettlement DepositKind = "auto_settlement"
)

// EntryMode selects how a meal's cost was entered.
type EntryMode string

const (
	EntryModeTotal    EntryMode = "total"
	EntryModeDetailed EntryMode = "detailed"
)

// SplitMode selects how a cost component is divided among diners.
type SplitMode string

const (
	SplitModeEqual  SplitMode = "equal"
	SplitModeCustom SplitMode = "custom"
	SplitModeNone   SplitMode = "none"
)

// Deposit is money added to a member's balance.
type Deposit struct {
	ID     DepositID   `json:"id"`
	Date   string      `json:"date"`
	Member MemberName  `json:"member"`
	Amount Amount      `json:"amount"`
	Note   string      `json:"note"`
	Kind   DepositKind `json:"kind"`
	MealID MealID      `json:"meal_id,omitempty"`
}

// Meal is the header of a shared meal. Payer is zero when nobody pre-paid.
type Meal struct {
	ID         MealID     `json:"id"`
	Date       string     `json:"date"`
	EntryMode  EntryMode  `json:"entry_mode"`
	MainMode   SplitMode  `json:"main_mode"`
	SideMode   SplitMode  `json:"side_mode"`
	MainTotal  Amount     `json:"main_total"`
	SideTotal  Amount     `json:"side_total"`
	GrandTotal Amount     `json:"grand_total"`
	GuestTotal Amount     `json:"guest_total"`
	Payer      MemberName `json:"payer"`
}

// MealShare is one diner's charge for one meal.
type MealShare struct {
	MealID      MealID     `json:"meal_id"`
	Member      MemberName `json:"member"`
	MainAmount  Amount     `json:"main_amount"`
	SideAmount  Amount     `json:"side_amount"`
	TotalAmount Amount     `json:"total_amount"`
}

// MealDetail is a meal header together with its shares.
type MealDetail struct {
	Meal   Meal        `json:"meal"`
	Shares []MealShare `json:"shares"`
}

// MealSummary is the list view of a meal.
type MealSummary struct {
	ID          MealID     `json:"id"`
	Date        string     `json:"date"`
	EntryMode   EntryMode  `json:"entry_mode"`
	Payer       MemberName `json:"payer"`
	Diners      int        `json:"diners"`
	MemberTotal Amount     `json:"member_total"`
	GuestTotal  Amount     `json:"guest_total"`
}

// Notice is a short announcement shown to members.
type Notice struct {
	ID      NoticeID `json:"id"`
	Date    string   `json:"date"`
	Content string   `json:"content"`
}

// MemberBalance is the projected position of one member.
type MemberBalance struct {
	Member    MemberName `json:"member"`
	Deposited Amount     `json:"deposited"`
	Consumed  Amount     `json:"consumed"`
	Balance   int64      `json:"balance"`
	Meals     int        `json:"meals"`
}

// Negative reports whether the member owes the fund.
func (balance MemberBalance) Negative() bool {
	return balance.Balance < 0
}

// FundTotals aggregates every member's position.
type FundTotals struct {
	Deposited Amount `json:"deposited"`
	Consumed  Amount `json:"consumed"`
	Balance   int64  `json:"balance"`
}

// Snapshot is a read-only dump of all fund tables.
type Snapshot struct {
	Members  []MemberName `json:"members"`
	Deposits []Deposit    `json:"deposits"`
	Meals    []Meal       `json:"meals"`
	Shares   []MealShare  `json:"shares"`
	Notices  []Notice     `json:"notices"`
	Audit    []AuditEntry `json:"audit"`
}

// Store is the persistence contract used by Service.
// Every mutation made by an operation goes through the txStore handed to WithTx.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	ListMembers(ctx context.Context) ([]MemberName, error)
	InsertMember(ctx context.Context, name MemberName) error
	DeleteMember(ctx context.Context, name MemberName) error

	InsertDeposit(ctx context.Context, deposit Deposit) (DepositID, error)
	GetDeposit(ctx context.Context, id DepositID) (Deposit, error)
	UpdateDeposit(ctx context.Context, deposit Deposit) error
	DeleteDeposit(ctx context.Context, id DepositID) error
	ListDeposits(ctx context.Context, limit int) ([]Deposit, error)
	FindSettlementDeposit(ctx context.Context, mealID MealID) (Deposit, bool, error)

	InsertMeal(ctx context.Context, meal Meal) (MealID, error)
	GetMeal(ctx context.Context, id MealID) (Meal, error)
	UpdateMeal(ctx context.Context, meal Meal) error
	DeleteMeal(ctx context.Context, id MealID) error
	ListMeals(ctx context.Context, limit int) ([]Meal, error)
	ListMealSummaries(ctx context.Context, limit int) ([]MealSummary, error)
	ListMealIDsByDiner(ctx context.Context, name MemberName) ([]MealID, error)

	InsertShares(ctx context.Context, shares []MealShare) error
	ListShares(ctx context.Context, mealID MealID) ([]MealShare, error)
	ListAllShares(ctx context.Context) ([]MealShare, error)
	DeleteShares(ctx context.Context, mealID MealID) error

	SumDepositsByMember(ctx context.Context) (map[MemberName]Amount, error)
	SumSharesByMember(ctx context.Context) (map[MemberName]Amount, error)
	CountMealsByMember(ctx context.Context) (map[MemberName]int, error)
	SumDepositsFor(ctx context.Context, name MemberName) (Amount, error)
	SumSharesFor(ctx context.Context, name MemberName) (Amount, error)

	InsertNotice(ctx context.Context, notice Notice) (NoticeID, error)
	GetNotice(ctx context.Context, id NoticeID) (Notice, error)
	DeleteNotice(ctx context.Context, id NoticeID) error
	ListNotices(ctx context.Context, limit int) ([]Notice, error)

	ListAuditEntries(ctx context.Context, limit int) ([]AuditEntry, error)
}

// NewMemberName validates and normalizes a member name.
func NewMemberName(raw string) (MemberName, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return MemberName{}, fmt.Errorf("%w: empty value", ErrInvalidMemberName)
	}
	if utf8.RuneCountInString(trimmed) > maxMemberNameLength {
		return MemberName{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidMemberName, maxMemberNameLength)
	}
	return MemberName{value: trimmed}, nil
}

// String returns the normalized name.
func (name MemberName) String() string {
	return name.value
}

// IsZero reports whether the name is unset.
func (name MemberName) IsZero() bool {
	return name.value == ""
}

// MarshalText encodes the name as a plain string.
func (name MemberName) MarshalText() ([]byte, error) {
	return []byte(name.value), nil
}

// UnmarshalText decodes and validates a name. An empty value leaves the name unset.
func (name *MemberName) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*name = MemberName{}
		return nil
	}
	parsed, err := NewMemberName(string(text))
	if err != nil {
		return err
	}
	*name = parsed
	return nil
}

// NewAmount validates a non-negative amount.
func NewAmount(raw int64) (Amount, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Amount(raw), nil
}

// NewPositiveAmount validates an amount and ensures it is strictly positive.
func NewPositiveAmount(raw int64) (Amount, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return Amount(raw), nil
}

// Int64 exposes the raw amount.
func (amount Amount) Int64() int64 {
	return int64(amount)
}

// ParseEntryMode validates an entry mode.
func ParseEntryMode(raw string) (EntryMode, error) {
	switch EntryMode(strings.TrimSpace(raw)) {
	case EntryModeTotal:
		return EntryModeTotal, nil
	case EntryModeDetailed:
		return EntryModeDetailed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryMode, raw)
	}
}

// ParseSplitMode validates a split mode.
func ParseSplitMode(raw string) (SplitMode, error) {
	switch SplitMode(strings.TrimSpace(raw)) {
	case SplitModeEqual:
		return SplitModeEqual, nil
	case SplitModeCustom:
		return SplitModeCustom, nil
	case SplitModeNone:
		return SplitModeNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSplitMode, raw)
	}
}

// ParseDepositKind validates a stored deposit kind.
func ParseDepositKind(raw string) (DepositKind, error) {
	switch DepositKind(raw) {
	case DepositKindManual:
		return DepositKindManual, nil
	case DepositKindAutoSettlement:
		return DepositKindAutoSettlement, nil
	default:
		return "", fmt.Errorf("%w: unknown deposit kind %q", ErrValidation, raw)
	}
}

// NormalizeDate validates a YYYY-MM-DD date. An empty value resolves to the day of nowUnixUTC.
func NormalizeDate(raw string, nowUnixUTC int64) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Unix(nowUnixUTC, 0).UTC().Format(dateLayout), nil
	}
	parsed, err := time.Parse(dateLayout, trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return parsed.Format(dateLayout), nil
}
