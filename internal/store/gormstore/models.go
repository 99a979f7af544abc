package gormstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Member represents the members table.
type Member struct {
	Name      string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Member) TableName() string { return "members" }

// Meal mirrors the meals table. PayerName is cleared when the payer leaves.
type Meal struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	EntryDate  string    `gorm:"not null;index:idx_meals_entry_date"`
	EntryMode  string    `gorm:"not null;default:total"`
	MainMode   string    `gorm:"not null;default:custom"`
	SideMode   string    `gorm:"not null;default:none"`
	MainTotal  int64     `gorm:"not null;default:0"`
	SideTotal  int64     `gorm:"not null;default:0"`
	GrandTotal int64     `gorm:"not null;default:0"`
	GuestTotal int64     `gorm:"not null;default:0"`
	PayerName  *string   `gorm:"index:idx_meals_payer"`
	Payer      *Member   `gorm:"foreignKey:PayerName;references:Name;constraint:OnDelete:SET NULL"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (Meal) TableName() string { return "meals" }

// Deposit mirrors the deposits table. MealID is set only on settlement deposits.
type Deposit struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	EntryDate  string    `gorm:"not null;index:idx_deposits_entry_date"`
	MemberName string    `gorm:"not null;index:idx_deposits_member"`
	Member     Member    `gorm:"foreignKey:MemberName;references:Name;constraint:OnDelete:CASCADE"`
	Amount     int64     `gorm:"not null"`
	Note       string    `gorm:"not null;default:''"`
	Kind       string    `gorm:"not null;default:manual"`
	MealID     *int64    `gorm:"uniqueIndex:uniq_deposits_meal"`
	Meal       *Meal     `gorm:"foreignKey:MealID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (Deposit) TableName() string { return "deposits" }

// MealShare mirrors the meal_shares table. One row per diner per meal.
type MealShare struct {
	MealID      int64  `gorm:"primaryKey"`
	MemberName  string `gorm:"primaryKey;index:idx_meal_shares_member"`
	Meal        Meal   `gorm:"foreignKey:MealID;constraint:OnDelete:CASCADE"`
	Member      Member `gorm:"foreignKey:MemberName;references:Name;constraint:OnDelete:CASCADE"`
	MainAmount  int64  `gorm:"not null;default:0"`
	SideAmount  int64  `gorm:"not null;default:0"`
	TotalAmount int64  `gorm:"not null;default:0"`
}

func (MealShare) TableName() string { return "meal_shares" }

// Notice mirrors the notices table.
type Notice struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	EntryDate string    `gorm:"not null"`
	Content   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Notice) TableName() string { return "notices" }

// AuditEntry mirrors the append-only audit_entries table.
// Sequence orders entries written within the same second.
type AuditEntry struct {
	Sequence  int64          `gorm:"primaryKey;autoIncrement"`
	EntryID   string         `gorm:"type:uuid;not null;uniqueIndex:uniq_audit_entry_id"`
	CreatedAt time.Time      `gorm:"not null;index:idx_audit_created"`
	Action    string         `gorm:"not null"`
	Entity    string         `gorm:"not null;index:idx_audit_entity,priority:1"`
	EntityID  string         `gorm:"not null;index:idx_audit_entity,priority:2"`
	Payload   datatypes.JSON `gorm:"not null"`
}

func (AuditEntry) TableName() string { return "audit_entries" }

func (entry *AuditEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Migrate creates or updates every fund table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Member{}, &Meal{}, &Deposit{}, &MealShare{}, &Notice{}, &AuditEntry{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
