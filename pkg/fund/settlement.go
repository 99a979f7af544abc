package fund

import (
	"context"
	"fmt"
)

// SettlementNote is the note carried by the payer's reimbursement deposit for a meal.
func SettlementNote(mealID MealID) string {
	return fmt.Sprintf(settlementNoteFormat, mealID)
}

// reconcileSettlement makes the meal's settlement deposit match its shares.
// Any existing deposit is removed first; a new one is written when the payer is a
// current member and the diners owe something. It returns the settled amount.
func reconcileSettlement(ctx context.Context, txStore Store, meal Meal, shares []MealShare, members []MemberName, trail *auditTrail) (Amount, error) {
	if err := removeSettlement(ctx, txStore, meal.ID, trail); err != nil {
		return 0, err
	}
	owed := sumShares(shares)
	if meal.Payer.IsZero() || owed <= 0 || !containsMember(members, meal.Payer) {
		return 0, nil
	}
	deposit := Deposit{
		Date:   meal.Date,
		Member: meal.Payer,
		Amount: owed,
		Note:   SettlementNote(meal.ID),
		Kind:   DepositKindAutoSettlement,
		MealID: meal.ID,
	}
	depositID, err := txStore.InsertDeposit(ctx, deposit)
	if err != nil {
		return 0, err
	}
	deposit.ID = depositID
	trail.inserted(AuditEntityDeposit, depositEntityID(depositID), deposit)
	return owed, nil
}

func removeSettlement(ctx context.Context, txStore Store, mealID MealID, trail *auditTrail) error {
	existing, found, err := txStore.FindSettlementDeposit(ctx, mealID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := txStore.DeleteDeposit(ctx, existing.ID); err != nil {
		return err
	}
	trail.deleted(AuditEntityDeposit, depositEntityID(existing.ID), existing)
	return nil
}
