package fund

import (
	"context"
	"fmt"
)

// Balances projects every member's position in registry order.
func (service *Service) Balances(ctx context.Context) ([]MemberBalance, error) {
	members, err := service.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	deposited, err := service.store.SumDepositsByMember(ctx)
	if err != nil {
		return nil, err
	}
	consumed, err := service.store.SumSharesByMember(ctx)
	if err != nil {
		return nil, err
	}
	meals, err := service.store.CountMealsByMember(ctx)
	if err != nil {
		return nil, err
	}
	balances := make([]MemberBalance, 0, len(members))
	for _, member := range members {
		balances = append(balances, MemberBalance{
			Member:    member,
			Deposited: deposited[member],
			Consumed:  consumed[member],
			Balance:   deposited[member].Int64() - consumed[member].Int64(),
			Meals:     meals[member],
		})
	}
	return balances, nil
}

// BalanceOf returns deposits minus consumption for one member.
func (service *Service) BalanceOf(ctx context.Context, name MemberName) (int64, error) {
	members, err := service.store.ListMembers(ctx)
	if err != nil {
		return 0, err
	}
	if !containsMember(members, name) {
		return 0, fmt.Errorf("%w: %s", ErrMemberNotFound, name)
	}
	return memberBalance(ctx, service.store, name)
}

// NegativeBalances lists the members who owe the fund.
func (service *Service) NegativeBalances(ctx context.Context) ([]MemberBalance, error) {
	balances, err := service.Balances(ctx)
	if err != nil {
		return nil, err
	}
	negative := make([]MemberBalance, 0)
	for _, balance := range balances {
		if balance.Negative() {
			negative = append(negative, balance)
		}
	}
	return negative, nil
}

// Totals sums the positions of all members.
func (service *Service) Totals(ctx context.Context) (FundTotals, error) {
	balances, err := service.Balances(ctx)
	if err != nil {
		return FundTotals{}, err
	}
	var totals FundTotals
	for _, balance := range balances {
		totals.Deposited += balance.Deposited
		totals.Consumed += balance.Consumed
		totals.Balance += balance.Balance
	}
	return totals, nil
}

func memberBalance(ctx context.Context, store Store, name MemberName) (int64, error) {
	deposited, err := store.SumDepositsFor(ctx, name)
	if err != nil {
		return 0, err
	}
	consumed, err := store.SumSharesFor(ctx, name)
	if err != nil {
		return 0, err
	}
	return deposited.Int64() - consumed.Int64(), nil
}
