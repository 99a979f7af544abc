package fund

import "fmt"

// MealInput describes a meal as entered by a caller.
//
// Total mode uses GrandTotal, Distribution and CustomTotals.
// Detailed mode uses MainMode, SideMode, MainTotal, SideTotal, CustomMain and CustomSide.
// Empty modes default to total entry, equal distribution, custom main and no side.
type MealInput struct {
	Date       string
	EntryMode  EntryMode
	Diners     []MemberName
	Payer      MemberName
	GuestTotal Amount

	GrandTotal   Amount
	Distribution SplitMode
	CustomTotals map[MemberName]int64

	MainMode   SplitMode
	SideMode   SplitMode
	MainTotal  Amount
	SideTotal  Amount
	CustomMain map[MemberName]int64
	CustomSide map[MemberName]int64
}

// MealSplit is the computed header totals and per-diner shares of a meal.
// Shares carry no MealID until the meal is stored.
type MealSplit struct {
	EntryMode  EntryMode
	MainMode   SplitMode
	SideMode   SplitMode
	MainTotal  Amount
	SideTotal  Amount
	GrandTotal Amount
	GuestTotal Amount
	Shares     []MealShare
}

// MemberTotal sums the diners' shares.
func (split MealSplit) MemberTotal() Amount {
	return sumShares(split.Shares)
}

// SplitEven divides total into count near-equal parts.
// Every part is floor(total/count) and the first total%count parts get one extra unit.
func SplitEven(total Amount, count int) []Amount {
	if count <= 0 {
		return nil
	}
	if total < 0 {
		total = 0
	}
	base := total / Amount(count)
	remainder := int(total % Amount(count))
	parts := make([]Amount, count)
	for index := range parts {
		parts[index] = base
		if index < remainder {
			parts[index]++
		}
	}
	return parts
}

// CalculateSplit computes the shares of a meal. Diners must already be in registry order.
func CalculateSplit(input MealInput, diners []MemberName) (MealSplit, error) {
	if len(diners) == 0 {
		return MealSplit{}, ErrNoDinersSelected
	}
	if err := validateMealTotals(input); err != nil {
		return MealSplit{}, err
	}
	entryMode := input.EntryMode
	if entryMode == "" {
		entryMode = EntryModeTotal
	}
	switch entryMode {
	case EntryModeTotal:
		return calculateTotalSplit(input, diners)
	case EntryModeDetailed:
		return calculateDetailedSplit(input, diners)
	default:
		return MealSplit{}, fmt.Errorf("%w: %q", ErrInvalidEntryMode, input.EntryMode)
	}
}

func calculateTotalSplit(input MealInput, diners []MemberName) (MealSplit, error) {
	distribution := defaultSplitMode(input.Distribution, SplitModeEqual)
	var totals []Amount
	switch distribution {
	case SplitModeEqual:
		target := input.GrandTotal - input.GuestTotal
		if target < 0 {
			target = 0
		}
		totals = SplitEven(target, len(diners))
	case SplitModeCustom:
		totals = customAmounts(input.CustomTotals, diners)
	default:
		return MealSplit{}, fmt.Errorf("%w: distribution %q", ErrInvalidSplitMode, input.Distribution)
	}
	shares := make([]MealShare, len(diners))
	for index, diner := range diners {
		shares[index] = MealShare{
			Member:      diner,
			MainAmount:  totals[index],
			TotalAmount: totals[index],
		}
	}
	return MealSplit{
		EntryMode:  EntryModeTotal,
		MainMode:   distribution,
		SideMode:   SplitModeNone,
		GrandTotal: input.GrandTotal,
		GuestTotal: input.GuestTotal,
		Shares:     shares,
	}, nil
}

func calculateDetailedSplit(input MealInput, diners []MemberName) (MealSplit, error) {
	mainMode := defaultSplitMode(input.MainMode, SplitModeCustom)
	sideMode := defaultSplitMode(input.SideMode, SplitModeNone)

	var mainAmounts []Amount
	mainTotal := input.MainTotal
	switch mainMode {
	case SplitModeEqual:
		mainAmounts = SplitEven(mainTotal, len(diners))
	case SplitModeCustom:
		mainAmounts = customAmounts(input.CustomMain, diners)
		mainTotal = sumAmounts(mainAmounts)
	default:
		return MealSplit{}, fmt.Errorf("%w: main %q", ErrInvalidSplitMode, input.MainMode)
	}

	var sideAmounts []Amount
	sideTotal := input.SideTotal
	switch sideMode {
	case SplitModeEqual:
		sideAmounts = SplitEven(sideTotal, len(diners))
	case SplitModeCustom:
		sideAmounts = customAmounts(input.CustomSide, diners)
		sideTotal = sumAmounts(sideAmounts)
	case SplitModeNone:
		sideAmounts = make([]Amount, len(diners))
		sideTotal = 0
	default:
		return MealSplit{}, fmt.Errorf("%w: side %q", ErrInvalidSplitMode, input.SideMode)
	}

	shares := make([]MealShare, len(diners))
	for index, diner := range diners {
		shares[index] = MealShare{
			Member:      diner,
			MainAmount:  mainAmounts[index],
			SideAmount:  sideAmounts[index],
			TotalAmount: mainAmounts[index] + sideAmounts[index],
		}
	}
	return MealSplit{
		EntryMode:  EntryModeDetailed,
		MainMode:   mainMode,
		SideMode:   sideMode,
		MainTotal:  mainTotal,
		SideTotal:  sideTotal,
		GrandTotal: mainTotal + sideTotal + input.GuestTotal,
		GuestTotal: input.GuestTotal,
		Shares:     shares,
	}, nil
}

func validateMealTotals(input MealInput) error {
	checks := []struct {
		field string
		value Amount
	}{
		{field: "guest total", value: input.GuestTotal},
		{field: "grand total", value: input.GrandTotal},
		{field: "main total", value: input.MainTotal},
		{field: "side total", value: input.SideTotal},
	}
	for _, check := range checks {
		if check.value < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidAmount, check.field)
		}
	}
	return nil
}

func defaultSplitMode(mode SplitMode, fallback SplitMode) SplitMode {
	if mode == "" {
		return fallback
	}
	return mode
}

// customAmounts reads per-diner values in diner order. Missing and negative values count as zero.
func customAmounts(values map[MemberName]int64, diners []MemberName) []Amount {
	amounts := make([]Amount, len(diners))
	for index, diner := range diners {
		value := values[diner]
		if value < 0 {
			value = 0
		}
		amounts[index] = Amount(value)
	}
	return amounts
}

func sumAmounts(amounts []Amount) Amount {
	var total Amount
	for _, amount := range amounts {
		total += amount
	}
	return total
}

func sumShares(shares []MealShare) Amount {
	var total Amount
	for _, share := range shares {
		total += share.TotalAmount
	}
	return total
}
