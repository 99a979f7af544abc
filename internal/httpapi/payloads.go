package httpapi

import "github.com/MarkoPoloResearchLab/lunchfund/pkg/fund"

type memberRequest struct {
	Name string `json:"name"`
}

type noticeRequest struct {
	Date    string `json:"date"`
	Content string `json:"content"`
}

type depositRequest struct {
	Date   string `json:"date"`
	Member string `json:"member"`
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

func (request depositRequest) toInput() (fund.DepositInput, error) {
	member, err := fund.NewMemberName(request.Member)
	if err != nil {
		return fund.DepositInput{}, err
	}
	amount, err := fund.NewPositiveAmount(request.Amount)
	if err != nil {
		return fund.DepositInput{}, err
	}
	return fund.DepositInput{Date: request.Date, Member: member, Amount: amount, Note: request.Note}, nil
}

// mealRequest mirrors fund.MealInput. Empty modes fall back to the service defaults.
type mealRequest struct {
	Date       string   `json:"date"`
	EntryMode  string   `json:"entry_mode"`
	Diners     []string `json:"diners"`
	Payer      string   `json:"payer"`
	GuestTotal int64    `json:"guest_total"`

	GrandTotal   int64            `json:"grand_total"`
	Distribution string           `json:"distribution"`
	CustomTotals map[string]int64 `json:"custom_totals"`

	MainMode   string           `json:"main_mode"`
	SideMode   string           `json:"side_mode"`
	MainTotal  int64            `json:"main_total"`
	SideTotal  int64            `json:"side_total"`
	CustomMain map[string]int64 `json:"custom_main"`
	CustomSide map[string]int64 `json:"custom_side"`
}

func (request mealRequest) toInput() (fund.MealInput, error) {
	input := fund.MealInput{
		Date:       request.Date,
		GuestTotal: fund.Amount(request.GuestTotal),
		GrandTotal: fund.Amount(request.GrandTotal),
		MainTotal:  fund.Amount(request.MainTotal),
		SideTotal:  fund.Amount(request.SideTotal),
	}
	var err error
	if request.EntryMode != "" {
		if input.EntryMode, err = fund.ParseEntryMode(request.EntryMode); err != nil {
			return fund.MealInput{}, err
		}
	}
	if input.Distribution, err = optionalSplitMode(request.Distribution); err != nil {
		return fund.MealInput{}, err
	}
	if input.MainMode, err = optionalSplitMode(request.MainMode); err != nil {
		return fund.MealInput{}, err
	}
	if input.SideMode, err = optionalSplitMode(request.SideMode); err != nil {
		return fund.MealInput{}, err
	}
	if request.Payer != "" {
		if input.Payer, err = fund.NewMemberName(request.Payer); err != nil {
			return fund.MealInput{}, err
		}
	}
	input.Diners = make([]fund.MemberName, 0, len(request.Diners))
	for _, raw := range request.Diners {
		diner, err := fund.NewMemberName(raw)
		if err != nil {
			return fund.MealInput{}, err
		}
		input.Diners = append(input.Diners, diner)
	}
	if input.CustomTotals, err = memberAmounts(request.CustomTotals); err != nil {
		return fund.MealInput{}, err
	}
	if input.CustomMain, err = memberAmounts(request.CustomMain); err != nil {
		return fund.MealInput{}, err
	}
	if input.CustomSide, err = memberAmounts(request.CustomSide); err != nil {
		return fund.MealInput{}, err
	}
	return input, nil
}

func optionalSplitMode(raw string) (fund.SplitMode, error) {
	if raw == "" {
		return "", nil
	}
	return fund.ParseSplitMode(raw)
}

func memberAmounts(raw map[string]int64) (map[fund.MemberName]int64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	amounts := make(map[fund.MemberName]int64, len(raw))
	for rawName, value := range raw {
		name, err := fund.NewMemberName(rawName)
		if err != nil {
			return nil, err
		}
		amounts[name] = value
	}
	return amounts, nil
}
