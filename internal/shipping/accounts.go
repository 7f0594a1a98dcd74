package shipping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tournevent/shipping/pkg/shipper"
)

var (
	// ErrAccountsUnavailable is returned when no account store is configured.
	ErrAccountsUnavailable = errors.New("carrier accounts are not configured")
	// ErrInvalidAccount is returned for an account without carrier or account id.
	ErrInvalidAccount = errors.New("invalid carrier account")
)

// AccountView is a carrier account with its duplicate flag. Duplicate is set
// on every account sharing its (carrier, test) pair with another one.
type AccountView struct {
	shipper.CarrierAccount
	Duplicate bool `json:"duplicate"`
}

// CarrierSummary counts the accounts of one carrier.
type CarrierSummary struct {
	Count  int `json:"count"`
	Active int `json:"active"`
	Test   int `json:"test"`
}

// AccountList is the administrative view of carrier accounts.
type AccountList struct {
	Total     int                       `json:"total"`
	ByCarrier map[string]CarrierSummary `json:"byCarrier"`
	Accounts  []AccountView             `json:"accounts"`
}

// CarrierAccounts lists accounts, flagging duplicates and summarizing per carrier.
func (s *Service) CarrierAccounts(ctx context.Context) (*AccountList, error) {
	if s.accounts == nil {
		return nil, ErrAccountsUnavailable
	}
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return summarizeAccounts(accounts), nil
}

func summarizeAccounts(accounts []shipper.CarrierAccount) *AccountList {
	type pair struct {
		carrier string
		test    bool
	}
	seen := make(map[pair]int, len(accounts))
	for _, a := range accounts {
		seen[pair{strings.ToLower(a.Carrier), a.Test}]++
	}

	list := &AccountList{
		Total:     len(accounts),
		ByCarrier: make(map[string]CarrierSummary),
		Accounts:  make([]AccountView, 0, len(accounts)),
	}
	for _, a := range accounts {
		carrier := strings.ToLower(a.Carrier)
		sum := list.ByCarrier[carrier]
		sum.Count++
		if a.Active {
			sum.Active++
		}
		if a.Test {
			sum.Test++
		}
		list.ByCarrier[carrier] = sum

		list.Accounts = append(list.Accounts, AccountView{
			CarrierAccount: a,
			Duplicate:      seen[pair{carrier, a.Test}] > 1,
		})
	}
	sort.SliceStable(list.Accounts, func(i, j int) bool {
		return strings.ToLower(list.Accounts[i].Carrier) < strings.ToLower(list.Accounts[j].Carrier)
	})
	return list
}

// UpsertCarrierAccount connects a new account or updates an existing one.
func (s *Service) UpsertCarrierAccount(ctx context.Context, a *shipper.CarrierAccount) error {
	if s.accounts == nil {
		return ErrAccountsUnavailable
	}
	if strings.TrimSpace(a.Carrier) == "" || strings.TrimSpace(a.AccountID) == "" {
		return fmt.Errorf("%w: carrier and accountId are required", ErrInvalidAccount)
	}
	if err := s.accounts.UpsertAccount(ctx, a); err != nil {
		return fmt.Errorf("saving carrier account: %w", err)
	}
	return nil
}
