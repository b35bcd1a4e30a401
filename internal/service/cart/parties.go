package cart

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// SelectCustomerByCode находит клиента по коду и выбирает его. Промах — ErrCustomerNotFound.
func (s *Session) SelectCustomerByCode(ctx context.Context, code string) (domain.Customer, error) {
	if err := s.checkMutable(); err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.dirs.FindCustomerByCode(ctx, s.companyID, code)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("find customer %q: %w", code, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return domain.Customer{}, err
	}
	s.customer = &customer
	return customer, nil
}

// SelectCustomer выбирает уже найденного клиента.
func (s *Session) SelectCustomer(customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	s.customer = &customer
	return nil
}

// ListSellers возвращает продавцов компании без исключённой роли.
func (s *Session) ListSellers(ctx context.Context) ([]domain.Seller, error) {
	sellers, err := s.dirs.ListSellers(ctx, s.companyID, s.excludeRole)
	if err != nil {
		return nil, fmt.Errorf("list sellers: %w", err)
	}
	return sellers, nil
}

// SelectSeller выбирает продавца из списка ListSellers.
func (s *Session) SelectSeller(ctx context.Context, sellerID string) (domain.Seller, error) {
	if err := s.checkMutable(); err != nil {
		return domain.Seller{}, err
	}
	sellers, err := s.ListSellers(ctx)
	if err != nil {
		return domain.Seller{}, err
	}

	var selected *domain.Seller
	for i := range sellers {
		if sellers[i].ID == sellerID {
			selected = &sellers[i]
			break
		}
	}
	if selected == nil {
		return domain.Seller{}, fmt.Errorf("seller %s: %w", sellerID, domain.ErrSellerNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return domain.Seller{}, err
	}
	seller := *selected
	s.seller = &seller
	return seller, nil
}
