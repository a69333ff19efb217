package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/fuel-delivery/internal/auth"
)

type Service interface {
	ListVendors(ctx context.Context, actor auth.Actor) ([]Vendor, error)
	ListProducts(ctx context.Context, actor auth.Actor, vendorID uuid.UUID) ([]Product, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// ListVendors shows customers only verified vendors. Admins see everyone.
func (s *service) ListVendors(ctx context.Context, actor auth.Actor) ([]Vendor, error) {
	vendors, err := s.repo.ListVendors(ctx, !actor.IsAdmin())
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list vendors")
		return nil, fmt.Errorf("service: failed to list vendors: %w", err)
	}
	return vendors, nil
}

// ListProducts returns a vendor's catalogue. Unverified vendors are hidden
// from everyone but themselves and admins, and only they see inactive
// products.
func (s *service) ListProducts(ctx context.Context, actor auth.Actor, vendorID uuid.UUID) ([]Product, error) {
	vendor, err := s.repo.GetVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, ErrVendorNotFound) {
			return nil, err
		}
		log.Error().Err(err).Stringer("vendor_id", vendorID).Msg("service: failed to load vendor")
		return nil, fmt.Errorf("service: failed to load vendor: %w", err)
	}

	owner := actor.IsAdmin() || (actor.Is(auth.RoleVendor) && actor.ID == vendorID)
	if !owner && !vendor.IsVerified() {
		return nil, ErrVendorNotFound
	}

	products, err := s.repo.ListProducts(ctx, vendorID)
	if err != nil {
		log.Error().Err(err).Stringer("vendor_id", vendorID).Msg("service: failed to list products")
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}
	if owner {
		return products, nil
	}

	active := make([]Product, 0, len(products))
	for _, p := range products {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}
