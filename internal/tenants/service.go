package tenants

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var slugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

type tenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	Create(ctx context.Context, tenant *models.Tenant) error
}

// ResolverParams wires a Resolver.
type ResolverParams struct {
	Repository      tenantRepository
	Logger          *logger.Logger
	AutoProvision   bool
	DefaultCurrency string
}

// Resolver turns the tenant reference carried by a request (id or slug) into
// a tenant row.
type Resolver struct {
	repo            tenantRepository
	logg            *logger.Logger
	autoProvision   bool
	defaultCurrency string
}

func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("tenant repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}
	return &Resolver{
		repo:            params.Repository,
		logg:            params.Logger,
		autoProvision:   params.AutoProvision,
		defaultCurrency: currency,
	}, nil
}

// Resolve loads the tenant. Unknown slugs are provisioned when auto-provisioning
// is enabled; unknown ids never are.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*models.Tenant, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant is required")
	}

	if id, err := uuid.Parse(ref); err == nil {
		tenant, err := r.repo.FindByID(ctx, id)
		if err != nil {
			return nil, notFoundOr(err, "load tenant")
		}
		return tenant, nil
	}

	slug := strings.ToLower(ref)
	tenant, err := r.repo.FindBySlug(ctx, slug)
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tenant")
	}
	if !r.autoProvision || !slugRe.MatchString(slug) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	return r.provision(ctx, slug)
}

func (r *Resolver) provision(ctx context.Context, slug string) (*models.Tenant, error) {
	tenant := &models.Tenant{
		Slug:        slug,
		Name:        slug,
		Currency:    r.defaultCurrency,
		TaxRate:     decimal.Zero,
		ShippingFee: decimal.Zero,
	}
	if err := r.repo.Create(ctx, tenant); err != nil {
		if db.IsUniqueViolation(err, "") {
			// lost a race with another request provisioning the same slug
			return r.repo.FindBySlug(ctx, slug)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "provision tenant")
	}
	r.logg.Info(r.logg.WithTenantID(ctx, tenant.ID.String()), "tenant.provisioned")
	return tenant, nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
