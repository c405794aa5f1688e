package checkout

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/fulfillment"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/internal/settlement"
	"github.com/angelmondragon/storefront-backend/internal/supplier"
	"github.com/angelmondragon/storefront-backend/internal/wallet"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// PaymentMethodWallet selects the customer wallet as the funding source.
const PaymentMethodWallet = "wallet"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type TenantResolver interface {
	Resolve(ctx context.Context, ref string) (*models.Tenant, error)
}

type CartCollaborator interface {
	FindCart(ctx context.Context, tenantID uuid.UUID, owner cart.Owner) (*models.Cart, error)
	Items(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) ([]models.CartItem, error)
	Products(ctx context.Context, tenantID uuid.UUID, items []models.CartItem) (map[uuid.UUID]models.Product, error)
	CalculateCartTotal(ctx context.Context, tenant *models.Tenant, cart *models.Cart, shipping types.Address) (cart.Totals, error)
	ClearCart(ctx context.Context, tx *gorm.DB, tenantID, cartID uuid.UUID) error
}

type SupplierInventory interface {
	ValidateInventoryBeforeOrder(ctx context.Context, tenantID uuid.UUID, items []supplier.InventoryItem) (bool, error)
}

type InventoryReserver interface {
	MatchExternal(ctx context.Context, tenantID uuid.UUID, products []models.Product) map[uuid.UUID]bool
	Reserve(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, lines []inventory.Line) ([]inventory.Reservation, error)
}

type WalletLedger interface {
	HasSufficientBalance(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (bool, error)
	Debit(ctx context.Context, tx *gorm.DB, entry wallet.Entry) (*models.WalletTransaction, error)
}

type Fulfiller interface {
	Fulfill(ctx context.Context, tenantID, orderID uuid.UUID) (*fulfillment.Outcome, error)
}

type CardCharger interface {
	Charge(ctx context.Context, req payments.ChargeRequest) (*payments.ChargeResult, error)
}

type GatewayApplier interface {
	ApplyGatewayResult(ctx context.Context, in settlement.GatewayResult) (*settlement.ApplyOutcome, error)
}

type Notifier interface {
	Send(ctx context.Context, n notifications.Notification)
}

// Contact is the guest identity attached to an order.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// CreateOrderInput is everything needed to turn a cart into an order.
type CreateOrderInput struct {
	TenantRef       string
	CustomerID      *uuid.UUID
	SessionID       string
	Contact         Contact
	ShippingAddress *types.Address
	BillingAddress  *types.Address
	PaymentMethod   string
	UseWallet       bool
	SourceToken     string
	DeliveryFormats []string
}

func (in CreateOrderInput) paysByWallet() bool {
	return in.UseWallet || strings.EqualFold(strings.TrimSpace(in.PaymentMethod), PaymentMethodWallet)
}

// OrderResult is the committed order plus the outcome of the post-commit
// steps. FulfillmentErr never means the order was rolled back.
type OrderResult struct {
	Order          *models.Order
	Fulfillment    *fulfillment.Outcome
	FulfillmentErr error
	Charge         *payments.ChargeResult
}

type ServiceParams struct {
	DB          txRunner
	Orders      *repo.Orders
	Tenants     TenantResolver
	Cart        CartCollaborator
	Supplier    SupplierInventory
	Inventory   InventoryReserver
	Wallet      WalletLedger
	Fulfillment Fulfiller
	Cards       CardCharger
	Gateway     GatewayApplier
	Outbox      outbox.Emitter
	Notifier    Notifier
	Config      config.OrdersConfig
	Logger      *logger.Logger
}

// Service places orders.
type Service struct {
	db          txRunner
	orders      *repo.Orders
	tenants     TenantResolver
	cart        CartCollaborator
	supplier    SupplierInventory
	inventory   InventoryReserver
	wallet      WalletLedger
	fulfillment Fulfiller
	cards       CardCharger
	gateway     GatewayApplier
	outbox      outbox.Emitter
	notifier    Notifier
	cod         *regexp.Regexp
	currency    string
	prefix      string
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tenants == nil:
		return nil, fmt.Errorf("tenant resolver required")
	case params.Cart == nil:
		return nil, fmt.Errorf("cart collaborator required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory reserver required")
	case params.Wallet == nil:
		return nil, fmt.Errorf("wallet ledger required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if params.Cards != nil && params.Gateway == nil {
		return nil, fmt.Errorf("gateway applier required with a card charger")
	}
	cod, err := params.Config.CODMatcher()
	if err != nil {
		return nil, err
	}
	var notifier Notifier = notifications.Nop{}
	if params.Notifier != nil {
		notifier = params.Notifier
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Config.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}
	prefix := strings.TrimSpace(params.Config.NumberPrefix)
	if prefix == "" {
		prefix = "ORD"
	}
	return &Service{
		db:          params.DB,
		orders:      params.Orders,
		tenants:     params.Tenants,
		cart:        params.Cart,
		supplier:    params.Supplier,
		inventory:   params.Inventory,
		wallet:      params.Wallet,
		fulfillment: params.Fulfillment,
		cards:       params.Cards,
		gateway:     params.Gateway,
		outbox:      params.Outbox,
		notifier:    notifier,
		cod:         cod,
		currency:    currency,
		prefix:      prefix,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

// CreateOrder validates the cart, commits the order with its stock and wallet
// effects in one transaction, then runs payment and digital delivery.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderResult, error) {
	if strings.TrimSpace(in.PaymentMethod) == "" && !in.UseWallet {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}
	if in.CustomerID == nil && strings.TrimSpace(in.Contact.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest email is required")
	}

	tenant, err := s.tenants.Resolve(ctx, in.TenantRef)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithTenantID(ctx, tenant.ID.String())
	if tenant.PrivateStore && in.CustomerID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store requires a signed-in customer")
	}

	owner := cart.Owner{CustomerID: in.CustomerID, SessionID: in.SessionID}
	record, err := s.cart.FindCart(ctx, tenant.ID, owner)
	if err != nil {
		return nil, err
	}
	if len(record.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	products, err := s.cart.Products(ctx, tenant.ID, record.Items)
	if err != nil {
		return nil, err
	}
	if err := s.validateWithSupplier(ctx, tenant.ID, record.Items, products); err != nil {
		return nil, err
	}
	// supplier sync may touch product rows
	if record, err = s.cart.FindCart(ctx, tenant.ID, owner); err != nil {
		return nil, err
	}
	if len(record.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if products, err = s.cart.Products(ctx, tenant.ID, record.Items); err != nil {
		return nil, err
	}
	catalog := make([]models.Product, 0, len(products))
	for _, p := range products {
		catalog = append(catalog, p)
	}
	external := s.inventory.MatchExternal(ctx, tenant.ID, catalog)

	var shipping types.Address
	if in.ShippingAddress != nil {
		shipping = *in.ShippingAddress
	}
	totals, err := s.cart.CalculateCartTotal(ctx, tenant, record, shipping)
	if err != nil {
		return nil, err
	}
	totals = roundTotals(totals)
	if !totals.Total.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive").
			WithDetails(map[string]any{"total": totals.Total.StringFixed(2)})
	}

	hasInstant := false
	for _, item := range record.Items {
		if p, ok := products[item.ProductID]; ok && p.IsInstant() {
			hasInstant = true
			break
		}
	}
	if hasInstant && s.isCOD(in.PaymentMethod) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "digital items cannot be paid cash on delivery")
	}

	byWallet := in.paysByWallet()
	deferred := byWallet && hasInstant
	if byWallet {
		if in.CustomerID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "wallet payment requires a signed-in customer")
		}
		ok, err := s.wallet.HasSufficientBalance(ctx, *in.CustomerID, totals.Total)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, wallet.ErrInsufficientBalance, "insufficient wallet balance").
				WithDetails(map[string]any{"required": totals.Total.StringFixed(2)})
		}
	}

	number, err := s.orderNumber()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
	}

	order := &models.Order{
		ID:                 uuid.New(),
		TenantID:           tenant.ID,
		OrderNumber:        number,
		CustomerID:         in.CustomerID,
		ShippingAddress:    in.ShippingAddress,
		BillingAddress:     in.BillingAddress,
		Subtotal:           totals.Subtotal,
		Discount:           totals.Discount,
		Tax:                totals.Tax,
		Shipping:           totals.Shipping,
		Total:              totals.Total,
		Currency:           tenantCurrency(tenant, s.currency),
		Status:             enums.OrderStatusPending,
		PaymentStatus:      enums.PaymentStatusPending,
		HasInstantProducts: hasInstant,
	}
	if tenant.AutoAcceptOrders {
		order.Status = enums.OrderStatusApproved
	}
	setContact(order, in.Contact)

	settlementInfo := &models.OrderSettlement{
		TenantID:      tenant.ID,
		PaymentMethod: paymentMethod(in),
		WalletState:   enums.WalletStateUncharged,
	}
	if byWallet {
		settlementInfo.PayerID = in.CustomerID
		settlementInfo.WalletAmount = totals.Total
	}
	order.Settlement = settlementInfo
	if hasInstant {
		order.Delivery = &models.OrderDelivery{TenantID: tenant.ID, DeliveryFormats: in.DeliveryFormats}
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		items, err := s.cart.Items(ctx, tx, record.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "cart was emptied concurrently")
		}

		lines := make([]inventory.Line, 0, len(items))
		for _, item := range items {
			lines = append(lines, inventory.Line{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
				External:  external[item.ProductID],
			})
		}
		reservations, err := s.inventory.Reserve(ctx, tx, tenant.ID, lines)
		if err != nil {
			return err
		}
		order.Items = orderItems(items, reservations)

		now := s.now().UTC()
		switch {
		case deferred:
			settlementInfo.WalletState = enums.WalletStateReserved
		case byWallet:
			if _, err := s.wallet.Debit(ctx, tx, wallet.Entry{
				TenantID:    tenant.ID,
				CustomerID:  *in.CustomerID,
				Amount:      totals.Total,
				Reference:   order.ID.String(),
				Currency:    order.Currency,
				Description: types.NewLocalizedText("Order "+order.OrderNumber, "طلب "+order.OrderNumber),
			}); err != nil {
				return err
			}
			settlementInfo.WalletState = enums.WalletStateCharged
			order.PaymentStatus = enums.PaymentStatusSucceeded
			order.PaidAt = &now
		}

		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if err := s.cart.ClearCart(ctx, tx, tenant.ID, record.ID); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{TenantID: tenant.ID, CustomerID: in.CustomerID, Role: enums.ActorRoleCustomer.String()},
			Data: payloads.OrderCreatedEvent{
				OrderID:            order.ID,
				TenantID:           tenant.ID,
				OrderNumber:        order.OrderNumber,
				CustomerID:         order.CustomerID,
				Total:              order.Total,
				Currency:           order.Currency,
				Status:             order.Status,
				PaymentStatus:      order.PaymentStatus,
				PaymentMethod:      settlementInfo.PaymentMethod,
				WalletState:        settlementInfo.WalletState,
				HasInstantProducts: hasInstant,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"wallet_state": string(settlementInfo.WalletState),
	})
	s.logg.Info(ctx, "checkout.order_created")

	result := &OrderResult{Order: order}
	s.afterCommit(ctx, in, order, result)

	if reloaded, err := s.orders.FindByID(ctx, tenant.ID, order.ID); err == nil {
		result.Order = reloaded
	} else {
		s.logg.Error(ctx, "checkout.reload_failed", err)
	}

	for _, n := range notifications.ForOrder(enums.NotificationTypeOrderPlaced, result.Order) {
		s.notifier.Send(ctx, n)
	}
	return result, nil
}

// afterCommit charges cards and delivers digital items. Nothing here can undo
// the committed order.
func (s *Service) afterCommit(ctx context.Context, in CreateOrderInput, order *models.Order, result *OrderResult) {
	needsFulfillment := order.HasInstantProducts &&
		(order.PaymentStatus == enums.PaymentStatusSucceeded || order.Settlement.WalletState == enums.WalletStateReserved)

	if s.cards != nil && !in.paysByWallet() && strings.TrimSpace(in.SourceToken) != "" {
		charge, err := s.cards.Charge(ctx, payments.ChargeRequest{
			TenantID:    order.TenantID,
			OrderID:     order.ID,
			CustomerID:  order.CustomerID,
			Amount:      order.Total,
			Currency:    order.Currency,
			SourceToken: in.SourceToken,
		})
		if err != nil {
			s.logg.Error(ctx, "checkout.card_charge_failed", err)
		} else {
			result.Charge = charge
			amount := charge.Amount
			applied, err := s.gateway.ApplyGatewayResult(ctx, settlement.GatewayResult{
				TenantID:   order.TenantID,
				OrderID:    order.ID,
				Result:     charge.Result,
				ResultCode: charge.ResultCode,
				Reference:  charge.Reference,
				Amount:     &amount,
			})
			if err != nil {
				s.logg.Error(ctx, "checkout.apply_charge_failed", err)
			} else {
				needsFulfillment = applied.NeedsFulfillment
			}
		}
	}

	if !needsFulfillment || s.fulfillment == nil {
		return
	}
	outcome, err := s.fulfillment.Fulfill(ctx, order.TenantID, order.ID)
	if err != nil {
		result.FulfillmentErr = err
		s.logg.Warn(ctx, "checkout.fulfillment_deferred_to_retry")
		return
	}
	result.Fulfillment = outcome
}

func (s *Service) validateWithSupplier(ctx context.Context, tenantID uuid.UUID, items []models.CartItem, products map[uuid.UUID]models.Product) error {
	if s.supplier == nil {
		return nil
	}
	req := make([]supplier.InventoryItem, 0, len(items))
	for _, item := range items {
		p := products[item.ProductID]
		entry := supplier.InventoryItem{
			ProductID: item.ProductID,
			SKU:       p.SKU,
			Name:      p.Name,
			Quantity:  item.Quantity,
		}
		if p.SupplierCode != nil {
			entry.SupplierCode = *p.SupplierCode
		}
		req = append(req, entry)
	}
	ok, err := s.supplier.ValidateInventoryBeforeOrder(ctx, tenantID, req)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeDependency) {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supplier inventory validation")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "supplier inventory unavailable")
	}
	return nil
}

func (s *Service) isCOD(method string) bool {
	return s.cod.MatchString(strings.TrimSpace(method))
}

// orderNumber renders PREFIX-YYYYMMDD-XXXXXXXX.
func (s *Service) orderNumber() (string, error) {
	suffix, err := security.RandomReference(8)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", s.prefix, s.now().UTC().Format("20060102"), suffix), nil
}

func roundTotals(t cart.Totals) cart.Totals {
	t.Subtotal = t.Subtotal.Round(2)
	t.Discount = t.Discount.Round(2)
	t.Tax = t.Tax.Round(2)
	t.Shipping = t.Shipping.Round(2)
	t.Total = t.Subtotal.Sub(t.Discount).Add(t.Tax).Add(t.Shipping).Round(2)
	return t
}

func orderItems(items []models.CartItem, reservations []inventory.Reservation) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for i, item := range items {
		res := reservations[i]
		name := res.Product.Name
		sku := res.Product.SKU
		if res.Variant != nil {
			name = name + " - " + res.Variant.Name
			if res.Variant.SKU != "" {
				sku = res.Variant.SKU
			}
		}
		out = append(out, models.OrderItem{
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			Name:          name,
			SKU:           sku,
			SupplierCode:  res.Product.SupplierCode,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			LineTotal:     item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2),
			IsInstant:     res.Product.IsInstant(),
			StockReserved: res.Reserved,
		})
	}
	return out
}

func paymentMethod(in CreateOrderInput) string {
	if in.paysByWallet() {
		return PaymentMethodWallet
	}
	return strings.ToLower(strings.TrimSpace(in.PaymentMethod))
}

func tenantCurrency(tenant *models.Tenant, fallback string) string {
	if c := strings.TrimSpace(tenant.Currency); c != "" {
		return strings.ToUpper(c)
	}
	return fallback
}

func setContact(order *models.Order, c Contact) {
	if v := strings.TrimSpace(c.Name); v != "" {
		order.GuestName = &v
	}
	if v := strings.TrimSpace(strings.ToLower(c.Email)); v != "" {
		order.GuestEmail = &v
	}
	if v := strings.TrimSpace(c.Phone); v != "" {
		order.GuestPhone = &v
	}
}
