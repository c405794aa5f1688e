package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Orders persists the order aggregate: the order row, its items, settlement
// and delivery records.
type Orders struct {
	Base
}

func NewOrders(db *gorm.DB) *Orders {
	return &Orders{Base: NewBase(db)}
}

func (r *Orders) WithTx(tx *gorm.DB) *Orders {
	return &Orders{Base: r.Base.WithTx(tx)}
}

// Create inserts the order and its children. Call inside a transaction.
func (r *Orders) Create(ctx context.Context, order *models.Order) error {
	items := order.Items
	settlement := order.Settlement
	delivery := order.Delivery
	order.Items, order.Settlement, order.Delivery = nil, nil, nil
	defer func() {
		order.Items, order.Settlement, order.Delivery = items, settlement, delivery
	}()

	db := r.DB(ctx)
	if err := db.Create(order).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if len(items) > 0 {
		if err := db.Create(&items).Error; err != nil {
			return err
		}
	}
	if settlement != nil {
		settlement.OrderID = order.ID
		settlement.TenantID = order.TenantID
		if err := db.Create(settlement).Error; err != nil {
			return err
		}
	}
	if delivery != nil {
		delivery.OrderID = order.ID
		delivery.TenantID = order.TenantID
		if err := db.Create(delivery).Error; err != nil {
			return err
		}
	}
	return nil
}

// FindByID loads the full aggregate scoped to the tenant.
func (r *Orders) FindByID(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.Tenant(ctx, tenantID).
		Preload("Items").
		Preload("Settlement").
		Preload("Delivery").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Lock reads the order row FOR UPDATE and then loads its children.
func (r *Orders) Lock(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.ForUpdate(ctx).
		Scopes(TenantScope(tenantID)).
		Where("id = ?", orderID).
		First(&order).Error; err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Orders) loadChildren(ctx context.Context, order *models.Order) error {
	db := r.DB(ctx)
	if err := db.Where("order_id = ?", order.ID).Order("created_at, id").Find(&order.Items).Error; err != nil {
		return err
	}
	var settlement models.OrderSettlement
	err := db.Where("order_id = ?", order.ID).Limit(1).Find(&settlement).Error
	if err != nil {
		return err
	}
	if settlement.OrderID != uuid.Nil {
		order.Settlement = &settlement
	}
	var delivery models.OrderDelivery
	if err := db.Where("order_id = ?", order.ID).Limit(1).Find(&delivery).Error; err != nil {
		return err
	}
	if delivery.OrderID != uuid.Nil {
		order.Delivery = &delivery
	}
	return nil
}

// LockSettlement reads the settlement row FOR UPDATE.
func (r *Orders) LockSettlement(ctx context.Context, orderID uuid.UUID) (*models.OrderSettlement, error) {
	var settlement models.OrderSettlement
	if err := r.ForUpdate(ctx).Where("order_id = ?", orderID).First(&settlement).Error; err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *Orders) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).Model(&models.Order{}).Where("id = ?", orderID).Updates(updates).Error
}

func (r *Orders) UpdateSettlement(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).Model(&models.OrderSettlement{}).Where("order_id = ?", orderID).Updates(updates).Error
}

func (r *Orders) UpdateDelivery(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).Model(&models.OrderDelivery{}).Where("order_id = ?", orderID).Updates(updates).Error
}

// ListByCustomer returns a page of the customer's orders, newest first.
func (r *Orders) ListByCustomer(ctx context.Context, tenantID, customerID uuid.UUID, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := r.Tenant(ctx, tenantID).
		Preload("Items").
		Where("customer_id = ?", customerID).
		Order("created_at DESC, id").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// PendingFulfillment identifies an order awaiting digital delivery.
type PendingFulfillment struct {
	OrderID  uuid.UUID `gorm:"column:order_id"`
	TenantID uuid.UUID `gorm:"column:tenant_id"`
}

// PendingFulfillments returns digital orders that are paid or wallet-pending
// but not yet delivered, created before cutoff, whose last attempt (if any)
// is also before cutoff and which have attempts left.
func (r *Orders) PendingFulfillments(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]PendingFulfillment, error) {
	var rows []PendingFulfillment
	err := r.DB(ctx).
		Table("orders AS o").
		Select("o.id AS order_id, o.tenant_id AS tenant_id").
		Joins("JOIN order_settlements s ON s.order_id = o.id").
		Joins("LEFT JOIN order_deliveries d ON d.order_id = o.id").
		Where("o.has_instant_products = ?", true).
		Where("o.status IN ?", []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusApproved}).
		Where("(o.payment_status = ? OR s.wallet_state = ?)", enums.PaymentStatusSucceeded, enums.WalletStateReserved).
		Where("o.created_at < ?", cutoff).
		Where("(d.last_attempt_at IS NULL OR d.last_attempt_at < ?)", cutoff).
		Where("(d.attempts IS NULL OR d.attempts < ?)", maxAttempts).
		Order("o.created_at").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
