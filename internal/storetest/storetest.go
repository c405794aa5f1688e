// Package storetest builds in-memory sqlite databases and seed rows for
// package tests.
package storetest

import (
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// NewDB opens a private shared-cache sqlite database with every model migrated.
func NewDB(t testing.TB, name string) *gorm.DB {
	t.Helper()
	dsn := "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// Client wraps conn in the transactional client services expect.
func Client(conn *gorm.DB) *db.Client {
	return db.Wrap(conn)
}

// Logger discards output.
func Logger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

// Money parses a decimal literal.
func Money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func Tenant(t testing.TB, conn *gorm.DB, mutate ...func(*models.Tenant)) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		Slug:        "store-" + uuid.NewString()[:8],
		Name:        "Test Store",
		Currency:    "USD",
		TaxRate:     decimal.Zero,
		ShippingFee: decimal.Zero,
	}
	for _, fn := range mutate {
		fn(tenant)
	}
	if err := conn.Create(tenant).Error; err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return tenant
}

func Product(t testing.TB, conn *gorm.DB, tenantID uuid.UUID, mutate ...func(*models.Product)) *models.Product {
	t.Helper()
	product := &models.Product{
		TenantID: tenantID,
		SKU:      "SKU-" + uuid.NewString()[:8],
		Name:     "Product",
		Price:    Money("10.00"),
		Cost:     Money("5.00"),
		Stock:    10,
	}
	for _, fn := range mutate {
		fn(product)
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// DigitalProduct seeds a supplier-fulfilled product with no local stock.
func DigitalProduct(t testing.TB, conn *gorm.DB, tenantID uuid.UUID, price string) *models.Product {
	t.Helper()
	code := "SUP-" + uuid.NewString()[:6]
	return Product(t, conn, tenantID, func(p *models.Product) {
		p.IsDigital = true
		p.SupplierCode = &code
		p.Stock = 0
		p.Price = Money(price)
	})
}

// CartLine is a product/quantity pair added to a seeded cart.
type CartLine struct {
	Product  *models.Product
	Quantity int
}

func Cart(t testing.TB, conn *gorm.DB, tenantID uuid.UUID, customerID *uuid.UUID, sessionID string, lines ...CartLine) *models.Cart {
	t.Helper()
	cart := &models.Cart{TenantID: tenantID, CustomerID: customerID}
	if sessionID != "" {
		cart.SessionID = &sessionID
	}
	if err := conn.Create(cart).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	for _, line := range lines {
		item := models.CartItem{
			CartID:    cart.ID,
			ProductID: line.Product.ID,
			Quantity:  line.Quantity,
			UnitPrice: line.Product.Price,
		}
		if err := conn.Create(&item).Error; err != nil {
			t.Fatalf("seed cart item: %v", err)
		}
		cart.Items = append(cart.Items, item)
	}
	return cart
}

func Wallet(t testing.TB, conn *gorm.DB, tenantID, customerID uuid.UUID, balance string) *models.Wallet {
	t.Helper()
	wallet := &models.Wallet{
		TenantID:   tenantID,
		CustomerID: customerID,
		Balance:    Money(balance),
		Currency:   "USD",
	}
	if err := conn.Create(wallet).Error; err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
	return wallet
}

// WalletBalance re-reads the stored balance.
func WalletBalance(t testing.TB, conn *gorm.DB, customerID uuid.UUID) decimal.Decimal {
	t.Helper()
	var wallet models.Wallet
	if err := conn.First(&wallet, "customer_id = ?", customerID).Error; err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	return wallet.Balance
}

// OrderSeed describes an order written directly to the database.
type OrderSeed struct {
	CustomerID    *uuid.UUID
	Status        enums.OrderStatus
	PaymentStatus enums.PaymentStatus
	PaymentMethod string
	WalletState   enums.WalletState
	Lines         []CartLine
	StockReserved bool
}

// Order seeds an order with items, settlement and an empty delivery record.
// Totals are the sum of the line totals.
func Order(t testing.TB, conn *gorm.DB, tenantID uuid.UUID, seed OrderSeed) *models.Order {
	t.Helper()
	if seed.Status == "" {
		seed.Status = enums.OrderStatusPending
	}
	if seed.PaymentStatus == "" {
		seed.PaymentStatus = enums.PaymentStatusPending
	}
	if seed.PaymentMethod == "" {
		seed.PaymentMethod = "wallet"
	}
	if seed.WalletState == "" {
		seed.WalletState = enums.WalletStateUncharged
	}

	total := decimal.Zero
	hasInstant := false
	items := make([]models.OrderItem, 0, len(seed.Lines))
	for _, line := range seed.Lines {
		lineTotal := line.Product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(lineTotal)
		instant := line.Product.IsInstant()
		hasInstant = hasInstant || instant
		items = append(items, models.OrderItem{
			ProductID:     line.Product.ID,
			Name:          line.Product.Name,
			SKU:           line.Product.SKU,
			SupplierCode:  line.Product.SupplierCode,
			Quantity:      line.Quantity,
			UnitPrice:     line.Product.Price,
			LineTotal:     lineTotal,
			IsInstant:     instant,
			StockReserved: seed.StockReserved && !instant,
		})
	}

	order := &models.Order{
		TenantID:           tenantID,
		OrderNumber:        "ORD-TEST-" + strings.ToUpper(uuid.NewString()[:8]),
		CustomerID:         seed.CustomerID,
		Subtotal:           total,
		Total:              total,
		Currency:           "USD",
		Status:             seed.Status,
		PaymentStatus:      seed.PaymentStatus,
		HasInstantProducts: hasInstant,
	}
	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if len(items) > 0 {
		if err := conn.Create(&items).Error; err != nil {
			t.Fatalf("seed order items: %v", err)
		}
	}
	settlement := &models.OrderSettlement{
		OrderID:       order.ID,
		TenantID:      tenantID,
		PaymentMethod: seed.PaymentMethod,
		PayerID:       seed.CustomerID,
		WalletState:   seed.WalletState,
	}
	if seed.WalletState != enums.WalletStateUncharged {
		settlement.WalletAmount = total
	}
	if err := conn.Create(settlement).Error; err != nil {
		t.Fatalf("seed settlement: %v", err)
	}
	delivery := &models.OrderDelivery{OrderID: order.ID, TenantID: tenantID}
	if err := conn.Create(delivery).Error; err != nil {
		t.Fatalf("seed delivery: %v", err)
	}

	order.Items = items
	order.Settlement = settlement
	order.Delivery = delivery
	return order
}

// ReloadOrder reads the order aggregate back.
func ReloadOrder(t testing.TB, conn *gorm.DB, orderID uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	err := conn.Preload("Items").Preload("Settlement").Preload("Delivery").
		First(&order, "id = ?", orderID).Error
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return &order
}

// WalletEntries returns the ledger entries recorded for reference.
func WalletEntries(t testing.TB, conn *gorm.DB, reference string) []models.WalletTransaction {
	t.Helper()
	var entries []models.WalletTransaction
	if err := conn.Where("reference = ?", reference).Order("created_at").Find(&entries).Error; err != nil {
		t.Fatalf("load wallet entries: %v", err)
	}
	return entries
}

// OutboxEvents returns queued events of the given type for an aggregate.
func OutboxEvents(t testing.TB, conn *gorm.DB, eventType enums.OutboxEventType, aggregateID uuid.UUID) []models.OutboxEvent {
	t.Helper()
	var events []models.OutboxEvent
	if err := conn.Where("event_type = ? AND aggregate_id = ?", eventType, aggregateID).Find(&events).Error; err != nil {
		t.Fatalf("load outbox events: %v", err)
	}
	return events
}
