// Command seed-db loads demo orders into PostgreSQL through the order service,
// so every seeded order carries consistent totals and lifecycle state.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/oolio-orders/internal/domain/order"
	"github.com/xenking/oolio-orders/internal/gateway"
	"github.com/xenking/oolio-orders/internal/storage/postgres"
)

type addressJSON struct {
	Recipient   string   `json:"recipient"`
	Lines       []string `json:"lines"`
	Locality    string   `json:"locality"`
	Region      string   `json:"region"`
	PostalCode  string   `json:"postal_code"`
	CountryCode string   `json:"country_code"`
}

type seedOrder struct {
	Email           string       `json:"email"`
	Note            string       `json:"note"`
	Currency        string       `json:"currency"`
	Status          order.Status `json:"status"`
	ShippingAddress *addressJSON `json:"shipping_address"`
	Items           []struct {
		ProductID string          `json:"product_id"`
		Name      string          `json:"name"`
		Quantity  int             `json:"quantity"`
		UnitPrice decimal.Decimal `json:"unit_price"`
	} `json:"items"`
	Discounts []struct {
		Kind  order.DiscountKind `json:"kind"`
		Value decimal.Decimal    `json:"value"`
		Code  string             `json:"code"`
	} `json:"discounts"`
}

func main() {
	var databaseURL, ordersFile string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or ORDERS_DATABASE_URL, DATABASE_URL env)")
	flag.StringVar(&ordersFile, "orders-file", "db/seed/orders.json", "path to the demo orders JSON file")
	flag.Parse()

	for _, env := range []string{"ORDERS_DATABASE_URL", "DATABASE_URL"} {
		if databaseURL == "" {
			databaseURL = os.Getenv(env)
		}
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		return run(ctx, lg, databaseURL, ordersFile)
	})
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, ordersFile string) error {
	data, err := os.ReadFile(ordersFile)
	if err != nil {
		return errors.Wrap(err, "read orders file")
	}
	var orders []seedOrder
	if err := json.Unmarshal(data, &orders); err != nil {
		return errors.Wrap(err, "parse orders JSON")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	svc, err := order.NewService(postgres.NewOrderRepository(pool), gateway.NewSandbox(gateway.SandboxConfig{}), order.Config{
		DefaultCurrency:  "USD",
		AllowEmptyOrders: true,
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	return seed(ctx, lg, svc, orders)
}

// seed creates each order and walks it to its requested status. Paid orders
// get a manual charge for the balance due.
func seed(ctx context.Context, lg *zap.Logger, svc *order.Service, orders []seedOrder) error {
	for i, so := range orders {
		switch so.Status {
		case "", order.StatusDraft, order.StatusCheckoutPending, order.StatusPaid:
		default:
			return errors.Errorf("order %d: cannot seed status %q", i, so.Status)
		}
		req := order.CreateRequest{
			Currency: so.Currency,
			Email:    so.Email,
			Note:     so.Note,
		}
		if a := so.ShippingAddress; a != nil {
			req.ShippingAddress = &order.Address{
				Recipient:   a.Recipient,
				Lines:       a.Lines,
				Locality:    a.Locality,
				Region:      a.Region,
				PostalCode:  a.PostalCode,
				CountryCode: a.CountryCode,
			}
		}
		for _, it := range so.Items {
			req.Items = append(req.Items, order.ItemInput{
				ProductID: it.ProductID,
				Name:      it.Name,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
			})
		}
		o, err := svc.Create(ctx, req)
		if err != nil {
			return errors.Wrapf(err, "create order %d", i)
		}
		for _, d := range so.Discounts {
			if _, _, err := svc.AddDiscount(ctx, o.ID, order.DiscountInput{Kind: d.Kind, Value: d.Value, Code: d.Code}); err != nil {
				return errors.Wrapf(err, "add discount to order %s", o.ID)
			}
		}

		if so.Status == order.StatusCheckoutPending || so.Status == order.StatusPaid {
			pending, err := svc.Checkout(ctx, o.ID)
			if err != nil {
				return errors.Wrapf(err, "checkout order %s", o.ID)
			}
			if so.Status == order.StatusPaid {
				ref := "seed-" + o.ID
				if _, _, err := svc.AddTransaction(ctx, o.ID, order.TransactionInput{
					Type:             order.TransactionCharge,
					Amount:           pending.Totals.BalanceDue,
					GatewayReference: &ref,
				}); err != nil {
					return errors.Wrapf(err, "pay order %s", o.ID)
				}
			}
		}

		lg.Info("Seeded order",
			zap.String("id", o.ID),
			zap.String("email", so.Email),
			zap.String("status", string(so.Status)),
		)
	}
	return nil
}
