// Command settlectl is the operator tool for the order settlement API. Order, stock and promotion
// commands call the back-office routes with HMAC-signed requests; seed writes YAML fixtures
// straight into the configured store.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/config"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/secrets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "settlectl: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "settlectl",
		Usage: "operate the order settlement API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "base URL of the API",
				Value:   "http://localhost:8080",
				EnvVars: []string{"SETTLECTL_API_URL"},
			},
			&cli.StringFlag{
				Name:    "secret",
				Usage:   "back-office HMAC secret",
				EnvVars: []string{"SETTLECTL_HMAC_SECRET", "API_SECURITY_HMAC_ADMIN_SECRET"},
			},
			&cli.StringFlag{
				Name:    "operator",
				Usage:   "operator id recorded in order history",
				EnvVars: []string{"SETTLECTL_OPERATOR"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "request timeout",
				Value: 15 * time.Second,
			},
		},
		Commands: []*cli.Command{
			ordersCommand(),
			stockCommand(),
			promotionsCommand(),
			seedCommand(),
		},
	}
}

func clientFromContext(c *cli.Context) (*adminClient, error) {
	return newAdminClient(c.String("api-url"), c.String("secret"), c.String("operator"), c.Duration("timeout"))
}

func printBody(c *cli.Context, body []byte) error {
	_, err := c.App.Writer.Write(prettyJSON(body))
	return err
}

func requireArg(c *cli.Context, name string) (string, error) {
	value := strings.TrimSpace(c.Args().First())
	if value == "" {
		return "", cli.Exit(fmt.Sprintf("%s is required", name), 2)
	}
	return value, nil
}

func ordersCommand() *cli.Command {
	return &cli.Command{
		Name:  "orders",
		Usage: "inspect and settle orders",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list orders, newest first",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "status", Usage: "filter by status (repeatable)"},
					&cli.StringFlag{Name: "buyer", Usage: "filter by buyer id"},
					&cli.IntFlag{Name: "page-size", Usage: "page size"},
					&cli.StringFlag{Name: "page-token", Usage: "continuation token"},
				},
				Action: func(c *cli.Context) error {
					client, err := clientFromContext(c)
					if err != nil {
						return err
					}
					query := url.Values{}
					if statuses := c.StringSlice("status"); len(statuses) > 0 {
						query.Set("status", strings.Join(statuses, ","))
					}
					if buyer := c.String("buyer"); buyer != "" {
						query.Set("buyerId", buyer)
					}
					if size := c.Int("page-size"); size > 0 {
						query.Set("pageSize", strconv.Itoa(size))
					}
					if token := c.String("page-token"); token != "" {
						query.Set("pageToken", token)
					}
					body, err := client.listOrders(c.Context, query)
					if err != nil {
						return err
					}
					return printBody(c, body)
				},
			},
			{
				Name:      "get",
				Usage:     "show one order with its history",
				ArgsUsage: "ORDER_ID",
				Action: func(c *cli.Context) error {
					orderID, err := requireArg(c, "ORDER_ID")
					if err != nil {
						return err
					}
					client, err := clientFromContext(c)
					if err != nil {
						return err
					}
					body, err := client.getOrder(c.Context, orderID)
					if err != nil {
						return err
					}
					return printBody(c, body)
				},
			},
			{
				Name:      "transition",
				Usage:     "move an order to another status",
				ArgsUsage: "ORDER_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "target status", Required: true},
					&cli.StringFlag{Name: "expected", Usage: "fail unless the order is in this status"},
					&cli.StringFlag{Name: "reason", Usage: "reason recorded in history"},
				},
				Action: func(c *cli.Context) error {
					orderID, err := requireArg(c, "ORDER_ID")
					if err != nil {
						return err
					}
					client, err := clientFromContext(c)
					if err != nil {
						return err
					}
					body, err := client.transition(c.Context, orderID, c.String("status"), c.String("expected"), c.String("reason"))
					if err != nil {
						return err
					}
					return printBody(c, body)
				},
			},
			{
				Name:      "refund",
				Usage:     "refund quantities of a completed order",
				ArgsUsage: "ORDER_ID",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "item", Usage: "VARIANT_ID=QUANTITY (repeatable)", Required: true},
					&cli.StringFlag{Name: "reason", Usage: "reason recorded in history"},
				},
				Action: func(c *cli.Context) error {
					orderID, err := requireArg(c, "ORDER_ID")
					if err != nil {
						return err
					}
					items, err := parseRefundItems(c.StringSlice("item"))
					if err != nil {
						return cli.Exit(err.Error(), 2)
					}
					client, err := clientFromContext(c)
					if err != nil {
						return err
					}
					body, err := client.refund(c.Context, orderID, items, c.String("reason"))
					if err != nil {
						return err
					}
					return printBody(c, body)
				},
			},
		},
	}
}

func stockCommand() *cli.Command {
	return &cli.Command{
		Name:  "stock",
		Usage: "override branch stock",
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "set the stock of a variant at a branch",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "branch", Required: true},
					&cli.StringFlag{Name: "variant", Required: true},
					&cli.Int64Flag{Name: "stock", Required: true},
				},
				Action: func(c *cli.Context) error {
					if c.Int64("stock") < 0 {
						return cli.Exit("stock must not be negative", 2)
					}
					client, err := clientFromContext(c)
					if err != nil {
						return err
					}
					body, err := client.setStock(c.Context, c.String("branch"), c.String("variant"), c.Int64("stock"))
					if err != nil {
						return err
					}
					return printBody(c, body)
				},
			},
		},
	}
}

func promotionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "promotions",
		Usage: "maintain promotion codes",
		Subcommands: []*cli.Command{
			{
				Name:      "upsert",
				Usage:     "create or replace a promotion",
				ArgsUsage: "CODE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Usage: "percentage or fixed", Required: true},
					&cli.Float64Flag{Name: "value", Required: true},
					&cli.Int64Flag{Name: "min-purchase", Usage: "minimum subtotal"},
					&cli.TimestampFlag{Name: "expires-at", Layout: time.RFC3339, Usage: "RFC3339 expiry"},
					&cli.StringFlag{Name: "owner", Usage: "restrict to one buyer"},
					&cli.BoolFlag{Name: "inactive", Usage: "store the promotion disabled"},
				},
				Action: func(c *cli.Context) error {
					code, err := requireArg(c, "CODE")
					if err != nil {
						return err
					}
					client, err := clientFromContext(c)
					if err != nil {
						return err
					}
					promo := map[string]any{
						"type":            c.String("type"),
						"value":           c.Float64("value"),
						"minimumPurchase": c.Int64("min-purchase"),
						"ownerId":         c.String("owner"),
						"active":          !c.Bool("inactive"),
					}
					if expires := c.Timestamp("expires-at"); expires != nil {
						promo["expiresAt"] = expires.UTC().Format(time.RFC3339)
					}
					body, err := client.upsertPromotion(c.Context, code, promo)
					if err != nil {
						return err
					}
					return printBody(c, body)
				},
			},
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "load catalog variants, stock and promotions from a YAML file into the store",
		Flags: []cli.Flag{
			&cli.PathFlag{Name: "file", Aliases: []string{"f"}, Required: true},
			&cli.PathFlag{Name: "env-file", Usage: "dotenv file with API_* settings", Value: ".env"},
		},
		Action: func(c *cli.Context) error {
			fx, err := loadFixtures(c.Path("file"))
			if err != nil {
				return err
			}
			envFile := config.WithEnvFile(c.Path("env-file"))
			project, _ := config.Lookup("API_SECRET_PROJECT_ID", envFile)
			if project == "" {
				project, _ = config.Lookup("API_FIREBASE_PROJECT_ID", envFile)
			}
			fetcher, err := secrets.NewFetcher(c.Context, secrets.WithProject(project))
			if err != nil {
				return err
			}
			defer fetcher.Close()

			cfg, err := config.Load(c.Context, envFile, config.WithSecretResolver(fetcher))
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			reg, catalog, err := openStore(c.Context, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = reg.Close(context.Background())
			}()

			s, err := newSeeder(reg, catalog)
			if err != nil {
				return err
			}
			summary, err := s.apply(c.Context, fx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.App.Writer, "seeded %d variants, %d stock records, %d promotions into %s\n",
				summary.Variants, summary.Stock, summary.Promotions, cfg.Store.Driver)
			return err
		},
	}
}

func parseRefundItems(raw []string) (map[string]int, error) {
	items := make(map[string]int, len(raw))
	for _, entry := range raw {
		variant, qty, ok := strings.Cut(entry, "=")
		variant = strings.TrimSpace(variant)
		if !ok || variant == "" {
			return nil, fmt.Errorf("item %q: expected VARIANT_ID=QUANTITY", entry)
		}
		n, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("item %q: quantity must be a positive integer", entry)
		}
		items[variant] += n
	}
	return items, nil
}
