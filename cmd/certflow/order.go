package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/certflow/certflow/core/renewal"
)

var (
	orderOwner      string
	orderEmail      string
	orderSavePath   string
	orderDomains    []string
	orderProviderID string
	orderSeparate   bool
	orderPersist    bool
	orderAutoRenew  bool
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Manage certificate orders",
}

var orderNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Request a new certificate",
	Long: `Request a certificate for one or more domains. Each domain needs a DNS
provider to publish its validation record: either pass --provider once for
all domains, or bind per domain with --domain example.com=<provider-id>.`,
	RunE: runOrderNew,
}

var orderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List certificate orders",
	RunE:  runOrderList,
}

func init() {
	rootCmd.AddCommand(orderCmd)
	orderCmd.AddCommand(orderNewCmd, orderListCmd)

	orderCmd.PersistentFlags().StringVar(&orderOwner, "owner", "default", "owner identifier")

	orderNewCmd.Flags().StringVar(&orderEmail, "email", "", "contact email for the ACME account")
	orderNewCmd.Flags().StringVar(&orderSavePath, "save-path", "", "directory to store the issued certificate")
	orderNewCmd.Flags().StringArrayVar(&orderDomains, "domain", nil, "domain, optionally bound as domain=<provider-id> (repeatable)")
	orderNewCmd.Flags().StringVar(&orderProviderID, "provider", "", "default DNS provider for domains without a binding")
	orderNewCmd.Flags().BoolVar(&orderSeparate, "separate-files", false, "write certificate and key as separate files")
	orderNewCmd.Flags().BoolVar(&orderPersist, "persist", true, "keep the order in the state file for renewal")
	orderNewCmd.Flags().BoolVar(&orderAutoRenew, "auto-renew", false, "renew automatically when running the daemon")
	_ = orderNewCmd.MarkFlagRequired("email")
	_ = orderNewCmd.MarkFlagRequired("save-path")
	_ = orderNewCmd.MarkFlagRequired("domain")
}

func runOrderNew(cmd *cobra.Command, args []string) error {
	selections := make([]renewal.DomainSelection, 0, len(orderDomains))
	for _, raw := range orderDomains {
		domain, providerID, bound := strings.Cut(raw, "=")
		if !bound {
			providerID = orderProviderID
		}
		if providerID == "" {
			return fmt.Errorf("no DNS provider for %s: pass --provider or bind with --domain %s=<provider-id>", domain, domain)
		}
		selections = append(selections, renewal.DomainSelection{Domain: domain, ProviderID: providerID})
	}

	svc, _, err := newService(cmd.Context())
	if err != nil {
		return err
	}

	order, err := svc.StartOrder(cmd.Context(), renewal.StartOrderRequest{
		OwnerID:           orderOwner,
		ContactEmail:      orderEmail,
		SavePath:          orderSavePath,
		Domains:           selections,
		SeparateFiles:     orderSeparate,
		PersistForRenewal: orderPersist,
		AutoRenew:         orderAutoRenew,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Issued certificate for %s\n", strings.Join(order.Domains(), ", "))
	fmt.Printf("Order ID: %s\n", order.ID)
	fmt.Printf("Expires:  %s\n", order.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runOrderList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	orders, err := store.ListOrders(cmd.Context(), orderOwner)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Println("No certificate orders.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDOMAINS\tEXPIRES\tAUTO-RENEW\tRENEWALS (OK/FAILED)")
	for _, order := range orders {
		expires := "-"
		if !order.ExpiresAt.IsZero() {
			expires = order.ExpiresAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d/%d\n",
			order.ID,
			strings.Join(order.Domains(), ","),
			expires,
			order.AutoRenew,
			order.SuccessfulRenewalCount,
			order.FailedRenewalCount,
		)
	}
	return w.Flush()
}
