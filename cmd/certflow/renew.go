package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var renewCmd = &cobra.Command{
	Use:   "renew <order-id>",
	Short: "Renew a certificate now",
	Long: `Renew a persisted certificate order immediately, retrying transient
failures. Validation records are published, verified, and cleaned up in one
run.`,
	Args: cobra.ExactArgs(1),
	RunE: runRenew,
}

var renewStartCmd = &cobra.Command{
	Use:   "start <order-id>",
	Short: "Start a manual renewal (publish records, then stop)",
	Long: `Start a renewal without completing it: validation records are published
and left in place so they can be inspected or given extra propagation time.
Complete the renewal with "renew finish". Pass --redis-url (or set
REDIS_URL) so the renewal session survives between invocations.`,
	Args: cobra.ExactArgs(1),
	RunE: runRenewStart,
}

var renewFinishCmd = &cobra.Command{
	Use:   "finish <order-id>",
	Short: "Finish a manual renewal started earlier",
	Args:  cobra.ExactArgs(1),
	RunE:  runRenewFinish,
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <order-id>",
	Short: "Revoke an issued certificate",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevoke,
}

func init() {
	rootCmd.AddCommand(renewCmd, revokeCmd)
	renewCmd.AddCommand(renewStartCmd, renewFinishCmd)
}

func runRenew(cmd *cobra.Command, args []string) error {
	svc, store, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	if err := svc.AutoRenew(cmd.Context(), args[0]); err != nil {
		return err
	}

	order, err := store.GetOrder(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Renewed certificate for %s\n", strings.Join(order.Domains(), ", "))
	fmt.Printf("Expires: %s\n", order.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runRenewStart(cmd *cobra.Command, args []string) error {
	if redisURL == "" {
		fmt.Println("Warning: without --redis-url the renewal session lives in memory only;")
		fmt.Println("run \"renew finish\" from the same process or configure Redis.")
	}

	svc, _, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	session, err := svc.ManualRenewStart(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Published %d validation record(s):\n", len(session.Challenges))
	for _, ch := range session.Challenges {
		fmt.Printf("  _acme-challenge.%s TXT %s\n", ch.Domain, ch.DNSValue)
	}
	fmt.Println("Complete with: certflow renew finish", args[0])
	return nil
}

func runRenewFinish(cmd *cobra.Command, args []string) error {
	svc, _, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	order, err := svc.ManualRenewFinish(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Renewed certificate for %s\n", strings.Join(order.Domains(), ", "))
	fmt.Printf("Expires: %s\n", order.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runRevoke(cmd *cobra.Command, args []string) error {
	svc, _, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	if err := svc.Revoke(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Revoked certificate for order %s\n", args[0])
	return nil
}
