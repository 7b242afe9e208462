// Package renewal orchestrates certificate issuance and renewal end to end:
// publish DNS-01 TXT records through the configured providers, wait for
// public propagation, drive ACME validation and finalization, store the
// issued files, and clean the records up again.
//
// The package exposes four entry points. StartOrder issues a brand new
// certificate. AutoRenew re-issues a persisted order unattended, retrying
// transient failures on a fixed schedule. ManualRenewStart and
// ManualRenewFinish split a renewal into two phases around an operator
// checkpoint, with the in-between state held in a SessionStore. Revoke
// revokes the last issued certificate of an order.
//
// Usage:
//
//	svc := renewal.New(store, dns.DefaultRegistry(),
//		renewal.WithDirectoryURL(acmeorder.LetsEncryptStaging),
//		renewal.WithLogger(log),
//	)
//
//	order, err := svc.StartOrder(ctx, renewal.StartOrderRequest{
//		OwnerID:      "user-1",
//		ContactEmail: "ops@example.com",
//		SavePath:     "/etc/certs/example.com",
//		Domains: []renewal.DomainSelection{
//			{Domain: "example.com", ProviderID: cfg.ID},
//		},
//		PersistForRenewal: true,
//		AutoRenew:         true,
//	})
package renewal
