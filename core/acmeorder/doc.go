// Package acmeorder drives the ACME (RFC 8555) account, order, authorization,
// finalize and download lifecycle for DNS-01 validated certificates.
//
// The engine exposes each protocol step explicitly instead of a single
// obtain-certificate call, because the caller has to interleave DNS record
// publication and propagation checks between order creation and validation.
// A typical issuance:
//
//	engine := acmeorder.NewEngine(accountKey, acmeorder.LetsEncryptProduction)
//	account, _ := engine.InitAccount(ctx, "ops@example.com")
//	order, _ := engine.BeginOrder(ctx, domains)
//	challenges, _ := engine.FetchChallenges(ctx, order)
//	// ... publish TXT records, wait for propagation ...
//	for _, ch := range challenges {
//		_ = engine.SubmitChallenge(ctx, ch)
//	}
//	_ = engine.PollValidation(ctx, challenges, acmeorder.DefaultValidationPolicy())
//	certKey, _ := acmeorder.GenerateCertificateKey()
//	der, certURL, _ := engine.Finalize(ctx, order, certKey, domains, acmeorder.DefaultFinalizePolicy())
//	stored, _ := engine.DownloadAndStore(ctx, certURL, der, certKey, false, "/etc/certs")
//
// Failure semantics: a CA-reported invalid challenge or order is terminal for
// the attempt and surfaces as *ChallengeInvalidError or ErrOrderInvalid;
// transient network errors during polling are absorbed by the bounded poll
// loop and become ErrPollingTimeout when the attempt budget runs out.
package acmeorder
