// Package microsoft resolves Microsoft identity platform (Entra ID) endpoints
// for a tenant.
//
// The tenant is one of "common", "organizations", "consumers", a tenant ID
// or a verified domain. Sovereign clouds use a different authority host:
//
//	p, err := microsoft.New(microsoft.Config{
//	    Tenant:    "contoso.onmicrosoft.us",
//	    Authority: "https://login.microsoftonline.us",
//	})
//	endpoints, err := p.Endpoints(ctx)
//
// The identity platform does not implement RFC 7009 revocation, so the
// returned RevocationURL is always empty.
package microsoft
