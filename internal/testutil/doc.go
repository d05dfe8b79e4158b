// Package testutil provides testing utilities for the credential library: a
// controllable clock and a scripted identity provider that answers token,
// device authorization and revocation requests and counts them.
package testutil
