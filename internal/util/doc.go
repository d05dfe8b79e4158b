// Package util provides small helpers shared across the credential library.
//
// Key utilities:
//   - SafeTruncate: Bounds provider-supplied strings before logging them
//   - NormalizeURL: Compares issuer and endpoint URLs regardless of trailing slashes
//   - Classify, IsLoopbackHost: Classify issuer and redirect hosts for SSRF checks
package util
