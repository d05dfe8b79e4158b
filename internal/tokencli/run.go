// Package tokencli implements the oauth-token command: it builds a credential
// from the environment, restores persisted state, logs in when required and
// prints an access token.
package tokencli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/credential"
	"github.com/giantswarm/oauth-credentials/providers"
	"github.com/giantswarm/oauth-credentials/security"
)

// tokenOutput is the -json output. It never includes the refresh token.
type tokenOutput struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	Expiry      time.Time `json:"expiry,omitzero"`
	Scope       string    `json:"scope,omitempty"`
}

// Run executes the command. The token is written to out; prompts and logs go
// to errOut.
func Run(ctx context.Context, cfg Config, version string, out, errOut io.Writer) (err error) {
	if out == nil || errOut == nil {
		return errors.New("output is required")
	}

	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.logLevel()}))

	inst, shutdown, err := setupInstrumentation(ctx, cfg.OTelEndpoint, version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if serr := shutdown(shutdownCtx); serr != nil {
			logger.Warn("Failed to flush traces", "error", serr)
		}
	}()

	grantType, oc, err := oauth.LoadConfigFromEnv(cfg.EnvPrefix)
	if err != nil {
		return err
	}
	oc.Logger = logger

	resolver, scopes, err := newResolver(cfg, &oc, logger, inst)
	if err != nil {
		return err
	}
	if resolver != nil {
		if err := providers.Apply(ctx, resolver, &oc); err != nil {
			return err
		}
		if len(oc.Scopes) == 0 {
			oc.Scopes = scopes
		}
		logger.Debug("Resolved provider endpoints", "provider", resolver.Name(), "token_url", oc.Endpoints.TokenURL)
	}

	store, closeStore, err := openStore(cfg, logger, inst)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []credential.Option{
		credential.WithID(cfg.CredentialID),
		credential.WithLogger(logger),
		credential.WithInstrumentation(inst),
		credential.WithAuditor(security.NewAuditor(logger, cfg.Audit)),
	}
	if store != nil {
		opts = append(opts, credential.WithStore(store))
	}
	if cfg.RotatesRefreshToken {
		opts = append(opts, credential.WithRefreshTokenRotation())
	}

	c, err := credential.Build(grantType, oc, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	restored, err := c.Restore(ctx)
	if err != nil {
		// Stale or foreign state is replaced by the next login
		logger.Warn("Ignoring persisted credential state", "error", err)
	}
	logger.Debug("Credential ready", "id", c.ID(), "grant_type", grantType, "restored", restored)

	if cfg.Revoke {
		if err := c.Revoke(ctx); err != nil {
			return err
		}
		_, err = fmt.Fprintln(errOut, "Credential revoked.")
		return err
	}

	if _, err := c.Acquire(ctx); err != nil {
		if !errors.Is(err, oauth.ErrReauthorizationRequired) {
			return err
		}
		logger.Info("Login required", "reason", err)
		if err := login(ctx, cfg, c, oc.RedirectURI, errOut, logger); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
	}

	accessToken, err := c.Acquire(ctx)
	if err != nil {
		return err
	}
	return writeToken(out, cfg.JSON, accessToken, c)
}

func writeToken(out io.Writer, asJSON bool, accessToken string, c *credential.Credential) error {
	if !asJSON {
		_, err := fmt.Fprintln(out, accessToken)
		return err
	}

	o := tokenOutput{AccessToken: accessToken}
	if t := c.Token(); t != nil {
		o.TokenType = t.TokenType
		o.Expiry = t.Expiry
		if scope, ok := t.Extra("scope").(string); ok {
			o.Scope = scope
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(o)
}
