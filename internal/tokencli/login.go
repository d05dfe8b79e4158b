package tokencli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	oauth "github.com/giantswarm/oauth-credentials"
	"github.com/giantswarm/oauth-credentials/credential"
	"github.com/giantswarm/oauth-credentials/internal/util"
)

// callbackReadHeaderTimeout bounds slow clients on the loopback listener
const callbackReadHeaderTimeout = 10 * time.Second

// login runs the grant-specific initial flow. Prompts go to prompt, never to
// the token output.
func login(ctx context.Context, cfg Config, c *credential.Credential, redirectURI string, prompt io.Writer, logger *slog.Logger) error {
	switch c.GrantType() {
	case oauth.GrantDeviceCode:
		return deviceLogin(ctx, c, prompt)

	case oauth.GrantAuthorizationCode, oauth.GrantOpenIDConnect:
		return browserLogin(ctx, c, redirectURI, prompt, logger)

	case oauth.GrantClientCredentials, oauth.GrantResourceOwnerPassword:
		return c.ExchangeInitial(ctx, "")

	case oauth.GrantRefreshToken:
		if cfg.RefreshToken == "" {
			return fmt.Errorf("%s%s is required for the refresh_token grant", cfg.EnvPrefix, "REFRESH_TOKEN")
		}
		return c.ExchangeInitial(ctx, cfg.RefreshToken)
	}

	return fmt.Errorf("%w: %s", credential.ErrUnsupportedOperation, c.GrantType())
}

func deviceLogin(ctx context.Context, c *credential.Credential, prompt io.Writer) error {
	da, err := c.StartDeviceAuthorization(ctx)
	if err != nil {
		return err
	}

	if da.VerificationURIComplete != "" {
		_, _ = fmt.Fprintf(prompt, "To sign in, open %s\n", da.VerificationURIComplete)
	} else {
		_, _ = fmt.Fprintf(prompt, "To sign in, open %s and enter the code %s\n", da.VerificationURI, da.UserCode)
	}
	if !da.ExpiresAt.IsZero() {
		_, _ = fmt.Fprintf(prompt, "The code expires at %s.\n", da.ExpiresAt.Local().Format(time.Kitchen))
	}

	return c.AwaitDeviceAuthorization(ctx)
}

type callbackResult struct {
	code  string
	state string
	err   error
}

// browserLogin serves the redirect URI on loopback, prints the authorization
// URL and exchanges the code the provider redirects back with
func browserLogin(ctx context.Context, c *credential.Credential, redirectURI string, prompt io.Writer, logger *slog.Logger) error {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return oauth.NewConfigurationError("redirect_uri", err.Error())
	}
	if u.Scheme != "http" || !util.IsLoopbackHost(u.Hostname()) {
		return oauth.NewConfigurationError("redirect_uri", "interactive login needs an http loopback redirect URI")
	}

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return fmt.Errorf("listen for callback: %w", err)
	}

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath(u), func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		res := callbackResult{code: q.Get("code"), state: q.Get("state")}
		if e := q.Get("error"); e != "" {
			res.err = oauth.NewRejectedError(e, q.Get("error_description"), 0)
			http.Error(w, "Sign-in failed. You can close this window.", http.StatusBadRequest)
		} else {
			_, _ = io.WriteString(w, "Signed in. You can close this window.\n")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: callbackReadHeaderTimeout}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Callback server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL, ok := c.AuthorizationURL()
	if !ok {
		return fmt.Errorf("%w: authorization URL", credential.ErrUnsupportedOperation)
	}
	_, _ = fmt.Fprintf(prompt, "To sign in, open:\n\n  %s\n\n", authURL)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-results:
		if res.err != nil {
			return res.err
		}
		return c.ExchangeInitialWithState(ctx, res.code, res.state)
	}
}

func callbackPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}
