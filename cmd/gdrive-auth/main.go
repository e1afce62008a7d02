// Command gdrive-auth obtains the refresh token used by the gdrive archive
// provider (GDRIVE_REFRESH_TOKEN). It runs the OAuth consent flow against a
// loopback callback and prints the token.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"avatarsynth/internal/config"
	"avatarsynth/internal/pkg/logger"
	"avatarsynth/internal/storage"
)

const consentTimeout = 3 * time.Minute

func main() {
	log := logger.New(logger.Config{Level: "info", Format: "text", ServiceName: "gdrive-auth", Output: os.Stderr})

	gcfg := config.GDriveConfig{
		ClientID:     strings.TrimSpace(os.Getenv("GDRIVE_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("GDRIVE_CLIENT_SECRET")),
	}
	if gcfg.ClientID == "" || gcfg.ClientSecret == "" {
		log.LogFatal("missing credentials", errors.New("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET are required"))
	}

	tok, err := authorize(context.Background(), log, gcfg)
	if err != nil {
		log.LogFatal("authorization failed", err)
	}

	if strings.TrimSpace(tok.RefreshToken) == "" {
		log.Error("no refresh token returned; revoke the app's access at https://myaccount.google.com/permissions and run again")
		os.Exit(1)
	}

	fmt.Println(tok.RefreshToken)
}

func authorize(ctx context.Context, log *logger.Logger, gcfg config.GDriveConfig) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port)
	conf := storage.GDriveOAuthConfig(gcfg, redirectURL)

	cb := newCallback(randomState())
	srv := &http.Server{
		Handler:      cb,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	// prompt=consent forces a refresh token even when the app was authorized before.
	authURL := conf.AuthCodeURL(cb.state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	log.Info("open this URL in a browser", "url", authURL, "callback", redirectURL)

	waitCtx, cancel := context.WithTimeout(ctx, consentTimeout)
	defer cancel()

	code, err := cb.wait(waitCtx)
	if err != nil {
		return nil, err
	}
	return conf.Exchange(ctx, code)
}
