// Command chat, eventchat client core'unu terminalden sürer: konuşma
// listesi, konuşma açma ve mesaj gönderme.
//
//	chat login ayse password123
//	CHAT_TOKEN=... chat list
//	CHAT_TOKEN=... chat open --support
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/akinalp/eventchat/config"
	"github.com/akinalp/eventchat/session"
)

// globalFlags, tüm alt komutların paylaştığı ayarlar.
type globalFlags struct {
	token string
	debug bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "chat",
		Short:         "Terminal client for eventchat conversations",
		Example:       "chat list",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.token, "token", "t", "", "Bearer token (default $CHAT_TOKEN)")
	cmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug logging")

	cmd.AddCommand(
		newLoginCommand(flags),
		newListCommand(flags),
		newOpenCommand(flags),
		newSendCommand(flags),
	)
	return cmd
}

// loadConfig, env'den client config'i okur ve flag'leri uygular.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.token != "" {
		cfg.Client.Token = flags.token
	}
	if flags.debug {
		cfg.Client.Debug = true
	}
	return cfg, nil
}

// signIn, config'teki token ile oturum açan bir Controller döner.
func signIn(ctx context.Context, flags *globalFlags) (*session.Controller, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Client.Token) == "" {
		return nil, fmt.Errorf("no token: run `chat login` and set CHAT_TOKEN or pass --token")
	}

	logger := log.New(io.Discard, "", 0)
	if cfg.Client.Debug {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	ctrl := session.New(session.Options{Config: cfg.Client, Logger: logger})
	if _, err := ctrl.SignIn(ctx, cfg.Client.Token); err != nil {
		ctrl.Close()
		return nil, err
	}
	return ctrl, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
