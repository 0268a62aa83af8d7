// Command authorize runs the one-time Google consent flow and stores the
// resulting token for the document exporter.
//
//	authorize -genkey        print a new EXPORT_TOKEN_KEY
//	authorize                print the consent URL, read the code, save the token
//	authorize -code CODE     save the token for an already obtained code
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hugh/go-scout/internal/app"
	"github.com/hugh/go-scout/internal/export"
	"github.com/hugh/go-scout/pkg/config"
	"github.com/hugh/go-scout/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	genKey := flag.Bool("genkey", false, "print a new token encryption key and exit")
	code := flag.String("code", "", "authorization code from the consent page")
	flag.Parse()

	if *genKey {
		key, err := export.GenerateKey()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, strings.TrimSpace(*code), logger); err != nil {
		logger.Error("authorization failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, code string, logger *slog.Logger) error {
	oauthCfg, err := export.LoadOAuthConfig(cfg.Export.CredentialsFile)
	if err != nil {
		return err
	}

	store, err := export.NewTokenStore(cfg.Export.TokenFile, cfg.Export.TokenKey)
	if err != nil {
		return err
	}
	if !store.Encrypted() {
		logger.Warn("EXPORT_TOKEN_KEY is not set; the token will be stored unencrypted", "file", cfg.Export.TokenFile)
	}

	if code == "" {
		fmt.Println("Open this URL, grant access, then paste the code below:")
		fmt.Println(export.AuthCodeURL(oauthCfg))
		fmt.Print("Code: ")

		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading code: %w", err)
		}
		code = strings.TrimSpace(line)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := export.ExchangeAndSave(ctx, oauthCfg, store, code); err != nil {
		return err
	}
	logger.Info("token saved", "file", cfg.Export.TokenFile, "encrypted", store.Encrypted())

	exporter, err := app.NewExporter(ctx, &cfg.Export, logger)
	if err != nil {
		return err
	}
	folderID, err := exporter.EnsureFolder(ctx)
	if err != nil {
		return err
	}
	logger.Info("export folder ready", "folder", cfg.Export.FolderName, "folder_id", folderID)

	recent, err := exporter.ListRecent(ctx, 5)
	if err != nil {
		return err
	}
	for _, doc := range recent {
		fmt.Printf("  %s  %s\n", doc.ModifiedTime, doc.Name)
	}
	return nil
}
