package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"

	"github.com/wolfman30/healthcare-booking/cmd/mainconfig"
	appconfig "github.com/wolfman30/healthcare-booking/internal/config"
	"github.com/wolfman30/healthcare-booking/internal/roles"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

const usage = "usage: roles grant|revoke <requester-id> <role> | roles list <requester-id>"

type roleStore interface {
	Grant(ctx context.Context, requesterID, role, grantedBy string) error
	Revoke(ctx context.Context, requesterID, role string) error
	List(ctx context.Context, requesterID string) ([]string, error)
}

var errUsage = errors.New(usage)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	store := roles.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, cfg.StoreTimeout, logger)

	if err := run(ctx, os.Args[1:], store, operator(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

// operator names whoever ran the command for the grant audit trail.
func operator() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "cli:" + u.Username
	}
	return "cli"
}

func run(ctx context.Context, args []string, store roleStore, actor string, out io.Writer) error {
	if len(args) < 2 {
		return errUsage
	}
	cmd, requesterID := strings.ToLower(args[0]), strings.TrimSpace(args[1])
	if requesterID == "" {
		return errUsage
	}

	switch cmd {
	case "grant", "revoke":
		if len(args) != 3 || strings.TrimSpace(args[2]) == "" {
			return errUsage
		}
		role := strings.ToLower(strings.TrimSpace(args[2]))
		if cmd == "grant" {
			if err := store.Grant(ctx, requesterID, role, actor); err != nil {
				return err
			}
			fmt.Fprintf(out, "granted %s to %s\n", role, requesterID)
			return nil
		}
		if err := store.Revoke(ctx, requesterID, role); err != nil {
			return err
		}
		fmt.Fprintf(out, "revoked %s from %s\n", role, requesterID)
		return nil
	case "list":
		held, err := store.List(ctx, requesterID)
		if err != nil {
			return err
		}
		if len(held) == 0 {
			fmt.Fprintf(out, "%s holds no roles\n", requesterID)
			return nil
		}
		fmt.Fprintf(out, "%s: %s\n", requesterID, strings.Join(held, ", "))
		return nil
	}
	return errUsage
}
