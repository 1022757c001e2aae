// Command bootstrap-api-key imports a local user for an identity-provider
// subject and issues it a fresh API key, deactivating any previous one.
// With -admin the user is promoted to administrator.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keenchase/edit-business/internal/auth"
	"github.com/keenchase/edit-business/internal/model"
	"github.com/keenchase/edit-business/internal/repository"
	"github.com/keenchase/edit-business/internal/service"
)

type output struct {
	UserID     string     `json:"userId"`
	ExternalID string     `json:"externalId"`
	Role       model.Role `json:"role"`
	KeyID      string     `json:"keyId"`
	Key        string     `json:"key"`
	KeyPrefix  string     `json:"keyPrefix"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		externalID  = flag.String("external-id", "", "Identity-provider subject of the user (required)")
		nickname    = flag.String("nickname", "", "Display name for a newly imported user")
		admin       = flag.Bool("admin", false, "Promote the user to administrator")
		expiresIn   = flag.Int("expires-in", 0, "Key lifetime in days; 0 never expires")
		migrate     = flag.Bool("migrate", false, "Apply pending migrations first")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if strings.TrimSpace(*externalID) == "" {
		fmt.Fprintln(os.Stderr, "-external-id is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	if *migrate {
		if err := repo.Migrate(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
	}

	var admins []string
	if *admin {
		admins = []string{*externalID}
	}
	user, err := repo.UpsertUser(ctx, ulid.Make().String(), model.UserProfile{
		ExternalID: *externalID,
		Nickname:   *nickname,
	}, admins, time.Now().UTC())
	if err != nil {
		fmt.Fprintln(os.Stderr, "import user:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	creds := service.NewCredentialStore(repo, nil, auth.NewHasher(auth.DefaultParams), service.CredentialOptions{}, nil, logger)
	issued, err := creds.CreateForUser(ctx, user.ID, user.ID, expiresIn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue api key:", err)
		os.Exit(1)
	}

	out := output{
		UserID:     user.ID,
		ExternalID: user.ExternalID,
		Role:       user.Role,
		KeyID:      issued.ID,
		Key:        issued.Key,
		KeyPrefix:  issued.KeyPrefix,
		ExpiresAt:  issued.ExpiresAt,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Key)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}
