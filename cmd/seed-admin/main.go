// seed-admin creates the first admin user, or resets its password when it already exists.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME_2=... go run ./cmd/seed-admin -username admin
//
// The password comes from -password or ADMIN_PASSWORD.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
)

func main() {
	username := flag.String("username", envOr("ADMIN_USERNAME", "admin"), "admin username")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password (min 8 chars)")
	name := flag.String("name", "Administrateur", "display name")
	migrate := flag.Bool("migrate", false, "run AutoMigrate before seeding")
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "a password is required (-password or ADMIN_PASSWORD)")
		os.Exit(2)
	}

	ctx := utils.SetUsernameInContext(context.Background(), "seed-admin")
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized. Set DB_* env vars.")
		os.Exit(1)
	}
	if *migrate {
		if err := models.MigrateTable(); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
	}

	user, err := models.CreateUser(ctx, &models.NewUser{
		Username: *username,
		Name:     *name,
		Password: *password,
		Role:     models.UserRoleAdmin,
	})
	if err == nil {
		fmt.Printf("created admin user %q (id=%d)\n", user.Username, user.ID)
		return
	}
	if !errors.Is(err, models.ErrUsernameTaken) {
		fmt.Fprintf(os.Stderr, "failed to create admin: %v\n", err)
		os.Exit(1)
	}

	hashed, err := utils.HashPassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	if err := db.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", *username).
		Updates(map[string]interface{}{
			"password":  string(hashed),
			"role":      models.UserRoleAdmin,
			"is_active": true,
		}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("reset password of admin user %q\n", *username)
}

func envOr(name string, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
