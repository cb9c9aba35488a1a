package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/trashtalkers/trashtalkers/internal/config"
	"github.com/trashtalkers/trashtalkers/internal/db"
	"github.com/trashtalkers/trashtalkers/internal/model"
	"github.com/trashtalkers/trashtalkers/internal/store"
)

func useraddCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create a local account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := dbPath
			if dsn == "" {
				dsn = config.Load().DatabaseURL
			}

			email = strings.ToLower(strings.TrimSpace(email))
			if err := model.ValidateEmail(email); err != nil {
				return err
			}

			generated := password == ""
			if generated {
				var err error
				if password, err = generatePassword(16); err != nil {
					return fmt.Errorf("generating password: %w", err)
				}
			}
			if err := model.ValidatePassword(password); err != nil {
				return err
			}

			database, err := db.Open(dsn)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.EnsureSchema(database); err != nil {
				return fmt.Errorf("ensuring schema: %w", err)
			}

			ctx := context.Background()
			existing, err := store.GetUserByEmail(ctx, database, email)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("an account for %s already exists", email)
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}

			user, err := store.CreateUser(ctx, database, uuid.NewString(), email, string(hash))
			if err != nil {
				return err
			}

			fmt.Println("Account created:")
			fmt.Printf("  Email:    %s\n", user.Email)
			fmt.Printf("  User ID:  %s\n", user.ID)
			if generated {
				fmt.Printf("  Password: %s\n", password)
				fmt.Println()
				fmt.Println("Save this password, it cannot be recovered.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (generated if empty)")
	cmd.MarkFlagRequired("email")
	return cmd
}
