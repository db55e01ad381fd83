package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/workera/internal/credential"
	"github.com/nhle/workera/internal/devserver"
)

var (
	tokenTTL   time.Duration
	tokenValue string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint [user-id]",
	Short: "Mint a development token signed with server.jwt_secret",
	Long: `Mint a bearer token the development server accepts. The user defaults
to the configured user_id.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := cfg.UserID
		if len(args) == 1 {
			userID = args[0]
		}
		if userID == "" {
			return errors.New("no user id given and user_id is not configured")
		}
		auth, err := devserver.NewAuth(cfg.Server.JWTSecret)
		if err != nil {
			return err
		}
		token, err := auth.Mint(userID, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the API token of the configured user in the keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.UserID == "" {
			return errors.New("user_id is not configured")
		}
		token := tokenValue
		if token == "" {
			err := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("API token").
						Description("Bearer token for user " + cfg.UserID).
						EchoMode(huh.EchoModePassword).
						Value(&token).
						Validate(func(s string) error {
							if strings.TrimSpace(s) == "" {
								return errors.New("token is required")
							}
							return nil
						}),
				),
			).Run()
			if err != nil {
				return err
			}
		}
		vault, err := credential.Open()
		if err != nil {
			return err
		}
		if err := vault.SetToken(cfg.UserID, strings.TrimSpace(token)); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "token saved")
		return nil
	},
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored API token of the configured user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		vault, err := credential.Open()
		if err != nil {
			return err
		}
		return vault.DeleteToken(cfg.UserID)
	},
}

func init() {
	tokenMintCmd.Flags().DurationVar(&tokenTTL, "ttl", devserver.DefaultTokenTTL, "token lifetime")
	tokenSetCmd.Flags().StringVar(&tokenValue, "token", "", "token value (prompted when empty)")
	tokenCmd.AddCommand(tokenMintCmd, tokenSetCmd, tokenDeleteCmd)
	rootCmd.AddCommand(tokenCmd)
}
