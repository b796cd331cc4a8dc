package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/upb/rag-retrieval/middleware"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the write API",
	Long: `Signs an HS256 token with AUTH_JWT_SECRET so scripts can call the
document and chunk write routes of rag-server.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenSubject, "subject", "s", "ragctl", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	c, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	validator, err := middleware.NewJWTValidator(c.Auth.JWTSecret, c.Auth.Issuer)
	if err != nil {
		return err
	}

	token, err := validator.Sign(tokenSubject, tokenTTL)
	if err != nil {
		return err
	}
	cmd.Println(token)
	return nil
}
