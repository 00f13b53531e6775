package main

import (
	"fmt"

	"supportbot/backend/pkg/config"
	"supportbot/backend/pkg/jwt"

	"github.com/spf13/cobra"
)

func runToken(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	token, err := jwt.NewService(cfg.Security.JWTSecret, cfg.Security.JWTExpiry).GenerateToken(tokenTenant, tokenSubject)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
