package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/onboarding-service/internal/auth"
	"github.com/spec-kit/onboarding-service/internal/config"
	"github.com/spec-kit/onboarding-service/internal/domain"
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens",
	}
	cmd.AddCommand(newTokenIssueCommand())
	return cmd
}

type issuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newTokenIssueCommand() *cobra.Command {
	var (
		subject     string
		subjectType string
		role        string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token for a staff member or a system caller",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			issued, err := issueToken(tokens, subject, subjectType, role)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), issued)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Staff id or system caller name")
	cmd.Flags().StringVar(&subjectType, "type", string(domain.SubjectTypeStaff), "Subject type: STAFF or SYSTEM")
	cmd.Flags().StringVar(&role, "role", "", "Staff role claim (informational; the stored role is authoritative)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func issueToken(tokens *auth.TokenManager, subject, subjectType, role string) (issuedToken, error) {
	st := domain.SubjectType(subjectType)
	if st != domain.SubjectTypeStaff && st != domain.SubjectTypeSystem {
		return issuedToken{}, fmt.Errorf("unknown subject type %q", subjectType)
	}
	var rolePtr *domain.StaffRole
	if role != "" {
		r := domain.StaffRole(role)
		rolePtr = &r
	}
	token, exp, err := tokens.GenerateToken(subject, st, rolePtr)
	if err != nil {
		return issuedToken{}, err
	}
	return issuedToken{Token: token, ExpiresAt: exp}, nil
}
