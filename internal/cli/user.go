package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Account administration",
	}
	cmd.AddCommand(newUserCreateCommand())
	return cmd
}

func newUserCreateCommand() *cobra.Command {
	var name, email, password, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account directly in the database",
		Long:  `Create an account without going through the HTTP API, typically to bootstrap the first Administrator.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			pool := env.pg.PoolHandle()
			if pool == nil {
				return persistence.ErrNoDatabase
			}

			store := service.NewCredentialStore(repository.NewUserRepository(pool), env.cfg.Auth.BcryptCost)
			user, err := store.Create(cmd.Context(), name, email, password, domain.Role(role))
			if err != nil {
				return err
			}

			env.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
			fmt.Fprintf(cmd.OutOrStdout(), "created %s <%s> as %s (id %s)\n", user.Name, user.Email, user.Role, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	cmd.Flags().StringVar(&email, "email", "", "Login email (required)")
	cmd.Flags().StringVar(&password, "password", "", "Initial password (required)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleAdministrator), "Administrator, Manager or Operator")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
