package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyjia/excise-workflow/internal/auth"
)

func tokenCmd(g *globals) *cobra.Command {
	var (
		userID    int64
		username  string
		roleName  string
		superuser bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token",
		Long: `Mint a bearer token signed with the configured secret. The role is looked
up by name in the catalog; omit it for a user without a role.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive id")
			}
			if username == "" {
				username = fmt.Sprintf("user%d", userID)
			}

			s, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			var roleID *int64
			if roleName != "" {
				role, err := s.repos.Roles.GetByName(cmd.Context(), roleName)
				if err != nil {
					return err
				}
				if role == nil {
					return fmt.Errorf("unknown role %q", roleName)
				}
				roleID = &role.ID
			}

			issuer, err := auth.NewIssuer(s.cfg.Auth.JWTSecret, s.cfg.Auth.Issuer, s.cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			tok, err := issuer.Issue(userID, username, roleID, superuser)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&username, "username", "", "user name (default user<id>)")
	cmd.Flags().StringVar(&roleName, "role", "", "role name")
	cmd.Flags().BoolVar(&superuser, "superuser", false, "grant superuser")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
