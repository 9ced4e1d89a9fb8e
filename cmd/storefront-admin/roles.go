package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/target/storefront/internal/core"
	"github.com/target/storefront/internal/data"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
)

func parseRoleArg(raw string) (domainauth.Role, error) {
	role, ok := domainauth.ParseRole(raw)
	if !ok {
		return "", fmt.Errorf("unknown role %q (valid: %s, %s)", raw, domainauth.RoleAdmin, domainauth.RoleClient)
	}
	return role, nil
}

func newGrantRoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "grant-role <user-id> <role>",
		Short: "Grant a role to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRoleArg(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			db, closeDB, err := a.connectDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			err = data.NewRoleRepo(db).InsertRole(ctx, args[0], role)
			if apperrors.IsConflict(err) {
				return writef(cmd.OutOrStdout(), "%s already has %s\n", args[0], role)
			}
			if err != nil {
				return err
			}
			return writef(cmd.OutOrStdout(), "granted %s to %s\n", role, args[0])
		},
	}
}

func newRevokeRoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-role <user-id> <role>",
		Short: "Remove a role from a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRoleArg(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			db, closeDB, err := a.connectDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			removed, err := data.NewRoleRepo(db).RevokeRole(ctx, args[0], role)
			if err != nil {
				return err
			}
			if !removed {
				return writef(cmd.OutOrStdout(), "%s did not have %s\n", args[0], role)
			}
			return writef(cmd.OutOrStdout(), "revoked %s from %s\n", role, args[0])
		},
	}
}

func newListRolesCmd(a *app) *cobra.Command {
	var opts core.ListAssignmentsOptions
	cmd := &cobra.Command{
		Use:   "list-roles",
		Short: "List role assignments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			db, closeDB, err := a.connectDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			rows, err := data.NewRoleRepo(db).ListAssignments(ctx, opts)
			if err != nil {
				return err
			}
			return printAssignments(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringVar(&opts.UserID, "user", "", "only this user id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum rows (0 for all)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip")
	return cmd
}

func printAssignments(w io.Writer, rows []domainauth.RoleAssignment) error {
	if len(rows) == 0 {
		return writeln(w, "(no role assignments)")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "USER ID\tEMAIL\tROLE\tGRANTED\n"); err != nil {
		return err
	}
	for _, r := range rows {
		email := r.Email
		if email == "" {
			email = "-"
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\n", r.UserID, email, r.Role, r.CreatedAt.UTC().Format("2006-01-02 15:04")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// seedFile is the document read by seed-roles:
//
//	assignments:
//	  - user_id: 4b0c...
//	    roles: [admin, client]
type seedFile struct {
	Assignments []seedEntry `yaml:"assignments"`
}

type seedEntry struct {
	UserID string   `yaml:"user_id"`
	Roles  []string `yaml:"roles"`
}

func parseSeedFile(raw []byte) ([]domainauth.RoleAssignment, error) {
	var doc seedFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal seed file: %w", err)
	}

	var out []domainauth.RoleAssignment
	for i, entry := range doc.Assignments {
		userID := strings.TrimSpace(entry.UserID)
		if userID == "" {
			return nil, fmt.Errorf("assignment %d: user_id is required", i)
		}
		if len(entry.Roles) == 0 {
			return nil, fmt.Errorf("assignment %d: at least one role is required", i)
		}
		for _, raw := range entry.Roles {
			role, err := parseRoleArg(raw)
			if err != nil {
				return nil, fmt.Errorf("assignment %d: %w", i, err)
			}
			out = append(out, domainauth.RoleAssignment{UserID: userID, Role: role})
		}
	}
	return out, nil
}

func newSeedRolesCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-roles",
		Short: "Insert role assignments from a YAML file",
		Long: `seed-roles reads a YAML file of the form

  assignments:
    - user_id: 4b0c6f3e-...
      roles: [admin, client]

and inserts every row in one transaction. Existing rows are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read seed file: %w", err)
			}
			assignments, err := parseSeedFile(raw)
			if err != nil {
				return err
			}

			ctx, cancel := a.context(cmd)
			defer cancel()
			db, closeDB, err := a.connectDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			written, err := data.NewRoleRepo(db).SeedAssignments(ctx, assignments)
			if err != nil {
				return err
			}
			return writef(cmd.OutOrStdout(), "seeded %d of %d assignments\n", written, len(assignments))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with role assignments")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
