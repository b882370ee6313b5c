package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/nirvana/internal/display"
	"github.com/daviddao/nirvana/internal/tenant"
)

var namespaceCmd = &cobra.Command{
	Use:   "namespace",
	Short: "Resolve and create user namespaces",
}

var namespaceResolveCmd = &cobra.Command{
	Use:         "resolve IDENTITY",
	Short:       "Print the namespace an identity maps to",
	Example:     `  nv namespace resolve alice@example.com`,
	Args:        cobra.ExactArgs(1),
	Annotations: noStore,
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, err := tenant.Resolve(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]string{"identity": args[0], "namespace": ns})
		}
		fmt.Fprintln(cmd.OutOrStdout(), ns)
		return nil
	},
}

var namespaceEnsureCmd = &cobra.Command{
	Use:   "ensure [IDENTITY]",
	Short: "Create a namespace and its catalog if missing",
	Long: `Create the namespace for IDENTITY (default: the configured user) and its
catalog table. Safe to run repeatedly.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identity := cfg.User
		if len(args) == 1 {
			identity = args[0]
		}
		if identity == "" {
			return fmt.Errorf("no identity given and no user configured")
		}

		sess, err := db.Session(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		ns, err := sess.Use(ctx, identity)
		if err != nil {
			return err
		}
		if err := sess.EnsureCatalog(ctx); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]string{"identity": identity, "namespace": ns, "backend": db.Backend()})
		}
		display.SuccessMsg(cmd.OutOrStdout(), "namespace %s ready (%s)", ns, db.Backend())
		return nil
	},
}

func init() {
	namespaceCmd.AddCommand(namespaceResolveCmd)
	namespaceCmd.AddCommand(namespaceEnsureCmd)
	rootCmd.AddCommand(namespaceCmd)
}
