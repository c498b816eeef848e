package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atuld8/opskit/internal/csvio"
	"github.com/atuld8/opskit/internal/model"
	"github.com/atuld8/opskit/internal/populate"
	"github.com/atuld8/opskit/internal/store"
	"github.com/atuld8/opskit/internal/tracker"
)

// accountFieldFlags registers the optional account field flags shared by add
// and update.
func accountFieldFlags(cmd *cobra.Command) {
	cmd.Flags().String("first", "", "first name")
	cmd.Flags().String("last", "", "last name")
	cmd.Flags().String("primary-email", "", "primary corporate email")
	cmd.Flags().String("secondary-email", "", "secondary corporate email")
	cmd.Flags().String("handle", "", "community handle")
	cmd.Flags().String("tracker", "", "tracker account name")
	cmd.Flags().String("verified", "", "manually verified (yes/no)")
	cmd.Flags().String("notes", "", "free-text notes")
}

// changedString returns the flag value only when the operator set it.
func changedString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func newAccountCmd() *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the account cross-reference table",
	}

	addCmd := &cobra.Command{
		Use:   "add <internal-user-id>",
		Short: "Add a new account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			a := &model.Account{
				InternalUserID:  args[0],
				FirstName:       changedString(cmd, "first"),
				LastName:        changedString(cmd, "last"),
				PrimaryEmail:    changedString(cmd, "primary-email"),
				SecondaryEmail:  changedString(cmd, "secondary-email"),
				CommunityHandle: changedString(cmd, "handle"),
				TrackerAccount:  changedString(cmd, "tracker"),
				Notes:           changedString(cmd, "notes"),
			}
			if v := changedString(cmd, "verified"); v != nil {
				a.ManualVerified = *v
			}
			if _, err := st.Accounts().Create(cmd.Context(), a); err != nil {
				return err
			}
			fmt.Printf("added %s\n", a.InternalUserID)
			return nil
		},
	}
	accountFieldFlags(addCmd)

	updateCmd := &cobra.Command{
		Use:   "update <internal-user-id>",
		Short: "Update provided fields of an account, leaving the rest untouched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			upd := model.AccountUpdate{
				FirstName:       changedString(cmd, "first"),
				LastName:        changedString(cmd, "last"),
				PrimaryEmail:    changedString(cmd, "primary-email"),
				SecondaryEmail:  changedString(cmd, "secondary-email"),
				CommunityHandle: changedString(cmd, "handle"),
				TrackerAccount:  changedString(cmd, "tracker"),
				ManualVerified:  changedString(cmd, "verified"),
				Notes:           changedString(cmd, "notes"),
			}
			found, err := st.Accounts().Update(cmd.Context(), args[0], upd)
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("no account updated for %s\n", args[0])
				return nil
			}
			fmt.Printf("updated %s\n", args[0])
			return nil
		},
	}
	accountFieldFlags(updateCmd)

	getCmd := &cobra.Command{
		Use:   "get <value>",
		Short: "Look up one account by a single identifier field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, _ := cmd.Flags().GetString("field")
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			a, err := st.Accounts().GetBy(cmd.Context(), model.AccountField(field), args[0])
			if err != nil {
				return err
			}
			printAccounts(os.Stdout, []*model.Account{a})
			return nil
		},
	}
	getCmd.Flags().String("field", string(model.FieldInternalUserID), "lookup field")

	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search accounts by substring filters; no filters lists everything",
		RunE: func(cmd *cobra.Command, args []string) error {
			get := func(name string) string { v, _ := cmd.Flags().GetString(name); return v }
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			accounts, err := st.Accounts().Search(cmd.Context(), store.SearchFilters{
				InternalUserID:  get("id"),
				FirstName:       get("first"),
				LastName:        get("last"),
				PrimaryEmail:    get("primary-email"),
				SecondaryEmail:  get("secondary-email"),
				CommunityHandle: get("handle"),
				TrackerAccount:  get("tracker"),
			})
			if err != nil {
				return err
			}
			printAccounts(os.Stdout, accounts)
			return nil
		},
	}
	searchCmd.Flags().String("id", "", "internal user id substring")
	searchCmd.Flags().String("first", "", "first name substring")
	searchCmd.Flags().String("last", "", "last name substring")
	searchCmd.Flags().String("primary-email", "", "primary email substring")
	searchCmd.Flags().String("secondary-email", "", "secondary email substring")
	searchCmd.Flags().String("handle", "", "community handle substring")
	searchCmd.Flags().String("tracker", "", "tracker account substring")

	translateCmd := &cobra.Command{
		Use:   "translate <identifier>",
		Short: "Resolve any known identifier to another identifier field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetString("to")
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			out, err := st.Accounts().Translate(cmd.Context(), args[0], model.AccountField(target))
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	translateCmd.Flags().String("to", string(model.FieldTrackerAccount), "target field")

	removeCmd := &cobra.Command{
		Use:   "remove <internal-user-id>",
		Short: "Remove an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			found, err := st.Accounts().Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("no account for %s\n", args[0])
				return nil
			}
			fmt.Printf("removed %s\n", args[0])
			return nil
		},
	}

	accountCmd.AddCommand(addCmd, updateCmd, getCmd, searchCmd, translateCmd, removeCmd,
		newPopulateCmd(), newImportCmd(), newExportCmd(), newLogCmd(), newLogCleanupCmd())
	return accountCmd
}

func newPopulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "populate <internal-user-id>",
		Short: "Enrich an account from the tracker and id-based inference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trackerUser, _ := cmd.Flags().GetString("tracker")
			interactive, _ := cmd.Flags().GetBool("interactive")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			existing, err := st.Accounts().GetBy(cmd.Context(), model.FieldInternalUserID, args[0])
			if err != nil {
				return err
			}

			trk := tracker.NewClient(cfg, newLogger("tracker"))
			pop := populate.New(cfg, trk, os.Stdin, os.Stdout, newLogger("populate"))

			draft := pop.Enrich(cmd.Context(), existing, trackerUser)
			if interactive {
				draft, err = pop.InteractivePopulate(existing.InternalUserID, draft)
				if err != nil {
					return err
				}
			}

			upd := populate.UpdateFrom(existing, draft)
			if upd.Empty() {
				fmt.Printf("nothing to update for %s\n", existing.InternalUserID)
				return nil
			}
			if _, err := st.Accounts().Update(cmd.Context(), existing.InternalUserID, upd); err != nil {
				return err
			}
			fmt.Printf("populated %s\n", existing.InternalUserID)
			return nil
		},
	}
	cmd.Flags().String("tracker", "", "tracker account to fetch authoritative data from (defaults to the stored one)")
	cmd.Flags().Bool("interactive", false, "confirm or override each field before saving")
	return cmd
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import accounts from CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, _ := cmd.Flags().GetString("mode")
			allowEmpty, _ := cmd.Flags().GetBool("allow-empty-overwrite")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			stats, err := csvio.ImportAccounts(cmd.Context(), st.Accounts(), f, csvio.Options{
				ConflictMode:        csvio.ConflictMode(mode),
				AllowEmptyOverwrite: allowEmpty,
			}, newLogger("csvio"))
			if err != nil {
				return err
			}
			fmt.Printf("added %d, updated %d, skipped %d, failed %d\n",
				stats.Added, stats.Updated, stats.Skipped, stats.Failed)
			return nil
		},
	}
	cmd.Flags().String("mode", string(csvio.ConflictSkip), "conflict mode for existing rows: skip, update or fail")
	cmd.Flags().Bool("allow-empty-overwrite", false, "let empty CSV cells overwrite stored values")
	return cmd
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file.csv]",
		Short: "Export all accounts as CSV (stdout when no file given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			accounts, err := st.Accounts().Search(cmd.Context(), store.SearchFilters{})
			if err != nil {
				return err
			}
			out := os.Stdout
			if len(args) == 1 {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return csvio.ExportAccounts(out, accounts)
		},
	}
}

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent action-log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			actionType, _ := cmd.Flags().GetString("type")
			targetID, _ := cmd.Flags().GetString("target")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.Actions().List(cmd.Context(), store.ListActionsRequest{
				ActionType: actionType,
				TargetID:   targetID,
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTION\tTARGET\tSTATUS")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\n",
					e.CreatedAt.Format(time.RFC3339), e.ActionType, e.TargetType, e.TargetID, e.Status)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("type", "", "filter by action type")
	cmd.Flags().String("target", "", "filter by target id")
	cmd.Flags().Int("limit", 50, "maximum entries to show")
	return cmd
}

func newLogCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log-cleanup",
		Short: "Purge action-log entries older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				return fmt.Errorf("%w: --days must be positive", model.ErrValidation)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			cutoff := time.Now().UTC().AddDate(0, 0, -days)
			n, err := st.Actions().PurgeBefore(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Printf("purged %d entries older than %s\n", n, cutoff.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Int("days", 90, "retention window in days")
	return cmd
}

func printAccounts(out *os.File, accounts []*model.Account) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tNAME\tPRIMARY EMAIL\tHANDLE\tTRACKER\tVERIFIED")
	for _, a := range accounts {
		name := deref(a.FirstName)
		if last := deref(a.LastName); last != "" {
			if name != "" {
				name += " "
			}
			name += last
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.InternalUserID, name, deref(a.PrimaryEmail),
			deref(a.CommunityHandle), deref(a.TrackerAccount), a.ManualVerified)
	}
	_ = tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
