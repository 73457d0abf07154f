package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agungkristd/session-switcher/session"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [domain]",
		Short: "List domains, or the saved sessions of one domain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg, false)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx := cmd.Context()
			if len(args) == 0 {
				domains, err := store.Domains(ctx)
				if err != nil {
					return err
				}
				for _, d := range domains {
					fmt.Fprintln(cmd.OutOrStdout(), d)
				}
				return nil
			}

			rec, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), rec)
		},
	}
}

func printSessions(w io.Writer, rec session.DomainRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tCOOKIES\tSAVED\tLAST USED")
	for _, s := range rec.Sessions {
		marker := ""
		if s.Name == rec.ActiveSessionName {
			marker = "*"
		}
		lastUsed := "-"
		if s.LastUsedAt != nil {
			lastUsed = s.LastUsedAt.Time().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			marker, s.Name, len(s.Cookies), s.CreatedAt.Time().Format("2006-01-02 15:04"), lastUsed)
	}
	return tw.Flush()
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import sessions from a legacy export file",
		Long:  "Import replaces the stored sessions of every domain present in the file. Other domains are left alone.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			records, err := session.DecodeLegacy(f)
			if err != nil {
				return err
			}

			store, closeStore, err := openStore(cfg, false)
			if err != nil {
				return err
			}
			defer closeStore()

			domains, err := session.Import(cmd.Context(), store, records)
			if err != nil {
				return err
			}
			for _, d := range domains {
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d sessions)\n", d, len(records[d].Sessions))
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export all sessions in the legacy layout",
		Long:  "Export writes every domain's sessions and active pointer. The output contains live credentials.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg, false)
			if err != nil {
				return err
			}
			defer closeStore()

			records, err := session.Export(cmd.Context(), store)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				return session.EncodeLegacy(cmd.OutOrStdout(), records)
			}
			f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return err
			}
			if err := session.EncodeLegacy(f, records); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
}
