package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/remsh/schema"
)

func newIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage stored identity records",
	}
	cmd.AddCommand(newIdentityAddCmd())
	cmd.AddCommand(newIdentityListCmd())
	cmd.AddCommand(newIdentityAutoCmd())
	return cmd
}

func newIdentityAddCmd() *cobra.Command {
	var cfgPath string
	var description, keyFile string
	var askPassword bool
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Store an identity record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			_, store, err := openStore(cfgPath, logger)
			if err != nil {
				return err
			}
			record := schema.IdentityRecord{
				Username:    args[0],
				Description: description,
			}
			if keyFile != "" {
				pem, err := os.ReadFile(keyFile)
				if err != nil {
					return fmt.Errorf("read key file: %w", err)
				}
				record.PrivateKeyPEM = string(pem)
			}
			if askPassword {
				fmt.Fprint(cmd.OutOrStdout(), "password: ")
				secret, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				record.Password = string(secret)
			}
			added, err := store.AddIdentity(record)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added identity %s (%s)\n", added.Describe(), added.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&description, "description", "", "human-readable description")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "path to a private key in PEM format")
	cmd.Flags().BoolVar(&askPassword, "password", false, "prompt for a password")
	return cmd
}

func newIdentityListCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored identity records",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			_, store, err := openStore(cfgPath, logger)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tDESCRIPTION\tMATERIAL")
			for _, identity := range store.Identities() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					identity.ID, identity.Username, identity.Description, materialKinds(identity))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config file")
	return cmd
}

func newIdentityAutoCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "auto <identity-id>...",
		Short: "Set the ordered auto-auth candidate list",
		Args:  cobra.MinimumNArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			_, store, err := openStore(cfgPath, logger)
			if err != nil {
				return err
			}
			ids := make([]schema.IdentityID, 0, len(args))
			for _, arg := range args {
				id := schema.IdentityID(arg)
				if _, ok := store.Identity(id); !ok {
					return fmt.Errorf("%w: %s", schema.ErrIdentityNotFound, arg)
				}
				ids = append(ids, id)
			}
			if err := store.SetAutoAuthOrder(ids); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "auto-auth order set (%d candidates)\n", len(ids))
			return err
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config file")
	return cmd
}

func materialKinds(identity schema.IdentityRecord) string {
	var kinds []string
	if identity.Password != "" {
		kinds = append(kinds, "password")
	}
	if identity.PrivateKeyPEM != "" {
		kinds = append(kinds, "key")
	}
	if len(kinds) == 0 {
		return "none"
	}
	return strings.Join(kinds, "+")
}
