package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/remsh/schema"
)

func newMachineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "machine",
		Short: "Manage stored machine records",
	}
	cmd.AddCommand(newMachineAddCmd())
	cmd.AddCommand(newMachineListCmd())
	return cmd
}

func newMachineAddCmd() *cobra.Command {
	var cfgPath string
	var name, group, identity string
	var port int
	cmd := &cobra.Command{
		Use:   "add <host>",
		Short: "Store a machine record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			_, store, err := openStore(cfgPath, logger)
			if err != nil {
				return err
			}
			machine, err := store.AddMachine(schema.MachineRecord{
				Name:       name,
				Group:      group,
				Host:       args[0],
				Port:       port,
				IdentityID: schema.IdentityID(identity),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added machine %s (%s)\n", machine.DisplayName(), machine.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&group, "group", "", "group label")
	cmd.Flags().StringVar(&identity, "identity", "", "associated identity id")
	cmd.Flags().IntVar(&port, "port", 22, "remote port")
	return cmd
}

func newMachineListCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored machine records",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			_, store, err := openStore(cfgPath, logger)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tGROUP\tADDRESS\tIDENTITY\tLAST BANNER")
			for _, m := range store.Machines() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					m.ID, m.DisplayName(), m.Group, m.Address(), m.IdentityID, m.LastBanner)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config file")
	return cmd
}
