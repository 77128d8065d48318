package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/messenger"
)

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage the contact identity",
	}
	cmd.AddCommand(identityNewCmd(), identityShowCmd())
	return cmd
}

func identityNewCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a contact identity and print its creds",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.IdentityPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("identity already exists at %s (use --force to replace it)", path)
			}

			id, err := identity.New()
			if err != nil {
				return err
			}
			if err := identity.SaveFile(path, id, messenger.ContactDestinationName); err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "✅ identity saved to %s\n", path)
			return printCreds(id)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace an existing identity")
	return cmd
}

func identityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the creds of the contact identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.LoadFile(cfg.IdentityPath())
			if err != nil {
				return err
			}
			return printCreds(id)
		},
	}
}

func printCreds(id *identity.Identity) error {
	creds, err := id.Creds(messenger.ContactDestinationName)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
