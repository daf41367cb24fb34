package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wsdtool/wsdtool/internal/config"
	"github.com/wsdtool/wsdtool/internal/ui"
)

var clearNickname bool

func init() {
	nicknameCmd.Flags().BoolVar(&clearNickname, "clear", false, "Remove the device's nickname")
	rootCmd.AddCommand(nicknameCmd)
}

var nicknameCmd = &cobra.Command{
	Use:   "nickname <endpoint> [name]",
	Short: "Show or set a device's nickname",
	Long: `Show, set or remove the nickname 'wsdtool list' prints next to a
device. Nicknames are stored in the config file.`,
	Example: `  wsdtool nickname urn:uuid:4509a320-00a0-008f-00b6-002507510eca "Hall printer"

  # Remove it again
  wsdtool nickname urn:uuid:4509a320-00a0-008f-00b6-002507510eca --clear`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ep := strings.TrimSpace(args[0])
		if len(args) == 1 && !clearNickname {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if name := cfg.Nickname(ep); name != "" {
				fmt.Println(name)
			}
			return nil
		}

		var name string
		if len(args) == 2 {
			if clearNickname {
				return errors.New("--clear takes no name")
			}
			name = strings.TrimSpace(args[1])
		}
		if err := saveNickname(configPath, ep, name); err != nil {
			return err
		}

		if name == "" {
			fmt.Println(ui.NewSuccessResult("Nickname removed", ui.Param{Key: "Endpoint", Value: ep}).Render())
		} else {
			fmt.Println(ui.NewSuccessResult("Nickname saved", ui.Param{Key: "Endpoint", Value: ep}, ui.Param{Key: "Nickname", Value: name}).Render())
		}
		return nil
	},
}

// saveNickname rewrites the config at path with name recorded for ep. The
// file is loaded afresh so flag overrides never leak into it.
func saveNickname(path, ep, name string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg.SetNickname(ep, name)
	return cfg.Save(path)
}
