package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	subsMax     int
	subsRefresh bool
)

var subsCmd = &cobra.Command{
	Use:   "subs",
	Short: "List the account's subscribed channels",
	RunE:  runSubs,
}

func init() {
	subsCmd.Flags().IntVar(&subsMax, "max", 50, "maximum channels to list")
	subsCmd.Flags().BoolVar(&subsRefresh, "refresh", false, "bypass the subscriptions cache")
}

func runSubs(cmd *cobra.Command, _ []string) error {
	settings, log, err := loadEnv()
	if err != nil {
		return err
	}
	svc, err := buildCatalog(settings, log)
	if err != nil {
		return err
	}
	channels, err := svc.LoadSubscriptions(cmd.Context(), subsMax, subsRefresh)
	if err != nil {
		return err
	}
	for _, ch := range channels {
		fmt.Printf("%s\t%s\n", ch.ID, ch.Title)
	}
	return nil
}
