package main

import (
	"github.com/spf13/cobra"

	"github.com/1ureka/raet/internal/app"
)

var laneFlags struct {
	name  string
	lane  string
	dir   string
	yards []string
}

var laneCmd = &cobra.Command{
	Use:   "lane",
	Short: "Run a lane yard over a unix datagram socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := make(map[string]any)
		setIf(cmd, overrides, "name", "lane.name", laneFlags.name)
		setIf(cmd, overrides, "lane", "lane.lane", laneFlags.lane)
		setIf(cmd, overrides, "dir", "lane.dir", laneFlags.dir)
		setIf(cmd, overrides, "yard", "lane.yards", laneFlags.yards)

		cfg, closer, err := loadConfig(overrides)
		if err != nil {
			return err
		}
		defer closer.Close()

		return app.RunLane(cmd.Context(), cfg, cmd.InOrStdin())
	},
}

func init() {
	f := laneCmd.Flags()
	f.StringVar(&laneFlags.name, "name", "", "yard name")
	f.StringVar(&laneFlags.lane, "lane", "", "lane name")
	f.StringVar(&laneFlags.dir, "dir", "", "socket directory")
	f.StringSliceVar(&laneFlags.yards, "yard", nil, "yard to address on start (repeatable)")
	rootCmd.AddCommand(laneCmd)
}
