package main

import (
	"github.com/spf13/cobra"

	"github.com/1ureka/raet/internal/app"
)

var roadFlags struct {
	name string
	uid  uint32
	ha   string
}

var roadCmd = &cobra.Command{
	Use:   "road",
	Short: "Run a road estate over UDP",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := make(map[string]any)
		setIf(cmd, overrides, "name", "road.name", roadFlags.name)
		setIf(cmd, overrides, "uid", "road.uid", roadFlags.uid)
		setIf(cmd, overrides, "ha", "road.ha", roadFlags.ha)

		cfg, closer, err := loadConfig(overrides)
		if err != nil {
			return err
		}
		defer closer.Close()

		return app.RunRoad(cmd.Context(), cfg, cmd.InOrStdin())
	},
}

func init() {
	f := roadCmd.Flags()
	f.StringVar(&roadFlags.name, "name", "", "estate name")
	f.Uint32Var(&roadFlags.uid, "uid", 0, "estate uid")
	f.StringVar(&roadFlags.ha, "ha", "", "UDP host address, e.g. 0.0.0.0:7530")
	rootCmd.AddCommand(roadCmd)
}
