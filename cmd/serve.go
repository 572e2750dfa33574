/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"github.com/rotblauer/tilestream/common"
	"github.com/rotblauer/tilestream/daemon/lodd"
	"github.com/rotblauer/tilestream/params"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"log/slog"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the LOD daemon (HTTP + websocket)",
	Long: `Serves a tileset over HTTP.

POST a JSON viewport to /viewport; read the selection from /selected
or subscribe to /socket for selection changes as tiles load.
/status reports cache and frame stats, /metrics serves them to prometheus.

Examples:

  tilestream serve --url 'https://tile.openstreetmap.org/{z}/{x}/{y}.png' --max-zoom 16
  tilestream serve --source bolt --db ~/.tilestream/tiles.db --address :3010
`,
	Run: func(cmd *cobra.Command, args []string) {
		tsConfig, err := tilesetConfigFromFlags()
		if err != nil {
			log.Fatalln(err)
		}
		h, err := hierarchyFromFlags()
		if err != nil {
			log.Fatalln(err)
		}
		src, closeSource, err := sourceFromFlags()
		if err != nil {
			log.Fatalln(err)
		}
		defer closeSource()

		config := params.DefaultLODDaemonConfig()
		config.Tileset = tsConfig
		config.Address = viper.GetString("address")
		config.Network = viper.GetString("network")
		config.FrameInterval = viper.GetDuration("frame-interval")
		if u := viper.GetString("influx-url"); u != "" {
			config.Influx = &params.InfluxConfig{
				URL:      u,
				Token:    viper.GetString("influx-token"),
				Org:      viper.GetString("influx-org"),
				Bucket:   viper.GetString("influx-bucket"),
				Interval: viper.GetDuration("influx-interval"),
			}
		}

		d, err := lodd.NewLODDaemon(config, h, src)
		if err != nil {
			log.Fatalln(err)
		}
		ctx, stop := common.InterruptContext(context.Background())
		defer stop()
		if err := d.Run(ctx); err != nil {
			log.Fatalln(err)
		}
		slog.Info("Bye")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	defaults := params.DefaultLODDaemonConfig()
	flags := serveCmd.Flags()
	flags.String("address", defaults.Address, "Address to listen on")
	flags.String("network", defaults.Network, "Network to listen on: tcp, tcp4, tcp6, unix")
	flags.Duration("frame-interval", defaults.FrameInterval, "How often the latest viewports are re-run")
	flags.String("influx-url", "", "InfluxDB URL; enables stats export")
	flags.String("influx-token", "", "InfluxDB token")
	flags.String("influx-org", "", "InfluxDB organization")
	flags.String("influx-bucket", "", "InfluxDB bucket")
	flags.Duration("influx-interval", 0, "Interval between stats exports (default 10s)")
	addTilesetFlags(flags)
	addHierarchyFlags(flags)
	addSourceFlags(flags)
}
