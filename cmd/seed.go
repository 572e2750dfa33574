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
	"fmt"
	"github.com/paulmach/orb/maptile"
	"github.com/rotblauer/tilestream/common"
	"github.com/rotblauer/tilestream/params"
	"github.com/rotblauer/tilestream/source"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"log/slog"
	"runtime"
	"time"
)

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Copy tiles from an HTTP tile server into a local bbolt store",
	Long: `Fetches every slippy tile covering --bbox for zooms --from through --to
and stores the raw bytes in --db, for later use with serve/walk --source bolt.

Tiles already in the store are skipped, so seeding can be re-run incrementally.
Tiles the server does not have (404) are counted and skipped.

Please mind the usage policy of the tile server you seed from.

Examples:

  tilestream seed --bbox -105.3,39.9,-105.1,40.1 --from 0 --to 12 --url 'http://localhost:8080/{z}/{x}/{y}.pbf'
`,
	Run: func(cmd *cobra.Command, args []string) {
		bound, err := parseBBox(viper.GetString("bbox"))
		if err != nil {
			log.Fatalln(err)
		}
		from, to := viper.GetInt("from"), viper.GetInt("to")
		if from < 0 || to < from || to > 30 {
			log.Fatalf("invalid zoom range %d..%d", from, to)
		}

		httpConfig := params.DefaultHTTPSourceConfig()
		httpConfig.URLTemplate = viper.GetString("url")
		httpConfig.UserAgent = viper.GetString("user-agent")
		src, err := source.NewHTTPSource(httpConfig, nil)
		if err != nil {
			log.Fatalln(err)
		}
		boltConfig := params.DefaultBoltSourceConfig()
		boltConfig.Path = expandHome(viper.GetString("db"))
		dst, err := source.OpenBoltSource(boltConfig, nil)
		if err != nil {
			log.Fatalln(err)
		}
		defer dst.Close()

		ids := source.CoverIDs(bound, maptile.Zoom(from), maptile.Zoom(to))
		slog.Info("Seeding tiles", "tiles", len(ids), "from", from, "to", to, "db", boltConfig.Path)

		ctx, stop := common.InterruptContext(context.Background())
		defer stop()
		started := time.Now()
		res, err := source.Seed(ctx, src, dst, ids, viper.GetInt("workers"))
		fmt.Printf("stored=%d skipped=%d missing=%d elapsed=%s\n",
			res.Stored, res.Skipped, res.Missing, time.Since(started).Round(time.Millisecond))
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	httpDefaults := params.DefaultHTTPSourceConfig()
	flags := seedCmd.Flags()
	flags.String("bbox", "", "Bound to cover: minx,miny,maxx,maxy (lng/lat)")
	flags.Int("from", 0, "Coarsest zoom to seed")
	flags.Int("to", 10, "Finest zoom to seed")
	flags.Int("workers", runtime.NumCPU(), "Concurrent fetches")
	flags.String("url", httpDefaults.URLTemplate, "HTTP URL template ({z} {x} {y} {id})")
	flags.String("user-agent", httpDefaults.UserAgent, "HTTP User-Agent")
	flags.String("db", params.DefaultBoltSourceConfig().Path, "bbolt tile database path")
	_ = seedCmd.MarkFlagRequired("bbox")
}
