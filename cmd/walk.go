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
	"encoding/json"
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/rotblauer/tilestream/common"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/tileset"
	"github.com/rotblauer/tilestream/types/viewport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"os"
	"time"
)

// walkCmd represents the walk command
var walkCmd = &cobra.Command{
	Use:   "walk",
	Short: "Load the tiles for one viewport and print the selection",
	Long: `Builds a top-down viewport over --bbox at --screen resolution,
runs frames until every needed tile has loaded (or --timeout passes),
and prints the selected tile ids followed by tileset stats.

Examples:

  tilestream walk --bbox -105.3,39.9,-105.1,40.1 --screen 1024x768 --max-zoom 14
  tilestream walk --hierarchy manifest --manifest ./tileset.json --source bolt --json
`,
	Run: func(cmd *cobra.Command, args []string) {
		bound, err := parseBBox(viper.GetString("bbox"))
		if err != nil {
			log.Fatalln(err)
		}
		width, height, err := parseScreen(viper.GetString("screen"))
		if err != nil {
			log.Fatalln(err)
		}
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

		ts, err := tileset.New(tsConfig, h, src)
		if err != nil {
			log.Fatalln(err)
		}
		defer ts.Close()

		ctx, stop := common.InterruptContext(context.Background())
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, viper.GetDuration("timeout"))
		defer cancel()

		vp := viewport.TopDown("walk", bound, width, height)
		started := time.Now()
		// Each resumed subtree may request deeper tiles, so keep
		// running frames until one completes with nothing new requested.
		ts.Update(vp)
		for {
			if err := ts.WaitLoaded(ctx); err != nil {
				fmt.Fprintln(os.Stderr, "walk stopped before the selection loaded:", err)
				break
			}
			if ts.Update(vp); ts.IsLoaded() {
				break
			}
		}

		st := ts.Stats()
		if viper.GetBool("json") {
			out := struct {
				Selected []conceptual.TileID `json:"selected"`
				Stats    tileset.Stats       `json:"stats"`
			}{ts.SelectedIDs(), st}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				log.Fatalln(err)
			}
			return
		}
		for _, n := range ts.SelectedTiles() {
			fmt.Printf("%s\t%d\t%s\n", n.ID, n.Level, humanize.Bytes(uint64(n.ByteSize)))
		}
		fmt.Fprintf(os.Stderr, "frames=%d selected=%d loaded=%v cached=%d (%s) fetched=%d failed=%d elapsed=%s\n",
			st.Frame, st.Selected, st.Loaded, st.CacheSlots, humanize.Bytes(uint64(st.CacheBytes)),
			st.TilesLoaded, st.TilesFailed, time.Since(started).Round(time.Millisecond))
	},
}

func init() {
	rootCmd.AddCommand(walkCmd)

	flags := walkCmd.Flags()
	flags.String("bbox", "-180,-85,180,85", "Visible bound: minx,miny,maxx,maxy")
	flags.String("screen", "1024x768", "Screen size in pixels: WIDTHxHEIGHT")
	flags.Duration("timeout", time.Minute, "Give up waiting for tiles after this long")
	flags.Bool("json", false, "Print selection and stats as JSON")
	addTilesetFlags(flags)
	addHierarchyFlags(flags)
	addSourceFlags(flags)
}
