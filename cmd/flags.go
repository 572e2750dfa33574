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
	"fmt"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/rotblauer/tilestream/content"
	"github.com/rotblauer/tilestream/hierarchy"
	"github.com/rotblauer/tilestream/params"
	"github.com/rotblauer/tilestream/s2"
	"github.com/rotblauer/tilestream/source"
	"github.com/rotblauer/tilestream/types/tilenode"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"strconv"
	"strings"
)

func addTilesetFlags(flags *pflag.FlagSet) {
	defaults := params.DefaultTilesetConfig()
	flags.String("name", defaults.Name, "Tileset name, used in logs and metrics")
	flags.Int("max-concurrent", defaults.MaxConcurrentRequests, "Maximum concurrent tile fetches")
	flags.Int("max-slots", defaults.MaxCacheSlots, "Soft limit on cached tiles (0 is unlimited)")
	flags.Int64("max-bytes", defaults.MaxCacheByteSize, "Soft limit on cached content bytes (0 is unlimited)")
	flags.Int("min-zoom", defaults.MinZoom, "Coarsest level fetched or selected")
	flags.Int("max-zoom", defaults.MaxZoom, "Finest level refined to (-1 lets the hierarchy decide)")
	flags.Float64("sse", defaults.MaxScreenSpaceError, "Maximum screen-space error in pixels before refining")
	flags.String("strategy", string(defaults.RefinementStrategy), "Refinement strategy: never, no-overlap, best-available")
	flags.Duration("retry", defaults.ErrorRetryInterval, "How long a failed tile is left alone before being requested again")
	flags.Bool("strict", defaults.StrictInvariants, "Panic on internal invariant violations")
}

func tilesetConfigFromFlags() (*params.TilesetConfig, error) {
	c := params.DefaultTilesetConfig()
	c.Name = viper.GetString("name")
	c.MaxConcurrentRequests = viper.GetInt("max-concurrent")
	c.MaxCacheSlots = viper.GetInt("max-slots")
	c.MaxCacheByteSize = viper.GetInt64("max-bytes")
	c.MinZoom = viper.GetInt("min-zoom")
	c.MaxZoom = viper.GetInt("max-zoom")
	c.MaxScreenSpaceError = viper.GetFloat64("sse")
	c.RefinementStrategy = params.RefinementStrategy(viper.GetString("strategy"))
	c.ErrorRetryInterval = viper.GetDuration("retry")
	c.StrictInvariants = viper.GetBool("strict")
	return c, c.Validate()
}

// defaultTreeMaxZoom caps quadtree and s2 hierarchies when --max-zoom is unset.
const defaultTreeMaxZoom = 20

func addHierarchyFlags(flags *pflag.FlagSet) {
	flags.String("hierarchy", "quadtree", "Tile hierarchy: quadtree, s2, manifest")
	flags.Int("root-zoom", 0, "Quadtree root zoom")
	flags.String("manifest", "", "Manifest JSON file (with --hierarchy manifest)")
}

func hierarchyFromFlags() (hierarchy.Hierarchy, error) {
	maxZoom := viper.GetInt("max-zoom")
	if maxZoom < 0 {
		maxZoom = defaultTreeMaxZoom
	}
	switch kind := viper.GetString("hierarchy"); kind {
	case "quadtree", "":
		return hierarchy.NewQuadtree(maptile.Zoom(viper.GetInt("root-zoom")), maptile.Zoom(maxZoom))
	case "s2":
		return s2.NewHierarchy(s2.CellLevel(maxZoom))
	case "manifest":
		path := viper.GetString("manifest")
		if path == "" {
			return nil, fmt.Errorf("--manifest is required with --hierarchy manifest")
		}
		return hierarchy.ReadManifestFile(expandHome(path))
	default:
		return nil, fmt.Errorf("unknown hierarchy %q", kind)
	}
}

func addSourceFlags(flags *pflag.FlagSet) {
	httpDefaults := params.DefaultHTTPSourceConfig()
	s3Defaults := params.DefaultS3SourceConfig()
	flags.String("source", string(params.SourceHTTP), "Tile source: http, bolt, s3")
	flags.String("url", httpDefaults.URLTemplate, "HTTP URL template ({z} {x} {y} {id})")
	flags.String("user-agent", httpDefaults.UserAgent, "HTTP User-Agent")
	flags.String("db", params.DefaultBoltSourceConfig().Path, "bbolt tile database path")
	flags.String("bucket", "", "S3 bucket")
	flags.String("region", s3Defaults.Region, "S3 region")
	flags.String("prefix", s3Defaults.Prefix, "S3 key prefix")
	flags.String("suffix", s3Defaults.Suffix, "S3 key suffix")
	flags.Bool("geojson", false, "Decode tile payloads as GeoJSON feature collections")
}

func decoderFromFlags() content.Decoder {
	if viper.GetBool("geojson") {
		return content.Decompress{Next: content.GeoJSON{}}
	}
	return content.Decompress{}
}

// sourceFromFlags returns the configured source and a func releasing it.
func sourceFromFlags() (tilenode.Source, func() error, error) {
	decoder := decoderFromFlags()
	switch kind := params.SourceKind(viper.GetString("source")); kind {
	case params.SourceHTTP:
		c := params.DefaultHTTPSourceConfig()
		c.URLTemplate = viper.GetString("url")
		c.UserAgent = viper.GetString("user-agent")
		// The decoder already inflates.
		c.Decompress = false
		s, err := source.NewHTTPSource(c, decoder)
		return s, noClose, err
	case params.SourceBolt:
		c := params.DefaultBoltSourceConfig()
		c.Path = expandHome(viper.GetString("db"))
		s, err := source.OpenBoltSource(c, decoder)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case params.SourceS3:
		c := params.DefaultS3SourceConfig()
		c.Bucket = viper.GetString("bucket")
		c.Region = viper.GetString("region")
		c.Prefix = viper.GetString("prefix")
		c.Suffix = viper.GetString("suffix")
		s, err := source.NewS3Source(c, decoder)
		return s, noClose, err
	default:
		return nil, nil, fmt.Errorf("unknown source %q", kind)
	}
}

func noClose() error { return nil }

// parseBBox reads "minLng,minLat,maxLng,maxLat".
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox %q: want minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if b.Max[0] <= b.Min[0] || b.Max[1] <= b.Min[1] {
		return orb.Bound{}, fmt.Errorf("bbox %q is empty", s)
	}
	return b, nil
}

// parseScreen reads "WIDTHxHEIGHT".
func parseScreen(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("screen %q: want WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("screen %q: %w", s, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("screen %q: %w", s, err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("screen %q must be positive", s)
	}
	return width, height, nil
}
