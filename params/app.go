package params

import (
	"github.com/mitchellh/go-homedir"
	"path/filepath"
)

// DatadirRoot is the default parent directory for local state, eg. seeded tile stores.
var DatadirRoot = func() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".tilestream"
	}
	return filepath.Join(home, ".tilestream")
}()

const EnvPrefix = "TILESTREAM"

var TilesBoltDBName = "tiles.db"
var TilesBoltBucket = []byte("tiles")
