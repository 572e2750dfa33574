package s2

/*
https://s2geometry.io/resources/s2cell_statistics.html

level  min area     max area     average area  units  number of cells
00     85011012.19  85011012.19  85011012.19   km2    6
01     21252753.05  21252753.05  21252753.05   km2    24
02     4919708.23   6026521.16   5313188.26    km2    96
05     53798.67     104297.91    83018.57      km2    6K - continental sized
08     786.20       1632.45      1297.17       km2    393K - about a day's walk/ride
13     0.76         1.59         1.27          km2    402M -- about a kilometer (square)
16     11880.08     24909.73     19793.17      m2     25B -- throwing distance
23     0.73         1.52         1.21          m2     422T -- a city of broad shoulders
30     0.44         0.93         0.74          cm2    7e18
*/

// CellLevel is an S2 cell level, from 0-30, and doubles as the tile level in an S2 hierarchy.
type CellLevel int

const (
	// CellLevel0 covers earth in 6 cells.
	CellLevel0 CellLevel = 0

	CellLevel1 CellLevel = 1
	CellLevel2 CellLevel = 2
	CellLevel3 CellLevel = 3
	CellLevel4 CellLevel = 4
	CellLevel5 CellLevel = 5

	// CellLevel6 is wider than the Idaho panhandle.
	// Around size of Massachusetts?
	CellLevel6  CellLevel = 6
	CellLevel7  CellLevel = 7
	CellLevel8  CellLevel = 8
	CellLevel9  CellLevel = 9
	CellLevel10 CellLevel = 10
	CellLevel11 CellLevel = 11
	CellLevel12 CellLevel = 12

	// CellLevel13 is about a 1/2 section.
	CellLevel13 CellLevel = 13

	// CellLevel14 is about 80 acres.
	CellLevel14 CellLevel = 14

	// CellLevel15 is about 20 acres.
	CellLevel15 CellLevel = 15

	// CellLevel16 is approximately 140m on an edge, or an area of about 5 acres.
	CellLevel16 CellLevel = 16

	// CellLevel17 has an area of about 1.2 acres.
	CellLevel17 CellLevel = 17

	// CellLevel18 is about 100ft on a side, and has an area of about 1/4 acre.
	// Small residential plot.
	CellLevel18 CellLevel = 18
	CellLevel19 CellLevel = 19
	CellLevel20 CellLevel = 20
	CellLevel21 CellLevel = 21
	CellLevel22 CellLevel = 22

	// CellLevel23 is approximately a human body; 1 square meter.
	CellLevel23 CellLevel = 23
	CellLevel24 CellLevel = 24
	CellLevel25 CellLevel = 25
	CellLevel26 CellLevel = 26
	CellLevel27 CellLevel = 27
	CellLevel28 CellLevel = 28
	CellLevel29 CellLevel = 29
	CellLevel30 CellLevel = 30
)

// MaxCellLevel is the leaf level of the S2 cell hierarchy.
const MaxCellLevel = CellLevel30

func (l CellLevel) Valid() bool {
	return l >= CellLevel0 && l <= MaxCellLevel
}
