package rhythm

// Pivot is the document handed to prompt construction and API clients. It
// wraps a grid in track metadata and one or more blocks. The analysis engine
// currently emits exactly one block covering the whole track.
type Pivot struct {
	Meta   PivotMeta `json:"meta"`
	Blocks []Block   `json:"blocks"`
}

// PivotMeta carries track-level measurements.
type PivotMeta struct {
	Tempo    float64 `json:"tempo"`
	Duration float64 `json:"duration"`
}

// Block is a phrase of the track that one lyric line must fill.
type Block struct {
	ID             int       `json:"id"`
	SyllableTarget int       `json:"syllable_target"`
	Segments       []Segment `json:"segments"`
}

// Grid returns the block as a grid carrying the given track metadata.
func (b Block) Grid(meta PivotMeta) Grid {
	return Grid{
		Segments: append([]Segment(nil), b.Segments...),
		Tempo:    meta.Tempo,
		Duration: meta.Duration,
	}
}

// NewPivot wraps g in a single-block pivot document.
func NewPivot(g Grid) Pivot {
	segs := append([]Segment{}, g.Segments...)
	return Pivot{
		Meta: PivotMeta{
			Tempo:    Round(g.Tempo, 2),
			Duration: Round(g.Duration, 2),
		},
		Blocks: []Block{{
			ID:             1,
			SyllableTarget: len(segs),
			Segments:       segs,
		}},
	}
}
