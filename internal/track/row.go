package track

// Channel names one numeric column of a sample row.
type Channel string

const (
	Level1   Channel = "Level1"
	Level2   Channel = "Level2"
	Level3   Channel = "Level3"
	Level4   Channel = "Level4"
	Level5   Channel = "Level5"
	Level6   Channel = "Level6"
	Encoder3 Channel = "Encoder3"
	Ang1     Channel = "Ang1"
	Ang2     Channel = "Ang2"
	Ang3     Channel = "Ang3"
)

// NumericChannels lists every channel the pipeline reduces or corrects,
// in column order.
var NumericChannels = []Channel{
	Level1, Level2, Level3, Level4, Level5, Level6,
	Encoder3, Ang1, Ang2, Ang3,
}

// LevelChannels are the two lateral rail-level channels used by planarity.
var LevelChannels = []Channel{Level1, Level2}

// Valid reports whether c is one of NumericChannels.
func (c Channel) Valid() bool {
	for _, ch := range NumericChannels {
		if ch == c {
			return true
		}
	}
	return false
}

// Passthrough carries the recorder fields that no pipeline stage reads.
// Stages copy it from the first source row of whatever they emit.
type Passthrough struct {
	UnixTimestamp float64 `json:"UnixTimestamp"`
	Elapsed       float64 `json:"Elapsed"`
	Timestamp     string  `json:"Timestamp"`
	Velocity      float64 `json:"Velocity"`
	Encoder1      float64 `json:"Encoder1"`
	Encoder2      float64 `json:"Encoder2"`
}

// Row is one distance-tagged sample. Level channels are in millimetres,
// angle channels in degrees and Travelled in metres.
type Row struct {
	Index     int     `json:"Index"`
	Travelled float64 `json:"Travelled"`

	Level1   float64 `json:"Level1"`
	Level2   float64 `json:"Level2"`
	Level3   float64 `json:"Level3"`
	Level4   float64 `json:"Level4"`
	Level5   float64 `json:"Level5"`
	Level6   float64 `json:"Level6"`
	Encoder3 float64 `json:"Encoder3"`
	Ang1     float64 `json:"Ang1"`
	Ang2     float64 `json:"Ang2"`
	Ang3     float64 `json:"Ang3"`

	Passthrough Passthrough `json:"Passthrough"`
}

// field returns a pointer to the storage for ch, or nil for an unknown channel.
func (r *Row) field(ch Channel) *float64 {
	switch ch {
	case Level1:
		return &r.Level1
	case Level2:
		return &r.Level2
	case Level3:
		return &r.Level3
	case Level4:
		return &r.Level4
	case Level5:
		return &r.Level5
	case Level6:
		return &r.Level6
	case Encoder3:
		return &r.Encoder3
	case Ang1:
		return &r.Ang1
	case Ang2:
		return &r.Ang2
	case Ang3:
		return &r.Ang3
	}
	return nil
}

// Value returns the value of ch. ok is false for an unknown channel.
func (r Row) Value(ch Channel) (v float64, ok bool) {
	p := r.field(ch)
	if p == nil {
		return 0, false
	}
	return *p, true
}

// SetValue stores v in ch and reports whether the channel exists.
func (r *Row) SetValue(ch Channel, v float64) bool {
	p := r.field(ch)
	if p == nil {
		return false
	}
	*p = v
	return true
}

// Distance returns Travelled.
func (r Row) Distance() float64 { return r.Travelled }

// AtDistance returns a copy of r positioned at d.
func (r Row) AtDistance(d float64) Row {
	r.Travelled = d
	return r
}

// Column extracts the values of ch from rows, in order.
func Column(rows []Row, ch Channel) []float64 {
	out := make([]float64, len(rows))
	for i := range rows {
		out[i], _ = rows[i].Value(ch)
	}
	return out
}

// Clone returns a copy of rows that shares no storage with the input.
func Clone(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}
