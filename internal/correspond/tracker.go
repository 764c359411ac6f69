package correspond

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/NHMDenmark/NHMDlabelreader/internal/region"
)

// ErrProtocolViolation is returned when images do not alternate front, back,
// front, back. The rows returned alongside it are best effort.
var ErrProtocolViolation = errors.New("front/back protocol violation")

// Side tells which face of the card sheet an image shows.
type Side int

const (
	// NoSide is the zero value; images without a side are not tracked.
	NoSide Side = iota
	Front
	Back
)

func (s Side) String() string {
	switch s {
	case Front:
		return "front"
	case Back:
		return "back"
	}
	return "none"
}

// MarshalText encodes the side by name.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses "front", "back" or "none".
func (s *Side) UnmarshalText(text []byte) error {
	v, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSide accepts "front", "back" and "none" (or "").
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "front":
		return Front, nil
	case "back":
		return Back, nil
	case "", "none":
		return NoSide, nil
	}
	return NoSide, fmt.Errorf("unknown side %q (want front, back or none)", s)
}

// State is the tracker's position in the front/back alternation.
type State int

const (
	AwaitingFront State = iota
	HaveFrontPending
)

func (s State) String() string {
	if s == HaveFrontPending {
		return "have-front-pending"
	}
	return "awaiting-front"
}

// Card is one read label as handed to the tracker: its catalogue key, where it
// lay on the sheet, and the fields parsed from it.
type Card struct {
	Key      string
	Centroid region.Point
	Fields   map[string]string
}

// Row is one merged output record. Front or Back is nil when that face was
// not seen. The centroids are kept for traceability.
type Row struct {
	Key           string
	Front         map[string]string
	Back          map[string]string
	FrontCentroid *region.Point
	BackCentroid  *region.Point
}

// Tracker carries card identity from a front image to the following back
// image. It is owned by one batch and is not safe for concurrent use.
type Tracker struct {
	state   State
	pending []Card
	log     logrus.FieldLogger
}

// NewTracker returns a tracker awaiting its first front. A nil logger selects
// the logrus standard logger.
func NewTracker(logger logrus.FieldLogger) *Tracker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tracker{state: AwaitingFront, log: logger}
}

// State returns the current state.
func (t *Tracker) State() State {
	return t.state
}

// Pending returns a copy of the stored front cards.
func (t *Tracker) Pending() []Card {
	out := make([]Card, len(t.pending))
	copy(out, t.pending)
	return out
}

// Reset drops any pending front and returns to AwaitingFront.
func (t *Tracker) Reset() {
	t.pending = nil
	t.state = AwaitingFront
}

// Front stores the cards of a front image.
//
// If a front was already pending, the two fronts arrived back to back: the
// old front is flushed as rows with no back fields and ErrProtocolViolation
// is returned. Otherwise no rows are produced.
func (t *Tracker) Front(cards []Card) ([]Row, error) {
	var rows []Row
	var err error
	if t.state == HaveFrontPending {
		rows = frontRows(t.pending)
		err = fmt.Errorf("%w: two front images in a row, %d pending cards flushed without backs",
			ErrProtocolViolation, len(t.pending))
	}

	t.pending = make([]Card, len(cards))
	copy(t.pending, cards)
	t.state = HaveFrontPending
	t.log.WithFields(logrus.Fields{"cards": len(cards)}).Debug("front stored")
	return rows, err
}

// Back merges the cards of a back image with the pending front.
//
// Every back card takes the identity of the nearest front card by centroid.
// The result is an outer join: each front yields one row per matched back,
// or one row with no back fields if nothing matched it. A back that matched
// no front, as happens when the front had no cards, gets a keyless row.
//
// Without a pending front, ErrProtocolViolation is returned together with
// one keyless row per back card; no front is guessed.
func (t *Tracker) Back(cards []Card) ([]Row, error) {
	if t.state != HaveFrontPending {
		rows := make([]Row, 0, len(cards))
		for _, c := range cards {
			c := c
			rows = append(rows, Row{Back: copyFields(c.Fields), BackCentroid: &c.Centroid})
		}
		return rows, fmt.Errorf("%w: back image without a preceding front", ErrProtocolViolation)
	}

	fronts := t.pending
	assignments := Match(cards, fronts)

	byFront := make([][]int, len(fronts))
	for _, a := range assignments {
		if a.OK {
			byFront[a.Front] = append(byFront[a.Front], a.Back)
		}
	}

	rows := make([]Row, 0, len(fronts)+len(cards))
	for i, f := range fronts {
		f := f
		if len(byFront[i]) == 0 {
			t.log.WithFields(logrus.Fields{"key": f.Key}).Warn("front card has no matching back")
			rows = append(rows, Row{Key: f.Key, Front: copyFields(f.Fields), FrontCentroid: &f.Centroid})
			continue
		}
		if len(byFront[i]) > 1 {
			t.log.WithFields(logrus.Fields{"key": f.Key, "backs": len(byFront[i])}).
				Warn("several back cards matched one front")
		}
		for _, bi := range byFront[i] {
			b := cards[bi]
			rows = append(rows, Row{
				Key:           f.Key,
				Front:         copyFields(f.Fields),
				Back:          copyFields(b.Fields),
				FrontCentroid: &f.Centroid,
				BackCentroid:  &b.Centroid,
			})
		}
	}

	for _, a := range assignments {
		if a.OK {
			continue
		}
		b := cards[a.Back]
		t.log.WithFields(logrus.Fields{"back": a.Back}).Warn("back card has no matching front")
		rows = append(rows, Row{Back: copyFields(b.Fields), BackCentroid: &b.Centroid})
	}

	t.pending = nil
	t.state = AwaitingFront
	t.log.WithFields(logrus.Fields{"fronts": len(fronts), "backs": len(cards), "rows": len(rows)}).Debug("back merged")
	return rows, nil
}

// Flush ends the batch. A pending front is emitted as rows without back
// fields and the tracker returns to AwaitingFront.
func (t *Tracker) Flush() []Row {
	if t.state != HaveFrontPending {
		return nil
	}
	rows := frontRows(t.pending)
	t.Reset()
	return rows
}

func frontRows(cards []Card) []Row {
	rows := make([]Row, 0, len(cards))
	for _, c := range cards {
		c := c
		rows = append(rows, Row{Key: c.Key, Front: copyFields(c.Fields), FrontCentroid: &c.Centroid})
	}
	return rows
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
