// Package progress applies gameplay reports to the save document and
// announces them on the event bus.
package progress

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/metal-pod/backend/internal/event"
	"github.com/metal-pod/backend/internal/save"
)

// Report kinds accepted by Apply.
const (
	KindCourseCompleted = "course_completed"
	KindPlayerDestroyed = "player_destroyed"
)

// Best possible medal (gold).
const maxMedal = 3

var (
	ErrNoSave        = errors.New("no save loaded")
	ErrUnknownReport = errors.New("unknown report kind")
	ErrInvalidReport = errors.New("invalid report")
)

// Report is one gameplay fact sent by the game client.
type Report struct {
	Kind     string  `json:"kind"`
	CourseID string  `json:"course,omitempty"`
	Time     float64 `json:"time,omitempty"`  // seconds
	Medal    int     `json:"medal,omitempty"` // 0 none .. 3 gold
	Bolts    int     `json:"bolts,omitempty"` // collected during the run
}

// Store is the part of the save manager the recorder writes through.
type Store interface {
	Data() *save.Data
	MarkDirty()
}

// CourseOrder resolves which course a clear unlocks.
type CourseOrder interface {
	NextCourse(courseID string) (string, bool)
}

// Earner credits bolts.
type Earner interface {
	AddCurrency(amount int)
}

// Recorder turns reports into save mutations and notifications.
type Recorder struct {
	store   Store
	courses CourseOrder
	earner  Earner
	bus     *event.Bus
	logger  *zap.Logger
}

// NewRecorder creates a Recorder. courses, earner and bus may be nil.
func NewRecorder(store Store, courses CourseOrder, earner Earner, bus *event.Bus, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, courses: courses, earner: earner, bus: bus, logger: logger}
}

// Apply dispatches a report by kind.
func (r *Recorder) Apply(rep Report) error {
	switch strings.ToLower(strings.TrimSpace(rep.Kind)) {
	case KindCourseCompleted:
		return r.CourseCompleted(rep.CourseID, rep.Time, rep.Medal, rep.Bolts)
	case KindPlayerDestroyed:
		return r.PlayerDestroyed()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownReport, rep.Kind)
	}
}

// CourseCompleted records a finished run: best time and medal, the medal
// total, first-clear bookkeeping and the next course in order. Bolts are
// credited before the completion is announced.
func (r *Recorder) CourseCompleted(courseID string, seconds float64, medal, bolts int) error {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return fmt.Errorf("%w: missing course id", ErrInvalidReport)
	}
	if seconds < 0 || medal < 0 || medal > maxMedal || bolts < 0 {
		return fmt.Errorf("%w: time %.2f medal %d bolts %d", ErrInvalidReport, seconds, medal, bolts)
	}
	d := r.store.Data()
	if d == nil {
		return ErrNoSave
	}

	if prev, ok := d.BestTimes[courseID]; seconds > 0 && (!ok || prev <= 0 || seconds < prev) {
		d.BestTimes[courseID] = seconds
	}
	if prev := d.BestMedals[courseID]; medal > prev {
		d.TotalMedals += medal - prev
		d.BestMedals[courseID] = medal
	}
	firstClear := !d.CompletedCourses[courseID]
	if firstClear {
		d.CompletedCourses[courseID] = true
		d.TotalCoursesCompleted++
	}
	d.UnlockedCourses[courseID] = true
	r.store.MarkDirty()

	r.logger.Debug("course completed",
		zap.String("course", courseID),
		zap.Float64("time", seconds),
		zap.Int("medal", medal),
		zap.Bool("first_clear", firstClear))

	if bolts > 0 && r.earner != nil {
		r.earner.AddCurrency(bolts)
	}
	if next, ok := r.nextCourse(courseID); ok && !d.UnlockedCourses[next] {
		d.UnlockedCourses[next] = true
		r.store.MarkDirty()
		r.bus.Publish(event.Event{Type: event.CourseUnlocked, CourseID: next})
	}
	r.bus.Publish(event.Event{Type: event.CourseCompleted, CourseID: courseID, Time: seconds, Medal: medal})
	return nil
}

func (r *Recorder) nextCourse(courseID string) (string, bool) {
	if r.courses == nil {
		return "", false
	}
	return r.courses.NextCourse(courseID)
}

// PlayerDestroyed counts a death.
func (r *Recorder) PlayerDestroyed() error {
	d := r.store.Data()
	if d == nil {
		return ErrNoSave
	}
	d.TotalDeaths++
	r.store.MarkDirty()
	r.bus.Publish(event.Event{Type: event.PlayerDestroyed})
	return nil
}

// Advance accrues play time. It does not publish; the engine's periodic
// retrigger picks the new total up.
func (r *Recorder) Advance(dt time.Duration) {
	d := r.store.Data()
	if d == nil || dt <= 0 {
		return
	}
	d.TotalPlayTime += dt.Seconds()
	r.store.MarkDirty()
}
