// Package pipeline runs the item submission flow: classify an image, then
// generate guidance and search places concurrently, then persist the item.
package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/trashtalkers/trashtalkers/internal/guidance"
	"github.com/trashtalkers/trashtalkers/internal/imaging"
	"github.com/trashtalkers/trashtalkers/internal/metrics"
	"github.com/trashtalkers/trashtalkers/internal/model"
	"github.com/trashtalkers/trashtalkers/internal/places"
	"github.com/trashtalkers/trashtalkers/internal/store"
)

// State is a submission run state.
type State string

// Run states, in flow order.
const (
	Idle                                 State = "idle"
	ImageSelected                        State = "image_selected"
	Classifying                          State = "classifying"
	PredictionsReady                     State = "predictions_ready"
	AwaitingLocationPermission           State = "awaiting_location_permission"
	GeneratingGuidanceAndSearchingPlaces State = "generating_guidance_and_searching_places"
	Persisting                           State = "persisting"
	Done                                 State = "done"
	Error                                State = "error"
)

var (
	// ErrLocationRequired is returned when a submission has no coordinates.
	ErrLocationRequired = errors.New("location access is required to submit")
	// ErrMissingFields is returned when a submission lacks a description or label.
	ErrMissingFields = errors.New("a description and a label are required")
	// ErrInvalidTransition is returned when an action is not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid pipeline transition")
)

// Classifier labels an image.
type Classifier interface {
	Classify(ctx context.Context, image []byte, contentType string) ([]model.Prediction, error)
}

// GuidanceGenerator produces disposal guidance text.
type GuidanceGenerator interface {
	Generate(ctx context.Context, r guidance.Request) (string, error)
}

// PlaceSearcher finds facilities near a point.
type PlaceSearcher interface {
	Search(ctx context.Context, r places.SearchRequest) ([]places.Place, error)
}

// Pipeline holds the collaborators shared by all runs.
type Pipeline struct {
	DB         *sql.DB
	Classifier Classifier
	Guidance   GuidanceGenerator
	Places     PlaceSearcher

	now   func() time.Time
	newID func() string
}

// New creates a pipeline.
func New(db *sql.DB, classifier Classifier, gen GuidanceGenerator, searcher PlaceSearcher) *Pipeline {
	return &Pipeline{
		DB:         db,
		Classifier: classifier,
		Guidance:   gen,
		Places:     searcher,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Run is one user's pass through the submission flow.
type Run struct {
	UserID      string
	State       State
	Image       []byte
	ImageMIME   string
	Predictions []model.Prediction
	Label       string
	Item        *model.Item
	Err         error

	p *Pipeline
	// classifyFailed marks an Error state that classification may retry from.
	classifyFailed bool
}

// NewRun starts a run for a user in the Idle state.
func (p *Pipeline) NewRun(userID string) *Run {
	return &Run{UserID: userID, State: Idle, p: p}
}

// Resume restores a run whose image was already classified, as when the
// photo and predictions come back with a form submission.
func (p *Pipeline) Resume(userID string, image []byte, mime string, predictions []model.Prediction) (*Run, error) {
	r := p.NewRun(userID)
	if err := r.SelectImage(image, mime); err != nil {
		return nil, err
	}
	r.setPredictions(predictions)
	return r, nil
}

// SelectImage accepts an image whose bytes match the MIME allow-list. An
// unsupported image leaves the run where it was.
func (r *Run) SelectImage(data []byte, declared string) error {
	switch {
	case r.State == Idle, r.State == ImageSelected, r.State == PredictionsReady:
	case r.State == Error && r.classifyFailed:
	default:
		return r.invalid("select image")
	}

	if declared != "" && !imaging.Allowed(declared) {
		return fmt.Errorf("%w (got %s)", imaging.ErrUnsupportedFormat, declared)
	}
	mime, err := imaging.Sniff(data)
	if err != nil {
		return err
	}

	r.Image = data
	r.ImageMIME = mime
	r.Predictions = nil
	r.Label = ""
	r.Err = nil
	r.classifyFailed = false
	r.State = ImageSelected
	return nil
}

// Classify sends the selected image to the classifier and pre-selects the
// first prediction. A failed classification may be retried.
func (r *Run) Classify(ctx context.Context) error {
	if r.State != ImageSelected && !(r.State == Error && r.classifyFailed) {
		return r.invalid("classify")
	}

	r.State = Classifying
	predictions, err := r.p.Classifier.Classify(ctx, r.Image, r.ImageMIME)
	if err != nil {
		r.classifyFailed = true
		return r.fail(fmt.Errorf("classifying image: %w", err))
	}
	if len(predictions) == 0 {
		r.classifyFailed = true
		return r.fail(errors.New("classifying image: no predictions returned"))
	}

	r.classifyFailed = false
	r.setPredictions(predictions)
	return nil
}

func (r *Run) setPredictions(predictions []model.Prediction) {
	r.Predictions = predictions
	r.Label = ""
	if len(predictions) > 0 {
		r.Label = predictions[0].Label
	}
	r.Err = nil
	r.State = PredictionsReady
}

// Submit generates guidance and searches places for the chosen label, then
// persists the merged item. Nothing is persisted unless every step succeeds.
func (r *Run) Submit(ctx context.Context, label, description string, location *model.Coordinates) (*model.Item, error) {
	if r.State != PredictionsReady {
		return nil, r.invalid("submit")
	}

	label = strings.TrimSpace(label)
	description = strings.TrimSpace(description)
	if label == "" || description == "" {
		return nil, ErrMissingFields
	}
	r.Label = label

	r.State = AwaitingLocationPermission
	if location == nil {
		return nil, r.fail(ErrLocationRequired)
	}

	r.State = GeneratingGuidanceAndSearchingPlaces
	var (
		answer string
		found  []places.Place
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		answer, err = r.p.Guidance.Generate(gctx, guidance.Request{
			Label:       label,
			Description: description,
			Location:    location,
			Image:       r.Image,
			ImageMIME:   r.ImageMIME,
		})
		if err != nil {
			return fmt.Errorf("generating guidance: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		found, err = r.p.Places.Search(gctx, places.SearchRequest{
			TextQuery: label + " recycling center",
			Latitude:  location.Latitude,
			Longitude: location.Longitude,
		})
		if err != nil {
			return fmt.Errorf("searching places: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, r.fail(err)
	}

	r.State = Persisting
	item := r.merge(answer, found, location)
	if err := store.CreateItem(ctx, r.p.DB, item); err != nil {
		return nil, r.fail(fmt.Errorf("saving item: %w", err))
	}

	r.Item = item
	r.State = Done
	metrics.PipelineRunsTotal.WithLabelValues(string(Done)).Inc()
	slog.Info("item submitted", "user", r.UserID, "item", item.ItemHash, "label", label, "parsed", item.GuidanceParsed)
	return item, nil
}

// merge builds the item record from the run and the two concurrent results.
func (r *Run) merge(answer string, found []places.Place, location *model.Coordinates) *model.Item {
	created := r.p.now().UTC()
	item := &model.Item{
		ItemHash:           r.p.newID(),
		UserID:             r.UserID,
		Name:               r.Label,
		Photo:              r.photo(),
		ConfidenceRating:   r.confidence(),
		CreatedAt:          &created,
		UserLocation:       location,
		RecyclingLocations: places.RecyclingLocations(found, location),
	}
	item.ID = item.ItemHash

	parsed, err := guidance.Parse(answer)
	if err != nil {
		slog.Warn("guidance answer not parsed, storing raw text", "user", r.UserID, "item", item.ItemHash)
		item.Description = strings.TrimSpace(answer)
		return item
	}
	item.Description = parsed.Details
	item.Outcome = parsed.Outcome
	item.RedemptionValue = parsed.RedemptionValue
	item.GuidanceParsed = true
	return item
}

// confidence returns the score of the chosen label, or 0 for a label typed
// by the user.
func (r *Run) confidence() float64 {
	for _, p := range r.Predictions {
		if p.Label == r.Label {
			return p.Score
		}
	}
	return 0
}

// photo returns the stored form of the image, downscaled when possible.
func (r *Run) photo() string {
	processed, err := imaging.Process(bytes.NewReader(r.Image))
	if err != nil {
		slog.Warn("storing original photo", "user", r.UserID, "error", err)
		return imaging.DataURL(r.ImageMIME, r.Image)
	}
	return imaging.DataURL(processed.MIME, processed.Data)
}

func (r *Run) fail(err error) error {
	r.State = Error
	r.Err = err
	if !r.classifyFailed {
		metrics.PipelineRunsTotal.WithLabelValues(string(Error)).Inc()
	}
	slog.Error("submission pipeline failed", "user", r.UserID, "error", err)
	return err
}

func (r *Run) invalid(action string) error {
	return fmt.Errorf("%w: cannot %s in state %s", ErrInvalidTransition, action, r.State)
}
