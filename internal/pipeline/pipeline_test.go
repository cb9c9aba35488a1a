package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashtalkers/trashtalkers/internal/db"
	"github.com/trashtalkers/trashtalkers/internal/guidance"
	"github.com/trashtalkers/trashtalkers/internal/imaging"
	"github.com/trashtalkers/trashtalkers/internal/model"
	"github.com/trashtalkers/trashtalkers/internal/places"
	"github.com/trashtalkers/trashtalkers/internal/store"
)

type fakeClassifier struct {
	predictions []model.Prediction
	err         error
	calls       int
}

func (f *fakeClassifier) Classify(context.Context, []byte, string) ([]model.Prediction, error) {
	f.calls++
	return f.predictions, f.err
}

type fakeGuidance struct {
	answer string
	err    error
	delay  time.Duration
	got    guidance.Request
	done   atomic.Bool
}

func (f *fakeGuidance) Generate(ctx context.Context, r guidance.Request) (string, error) {
	f.got = r
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.done.Store(true)
	return f.answer, f.err
}

type fakePlaces struct {
	places []places.Place
	err    error
	delay  time.Duration
	got    places.SearchRequest
	done   atomic.Bool
}

func (f *fakePlaces) Search(ctx context.Context, r places.SearchRequest) ([]places.Place, error) {
	f.got = r
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.done.Store(true)
	return f.places, f.err
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(0, 0, color.RGBA{0, 128, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var (
	columbus     = &model.Coordinates{Latitude: 40.0, Longitude: -83.0}
	parsedAnswer = "Cost: Profitable\n\nRedemption Value: 0.05\n\nDetails: Return it for the deposit."
	predictions  = []model.Prediction{{Label: "plastic bottle", Score: 0.9}, {Label: "glass bottle", Score: 0.07}}
	foundPlaces  = []places.Place{{Name: "Depot", Address: "1 Main St", Latitude: 40.01, Longitude: -83.0}}
)

type fixture struct {
	p          *Pipeline
	classifier *fakeClassifier
	guidance   *fakeGuidance
	places     *fakePlaces
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		classifier: &fakeClassifier{predictions: predictions},
		guidance:   &fakeGuidance{answer: parsedAnswer},
		places:     &fakePlaces{places: foundPlaces},
	}
	f.p = New(db.NewTestDB(t), f.classifier, f.guidance, f.places)
	f.p.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	f.p.newID = func() string { return "item-1" }
	return f
}

func (f *fixture) classified(t *testing.T) *Run {
	t.Helper()
	r := f.p.NewRun("uid-1")
	require.NoError(t, r.SelectImage(testPNG(t), "image/png"))
	require.NoError(t, r.Classify(context.Background()))
	return r
}

func TestHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.p.NewRun("uid-1")
	assert.Equal(t, Idle, r.State)

	require.NoError(t, r.SelectImage(testPNG(t), "image/png"))
	assert.Equal(t, ImageSelected, r.State)

	require.NoError(t, r.Classify(ctx))
	assert.Equal(t, PredictionsReady, r.State)
	assert.Equal(t, "plastic bottle", r.Label, "first prediction is pre-selected")

	item, err := r.Submit(ctx, r.Label, "empty soda bottle", columbus)
	require.NoError(t, err)
	assert.Equal(t, Done, r.State)

	assert.Equal(t, "item-1", item.ItemHash)
	assert.Equal(t, "plastic bottle", item.Name)
	assert.Equal(t, "Return it for the deposit.", item.Description)
	assert.Equal(t, model.OutcomeProfitable, item.Outcome)
	assert.Equal(t, "0.05", item.RedemptionValue.String())
	assert.True(t, item.GuidanceParsed)
	assert.Equal(t, 0.9, item.ConfidenceRating)
	assert.Equal(t, columbus, item.UserLocation)
	require.Len(t, item.RecyclingLocations, 1)
	assert.NotNil(t, item.RecyclingLocations[0].Distance)
	assert.True(t, strings.HasPrefix(item.Photo, "data:image/jpeg;base64,"))

	assert.Equal(t, "plastic bottle recycling center", f.places.got.TextQuery)
	assert.Equal(t, 40.0, f.places.got.Latitude)
	assert.Equal(t, "empty soda bottle", f.guidance.got.Description)
	assert.Equal(t, "image/png", f.guidance.got.ImageMIME)

	stored, err := store.GetItem(ctx, f.p.DB, "uid-1", "item-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, item.Description, stored.Description)
	assert.True(t, stored.CreatedAt.Equal(*item.CreatedAt))
}

func TestSelectImageRejectsUnsupported(t *testing.T) {
	f := newFixture(t)
	r := f.p.NewRun("uid-1")

	err := r.SelectImage([]byte("GIF89a...."), "image/gif")
	assert.ErrorIs(t, err, imaging.ErrUnsupportedFormat)
	assert.Equal(t, Idle, r.State)

	// A misleading declared type does not get past the byte sniff.
	err = r.SelectImage([]byte("GIF89a...."), "image/png")
	assert.ErrorIs(t, err, imaging.ErrUnsupportedFormat)
	assert.Equal(t, Idle, r.State)
	assert.Zero(t, f.classifier.calls)
}

func TestClassifyFailureIsResumable(t *testing.T) {
	f := newFixture(t)
	f.classifier.err = errors.New("endpoint asleep")

	r := f.p.NewRun("uid-1")
	require.NoError(t, r.SelectImage(testPNG(t), ""))
	err := r.Classify(context.Background())
	require.Error(t, err)
	assert.Equal(t, Error, r.State)
	assert.Contains(t, err.Error(), "endpoint asleep")

	f.classifier.err = nil
	require.NoError(t, r.Classify(context.Background()))
	assert.Equal(t, PredictionsReady, r.State)
	assert.Equal(t, 2, f.classifier.calls)
}

func TestSubmitRequiresFields(t *testing.T) {
	f := newFixture(t)
	r := f.classified(t)

	_, err := r.Submit(context.Background(), "plastic bottle", " ", columbus)
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.Equal(t, PredictionsReady, r.State)

	_, err = r.Submit(context.Background(), "", "bottle", columbus)
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestSubmitWithoutLocationHalts(t *testing.T) {
	f := newFixture(t)
	r := f.classified(t)

	_, err := r.Submit(context.Background(), r.Label, "bottle", nil)
	assert.ErrorIs(t, err, ErrLocationRequired)
	assert.Equal(t, Error, r.State)
	assert.False(t, f.guidance.done.Load())
	assert.False(t, f.places.done.Load())

	items, _ := store.ListItems(context.Background(), f.p.DB, "uid-1")
	assert.Empty(t, items)

	_, err = r.Submit(context.Background(), r.Label, "bottle", columbus)
	assert.ErrorIs(t, err, ErrInvalidTransition, "a halted run is not retried")
}

func TestSubmitWaitsForBoth(t *testing.T) {
	f := newFixture(t)
	f.places.delay = 50 * time.Millisecond
	r := f.classified(t)

	item, err := r.Submit(context.Background(), r.Label, "bottle", columbus)
	require.NoError(t, err)
	assert.True(t, f.guidance.done.Load())
	assert.True(t, f.places.done.Load())
	assert.Len(t, item.RecyclingLocations, 1, "slow search results are not dropped")
}

func TestSubmitUpstreamFailurePersistsNothing(t *testing.T) {
	tests := map[string]func(f *fixture){
		"guidance": func(f *fixture) { f.guidance.err = guidance.ErrRateLimited },
		"places":   func(f *fixture) { f.places.err = places.ErrNotConfigured },
	}

	for name, breakIt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			breakIt(f)
			r := f.classified(t)

			_, err := r.Submit(context.Background(), r.Label, "bottle", columbus)
			require.Error(t, err)
			assert.Equal(t, Error, r.State)
			assert.Nil(t, r.Item)

			items, _ := store.ListItems(context.Background(), f.p.DB, "uid-1")
			assert.Empty(t, items)
		})
	}
}

func TestSubmitUnparsedGuidance(t *testing.T) {
	f := newFixture(t)
	f.guidance.answer = "  Rinse it and put it in the blue bin.  "
	r := f.classified(t)

	item, err := r.Submit(context.Background(), r.Label, "bottle", columbus)
	require.NoError(t, err)
	assert.False(t, item.GuidanceParsed)
	assert.Equal(t, "Rinse it and put it in the blue bin.", item.Description)
	assert.Empty(t, item.Outcome)
	assert.Nil(t, item.RedemptionValue)
}

func TestSubmitUserLabelHasZeroConfidence(t *testing.T) {
	f := newFixture(t)
	r := f.classified(t)

	item, err := r.Submit(context.Background(), "glass bottle", "bottle", columbus)
	require.NoError(t, err)
	assert.Equal(t, 0.07, item.ConfidenceRating)

	r = f.classified(t)
	f.p.newID = func() string { return "item-2" }
	item, err = r.Submit(context.Background(), "aluminium foil", "foil", columbus)
	require.NoError(t, err)
	assert.Zero(t, item.ConfidenceRating)
}

func TestCreatedAtSetOnce(t *testing.T) {
	f := newFixture(t)
	calls := 0
	f.p.now = func() time.Time {
		calls++
		return time.Date(2025, 6, 1, 12, 0, calls, 0, time.UTC)
	}
	r := f.classified(t)

	item, err := r.Submit(context.Background(), r.Label, "bottle", columbus)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, item.CreatedAt.Second())
}

func TestPersistFailure(t *testing.T) {
	f := newFixture(t)
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	mock.ExpectExec("REPLACE INTO items").WillReturnError(errors.New("disk full"))
	f.p.DB = mockDB

	r := f.classified(t)
	_, err = r.Submit(context.Background(), r.Label, "bottle", columbus)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saving item")
	assert.Equal(t, Error, r.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResume(t *testing.T) {
	f := newFixture(t)

	r, err := f.p.Resume("uid-1", testPNG(t), "image/png", predictions)
	require.NoError(t, err)
	assert.Equal(t, PredictionsReady, r.State)
	assert.Equal(t, "plastic bottle", r.Label)
	assert.Zero(t, f.classifier.calls)

	_, err = f.p.Resume("uid-1", []byte("not an image"), "", predictions)
	assert.ErrorIs(t, err, imaging.ErrUnsupportedFormat)
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	r := f.p.NewRun("uid-1")

	assert.ErrorIs(t, r.Classify(context.Background()), ErrInvalidTransition)
	_, err := r.Submit(context.Background(), "x", "y", columbus)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	r = f.classified(t)
	_, err = r.Submit(context.Background(), r.Label, "bottle", columbus)
	require.NoError(t, err)
	assert.ErrorIs(t, r.SelectImage(testPNG(t), "image/png"), ErrInvalidTransition)
}
