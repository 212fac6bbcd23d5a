package session

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

func source() *imgbuf.Buffer {
	return imgbuf.Filled(8, 4, color.RGBA{R: 128, G: 128, B: 128, A: 255})
}

func newPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.NewBuilder().Build()
	require.NoError(t, err)
	return p
}

func TestStepNames(t *testing.T) {
	assert.Equal(t, "studio", StepStudio.String())
	s, err := ParseStep("TRACE")
	require.NoError(t, err)
	assert.Equal(t, StepTrace, s)
	_, err = ParseStep("camera")
	assert.Error(t, err)
}

func TestWizardFlow(t *testing.T) {
	p := newPipeline(t)
	s := NewState()
	assert.Equal(t, StepUpload, s.Step)

	s = Reduce(s, Next{})
	assert.Equal(t, StepUpload, s.Step)
	assert.Contains(t, s.Err, ErrNoSource.Error())

	s = Reduce(s, Upload{Image: source()})
	assert.Empty(t, s.Err)
	s = Reduce(s, Next{})
	assert.Equal(t, StepStudio, s.Step)

	s = Reduce(s, Next{})
	assert.Equal(t, StepStudio, s.Step, "trace needs a render")
	assert.Contains(t, s.Err, ErrNoRender.Error())

	s = Render(context.Background(), p, s)
	require.True(t, s.HasRender())
	assert.Empty(t, s.Err)

	s = Reduce(s, Next{})
	assert.Equal(t, StepTrace, s.Step)
	s = Reduce(s, Next{})
	assert.Equal(t, StepTrace, s.Step)

	s = Reduce(s, Back{})
	assert.Equal(t, StepStudio, s.Step)
	s = Reduce(Reduce(s, Back{}), Back{})
	assert.Equal(t, StepUpload, s.Step)

	v := s.Version
	s = Reduce(s, Reset{})
	assert.False(t, s.HasSource())
	assert.Equal(t, StepUpload, s.Step)
	assert.Equal(t, v+1, s.Version)
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s := Reduce(NewState(), Upload{Image: source()})
	before := s
	_ = Reduce(s, RotateRight{})
	_ = Reduce(s, SetParams{Params: pipeline.Params{Style: pipeline.StyleSepia, Contrast: 2}})
	_ = Reduce(s, Reset{})
	assert.Equal(t, before, s)
}

func TestUploadResetsRotationAndRender(t *testing.T) {
	p := newPipeline(t)
	s := Reduce(NewState(), Upload{Image: source()})
	s = Reduce(s, RotateRight{})
	s = Render(context.Background(), p, s)
	s = Reduce(s, Next{})
	s = Reduce(s, Next{})
	require.Equal(t, StepTrace, s.Step)

	s = Reduce(s, Upload{Image: source()})
	assert.Equal(t, 0, s.Params.Rotation)
	assert.False(t, s.HasRender())
	assert.Equal(t, StepStudio, s.Step)

	s = Reduce(s, Upload{})
	assert.Contains(t, s.Err, "empty image")
}

func TestRotationAccumulates(t *testing.T) {
	s := Reduce(NewState(), Upload{Image: source()})
	s = Reduce(s, RotateLeft{})
	assert.Equal(t, 3, s.Params.Rotation)
	s = Reduce(s, RotateRight{})
	s = Reduce(s, RotateRight{})
	assert.Equal(t, 1, s.Params.Rotation)

	s = Reduce(NewState(), RotateLeft{})
	assert.Equal(t, 0, s.Params.Rotation)
	assert.Contains(t, s.Err, ErrNoSource.Error())
}

func TestSetParamsKeepsRotation(t *testing.T) {
	s := Reduce(NewState(), Upload{Image: source()})
	s = Reduce(s, RotateRight{})

	np := pipeline.DefaultParams()
	np.Rotation = 3
	np.Style = pipeline.StyleNegative
	s = Reduce(s, SetParams{Params: np})
	assert.Equal(t, 1, s.Params.Rotation)
	assert.Equal(t, pipeline.StyleNegative, s.Params.Style)

	bad := np
	bad.Brightness = 500
	rev := s.Revision
	s = Reduce(s, SetParams{Params: bad})
	assert.Equal(t, rev, s.Revision)
	assert.Contains(t, s.Err, "brightness")
}

func TestStaleRenderIsIgnored(t *testing.T) {
	p := newPipeline(t)
	s := Reduce(NewState(), Upload{Image: source()})
	act := RenderAction(context.Background(), p, s)

	s = Reduce(s, RotateRight{})
	after := Reduce(s, act)
	assert.False(t, after.HasRender())
	assert.Equal(t, s.Version, after.Version)
}

func TestRenderFailureKeepsLastGoodImage(t *testing.T) {
	p := newPipeline(t)
	s := Reduce(NewState(), Upload{Image: source()})
	s = Render(context.Background(), p, s)
	good := s.Processed
	require.NotNil(t, good)

	s = Reduce(s, RenderFailed{Err: errors.New("filter exploded"), Revision: s.Revision})
	assert.Same(t, good, s.Processed)
	assert.Equal(t, "filter exploded", s.Err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s = Reduce(s, RotateLeft{})
	s = Render(ctx, p, s)
	assert.Same(t, good, s.Processed)
	assert.Contains(t, s.Err, "context canceled")
}

func TestRenderWithoutSource(t *testing.T) {
	act := RenderAction(context.Background(), newPipeline(t), NewState())
	failed, ok := act.(RenderFailed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, ErrNoSource)
}

func TestStoreLifecycle(t *testing.T) {
	store := NewStore(time.Minute)
	id, err := store.Create(NewState())
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.Equal(t, 1, store.Len())

	s, err := store.Dispatch(id, Upload{Image: source()})
	require.NoError(t, err)
	assert.True(t, s.HasSource())

	_, err = store.Dispatch(id, SetParams{Params: pipeline.Params{Contrast: 9}})
	var pe *pipeline.ParamError
	require.ErrorAs(t, err, &pe)

	got, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Update("missing", func(s State) (State, error) { return s, nil })
	assert.ErrorIs(t, err, ErrNotFound)

	assert.True(t, store.Delete(id))
	assert.False(t, store.Delete(id))
}

func TestStoreExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(10 * time.Minute)
	store.now = func() time.Time { return now }

	a, err := store.Create(NewState())
	require.NoError(t, err)
	b, err := store.Create(NewState())
	require.NoError(t, err)

	now = now.Add(6 * time.Minute)
	_, err = store.Get(b)
	require.NoError(t, err)

	now = now.Add(6 * time.Minute)
	assert.Equal(t, 1, store.Sweep())
	_, err = store.Get(a)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(b)
	assert.NoError(t, err)

	now = now.Add(11 * time.Minute)
	_, err = store.Get(b)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestStoreUpdateIsAtomic(t *testing.T) {
	store := NewStore(0)
	id, err := store.Create(Reduce(NewState(), Upload{Image: source()}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Dispatch(id, RotateRight{})
		}()
	}
	wg.Wait()

	s, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Params.Rotation, "64 quarter turns")
	assert.Equal(t, uint64(65), s.Version)
}

func TestStoreRunStopsOnCancel(t *testing.T) {
	store := NewStore(time.Millisecond)
	_, err := store.Create(NewState())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRotationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	base := Reduce(NewState(), Upload{Image: source()})

	properties.Property("n lefts then n rights restore the accumulator", prop.ForAll(
		func(start, n int) bool {
			s := base
			for i := 0; i < start; i++ {
				s = Reduce(s, RotateRight{})
			}
			want := s.Params.Rotation
			for i := 0; i < n; i++ {
				s = Reduce(s, RotateLeft{})
			}
			for i := 0; i < n; i++ {
				s = Reduce(s, RotateRight{})
			}
			return s.Params.Rotation == want
		},
		gen.IntRange(0, 3), gen.IntRange(0, 20),
	))

	properties.Property("four same-direction rotations are identity", prop.ForAll(
		func(start int, left bool) bool {
			s := base
			for i := 0; i < start; i++ {
				s = Reduce(s, RotateRight{})
			}
			want := s.Params.Rotation
			var a Action = RotateRight{}
			if left {
				a = RotateLeft{}
			}
			for i := 0; i < 4; i++ {
				s = Reduce(s, a)
			}
			return s.Params.Rotation == want
		},
		gen.IntRange(0, 3), gen.Bool(),
	))

	properties.Property("rotation stays in 0..3", prop.ForAll(
		func(moves []bool) bool {
			s := base
			for _, right := range moves {
				if right {
					s = Reduce(s, RotateRight{})
				} else {
					s = Reduce(s, RotateLeft{})
				}
				if s.Params.Rotation < 0 || s.Params.Rotation > 3 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
