package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/image-pipeline/internal/engine"
	"github.com/ironsheep/image-pipeline/internal/log"
	"github.com/ironsheep/image-pipeline/pkg/governor"
	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/imgutil"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func createTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(width, height, color.RGBA{200, 100, 50, 255})))
	return buf.Bytes()
}

func createTestJPEGFile(t *testing.T, width, height int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, createTestImage(width, height, color.RGBA{20, 120, 220, 255}), nil))
	path := filepath.Join(t.TempDir(), "input.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func newTestGovernor(t *testing.T, opts ...governor.Option) *governor.Governor {
	t.Helper()
	g, err := governor.New(append([]governor.Option{governor.WithLogger(log.Discard())}, opts...)...)
	require.NoError(t, err)
	return g
}

// newTestPipeline wires an isolated governor and a fresh engine.
func newTestPipeline(t *testing.T, input interface{}, opts ...Option) *Pipeline {
	t.Helper()
	base := []Option{
		WithGovernor(newTestGovernor(t)),
		WithEngine(engine.New(engine.WithLogger(log.Discard()))),
		WithLogger(log.Discard()),
	}
	p, err := New(input, append(base, opts...)...)
	require.NoError(t, err)
	return p
}

type fakeEngine struct {
	calls   atomic.Int32
	process func(ctx context.Context, snap *model.Snapshot) (*model.Result, error)
}

func (f *fakeEngine) Process(ctx context.Context, snap *model.Snapshot) (*model.Result, error) {
	f.calls.Add(1)
	if f.process != nil {
		return f.process(ctx, snap)
	}
	return &model.Result{Data: []byte("ok"), Info: model.Info{Format: snap.Output.Format, Size: 2}}, nil
}

func (f *fakeEngine) Metadata(ctx context.Context, snap *model.Snapshot) (*model.Metadata, error) {
	f.calls.Add(1)
	return &model.Metadata{Format: snap.InputFormat}, nil
}

func (f *fakeEngine) Stats(ctx context.Context, snap *model.Snapshot) (*model.Stats, error) {
	f.calls.Add(1)
	return &model.Stats{}, nil
}

func TestNewInputTypes(t *testing.T) {
	_, err := New(42)
	assert.True(t, errors.Is(err, imgerr.ErrConfiguration))

	_, err = New("")
	assert.True(t, errors.Is(err, imgerr.ErrEmptyInput))

	_, err = New([]byte{})
	assert.True(t, errors.Is(err, imgerr.ErrEmptyInput))

	_, err = New([]uint16{1, 2, 3}, WithEngine(&fakeEngine{}))
	assert.True(t, errors.Is(err, imgerr.ErrConfiguration))

	p, err := New([]uint16{1, 2, 3}, WithEngine(&fakeEngine{}), WithRaw(model.RawInput{Width: 1, Height: 1, Channels: 3}))
	require.NoError(t, err)
	in := p.Options().Input
	assert.Equal(t, model.InputRaw, in.Kind)
	assert.Equal(t, model.DepthUshort, in.Raw.Depth)
	assert.Len(t, in.Buffer, 6)

	_, err = New(nil, WithDensity(0))
	assert.True(t, errors.Is(err, imgerr.ErrConfiguration))
}

func TestChainingReturnsSelf(t *testing.T) {
	p := newTestPipeline(t, createTestPNG(t, 8, 8))
	calls := []*Pipeline{
		p.Resize(4, 4),
		p.Extract(0, 0, 2, 2),
		p.Rotate(90),
		p.AutoOrient(true),
		p.Flip(true),
		p.Flop(true),
		p.Trim(10),
		p.Blur(1),
		p.Sharpen(1),
		p.Median(3),
		p.Gamma(2.2, 0),
		p.Negate(true),
		p.Normalise(true),
		p.Threshold(128),
		p.Linear([]float64{1}, []float64{0}),
		p.Modulate(model.Modulate{Brightness: 1.2}),
		p.Flatten(true),
		p.Tint("#ff0000"),
		p.Greyscale(true),
		p.Colourspace("srgb"),
		p.RemoveAlpha(true),
		p.EnsureAlpha(true),
		p.ExtractChannel("green"),
		p.ToFormat("png"),
		p.JPEG(model.DefaultJPEGOptions()),
		p.KeepMetadata(true),
		p.Timeout(10),
	}
	for i, got := range calls {
		assert.Same(t, p, got, "call %d", i)
	}
	assert.NoError(t, p.Err())
}

func TestStickyError(t *testing.T) {
	fake := &fakeEngine{}
	p := newTestPipeline(t, createTestPNG(t, 8, 8), WithEngine(fake))

	p.Resize(-1, 10).Blur(2)
	require.Error(t, p.Err())
	assert.True(t, errors.Is(p.Err(), imgerr.ErrConfiguration))
	assert.Contains(t, p.Err().Error(), "width")
	assert.False(t, p.Options().Has(model.OpBlur), "calls after the failure are ignored")

	_, _, err := p.ToBuffer(context.Background())
	assert.Equal(t, p.Err(), err)
	assert.Zero(t, fake.calls.Load())
}

func TestOverwriteWarning(t *testing.T) {
	p := newTestPipeline(t, createTestPNG(t, 8, 8))
	var warnings []imgerr.Warning
	p.OnWarning(func(w imgerr.Warning) { warnings = append(warnings, w) })

	p.Blur(1)
	assert.Empty(t, warnings)
	p.Blur(2)
	require.Len(t, warnings, 1)
	assert.Equal(t, "blur", warnings[0].Op)

	blur := p.Options().Filters[model.OpBlur].(*model.Blur)
	assert.Equal(t, 2.0, blur.Sigma)
}

func TestToggleFalseCancels(t *testing.T) {
	p := newTestPipeline(t, createTestPNG(t, 8, 8))
	var warnings int
	p.OnWarning(func(imgerr.Warning) { warnings++ })

	p.Greyscale(true).Greyscale(false)
	assert.False(t, p.Options().Has(model.OpGreyscale))

	p.Flip(true).Flip(false)
	assert.False(t, p.Options().Has(model.OpFlip))
	assert.Zero(t, warnings)
}

func TestFormatOverwriteWarning(t *testing.T) {
	p := newTestPipeline(t, createTestPNG(t, 8, 8))
	var warnings int
	p.OnWarning(func(imgerr.Warning) { warnings++ })

	p.ToFormat("png").ToFormat("png")
	assert.Zero(t, warnings)
	p.ToFormat("jpg")
	assert.Equal(t, 1, warnings)
	assert.Equal(t, imgutil.JPEG, p.Options().Output.Format)

	p.ToFormat("webp")
	assert.True(t, errors.Is(p.Err(), imgerr.ErrConfiguration))
}

func TestCloneIndependence(t *testing.T) {
	ctx := context.Background()
	a := newTestPipeline(t, createTestPNG(t, 40, 40))
	a.Resize(10, 10)
	b := a.Clone()
	b.Resize(20, 20)

	assert.Len(t, a.Options().Geometry, 1)
	assert.Len(t, b.Options().Geometry, 2)

	_, infoA, err := a.ToBuffer(ctx)
	require.NoError(t, err)
	_, infoB, err := b.ToBuffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, infoA.Width)
	assert.Equal(t, 10, infoA.Height)
	assert.Equal(t, 20, infoB.Width)
	assert.Equal(t, 20, infoB.Height)
}

func TestCloneCopiesSliceParameters(t *testing.T) {
	a := newTestPipeline(t, createTestPNG(t, 8, 8))
	coeffs := []float64{1.5}
	a.Linear(coeffs, nil)
	b := a.Clone()
	coeffs[0] = 9

	la := a.Options().Filters[model.OpLinear].(*model.Linear)
	lb := b.Options().Filters[model.OpLinear].(*model.Linear)
	assert.Equal(t, 1.5, la.A[0])
	assert.Equal(t, 1.5, lb.A[0])
}

func TestFormatPrecedence(t *testing.T) {
	ctx := context.Background()
	in := createTestJPEGFile(t, 16, 16)
	out := filepath.Join(t.TempDir(), "output.unknown")

	p := newTestPipeline(t, in)
	_, err := p.ToFile(ctx, out)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, imgutil.JPEG, imgutil.Detect(data), "input format passes through")

	info, err := p.ToFormat("png").ToFile(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, imgutil.PNG, info.Format)
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, imgutil.PNG, imgutil.Detect(data), "forced format wins")

	gifOut := filepath.Join(t.TempDir(), "output.gif")
	info, err = newTestPipeline(t, in).ToFile(ctx, gifOut)
	require.NoError(t, err)
	assert.Equal(t, imgutil.GIF, info.Format, "extension beats input format")
}

func TestDoubleToBuffer(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, createTestPNG(t, 30, 20))
	p.Resize(15, 0)

	d1, i1, err := p.ToBuffer(ctx)
	require.NoError(t, err)
	d2, i2, err := p.ToBuffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, i1.Width, i2.Width)
	assert.Equal(t, i1.Height, i2.Height)
	assert.Equal(t, 10, i1.Height)

	for _, d := range [][]byte{d1, d2} {
		cfg, err := png.DecodeConfig(bytes.NewReader(d))
		require.NoError(t, err)
		assert.Equal(t, 15, cfg.Width)
	}
}

func TestPixelCeiling(t *testing.T) {
	ctx := context.Background()
	data := createTestPNG(t, 20, 10)

	_, _, err := newTestPipeline(t, data, WithLimitInputPixels(200)).ToBuffer(ctx)
	assert.NoError(t, err)

	_, _, err = newTestPipeline(t, data, WithLimitInputPixels(199)).ToBuffer(ctx)
	assert.True(t, errors.Is(err, imgerr.ErrPixelLimit), "got %v", err)
	assert.True(t, errors.Is(err, imgerr.ErrInput))

	strict := WithGovernor(newTestGovernor(t, governor.WithPixelLimit(100)))
	_, _, err = newTestPipeline(t, data, strict).ToBuffer(ctx)
	assert.True(t, errors.Is(err, imgerr.ErrPixelLimit), "governor default applies")

	_, _, err = newTestPipeline(t, data, strict, WithLimitInputPixels(0)).ToBuffer(ctx)
	assert.NoError(t, err, "zero disables the check")
}

func TestPixelCeilingRawInput(t *testing.T) {
	ctx := context.Background()
	raw := WithRaw(model.RawInput{Width: 20, Height: 10, Channels: 3})
	pixels := make([]byte, 20*10*3)

	_, info, err := newTestPipeline(t, pixels, raw, WithLimitInputPixels(200)).ToFormat("png").ToBuffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, info.Width)

	_, _, err = newTestPipeline(t, pixels, raw, WithLimitInputPixels(199)).ToFormat("png").ToBuffer(ctx)
	assert.True(t, errors.Is(err, imgerr.ErrPixelLimit), "got %v", err)
}

func TestSameFileRejected(t *testing.T) {
	ctx := context.Background()
	abs := createTestJPEGFile(t, 8, 8)
	dir := filepath.Dir(abs)
	t.Chdir(dir)

	_, err := newTestPipeline(t, abs).ToFile(ctx, "input.jpg")
	assert.True(t, errors.Is(err, imgerr.ErrSameFile), "got %v", err)

	_, err = newTestPipeline(t, "input.jpg").ToFile(ctx, abs)
	assert.True(t, errors.Is(err, imgerr.ErrSameFile), "got %v", err)
}

func TestEmptyOutputPath(t *testing.T) {
	_, err := newTestPipeline(t, createTestPNG(t, 4, 4)).ToFile(context.Background(), "")
	assert.True(t, errors.Is(err, imgerr.ErrEmptyOutputPath))
}

func TestMissingInputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.png")
	_, _, err := newTestPipeline(t, path).ToBuffer(context.Background())
	assert.True(t, errors.Is(err, imgerr.ErrMissingFile), "got %v", err)
}

func TestTimeout(t *testing.T) {
	gov := newTestGovernor(t)
	fake := &fakeEngine{process: func(ctx context.Context, _ *model.Snapshot) (*model.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p := newTestPipeline(t, createTestPNG(t, 4, 4), WithEngine(fake), WithGovernor(gov))

	_, _, err := p.Timeout(1).ToBuffer(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, imgerr.ErrTimeout), "got %v", err)
	assert.False(t, errors.Is(err, imgerr.ErrEngine))
	assert.Zero(t, gov.Counters().Total())
}

func TestCallerCancellation(t *testing.T) {
	fake := &fakeEngine{}
	p := newTestPipeline(t, createTestPNG(t, 4, 4), WithEngine(fake))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.ToBuffer(ctx)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Zero(t, fake.calls.Load())
}

func TestEngineErrorAnchored(t *testing.T) {
	fake := &fakeEngine{process: func(context.Context, *model.Snapshot) (*model.Result, error) {
		return nil, fmt.Errorf("vips_resize: out of memory")
	}}
	p := newTestPipeline(t, createTestPNG(t, 4, 4), WithEngine(fake))

	_, _, err := p.ToBuffer(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, imgerr.ErrEngine))
	assert.Equal(t, "vips_resize: out of memory", err.Error())
	assert.Contains(t, fmt.Sprintf("%+v", err), "TestEngineErrorAnchored")
}

func TestQueueParity(t *testing.T) {
	const n = 12
	gov := newTestGovernor(t, governor.WithConcurrency(3))
	var ups, downs, negative atomic.Int32
	cancel := gov.Subscribe(func(c governor.Change) {
		if c.Delta > 0 {
			ups.Add(1)
		} else {
			downs.Add(1)
		}
		if c.Total() < 0 {
			negative.Add(1)
		}
	})
	defer cancel()

	origin := newTestPipeline(t, createTestPNG(t, 16, 16), WithGovernor(gov), WithEngine(&fakeEngine{}))
	var g errgroup.Group
	for i := 0; i < n; i++ {
		clone := origin.Clone().Resize(8, 8)
		g.Go(func() error {
			_, _, err := clone.ToBuffer(context.Background())
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(n), ups.Load())
	assert.Equal(t, int32(n), downs.Load())
	assert.Zero(t, negative.Load())
	assert.Zero(t, gov.Counters().Total())
}

func TestStreamInput(t *testing.T) {
	p := newTestPipeline(t, nil)
	clone := p.Clone().Resize(5, 5)
	results := p.ToBufferAsync(context.Background())
	cloned := clone.ToBufferAsync(context.Background())

	_, err := clone.Write([]byte("x"))
	assert.True(t, errors.Is(err, imgerr.ErrConfiguration), "clones cannot write")

	_, err = p.ReadFrom(bytes.NewReader(createTestPNG(t, 10, 10)))
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "second close is a no-op")

	res := <-results
	require.NoError(t, res.Err)
	assert.Equal(t, 10, res.Info.Width)
	assert.Equal(t, imgutil.PNG, res.Info.Format)

	res = <-cloned
	require.NoError(t, res.Err)
	assert.Equal(t, 5, res.Info.Width)

	_, ok := <-results
	assert.False(t, ok, "channel is closed after one result")
}

func TestEmptyStream(t *testing.T) {
	p := newTestPipeline(t, nil)
	require.NoError(t, p.Close())
	_, _, err := p.ToBuffer(context.Background())
	assert.True(t, errors.Is(err, imgerr.ErrEmptyInput))
}

func TestWriteWithoutStream(t *testing.T) {
	p := newTestPipeline(t, createTestPNG(t, 4, 4))
	_, err := p.Write([]byte{1})
	assert.Error(t, err)
}

func TestOutputStream(t *testing.T) {
	p := newTestPipeline(t, nil)
	s := p.Stream(context.Background())
	var seen []State
	s.OnState(func(st State) { seen = append(seen, st) })
	var infos int
	s.OnInfo(func(model.Info) { infos++ })

	_, err := p.Write(createTestPNG(t, 12, 6))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	var out bytes.Buffer
	_, err = out.ReadFrom(s)
	require.NoError(t, err)
	<-s.Done()

	cfg, err := png.DecodeConfig(&out)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Width)
	info, ok := s.Info()
	require.True(t, ok)
	assert.Equal(t, 6, info.Height)
	assert.Equal(t, 1, infos)
	assert.Equal(t, Settled, s.State())
	assert.NoError(t, s.Err())
	assert.Contains(t, seen, Dispatched)
	require.NoError(t, s.Close())
}

func TestOutputStreamCloseBeforeInput(t *testing.T) {
	fake := &fakeEngine{}
	p := newTestPipeline(t, nil, WithEngine(fake))
	s := p.Stream(context.Background())

	_, err := p.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is a no-op")
	<-s.Done()

	assert.Zero(t, fake.calls.Load(), "engine is never invoked")
	assert.Equal(t, Settled, s.State())
	assert.True(t, errors.Is(s.Err(), context.Canceled))

	n, err := p.Write([]byte("more"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	require.NoError(t, p.Close())
	_, _, err = p.ToBuffer(context.Background())
	assert.True(t, errors.Is(err, imgerr.ErrEmptyInput), "buffered input was released")
}

func TestOutputStreamCloseWhileQueued(t *testing.T) {
	gov := newTestGovernor(t, governor.WithConcurrency(1))
	release := make(chan struct{})
	started := make(chan struct{})
	blocker := &fakeEngine{process: func(context.Context, *model.Snapshot) (*model.Result, error) {
		close(started)
		<-release
		return &model.Result{Data: []byte("ok")}, nil
	}}
	busy := newTestPipeline(t, createTestPNG(t, 4, 4), WithGovernor(gov), WithEngine(blocker)).ToBufferAsync(context.Background())
	<-started

	fake := &fakeEngine{}
	p := newTestPipeline(t, createTestPNG(t, 4, 4), WithGovernor(gov), WithEngine(fake))
	s := p.Stream(context.Background())
	require.Eventually(t, func() bool { return gov.Counters().Queue == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("closed stream is still waiting for a slot")
	}
	assert.True(t, errors.Is(s.Err(), context.Canceled), "got %v", s.Err())
	assert.Zero(t, fake.calls.Load())
	assert.Equal(t, governor.Counters{Process: 1}, gov.Counters())

	close(release)
	require.NoError(t, (<-busy).Err)
	assert.Equal(t, int32(1), blocker.calls.Load())
	assert.Zero(t, gov.Counters().Total())
}

func TestOutputStreamCloseBehindOwnRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	fake := &fakeEngine{process: func(context.Context, *model.Snapshot) (*model.Result, error) {
		once.Do(func() { close(started) })
		<-release
		return &model.Result{Data: []byte("ok")}, nil
	}}
	p := newTestPipeline(t, createTestPNG(t, 4, 4), WithEngine(fake))
	busy := p.ToBufferAsync(context.Background())
	<-started

	s := p.Stream(context.Background())
	require.NoError(t, s.Close())
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("closed stream is still waiting for the pipeline")
	}
	assert.True(t, errors.Is(s.Err(), context.Canceled), "got %v", s.Err())

	close(release)
	require.NoError(t, (<-busy).Err)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestStickyErrorAfterTerminalCall(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeEngine{process: func(_ context.Context, snap *model.Snapshot) (*model.Result, error) {
		<-release
		return &model.Result{Data: []byte("ok"), Info: model.Info{Format: snap.Output.Format}}, nil
	}}
	p := newTestPipeline(t, createTestPNG(t, 8, 8), WithEngine(fake))

	results := p.ToBufferAsync(context.Background())
	p.Resize(-1, 10)
	require.Error(t, p.Err())
	close(release)

	res := <-results
	assert.NoError(t, res.Err, "the run uses the state recorded when it was started")
	_, _, err := p.ToBuffer(context.Background())
	assert.Equal(t, p.Err(), err)
}

func TestMetadataIgnoresOperations(t *testing.T) {
	p := newTestPipeline(t, createTestPNG(t, 24, 12))
	md, err := p.Resize(4, 4).Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, imgutil.PNG, md.Format)
	assert.Equal(t, 24, md.Width)
	assert.Equal(t, 12, md.Height)

	st, err := p.Stats(context.Background())
	require.NoError(t, err)
	assert.True(t, st.IsOpaque)
	assert.Len(t, st.Channels, 3)
}

func TestCreatePipeline(t *testing.T) {
	p, err := Create(model.CreateInput{Width: 6, Height: 4, Background: "#00ff00"},
		WithGovernor(newTestGovernor(t)),
		WithEngine(engine.New(engine.WithLogger(log.Discard()))),
		WithLogger(log.Discard()))
	require.NoError(t, err)

	_, info, err := p.ToBuffer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, imgutil.PNG, info.Format)
	assert.Equal(t, 4, info.Channels)

	_, err = Create(model.CreateInput{Width: 0, Height: 4})
	assert.True(t, errors.Is(err, imgerr.ErrConfiguration))
}
