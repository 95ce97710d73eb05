package pool

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"testing"

	"github.com/ironsheep/photomosaic/internal/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestCache(t *testing.T, data map[string][]byte) *imaging.ImageCache {
	t.Helper()
	resolver := imaging.ResolverFunc(func(id string) ([]byte, error) {
		b, ok := data[id]
		if !ok {
			return nil, &imaging.MissingResourceError{ID: id}
		}
		return b, nil
	})
	cache, err := imaging.NewImageCache(2, resolver)
	require.NoError(t, err)
	return cache
}

func TestNewValidatesEntries(t *testing.T) {
	_, err := New([]SourceEntry{{ID: "", Color: imaging.ColorVector{}}})
	assert.Error(t, err)

	_, err = New([]SourceEntry{{ID: "a", Color: imaging.ColorVector{300, 0, 0}}})
	assert.Error(t, err)

	_, err = New([]SourceEntry{{ID: "a"}, {ID: "a"}})
	assert.Error(t, err)

	p, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Len())
}

func TestPoolKeepsOrderAndCopies(t *testing.T) {
	entries := []SourceEntry{
		{ID: "z", Color: imaging.ColorVector{1, 2, 3}},
		{ID: "a", Color: imaging.ColorVector{4, 5, 6}},
		{ID: "m", Color: imaging.ColorVector{7, 8, 9}},
	}
	p, err := New(entries)
	require.NoError(t, err)

	entries[0].ID = "mutated"
	assert.Equal(t, []string{"z", "a", "m"}, p.IDs())

	got := p.Entries()
	got[1].Color = imaging.ColorVector{}
	c, ok := p.Color("a")
	require.True(t, ok)
	assert.Equal(t, imaging.ColorVector{4, 5, 6}, c)

	_, ok = p.Color("missing")
	assert.False(t, ok)
}

func TestPoolWithout(t *testing.T) {
	p, err := New([]SourceEntry{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	require.NoError(t, err)

	rest := p.Without("b", "nope")
	assert.Equal(t, []string{"a", "c"}, rest.IDs())
	assert.Equal(t, 3, p.Len())
	_, ok := rest.Color("b")
	assert.False(t, ok)
}

func TestBuildAveragesInListOrder(t *testing.T) {
	cache := newTestCache(t, map[string][]byte{
		"black": solidPNG(t, color.Black),
		"red":   solidPNG(t, color.RGBA{255, 0, 0, 255}),
		"white": solidPNG(t, color.White),
	})

	var calls []string
	p, skipped, err := Build(context.Background(), []string{"white", "black", "red"}, cache, nil, func(done, total int, id string, err error) {
		assert.Equal(t, 3, total)
		assert.NoError(t, err)
		calls = append(calls, id)
	})

	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, []string{"white", "black", "red"}, p.IDs())
	assert.Equal(t, []string{"white", "black", "red"}, calls)

	red, _ := p.Color("red")
	assert.Equal(t, imaging.ColorVector{255, 0, 0}, red)
}

func TestBuildSkipsBadSources(t *testing.T) {
	cache := newTestCache(t, map[string][]byte{
		"good":    solidPNG(t, color.White),
		"corrupt": []byte("not a png"),
	})

	p, skipped, err := Build(context.Background(), []string{"missing", "good", "corrupt", "good"}, cache, slog.New(slog.DiscardHandler), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"good"}, p.IDs())
	require.Len(t, skipped, 3)

	var missing *imaging.MissingResourceError
	assert.True(t, errors.As(skipped[0].Err, &missing))
	var decode *imaging.DecodeError
	assert.True(t, errors.As(skipped[1].Err, &decode))
	assert.Equal(t, "good", skipped[2].ID, "duplicate ids are skipped")
}

func TestBuildStopsWhenCancelled(t *testing.T) {
	cache := newTestCache(t, map[string][]byte{
		"a": solidPNG(t, color.White),
		"b": solidPNG(t, color.Black),
	})
	ctx, cancel := context.WithCancel(context.Background())

	p, _, err := Build(ctx, []string{"a", "b"}, cache, nil, func(done, total int, id string, err error) {
		cancel()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, p.IDs())
}
