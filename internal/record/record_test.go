package record_test

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/formpilot/internal/record"
)

var white = color.RGBA{255, 255, 255, 255}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func TestHighlight(t *testing.T) {
	src := solid(100, 60, white)
	out := record.Highlight(src, []record.Box{
		{Rect: image.Rect(10, 10, 40, 30), Filled: true},
		{Rect: image.Rect(50, 10, 90, 30)},
		{Rect: image.Rect(90, 50, 140, 90), Filled: true},
	})

	tests := []struct {
		name string
		x, y int
		want color.RGBA
	}{
		{"filled corner", 10, 10, record.FilledColor},
		{"filled outer stroke", 8, 8, record.FilledColor},
		{"filled far edge", 39, 29, record.FilledColor},
		{"filled interior", 25, 20, white},
		{"skipped corner", 50, 10, record.SkippedColor},
		{"skipped interior", 70, 20, white},
		{"clipped box", 90, 50, record.FilledColor},
		{"background", 5, 55, white},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, color.RGBAModel.Convert(out.At(tt.x, tt.y)))
		})
	}

	assert.Equal(t, white, src.RGBAAt(10, 10), "source frame is not modified")
}

func TestEncode(t *testing.T) {
	before := solid(200, 100, white)
	after := record.Highlight(before, []record.Box{{Rect: image.Rect(20, 20, 120, 40), Filled: true}})

	var buf bytes.Buffer
	require.NoError(t, record.Encode(&buf, []image.Image{before, after}, record.Options{
		Delay:    500 * time.Millisecond,
		MaxWidth: 100,
	}))

	g, err := gif.DecodeAll(&buf)
	require.NoError(t, err)
	require.Len(t, g.Image, 2)
	assert.Equal(t, 100, g.Image[0].Bounds().Dx())
	assert.Equal(t, 50, g.Image[0].Bounds().Dy())
	assert.Equal(t, []int{50, 50}, g.Delay)
	assert.Zero(t, g.LoopCount)
}

func TestEncode_KeepsSmallFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, record.Encode(&buf, []image.Image{solid(64, 32, white)}, record.Options{}))

	g, err := gif.DecodeAll(&buf)
	require.NoError(t, err)
	assert.Equal(t, 64, g.Image[0].Bounds().Dx())
	assert.Equal(t, []int{150}, g.Delay)
}

func TestEncode_NoFrames(t *testing.T) {
	assert.ErrorIs(t, record.Encode(&bytes.Buffer{}, nil, record.Options{}), record.ErrNoFrames)
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fill.gif")
	size, err := record.Save(path, []image.Image{solid(40, 40, white)}, record.Options{})
	require.NoError(t, err)
	assert.Positive(t, size)
}
