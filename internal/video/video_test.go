package video

import (
	"context"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/colorbook/internal/errors"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func paneCenter(i int) image.Point {
	r := paneRect(i, 3)
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
}

func TestComposeFrame_LayoutAndScaling(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	green := color.RGBA{0, 255, 0, 255}
	blue := color.RGBA{0, 0, 255, 255}

	frame := ComposeFrame(solid(40, 40, red), solid(80, 60, green), solid(400, 400, blue))
	require.Equal(t, image.Rect(0, 0, FrameWidth, FrameHeight), frame.Bounds())

	require.Equal(t, red, frame.RGBAAt(paneCenter(0).X, paneCenter(0).Y))
	require.Equal(t, green, frame.RGBAAt(paneCenter(1).X, paneCenter(1).Y))
	require.Equal(t, blue, frame.RGBAAt(paneCenter(2).X, paneCenter(2).Y))

	// Borders are drawn around each pane.
	r := paneRect(1, 3)
	require.Equal(t, borderColor, frame.RGBAAt(r.Min.X, r.Min.Y+50))
	require.Equal(t, backgroundColor, frame.RGBAAt(2, 2))
}

func TestComposeFrame_PreservesAspectRatio(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	// A wide image leaves the top and bottom of its pane empty.
	frame := ComposeFrame(solid(400, 100, red), nil, nil)

	content := paneRect(0, 3).Inset(paneBorder + panePadding)
	c := paneCenter(0)
	require.Equal(t, red, frame.RGBAAt(c.X, c.Y))
	require.Equal(t, paneColor, frame.RGBAAt(c.X, content.Min.Y+5))
	require.Equal(t, paneColor, frame.RGBAAt(c.X, content.Max.Y-5))
}

func TestComposeFrame_PlaceholderForMissingImage(t *testing.T) {
	frame := ComposeFrame(nil, nil, nil)

	for i := 0; i < 3; i++ {
		content := paneRect(i, 3).Inset(paneBorder + panePadding)
		labelled := false
		for y := content.Min.Y; y < content.Max.Y && !labelled; y++ {
			for x := content.Min.X; x < content.Max.X; x++ {
				if frame.RGBAAt(x, y) != paneColor {
					labelled = true
					break
				}
			}
		}
		require.True(t, labelled, "pane %d should carry a placeholder label", i)
	}
}

func TestFitRect(t *testing.T) {
	box := image.Rect(0, 0, 100, 100)
	require.Equal(t, image.Rect(0, 25, 100, 75), fitRect(image.Pt(200, 100), box))
	require.Equal(t, image.Rect(25, 0, 75, 100), fitRect(image.Pt(50, 100), box))
	require.Equal(t, image.Rect(0, 0, 100, 100), fitRect(image.Pt(10, 10), box))
	require.True(t, fitRect(image.Pt(0, 10), box).Empty())
}

func TestBuildArgs_MixesAmbientUnderNarration(t *testing.T) {
	args := buildArgs("frame.png", EncodeInput{
		NarrationPath: "narration.mp3",
		AmbientPath:   "ambient.mp3",
		DurationSec:   42.5,
		OutPath:       "out.mp4",
	}, 0.3)
	joined := strings.Join(args, " ")

	require.Contains(t, joined, "-loop 1")
	require.Contains(t, joined, "-t 42.50")
	require.Contains(t, joined, "-i narration.mp3 -i ambient.mp3")
	require.Contains(t, joined, "[1:a]volume=1.0[narr]")
	require.Contains(t, joined, "[2:a]volume=0.30[amb]")
	require.Contains(t, joined, "amix=inputs=2:duration=shortest")
	require.Equal(t, "out.mp4", args[len(args)-1])
}

func TestBuildArgs_NarrationOnly(t *testing.T) {
	args := buildArgs("frame.png", EncodeInput{
		NarrationPath: "narration.mp3",
		DurationSec:   10,
		OutPath:       "out.mp4",
	}, 0.3)
	joined := strings.Join(args, " ")

	require.NotContains(t, joined, "amix")
	require.Contains(t, joined, "[1:a]volume=1.0[aout]")
}

func TestEncode_Preconditions(t *testing.T) {
	enc := FFmpegEncoder{Path: "/nonexistent/ffmpeg"}
	ctx := context.Background()
	frame := solid(2, 2, color.White)

	tests := []struct {
		name string
		in   EncodeInput
		code errors.ErrorCode
	}{
		{"no frame", EncodeInput{NarrationPath: "n.mp3", DurationSec: 1, OutPath: "o.mp4"}, errors.ErrInvalidRequest},
		{"no narration", EncodeInput{Frame: frame, DurationSec: 1, OutPath: "o.mp4"}, errors.ErrInvalidRequest},
		{"no duration", EncodeInput{Frame: frame, NarrationPath: "n.mp3", OutPath: "o.mp4"}, errors.ErrInvalidRequest},
		{"no output", EncodeInput{Frame: frame, NarrationPath: "n.mp3", DurationSec: 1}, errors.ErrInvalidRequest},
		{"missing ffmpeg", EncodeInput{Frame: frame, NarrationPath: "n.mp3", DurationSec: 1, OutPath: "o.mp4"}, errors.ErrResourceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := enc.Encode(ctx, tt.in)
			require.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestEstimateDuration(t *testing.T) {
	words := strings.Repeat("word ", WordsPerMinute)
	require.InDelta(t, 60.0, EstimateDuration(words), 0.001)
	require.Equal(t, 1.0, EstimateDuration(""))
	require.Equal(t, 1.0, EstimateDuration("hi"))
}

func TestLastLine(t *testing.T) {
	require.Equal(t, "boom", lastLine("a\nb\nboom\n"))
	require.Equal(t, "single", lastLine("single"))
}
