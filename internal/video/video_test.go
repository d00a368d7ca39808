package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
)

func TestBuildFFmpegArgs(t *testing.T) {
	args := buildFFmpegArgs("out.mp4", Settings{Width: 640, Height: 360, FPS: 25, Codec: "h264_nvenc", Quality: 23})
	want := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", "640x360",
		"-framerate", "25",
		"-i", "-",
		"-pix_fmt", "yuv420p",
		"-c:v", "h264_nvenc",
		"-cq", "23",
		"out.mp4",
	}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("args =\n%v\nwant\n%v", args, want)
	}
}

func TestBuildFFmpegArgsWithAudio(t *testing.T) {
	args := buildFFmpegArgs("out.mp4", Settings{
		Width: 2, Height: 2, FPS: 30, Quality: 20,
		Audio: []AudioInput{
			{Path: "voice.wav", Start: 1500, Offset: 200, Length: 1000, Volume: 0.5},
			{Path: "music.mp3", Start: 0, Offset: 0, Length: 4000, Volume: 1},
		},
	})
	if !slices.Contains(args, "voice.wav") || !slices.Contains(args, "music.mp3") {
		t.Fatalf("audio inputs missing: %v", args)
	}
	if !slices.Contains(args, "[aout]") || !slices.Contains(args, "libx264") {
		t.Errorf("args = %v, want mapped [aout] and default libx264", args)
	}
	if i := slices.Index(args, "-crf"); i < 0 || args[i+1] != "20" {
		t.Errorf("args = %v, want -crf 20", args)
	}
}

func TestAudioGraph(t *testing.T) {
	got := audioGraph([]AudioInput{{Path: "a.wav", Start: 1500, Offset: 200, Length: 1000, Volume: 0.5}})
	want := "[1:a]atrim=start=0.200:end=1.200,asetpts=PTS-STARTPTS,adelay=1500|1500,volume=0.500[a0];[a0]amix=inputs=1:dropout_transition=0:normalize=0[aout]"
	if got != want {
		t.Errorf("audioGraph =\n%s\nwant\n%s", got, want)
	}
	if audioGraph(nil) != "" {
		t.Error("expected empty graph without audio")
	}
}

func TestQualityArgs(t *testing.T) {
	tests := []struct {
		codec string
		want  []string
	}{
		{"h264_videotoolbox", []string{"-b:v", "7500k"}},
		{"h264_nvenc", []string{"-cq", "75"}},
		{"libx264", []string{"-crf", "75", "-preset", "medium"}},
	}
	for _, tt := range tests {
		if got := qualityArgs(tt.codec, 75); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("qualityArgs(%s) = %v, want %v", tt.codec, got, tt.want)
		}
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		s       Settings
		wantErr bool
	}{
		{Settings{Width: 1280, Height: 720, FPS: 30}, false},
		{Settings{Width: 1281, Height: 720, FPS: 30}, true},
		{Settings{Width: 0, Height: 720, FPS: 30}, true},
		{Settings{Width: 1280, Height: 720, FPS: 0}, true},
	}
	for _, tt := range tests {
		if err := tt.s.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.s, err, tt.wantErr)
		}
	}
}

func TestWriteRawRGBA(t *testing.T) {
	// A sub-image has a non-zero origin and a wider stride.
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Pix[img.PixOffset(2, 2)] = 9
	sub := img.SubImage(image.Rect(2, 2, 4, 4))

	var buf bytes.Buffer
	if err := writeRawRGBA(&buf, sub); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 2*2*4 {
		t.Fatalf("wrote %d bytes, want 16", buf.Len())
	}
	if buf.Bytes()[0] != 9 {
		t.Errorf("first byte = %d, want 9", buf.Bytes()[0])
	}
}

func TestOpenFFmpegMissingBinary(t *testing.T) {
	_, err := OpenFFmpeg(context.Background(), "out.mp4", Settings{Width: 2, Height: 2, FPS: 1, FFmpegPath: filepath.Join(t.TempDir(), "none")})
	if err == nil {
		t.Error("Expected start error for a missing binary")
	}
	if _, err := OpenFFmpeg(context.Background(), "out.mp4", Settings{Width: 3, Height: 2, FPS: 1}); err == nil {
		t.Error("Expected validation error for odd width")
	}
}

func TestPNGSequence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	seq, err := NewPNGSequence(dir)
	if err != nil {
		t.Fatal(err)
	}
	var enc Encoder = seq
	for i := 0; i < 3; i++ {
		if err := enc.WriteFrame(image.NewRGBA(image.Rect(0, 0, 4, 2))); err != nil {
			t.Fatalf("WriteFrame %d: %v", i, err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if seq.Frames() != 3 {
		t.Errorf("Frames = %d, want 3", seq.Frames())
	}

	f, err := os.Open(seq.FramePath(2))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("decoded width = %d, want 4", img.Bounds().Dx())
	}
	if _, err := os.Stat(seq.FramePath(3)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unexpected fourth frame: %v", err)
	}
}
