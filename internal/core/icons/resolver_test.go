package icons

import (
	"bytes"
	"context"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(4, 4, color.NRGBA{R: 0, G: 0, B: 0, A: 200})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func iconServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	body := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		switch r.URL.Path {
		case "/washing-machine.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(body)
		case "/not-an-image.png":
			w.Write([]byte("<html>nope</html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSlug(t *testing.T) {
	tests := []struct {
		icon string
		slug string
		ok   bool
	}{
		{"mdi:washing-machine", "washing-machine", true},
		{"mdi:door", "door", true},
		{"hass:door", "", false},
		{"mdi:../etc/passwd", "", false},
		{"mdi:", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.icon, func(t *testing.T) {
			slug, ok := Slug(tt.icon)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.slug, slug)
		})
	}
}

func TestResolver_URLWithoutDirectory(t *testing.T) {
	r, err := NewResolver(Config{PublicURL: "https://icons.example/mdi/"}, quietLogger())
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, "https://icons.example/mdi/door.png", r.URL(ctx, "mdi:door"))
	assert.Equal(t, "", r.URL(ctx, "hass:door"))

	r, err = NewResolver(Config{}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "", r.URL(ctx, "mdi:door"))
}

func TestResolver_ExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "door.png"), pngBytes(t), 0644))

	r, err := NewResolver(Config{PublicURL: "https://icons.example/", Directory: dir}, quietLogger())
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, "https://icons.example/door.png", r.URL(ctx, "mdi:door"))
	assert.Equal(t, "", r.URL(ctx, "mdi:window"), "no source to fetch from")
}

func TestResolver_FetchesTintsAndSaves(t *testing.T) {
	var hits int32
	srv := iconServer(t, &hits)
	dir := t.TempDir()

	r, err := NewResolver(Config{
		PublicURL: "https://icons.example/",
		SourceURL: srv.URL + "/",
		Directory: dir,
		Tint:      "#44739e",
	}, quietLogger())
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, "https://icons.example/washing-machine.png", r.URL(ctx, "mdi:washing-machine"))
	assert.Equal(t, "https://icons.example/washing-machine.png", r.URL(ctx, "mdi:washing-machine"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	img, err := imaging.Open(filepath.Join(dir, "washing-machine.png"))
	require.NoError(t, err)
	got := color.NRGBAModel.Convert(img.At(1, 1)).(color.NRGBA)
	assert.Equal(t, color.NRGBA{R: 0x44, G: 0x73, B: 0x9e, A: 200}, got)

	info, err := os.Stat(filepath.Join(dir, "washing-machine.png"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestResolver_FailuresAreRemembered(t *testing.T) {
	var hits int32
	srv := iconServer(t, &hits)
	dir := t.TempDir()

	r, err := NewResolver(Config{PublicURL: "https://icons.example/", SourceURL: srv.URL + "/", Directory: dir}, quietLogger())
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, "", r.URL(ctx, "mdi:missing"))
	assert.Equal(t, "", r.URL(ctx, "mdi:missing"))
	assert.Equal(t, "", r.URL(ctx, "mdi:not-an-image"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	_, err = os.Stat(filepath.Join(dir, "not-an-image.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestNewResolver_BadTint(t *testing.T) {
	_, err := NewResolver(Config{Tint: "blue"}, quietLogger())
	assert.Error(t, err)

	c, err := parseHexColor("#FF8000")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, G: 128, B: 0, A: 255}, c)
}
