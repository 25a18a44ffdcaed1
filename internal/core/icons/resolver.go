package icons

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	mdiPrefix        = "mdi:"
	maxIconBytes     = 1 << 20
	failureRetention = time.Hour
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Config controls where icons are published and, optionally, fetched from
type Config struct {
	PublicURL string
	SourceURL string
	Directory string
	Tint      string
}

// Resolver maps Home Assistant icon references to public PNG URLs.
// With a directory configured, a URL is only handed out once the PNG exists
// there; missing files are fetched from SourceURL, checked, tinted and saved.
type Resolver struct {
	cfg      Config
	tint     *color.NRGBA
	client   *http.Client
	failures *cache.Cache
	mu       sync.Mutex
	logger   *logrus.Logger
}

// NewResolver creates a new icon resolver
func NewResolver(cfg Config, logger *logrus.Logger) (*Resolver, error) {
	r := &Resolver{
		cfg:      cfg,
		client:   &http.Client{Timeout: 15 * time.Second},
		failures: cache.New(failureRetention, 10*time.Minute),
		logger:   logger,
	}

	if cfg.Tint != "" {
		tint, err := parseHexColor(cfg.Tint)
		if err != nil {
			return nil, fmt.Errorf("invalid icon tint: %w", err)
		}
		r.tint = &tint
	}

	if cfg.Directory != "" {
		if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
			return nil, fmt.Errorf("failed to create icon directory: %w", err)
		}
	}

	return r, nil
}

// URL returns the public URL of an icon, or "" when it cannot be provided
func (r *Resolver) URL(ctx context.Context, icon string) string {
	slug, ok := Slug(icon)
	if !ok || r.cfg.PublicURL == "" {
		return ""
	}

	public := r.cfg.PublicURL + slug + ".png"
	if r.cfg.Directory == "" {
		return public
	}

	if err := r.ensure(ctx, slug); err != nil {
		r.logger.WithError(err).WithField("icon", icon).Debug("Icon not available")
		return ""
	}
	return public
}

// Slug extracts the file name part of an "mdi:" icon reference
func Slug(icon string) (string, bool) {
	if !strings.HasPrefix(icon, mdiPrefix) {
		return "", false
	}
	slug := strings.TrimPrefix(icon, mdiPrefix)
	if !slugPattern.MatchString(slug) {
		return "", false
	}
	return slug, true
}

func (r *Resolver) ensure(ctx context.Context, slug string) error {
	path := filepath.Join(r.cfg.Directory, slug+".png")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if r.cfg.SourceURL == "" {
		return fmt.Errorf("%s not found and no source configured", path)
	}
	if cached, found := r.failures.Get(slug); found {
		return cached.(error)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := r.fetch(ctx, slug, path); err != nil {
		r.failures.SetDefault(slug, err)
		return err
	}

	r.logger.WithField("icon", slug).Info("Cached icon")
	return nil
}

func (r *Resolver) fetch(ctx context.Context, slug, path string) error {
	source := r.cfg.SourceURL + slug + ".png"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return fmt.Errorf("failed to create icon request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %d", source, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIconBytes))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", source, err)
	}

	kind, err := filetype.Match(body)
	if err != nil || kind == filetype.Unknown || kind.MIME.Type != "image" {
		return fmt.Errorf("%s is not an image", source)
	}

	img, err := imaging.Decode(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", source, err)
	}

	if r.tint != nil {
		tint := *r.tint
		img = imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{R: tint.R, G: tint.G, B: tint.B, A: c.A}
		})
	}

	tmp, err := os.CreateTemp(r.cfg.Directory, slug+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create icon file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := imaging.Encode(tmp, img, imaging.PNG); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode icon: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write icon: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set icon permissions: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func parseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.NRGBA{}, errors.New("expected a #rrggbb color")
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("expected a #rrggbb color: %w", err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
