// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ayusman/handlocator/internal/capture"
	"github.com/ayusman/handlocator/internal/locator"
)

type Config struct {
	HTTPAddr  string
	StaticDir string
	Tray      bool
	Capture   capture.Config
	Locator   locator.Config
}

// Load reads the configuration from environment variables, falling back to
// defaults for unset or malformed values. Skin bounds are the exception: a
// malformed SKIN_LOWER or SKIN_UPPER is reported as an error.
func Load() (*Config, error) {
	lower, err := getEnvHSV("SKIN_LOWER", locator.DefaultSkinLower)
	if err != nil {
		return nil, err
	}
	upper, err := getEnvHSV("SKIN_UPPER", locator.DefaultSkinUpper)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		StaticDir: getEnv("STATIC_DIR", ""),
		Tray:      getEnvBool("TRAY", false),
		Capture: capture.Config{
			Source: getEnv("CAMERA_SOURCE", "0"),
			Width:  getEnvInt("FRAME_WIDTH", capture.DefaultWidth),
			Height: getEnvInt("FRAME_HEIGHT", capture.DefaultHeight),
			FPS:    getEnvInt("CAMERA_FPS", capture.DefaultFPS),
		},
		Locator: locator.Config{
			Denoise:      getEnvBool("DENOISE", false),
			Connectivity: getEnvInt("CONNECTIVITY", 8),
			SkinLower:    lower,
			SkinUpper:    upper,
			Order:        locator.OrderBGR,
			ReuseBuffers: getEnvBool("REUSE_BUFFERS", true),
		},
	}

	if err := cfg.Locator.Validate(); err != nil {
		return nil, fmt.Errorf("invalid locator config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

// getEnvHSV parses "h,s,v".
func getEnvHSV(key string, def locator.HSV) (locator.HSV, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	parts := strings.Split(v, ",")
	if len(parts) != 3 {
		return def, fmt.Errorf("%s: want h,s,v, got %q", key, v)
	}

	var vals [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return def, fmt.Errorf("%s: %w", key, err)
		}
		vals[i] = f
	}
	return locator.HSV{H: vals[0], S: vals[1], V: vals[2]}, nil
}
