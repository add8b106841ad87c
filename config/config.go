package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var v *viper.Viper

func init() {
	v = newViper()

	// Look for config in the following paths
	configPaths := []string{
		".",
		"$HOME/.screenrec",
		"/etc/screenrec",
	}

	for _, path := range configPaths {
		expandedPath := os.ExpandEnv(path)
		v.AddConfigPath(expandedPath)
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
	}
}

// newViper returns an instance with defaults and environment bindings but
// no config file.
func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("video.codec", "h264")
	v.SetDefault("video.scaling", "aspect-fill")
	v.SetDefault("video.width", 1170)
	v.SetDefault("video.height", 2532)
	v.SetDefault("video.rotation", 0)

	v.SetDefault("audio.format", "aac-he")
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.channels", 6)
	v.SetDefault("audio.layout", "mpeg-5.1-d")

	v.SetDefault("export.preset", "highest")
	v.SetDefault("export.optimize_for_network", true)
	v.SetDefault("export.file_type", "mp4")

	v.SetDefault("workspace.dir", filepath.Join(xdg.DataHome, "screenrec"))
	v.SetDefault("workspace.video_file", "screenwriter-video.mp4")
	v.SetDefault("workspace.audio_file", "screenwriter-audio.mp4")
	v.SetDefault("workspace.output_file", "screenwriter-merged.mp4")

	v.SetDefault("writer.queue_size", 256)
	v.SetDefault("writer.flush_interval", 150*time.Millisecond)
	v.SetDefault("writer.max_batch", 64)

	v.SetDefault("progress.addr", "")

	// Environment variables, e.g. SCREENREC_WORKSPACE_DIR
	v.SetEnvPrefix("SCREENREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("workspace.dir", "SCREENREC_WORKSPACE_DIR", "SCREENREC_HOME")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	return v
}

// LoadFile reads an explicit config file, replacing the one found on the
// search paths.
func LoadFile(path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	return nil
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	return v.ConfigFileUsed()
}

// Set overrides a key for the lifetime of the process.
func Set(key string, value any) {
	v.Set(key, value)
}

func GetVideoCodec() string {
	return v.GetString("video.codec")
}

func GetVideoScaling() string {
	return v.GetString("video.scaling")
}

func GetVideoWidth() int {
	return v.GetInt("video.width")
}

func GetVideoHeight() int {
	return v.GetInt("video.height")
}

// GetVideoRotation returns the clockwise display rotation in degrees.
func GetVideoRotation() int {
	return v.GetInt("video.rotation")
}

func GetAudioFormat() string {
	return v.GetString("audio.format")
}

func GetAudioSampleRate() int {
	return v.GetInt("audio.sample_rate")
}

func GetAudioChannels() int {
	return v.GetInt("audio.channels")
}

func GetAudioLayout() string {
	return v.GetString("audio.layout")
}

func GetExportPreset() string {
	return v.GetString("export.preset")
}

func GetExportOptimizeForNetwork() bool {
	return v.GetBool("export.optimize_for_network")
}

func GetExportFileType() string {
	return v.GetString("export.file_type")
}

// GetWorkspaceDir returns the directory holding intermediate and merged files
func GetWorkspaceDir() string {
	return v.GetString("workspace.dir")
}

func GetWorkspaceVideoFile() string {
	return v.GetString("workspace.video_file")
}

func GetWorkspaceAudioFile() string {
	return v.GetString("workspace.audio_file")
}

func GetWorkspaceOutputFile() string {
	return v.GetString("workspace.output_file")
}

func GetWriterQueueSize() int {
	return v.GetInt("writer.queue_size")
}

func GetWriterFlushInterval() time.Duration {
	return v.GetDuration("writer.flush_interval")
}

func GetWriterMaxBatch() int {
	return v.GetInt("writer.max_batch")
}

// GetProgressAddr returns the listen address of the progress websocket, empty
// when disabled.
func GetProgressAddr() string {
	return v.GetString("progress.addr")
}
