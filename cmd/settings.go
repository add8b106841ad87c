package cmd

import (
	"github.com/pkg/errors"

	"github.com/babelcloud/screenrec/config"
	"github.com/babelcloud/screenrec/internal/media"
	"github.com/babelcloud/screenrec/internal/merge"
	"github.com/babelcloud/screenrec/internal/workspace"
	"github.com/babelcloud/screenrec/internal/writer"
)

func videoSettingsFromConfig() (writer.VideoSettings, error) {
	s := writer.VideoSettings{
		Codec:       writer.VideoCodec(config.GetVideoCodec()),
		ScalingMode: writer.ScalingMode(config.GetVideoScaling()),
		Width:       config.GetVideoWidth(),
		Height:      config.GetVideoHeight(),
	}

	t, ok := media.RotationTransform(config.GetVideoRotation(), s.Width, s.Height)
	if !ok {
		return s, errors.Errorf("unsupported video rotation %d, must be a multiple of 90", config.GetVideoRotation())
	}
	s.Transform = t

	return s, s.Validate()
}

func audioSettingsFromConfig() (writer.AudioSettings, error) {
	s := writer.AudioSettings{
		Format:        writer.AudioFormat(config.GetAudioFormat()),
		SampleRate:    config.GetAudioSampleRate(),
		ChannelCount:  config.GetAudioChannels(),
		ChannelLayout: writer.ChannelLayout(config.GetAudioLayout()),
	}
	return s, s.Validate()
}

func exportSettingsFromConfig() (merge.ExportSettings, error) {
	s := merge.ExportSettings{
		Preset:                merge.Preset(config.GetExportPreset()),
		OptimizeForNetworkUse: config.GetExportOptimizeForNetwork(),
		FileType:              merge.FileType(config.GetExportFileType()),
	}
	return s, s.Validate()
}

func writerOptionsFromConfig() []writer.FileWriterOption {
	return []writer.FileWriterOption{
		writer.WithQueueSize(config.GetWriterQueueSize()),
		writer.WithFlushInterval(config.GetWriterFlushInterval()),
		writer.WithMaxBatch(config.GetWriterMaxBatch()),
	}
}

func workspaceFromConfig() (*workspace.Manager, error) {
	return workspace.New(config.GetWorkspaceDir(), workspace.WithFileNames(
		config.GetWorkspaceVideoFile(),
		config.GetWorkspaceAudioFile(),
		config.GetWorkspaceOutputFile(),
	))
}
