package config

const (
	defaultConfigPath       = "~/.config/apkharvest/config.toml"
	projectConfigName       = "apkharvest.toml"
	defaultOriginDir        = "."
	defaultTempDirName      = "_apk_extracted"
	defaultImageDir         = "output_images"
	defaultBugdroidDir      = "output_bugdroid_images"
	defaultMediaDir         = "output_media"
	defaultPartialHashKiB   = 64
	defaultFullHashLimitMiB = 20
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	maxDefaultWorkers       = 8

	// KeywordScopePath matches bugdroid keywords against the path relative to the scanned root.
	KeywordScopePath = "path"
	// KeywordScopeName matches bugdroid keywords against the base name only.
	KeywordScopeName = "name"

	originEnvVar = "APKHARVEST_ORIGIN"
)

var (
	defaultArchiveExtensions = []string{".apk"}
	defaultImageExtensions   = []string{".png", ".jpg", ".jpeg"}
	defaultMediaExtensions   = []string{
		".ogg", ".mp3", ".wav", ".flac", ".aac", ".m4a",
		".mp4", ".3gp", ".mkv", ".avi", ".webm",
	}
	defaultBugdroidKeywords = []string{"robot", "encroid", "droid"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TempDirName: defaultTempDirName,
			ImageDir:    defaultImageDir,
			BugdroidDir: defaultBugdroidDir,
			MediaDir:    defaultMediaDir,
		},
		Harvest: Harvest{
			UseHardlinks:      true,
			PartialHashKiB:    defaultPartialHashKiB,
			FullHashLimitMiB:  defaultFullHashLimitMiB,
			ParallelScan:      true,
			ArchiveExtensions: append([]string(nil), defaultArchiveExtensions...),
			ImageExtensions:   append([]string(nil), defaultImageExtensions...),
			MediaExtensions:   append([]string(nil), defaultMediaExtensions...),
			BugdroidKeywords:  append([]string(nil), defaultBugdroidKeywords...),
			KeywordScope:      KeywordScopePath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
