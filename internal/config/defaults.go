package config

import "os"

const (
	defaultConfigPath       = "~/.config/discburn/config.toml"
	defaultLogDir           = "~/.local/share/discburn/logs"
	defaultStateDir         = "~/.local/state/discburn"
	defaultDevice           = "/dev/sr0"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 14
	defaultChecksum         = "none"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TmpDir:   defaultTmpDir(),
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Drive: Drive{
			Device: defaultDevice,
			Eject:  true,
		},
		Burn: Burn{
			CheckSize: true,
			Checksum:  defaultChecksum,
		},
		Tools: defaultTools(),
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultTools() Tools {
	return Tools{
		Xorriso:        "xorriso",
		Wodim:          "wodim",
		Growisofs:      "growisofs",
		DVDRWFormat:    "dvd+rw-format",
		DVDRWMediaInfo: "dvd+rw-mediainfo",
		Eject:          "eject",
		Lsblk:          "lsblk",
		Umount:         "umount",
	}
}

// defaultTmpDir honours TMPDIR through os.TempDir.
func defaultTmpDir() string {
	return os.TempDir()
}
