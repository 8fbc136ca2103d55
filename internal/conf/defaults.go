// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "Sentinel-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "sentinel.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)

	viper.SetDefault("sync.pushurl", "ws://localhost:8081/ws/state")
	viper.SetDefault("sync.pollurl", "http://localhost:8081/api/v1/state")

	viper.SetDefault("sync.pollinterval", 5*time.Second)
	viper.SetDefault("sync.pollrestoresuccesses", 2)

	viper.SetDefault("sync.coalescewindow", 50*time.Millisecond)

	viper.SetDefault("sync.pushattemptwindow", 15*time.Second)
	viper.SetDefault("sync.failurethreshold", 3)
	viper.SetDefault("sync.probeinterval", 30*time.Second)

	viper.SetDefault("sync.backoffbase", time.Second)
	viper.SetDefault("sync.backoffmax", 30*time.Second)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")
}

// defaultSettings returns a Settings struct populated with the default values,
// used when generating the initial config file.
func defaultSettings() *Settings {
	return &Settings{
		Debug: false,
		Main: MainSettings{
			Name: "Sentinel-Go",
			Log: LogConfig{
				Enabled:  true,
				Path:     "sentinel.log",
				Rotation: RotationDaily,
				MaxSize:  1048576,
			},
		},
		Sync: SyncSettings{
			PushURL:              "ws://localhost:8081/ws/state",
			PollURL:              "http://localhost:8081/api/v1/state",
			PollInterval:         5 * time.Second,
			PollRestoreSuccesses: 2,
			CoalesceWindow:       50 * time.Millisecond,
			PushAttemptWindow:    15 * time.Second,
			FailureThreshold:     3,
			ProbeInterval:        30 * time.Second,
			BackoffBase:          time.Second,
			BackoffMax:           30 * time.Second,
		},
		Telemetry: TelemetrySettings{
			Enabled: false,
			Listen:  "0.0.0.0:8090",
		},
	}
}
