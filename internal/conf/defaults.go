// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "Beypro-Notify")
	viper.SetDefault("main.logfile", "")

	viper.SetDefault("backend.baseurl", "https://api.beypro.com")
	viper.SetDefault("backend.socketurl", "")
	viper.SetDefault("backend.token", "")
	viper.SetDefault("backend.restaurantid", "")
	viper.SetDefault("backend.reconnectattempts", 10)
	viper.SetDefault("backend.reconnectdelayms", 2000)

	viper.SetDefault("sound.assetsdir", "assets/sounds")
	viper.SetDefault("sound.disabled", false)

	viper.SetDefault("signals.ipcsocket", "")
	viper.SetDefault("signals.ossignals", true)

	viper.SetDefault("output.dbpath", "beypro-notify.db")
	viper.SetDefault("output.listen", "")
}
