// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "leadboard")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/leadboard.log")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "leadboard.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "leadboard")
	viper.SetDefault("output.mysql.database", "leadboard")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("cache.ttl", 600*time.Second)
	viper.SetDefault("cache.cleanupinterval", 10*time.Minute)

	viper.SetDefault("realtime.buffersize", 10000)
	viper.SetDefault("realtime.workers", 4)

	viper.SetDefault("jobs.maxretries", 3)
	viper.SetDefault("jobs.initialdelay", 5*time.Second)
	viper.SetDefault("jobs.maxdelay", 5*time.Minute)
	viper.SetDefault("jobs.multiplier", 2.0)
	viper.SetDefault("jobs.maxjobs", 1000)

	viper.SetDefault("geocoder.baseurl", "https://geocode.maps.co/search")
	viper.SetDefault("geocoder.timeout", 10*time.Second)

	viper.SetDefault("mail.sendername", "Leadboard")
	viper.SetDefault("mail.from", "no-reply@localhost")

	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.port", "8080")
}
