package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dRef/lib/common"
	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/ValentinKolb/dRef/lib/serial"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

var Logger = logger.GetLogger(common.LoggerCmd)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupConfigFlags adds the flags of common.Config to a command
func SetupConfigFlags(cmd *cobra.Command) {
	def := common.DefaultConfig()

	key := "cycle"
	cmd.PersistentFlags().Duration(key, def.Cycle, WrapString("Time between two background sweeps of the reference queues"))

	key = "background"
	cmd.PersistentFlags().Bool(key, def.Background, WrapString("Sweep the reference queues on a background goroutine. Without it dead cells are only removed on access"))

	key = "soft-millis-per-mib"
	cmd.PersistentFlags().Int64(key, def.SoftMillisPerMiB, WrapString("How long (in ms) a soft reference may stay idle per MiB of free heap before it becomes weak"))

	key = "log-level"
	cmd.PersistentFlags().String(key, def.LogLevel, WrapString("The level at which logs will be output (debug, info, warn, error)"))

	key = "codec"
	cmd.PersistentFlags().String(key, def.Codec, WrapString("The serial codec to use (json, gob, binary)"))
}

// InitConfig loads .env files and initializes viper to read DREF_ environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dref")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.InheritedFlags())
}

// GetConfig reads the module configuration from viper and applies the log level
func GetConfig() (common.Config, error) {
	conf := common.Config{
		Cycle:            viper.GetDuration("cycle"),
		Background:       viper.GetBool("background"),
		SoftMillisPerMiB: viper.GetInt64("soft-millis-per-mib"),
		LogLevel:         viper.GetString("log-level"),
		Codec:            viper.GetString("codec"),
	}
	if err := conf.Validate(); err != nil {
		return conf, err
	}
	if err := common.InitLoggers(conf.LogLevel); err != nil {
		return conf, err
	}
	Logger.Debugf("configuration: %s", conf.String())
	return conf, nil
}

// GetCodec creates the serial codec selected by configuration
func GetCodec() (serial.Codec, error) {
	c, err := serial.CodecByName(viper.GetString("codec"))
	if err != nil {
		return nil, fmt.Errorf("invalid codec: %w", err)
	}
	return c, nil
}

// GetPolicy parses the reference policy stored under key
func GetPolicy(key string) (ref.Policy, error) {
	p, err := ref.ParsePolicy(viper.GetString(key))
	if err != nil {
		return p, fmt.Errorf("invalid %s: %w", key, err)
	}
	return p, nil
}
