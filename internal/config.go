package internal

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Host string `env:"HOST,default=localhost"`
	Port int    `env:"PORT,default=12345"`

	CredentialsPath string `env:"CREDENTIALS_PATH,required=true" validate:"required"`
	ChatLogPath     string `env:"CHAT_LOG_PATH,required=true" validate:"required"`
	FilesDir        string `env:"FILES_DIR,required=true" validate:"required"`
	BadgerFilepath  string `env:"BADGER_FILEPATH,required=true" validate:"required"`
	BlugeFilepath   string `env:"BLUGE_FILEPATH,required=true" validate:"required"`

	LogLevel        string `env:"LOG_LEVEL,default=INFO"`
	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`

	BufferSize      int           `env:"BUFFER_SIZE,default=256" validate:"gt=0"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s"`
	SinkTimeout     time.Duration `env:"SINK_TIMEOUT,default=5s" validate:"gt=0"`

	// IdleTimeout bounds every line read; an idle peer is torn down as if
	// it had disconnected. TransferTimeout bounds a whole raw-byte body.
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT,default=5m" validate:"gt=0"`
	TransferTimeout time.Duration `env:"TRANSFER_TIMEOUT,default=60s" validate:"gt=0"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`

	MaxFileSize  int64 `env:"MAX_FILE_SIZE,default=33554432" validate:"gt=0"`
	HistoryLimit int   `env:"HISTORY_LIMIT,default=100" validate:"gt=0"`
}

var validate = validator.New()

func (c Config) Validate() error {
	return validate.Struct(c)
}

// CharacterRune converts the CHARACTER_REPLACEMENT setting to a single rune.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
