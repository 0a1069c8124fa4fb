package datasource

import (
	"math"

	"github.com/cohesivestack/valgo"

	"github.com/joshjon/txconn/log"
	"github.com/joshjon/txconn/valgoutil"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config describes the database a DataSource hands out managed connections
// for. It implements config.Configurable.
type Config struct {
	Driver       string `yaml:"driver" env:"TXCONN_DRIVER"`
	URL          string `yaml:"url" env:"TXCONN_URL"`
	SQLiteDir    string `yaml:"sqlite_dir" env:"TXCONN_SQLITE_DIR"`
	SQLiteName   string `yaml:"sqlite_name" env:"TXCONN_SQLITE_NAME"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"TXCONN_MAX_OPEN_CONNS"`
	LogLevel     string `yaml:"log_level" env:"TXCONN_LOG_LEVEL"`

	TLS TLSConfig `yaml:"tls" envPrefix:"TXCONN_TLS_"`
}

// TLSConfig secures postgres connections. It is ignored for sqlite.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled" env:"ENABLED"`
	CertFile           string `yaml:"cert_file" env:"CERT_FILE"`
	KeyFile            string `yaml:"key_file" env:"KEY_FILE"`
	CACertFile         string `yaml:"ca_cert_file" env:"CA_CERT_FILE"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
}

func (c *Config) InitDefaults() {
	c.Driver = DriverSQLite
	c.SQLiteName = "app"
	c.MaxOpenConns = 4
	c.LogLevel = "info"
}

func (c *Config) Validation() *valgo.Validation {
	v := valgo.Is(
		valgoutil.OneOfValidator(c.Driver, []string{DriverSQLite, DriverPostgres}, "driver"),
		valgo.Int(c.MaxOpenConns, "max_open_conns").Between(1, math.MaxInt32),
		valgo.String(c.LogLevel, "log_level").Passing(func(level string) bool {
			_, ok := log.ParseLevel(level)
			return ok
		}, "must be one of debug, info, warn, error"),
	)

	switch c.Driver {
	case DriverPostgres:
		v.Is(valgoutil.PostgresURLValidator(c.URL, "url"))
		if c.TLS.Enabled {
			v.Is(valgo.Bool((c.TLS.CertFile == "") == (c.TLS.KeyFile == ""), "tls").True("cert_file and key_file must be set together"))
		}
	case DriverSQLite:
		v.Is(valgo.String(c.SQLiteName, "sqlite_name").Not().Blank())
	}
	return v
}
