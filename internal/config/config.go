// Package config reads source credentials and database targets from the
// environment and the optional .harvest.yaml file.
//
// Every source reads the same family of keys, upper-cased and prefixed with
// the source name:
//
//	CRATEJOY_USER, CRATEJOY_PASSWORD, CRATEJOY_SECRET_KEY,
//	CRATEJOY_HOST, CRATEJOY_DATABASE, CRATEJOY_STORE
//
// Commands decide which of them they need with Credentials.Require.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Credentials are the settings of one source.
type Credentials struct {
	Source    string `validate:"required"`
	User      string `validate:"required"`
	Password  string `validate:"required_without=SecretKey"`
	SecretKey string `validate:"required_without=Password"`
	Host      string `validate:"required"`
	Database  string `validate:"required"`
	Store     string `validate:"required,excludesall=/?#"`
}

// Key suffixes read for every source.
const (
	keyUser      = "USER"
	keyPassword  = "PASSWORD"
	keySecretKey = "SECRET_KEY"
	keyHost      = "HOST"
	keyDatabase  = "DATABASE"
	keyStore     = "STORE"
)

// field names used in validation messages, keyed by struct field.
var keyFor = map[string]string{
	"User":      keyUser,
	"Password":  keyPassword,
	"SecretKey": keySecretKey,
	"Host":      keyHost,
	"Database":  keyDatabase,
	"Store":     keyStore,
}

var validate = validator.New()

// Load reads the credentials of source from v. Missing keys are empty;
// call Require to enforce the ones a command needs.
func Load(v *viper.Viper, source string) Credentials {
	prefix := strings.ToUpper(strings.TrimSpace(source)) + "_"
	get := func(key string) string {
		return strings.TrimSpace(v.GetString(prefix + key))
	}
	return Credentials{
		Source:    source,
		User:      get(keyUser),
		Password:  get(keyPassword),
		SecretKey: get(keySecretKey),
		Host:      get(keyHost),
		Database:  get(keyDatabase),
		Store:     get(keyStore),
	}
}

// Require validates the named fields (User, Password, SecretKey, Host,
// Database, Store). Password and SecretKey are each satisfied by the other.
func (c Credentials) Require(fields ...string) error {
	err := validate.StructPartial(c, fields...)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	prefix := strings.ToUpper(c.Source) + "_"
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		key := prefix + keyFor[e.StructField()]
		switch e.Tag() {
		case "required":
			msgs = append(msgs, key+" is not set")
		case "required_without":
			msgs = append(msgs, fmt.Sprintf("%s or %s%s is not set", key, prefix, keyFor[e.Param()]))
		case "excludesall":
			msgs = append(msgs, fmt.Sprintf("%s must not contain any of %q", key, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed validation '%s'", key, e.Tag()))
		}
	}
	return fmt.Errorf("%s configuration: %s", c.Source, strings.Join(msgs, "; "))
}

// Secret returns the secret key, or the password when no key is set.
func (c Credentials) Secret() string {
	if c.SecretKey != "" {
		return c.SecretKey
	}
	return c.Password
}

// Database is a relational target.
type Database struct {
	Driver string
	DSN    string
}

// DefaultSQLitePath is used when no database target is given.
const DefaultSQLitePath = "harvest.db"

// DatabaseFor resolves a --db target:
//
//	""                       sqlite file harvest.db
//	"mysql"                  MYSQL_USER/_PASSWORD/_HOST, database MYSQL_DATABASE or name
//	"mysql://<dsn>"          a go-sql-driver DSN
//	"sqlite3:<path>", <path> a sqlite file
func DatabaseFor(v *viper.Viper, target, name string) (Database, error) {
	target = strings.TrimSpace(target)
	switch {
	case target == "":
		return Database{Driver: "sqlite3", DSN: DefaultSQLitePath}, nil
	case strings.EqualFold(target, "mysql"):
		creds := Load(v, "mysql")
		if creds.Database == "" {
			creds.Database = name
		}
		if err := creds.Require("User", "Password", "Host", "Database"); err != nil {
			return Database{}, err
		}
		return Database{Driver: "mysql", DSN: MySQLDSN(creds)}, nil
	case strings.HasPrefix(target, "mysql://"):
		dsn := strings.TrimPrefix(target, "mysql://")
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return Database{}, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		return Database{Driver: "mysql", DSN: dsn}, nil
	case strings.HasPrefix(target, "sqlite3:"), strings.HasPrefix(target, "sqlite:"):
		_, path, _ := strings.Cut(target, ":")
		return Database{Driver: "sqlite3", DSN: path}, nil
	default:
		return Database{Driver: "sqlite3", DSN: target}, nil
	}
}

// MySQLDSN builds a DSN from credentials. A host without a port gets 3306.
func MySQLDSN(c Credentials) string {
	addr := c.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "3306")
	}
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Secret()
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.DBName = c.Database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}
