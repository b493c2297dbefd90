package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/eventstream/logger"
)

// FileSystem is the file access LoadConfig needs. Tests substitute it.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

type osFileSystem struct{}

func (osFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (osFileSystem) LoadEnv(path string) error { return godotenv.Load(path) }

// LoaderConfig holds the loader's file system and optional explicit paths.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string
	EnvFile    string
}

// LoaderOption is a functional option for LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom file system for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// LoadConfig fills cfg, a pointer to a struct with mapstructure tags, from
// config.yml, then the .env file, then the process environment. Every key
// of cfg can be set from an environment variable named after its path:
// producer.heartbeat_interval is PRODUCER_HEARTBEAT_INTERVAL.
//
// Missing files are not an error; unreadable ones are logged and skipped.
func LoadConfig(serviceName string, cfg any, opts ...LoaderOption) error {
	lc := LoaderConfig{FileSystem: osFileSystem{}}
	for _, opt := range opts {
		opt(&lc)
	}
	configFile, envFile := resolveFiles(lc, serviceName)

	v := viper.New()
	if configFile != "" && lc.FileSystem.Exists(configFile) {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			logger.Warn("failed to load config file", logger.Fields("file", configFile, logger.FieldError, err.Error()))
		}
	}
	if envFile != "" && lc.FileSystem.Exists(envFile) {
		if err := lc.FileSystem.LoadEnv(envFile); err != nil {
			logger.Warn("failed to load .env file", logger.Fields("file", envFile, logger.FieldError, err.Error()))
		}
	}

	for _, key := range envKeys(reflect.TypeOf(cfg), "") {
		if err := v.BindEnv(key, envName(key)); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config for service %s: %w", serviceName, err)
	}
	return nil
}

// resolveFiles returns the explicit paths from lc, or the first existing
// candidate for each.
func resolveFiles(lc LoaderConfig, serviceName string) (configFile, envFile string) {
	configFile, envFile = lc.ConfigFile, lc.EnvFile
	if configFile == "" {
		configFile = firstExisting(lc.FileSystem, configCandidates(serviceName))
	}
	if envFile == "" {
		envFile = firstExisting(lc.FileSystem, envCandidates(serviceName))
	}
	return configFile, envFile
}

func configCandidates(serviceName string) []string {
	var paths []string
	for _, up := range []string{"./", "../", "../../"} {
		paths = append(paths, up+"cmd/"+serviceName+"/config.yml")
	}
	return append(paths, "./config/config.yml", "../config/config.yml", "./config.yml")
}

func envCandidates(serviceName string) []string {
	var paths []string
	for _, name := range []string{".env." + serviceName, ".env"} {
		for _, dir := range []string{"./cmd/" + serviceName, "../cmd/" + serviceName, "./config", "."} {
			paths = append(paths, dir+"/"+name)
		}
	}
	return paths
}

func firstExisting(fs FileSystem, paths []string) string {
	for _, p := range paths {
		if fs.Exists(p) {
			return p
		}
	}
	return ""
}

var timeType = reflect.TypeOf(time.Time{})

// envKeys lists the dotted mapstructure key of every leaf field of t.
// Squashed embedded structs contribute their fields at the parent level.
func envKeys(t reflect.Type, prefix string) []string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var keys []string
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			continue
		}

		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if strings.Contains(opts, "squash") {
			keys = append(keys, envKeys(ft, prefix)...)
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		key := prefix + name

		switch {
		case ft.Kind() == reflect.Func || ft.Kind() == reflect.Chan:
		case ft.Kind() == reflect.Struct && ft != timeType:
			keys = append(keys, envKeys(ft, key+".")...)
		default:
			keys = append(keys, key)
		}
	}
	return keys
}

// envName maps a config key to its environment variable.
func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
