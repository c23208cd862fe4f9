package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func loadEnvFiles(files ...string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return fmt.Errorf("load env file %s: %w", f, err)
	}
	return nil
}

// bindConfig 将配置文件与 NAME_ 前缀的环境变量解码到 options，
// 命令行显式设置的参数优先。
func bindConfig(cmd *cobra.Command, name string, options any) error {
	v := viper.New()
	if file, _ := cmd.Flags().GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		for _, dir := range []string{".", "./configs", filepath.Join(os.Getenv("HOME"), "."+name), "/etc/" + name} {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	for _, key := range v.AllKeys() {
		if raw, ok := v.Get(key).(string); ok {
			if expanded := expandString(raw); expanded != raw {
				v.Set(key, expanded)
			}
		}
	}

	v.SetEnvPrefix(strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	explicit := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) { explicit[f.Name] = f.Value.String() })

	if err := v.Unmarshal(options); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	for flag, val := range explicit {
		if err := cmd.Flags().Set(flag, val); err != nil {
			return fmt.Errorf("reapply --%s: %w", flag, err)
		}
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandString 展开 ${VAR} 与 $VAR，未设置的变量保持原样。
func expandString(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if val := os.Getenv(name); val != "" {
			return val
		}
		return ref
	})
}
