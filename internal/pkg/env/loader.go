package env

import (
	"context"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// LoadDotEnv loads envs from dotenv files in the dirs, if they exist. Existing envs take precedence.
func LoadDotEnv(ctx context.Context, logger log.Logger, osEnvs *Map, fs afero.Fs, dirs []string) *Map {
	envs := osEnvs.Clone()

	for _, dir := range dirs {
		for _, file := range Files() {
			path := filepath.Join(dir, file)
			info, err := fs.Stat(path)
			switch {
			case err == nil && info.IsDir():
				continue
			case errors.Is(err, afero.ErrFileNotFound):
				continue
			case err != nil:
				logger.Warnf(ctx, `Cannot check if path "%s" exists: %s`, path, err)
				continue
			}

			fileEnvs, err := LoadEnvFile(fs, path)
			if err != nil {
				logger.Warn(ctx, err.Error())
				continue
			}
			logger.Infof(ctx, `Loaded env file "%s".`, path)

			envs.Merge(fileEnvs, false)
		}
	}

	return envs
}

func LoadEnvFile(fs afero.Fs, path string) (*Map, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf(`cannot read env file "%s": %w`, path, err)
	}

	envs, err := LoadEnvString(string(content))
	if err != nil {
		return nil, errors.Errorf(`cannot parse env file "%s": %w`, path, err)
	}

	return envs, nil
}

func LoadEnvString(str string) (*Map, error) {
	envsMap, err := godotenv.Unmarshal(str)
	if err != nil {
		return nil, err
	}

	// A line without "=" is parsed as a value with an empty key
	if value, found := envsMap[""]; found {
		return nil, errors.Errorf(`missing name of the env with value "%s"`, value)
	}

	return FromMap(envsMap), nil
}
