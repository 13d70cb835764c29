package config

import "errors"

// ErrInvalidConfig wraps every problem reported by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrLoadConfig wraps failures reading .env, the YAML file or the environment.
var ErrLoadConfig = errors.New("loading configuration")
