package config

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger: JSON in production, console otherwise.
func NewLogger(c Config) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if c.Production() {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
