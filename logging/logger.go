package logging

import "go.uber.org/zap"

// New creates a zap logger suited to the given environment
func New(env string) (*zap.Logger, error) {
	switch env {
	case "local", "development":
		return zap.NewDevelopment()
	case "production":
		return zap.NewProduction()
	default:
		return zap.NewExample(), nil
	}
}
