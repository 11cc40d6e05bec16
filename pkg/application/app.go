package application

import (
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Ingest is the main application context that holds all dependencies
type Ingest struct {
	Log     *zap.Logger
	BaseDir string
	Config  *viper.Viper
}

// New creates a new Ingest application instance
func New() *Ingest {
	return &Ingest{}
}

// Setup initializes the application with dependencies
func (a *Ingest) Setup(baseDir string, logger *zap.Logger, config *viper.Viper) {
	a.BaseDir = baseDir
	a.Log = logger
	a.Config = config
}

// GetDataDir returns the data directory path
func (a *Ingest) GetDataDir() string {
	return filepath.Join(a.BaseDir, "data")
}
