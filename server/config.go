package server

import "github.com/cyclopcam/dbh"

type Config struct {
	DB        dbh.DBConfig     `json:"db"`
	MediaRoot string           `json:"mediaRoot"` // Path to the directory holding item media files
	Inference *InferenceConfig `json:"inference"` // nil disables the auto-annotate proxy

	// MaxAnnotationsPerDataset caps the stored annotations of one dataset.
	// Zero means unlimited.
	MaxAnnotationsPerDataset int64 `json:"maxAnnotationsPerDataset"`
}

type InferenceConfig struct {
	URL   string `json:"url"`   // Model-serving endpoint
	Model string `json:"model"` // Model name passed through to the endpoint
}
