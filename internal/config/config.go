package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Model names served by the application, in display order.
var ModelNames = []string{"YOLOv8", "YOLOv9", "YOLOv10", "YOLOv11"}

// ModelConfig points at the weights (and optional labels file) of one model.
type ModelConfig struct {
	Name       string
	Path       string
	LabelsPath string
}

type Config struct {
	Port                int
	StaticDirectory     string
	TemplateDirectory   string // empty means the embedded templates
	UploadDirectory     string
	PublicUploadPrefix  string
	MaxUploadBytes      int64
	RetentionSeconds    int
	LogDirectory        string
	DatabasePath        string // empty disables the detection history
	DetectorBackend     string // "opencv" or "onnx"
	OnnxLibraryPath     string
	ConfidenceThreshold float64
	IoUThreshold        float64
	ExposeLogs          bool // serve /logs/{level}
	Models              []ModelConfig
}

func Load() *Config {
	staticDir := getEnv("STATIC_DIR", "static")

	return &Config{
		Port:                getEnvAsInt("PORT", 5000),
		StaticDirectory:     staticDir,
		TemplateDirectory:   getEnv("TEMPLATE_DIR", ""),
		UploadDirectory:     getEnv("UPLOAD_DIR", filepath.Join(staticDir, "uploads")),
		PublicUploadPrefix:  getEnv("PUBLIC_UPLOAD_PREFIX", "/static/uploads/"),
		MaxUploadBytes:      getEnvAsInt64("MAX_UPLOAD_BYTES", 16<<20), // 16 MiB
		RetentionSeconds:    getEnvAsInt("RETENTION_SECONDS", 3600),
		LogDirectory:        getEnv("LOG_DIR", filepath.Join(".", "logs")),
		DatabasePath:        lookupEnv("DB_PATH", filepath.Join("data", "detections.db")),
		DetectorBackend:     strings.ToLower(getEnv("DETECTOR_BACKEND", "opencv")),
		OnnxLibraryPath:     getEnv("ONNXRUNTIME_LIB", "libonnxruntime.so"),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.25),
		IoUThreshold:        getEnvAsFloat("IOU_THRESHOLD", 0.45),
		ExposeLogs:          getEnvAsBool("EXPOSE_LOGS", false),
		Models:              loadModels(),
	}
}

// loadModels reads MODEL_<NAME> and LABELS_<NAME> for every served model,
// e.g. MODEL_YOLOV8=models/yolov8.onnx.
func loadModels() []ModelConfig {
	defaults := map[string]string{
		"YOLOv8":  filepath.Join("models", "yolov8.onnx"),
		"YOLOv9":  filepath.Join("models", "best_spacebuds8.onnx"),
		"YOLOv10": filepath.Join("models", "yolov10.onnx"),
		"YOLOv11": filepath.Join("models", "yolov11.onnx"),
	}

	models := make([]ModelConfig, 0, len(ModelNames))
	for _, name := range ModelNames {
		key := strings.ToUpper(name)
		models = append(models, ModelConfig{
			Name:       name,
			Path:       getEnv("MODEL_"+key, defaults[name]),
			LabelsPath: getEnv("LABELS_"+key, ""),
		})
	}
	return models
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnv is like getEnv but keeps a variable that is set to "".
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
