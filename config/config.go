package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/camden-git/eventfaces/recognition"
)

const (
	DefaultSelfiesSubDir = "selfies"
)

const (
	defaultTaggingQueueSize  = 100
	defaultTaggingWorkers    = 1
	defaultRemoteTimeoutSecs = 30
	defaultMaxImageDimension = 1000
)

// Quality modes
const (
	QualityLenient = "lenient"
	QualityStrict  = "strict"
)

// Match index kinds
const (
	IndexLinear = "linear"
	IndexHNSW   = "hnsw"
)

// Detector backends
const (
	DetectorDNN    = "dnn"
	DetectorDlib   = "dlib"
	DetectorRemote = "remote"
)

// FaceConfig is the immutable recognition configuration handed to the pipeline
type FaceConfig struct {
	Profile           string
	Tolerance         float64
	MaxImageDimension int
	MaxMatches        int
	QualityMode       string
	Quality           recognition.QualityPolicy
	SelfieDominance   float64
	MatchIndex        string

	Detector      string
	DetectorModel string // hog or cnn, from the profile
	Upsamples     int

	DNNConfigPath        string
	DNNModelPath         string
	RecognitionModelPath string
	RecognitionModelName string
	DlibModelsDir        string
	RemoteURL            string
}

type Config struct {
	DatabasePath  string
	DBLogVerbose  bool
	Port          string
	AllowedOrigin []string

	// media storage configuration
	MediaStoragePath string // root for artifacts owned by this service
	SelfiesSubDir    string
	UploadDir        string // base for relative photo image paths
	RemoteTimeout    time.Duration

	Face FaceConfig

	// worker settings
	TaggingWorkers   int
	TaggingQueueSize int

	// optional MQTT progress publishing
	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val < 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %t.", envVar, valStr, defaultVal)
		return defaultVal
	}
	return val
}

func getEnvChoice(envVar, defaultVal string, allowed ...string) string {
	val := strings.ToLower(getEnvOrDefault(envVar, defaultVal))
	for _, a := range allowed {
		if val == a {
			return val
		}
	}
	log.Printf("Warning: Invalid %s '%s'. Using default %s.", envVar, val, defaultVal)
	return defaultVal
}

// qualityPolicy builds the filter policy. Strict mode enables every
// predicate unless FACE_QUALITY_CHECKS names a subset.
func qualityPolicy(mode string, profile Profile, checks string) (recognition.QualityPolicy, error) {
	if mode != QualityStrict {
		return recognition.LenientPolicy(), nil
	}
	policy := recognition.StrictPolicy(profile.MinFaceSize, profile.MinFaceRatio)
	if strings.TrimSpace(checks) == "" {
		return policy, nil
	}

	enabled := map[string]bool{}
	for _, c := range strings.Split(checks, ",") {
		c = strings.TrimSpace(strings.ToLower(c))
		switch c {
		case "min_size", "max_size", "min_ratio", "max_ratio", "aspect":
			enabled[c] = true
		case "":
		default:
			return recognition.QualityPolicy{}, fmt.Errorf("unknown quality check %q", c)
		}
	}
	policy.MinFaceSize.Enabled = enabled["min_size"]
	policy.MaxFaceSize.Enabled = enabled["max_size"]
	policy.MinAreaRatio.Enabled = enabled["min_ratio"]
	policy.MaxAreaRatio.Enabled = enabled["max_ratio"]
	policy.MinAspectRatio.Enabled = enabled["aspect"]
	policy.MaxAspectRatio.Enabled = enabled["aspect"]
	return policy, nil
}

func loadFaceConfig() (FaceConfig, error) {
	profile, err := LookupProfile(os.Getenv("FACE_PROFILE"))
	if err != nil {
		return FaceConfig{}, err
	}

	mode := getEnvChoice("FACE_QUALITY_MODE", QualityLenient, QualityLenient, QualityStrict)
	policy, err := qualityPolicy(mode, profile, os.Getenv("FACE_QUALITY_CHECKS"))
	if err != nil {
		return FaceConfig{}, fmt.Errorf("invalid FACE_QUALITY_CHECKS: %w", err)
	}

	return FaceConfig{
		Profile:           profile.Name,
		Tolerance:         getEnvFloatOrDefault("FACE_TOLERANCE", profile.Tolerance),
		MaxImageDimension: getEnvIntOrDefault("FACE_MAX_IMAGE_DIMENSION", defaultMaxImageDimension),
		MaxMatches:        getEnvIntOrDefault("FACE_MAX_MATCHES", recognition.DefaultMaxMatches),
		QualityMode:       mode,
		Quality:           policy,
		SelfieDominance:   getEnvFloatOrDefault("FACE_SELFIE_DOMINANCE", recognition.DefaultSelfieDominance),
		MatchIndex:        getEnvChoice("FACE_MATCH_INDEX", IndexLinear, IndexLinear, IndexHNSW),

		Detector:      getEnvChoice("FACE_DETECTOR", DetectorDlib, DetectorDNN, DetectorDlib, DetectorRemote),
		DetectorModel: profile.Model,
		Upsamples:     profile.Upsamples,

		DNNConfigPath:        getEnvOrDefault("FACE_DNN_CONFIG_PATH", "./models/deploy.prototxt.txt"),
		DNNModelPath:         getEnvOrDefault("FACE_DNN_MODEL_PATH", "./models/res10_300x300_ssd_iter_140000_fp16.caffemodel"),
		RecognitionModelPath: getEnvOrDefault("FACE_RECOGNITION_MODEL_PATH", "./models/arcface.onnx"),
		RecognitionModelName: getEnvOrDefault("FACE_RECOGNITION_MODEL_NAME", "arcface"),
		DlibModelsDir:        getEnvOrDefault("FACE_DLIB_MODELS_DIR", "./models/dlib"),
		RemoteURL:            getEnvOrDefault("FACE_REMOTE_URL", "http://localhost:8000"),
	}, nil
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "eventfaces.db")

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	uploadDir := getEnvOrDefault("UPLOAD_DIR", filepath.Join(".", "uploads"))
	absUploadDir, err := filepath.Abs(uploadDir)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for upload directory '%s': %w", uploadDir, err)
	}

	face, err := loadFaceConfig()
	if err != nil {
		return Config{}, err
	}

	var origins []string
	for _, o := range strings.Split(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	cfg := Config{
		DatabasePath:     dbPath,
		DBLogVerbose:     getEnvBoolOrDefault("DB_LOG_VERBOSE", false),
		Port:             getEnvOrDefault("PORT", "8080"),
		AllowedOrigin:    origins,
		MediaStoragePath: absMediaStorage,
		SelfiesSubDir:    getEnvOrDefault("SELFIES_SUBDIR", DefaultSelfiesSubDir),
		UploadDir:        absUploadDir,
		RemoteTimeout:    time.Duration(getEnvIntOrDefault("REMOTE_FETCH_TIMEOUT_SECONDS", defaultRemoteTimeoutSecs)) * time.Second,
		Face:             face,
		TaggingWorkers:   getEnvIntOrDefault("TAGGING_WORKERS", defaultTaggingWorkers),
		TaggingQueueSize: getEnvIntOrDefault("TAGGING_QUEUE_SIZE", defaultTaggingQueueSize),
		MQTTBroker:       os.Getenv("MQTT_BROKER"),
		MQTTClientID:     os.Getenv("MQTT_CLIENT_ID"),
		MQTTTopic:        getEnvOrDefault("MQTT_TOPIC", "eventfaces/tagging"),
	}

	return cfg, nil
}
