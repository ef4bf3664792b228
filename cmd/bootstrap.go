package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/camden-git/eventfaces/config"
	"github.com/camden-git/eventfaces/database"
	"github.com/camden-git/eventfaces/detectors/dlib"
	"github.com/camden-git/eventfaces/detectors/dnn"
	"github.com/camden-git/eventfaces/detectors/remote"
	"github.com/camden-git/eventfaces/media"
	"github.com/camden-git/eventfaces/permissions"
	"github.com/camden-git/eventfaces/realtime"
	"github.com/camden-git/eventfaces/recognition"
	"github.com/camden-git/eventfaces/repository"
	"github.com/camden-git/eventfaces/services"
	"gorm.io/gorm"
)

// app holds the collaborators shared by every command
type app struct {
	cfg      config.Config
	db       *gorm.DB
	users    *repository.UserRepository
	events   *repository.EventRepository
	photos   *repository.PhotoRepository
	store    *media.LocalStorage
	pipeline *media.Pipeline
	detector recognition.Detector
	filter   *recognition.QualityFilter
	searcher recognition.Searcher
	access   *permissions.EventAccess

	// indexed searchers must forget cached graphs when a selfie changes
	indexed *recognition.IndexedMatcher
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	for _, p := range []string{filepath.Dir(cfg.DatabasePath), cfg.UploadDir} {
		if err := os.MkdirAll(p, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath, cfg.DBLogVerbose)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrateModels(db); err != nil {
		return nil, err
	}

	store, err := media.NewLocalStorage(cfg.MediaStoragePath, map[media.AssetType]string{
		media.AssetTypeSelfie: cfg.SelfiesSubDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize media store: %w", err)
	}

	detector, err := newDetector(cfg.Face)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		db:       db,
		users:    repository.NewUserRepository(db),
		events:   repository.NewEventRepository(db),
		photos:   repository.NewPhotoRepository(db),
		store:    store,
		pipeline: media.NewPipeline(media.NewLoader(cfg.UploadDir, cfg.RemoteTimeout), media.NewNormalizer(cfg.Face.MaxImageDimension)),
		detector: detector,
		filter:   recognition.NewQualityFilter(cfg.Face.Quality),
	}
	a.access = permissions.NewEventAccess(a.events)

	if cfg.Face.MatchIndex == config.IndexHNSW {
		a.indexed = recognition.NewIndexedMatcher(cfg.Face.Tolerance, cfg.Face.MaxMatches)
		a.searcher = a.indexed
	} else {
		a.searcher = recognition.NewMatcher(cfg.Face.Tolerance, cfg.Face.MaxMatches)
	}

	log.Printf("Face profile %q: tolerance %.3f, quality %s, index %s, detector %s",
		cfg.Face.Profile, cfg.Face.Tolerance, cfg.Face.QualityMode, cfg.Face.MatchIndex, detector.Name())
	return a, nil
}

func newDetector(fc config.FaceConfig) (recognition.Detector, error) {
	switch fc.Detector {
	case config.DetectorDNN:
		return dnn.New(dnn.Config{
			DetectorConfigPath: fc.DNNConfigPath,
			DetectorModelPath:  fc.DNNModelPath,
			EmbedderModelPath:  fc.RecognitionModelPath,
			EmbedderModelName:  fc.RecognitionModelName,
		})
	case config.DetectorRemote:
		return remote.NewClient(fc.RemoteURL, fc.DetectorModel, fc.Upsamples), nil
	default:
		return dlib.New(fc.DlibModelsDir, fc.DetectorModel)
	}
}

// notifier adds index invalidation to the given notifiers
func (a *app) notifier(notifiers ...realtime.Notifier) realtime.Notifier {
	if a.indexed != nil {
		notifiers = append(notifiers, indexInvalidator{a.indexed})
	}
	return realtime.Fanout(notifiers)
}

func (a *app) taggingService(workers int, notifier realtime.Notifier) *services.TaggingService {
	return services.NewTaggingService(services.TaggingDeps{
		Photos:   a.photos,
		Events:   a.events,
		Access:   a.access,
		Images:   a.pipeline,
		Detector: a.detector,
		Filter:   a.filter,
		Scopes:   recognition.NewScopeResolver(a.users),
		Searcher: a.searcher,
		Notifier: notifier,
		Workers:  workers,
	})
}

func (a *app) registrationService(notifier realtime.Notifier) *services.RegistrationService {
	return services.NewRegistrationService(a.users, a.store, a.pipeline, a.detector, a.filter, a.cfg.Face.SelfieDominance, notifier)
}

func (a *app) Close() {
	if err := a.detector.Close(); err != nil {
		log.Printf("Error closing detector: %v", err)
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

type indexInvalidator struct {
	matcher *recognition.IndexedMatcher
}

func (i indexInvalidator) Broadcast(event realtime.Event) {
	if event.Type == realtime.EventSelfieUpdated {
		i.matcher.Invalidate()
	}
}
