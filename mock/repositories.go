// Package mock provides in-memory repositories, an image preparer and a
// scripted detector for service and handler tests.
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/camden-git/eventfaces/models"
	"github.com/camden-git/eventfaces/recognition"
	"github.com/camden-git/eventfaces/repository"
	"gorm.io/gorm"
)

// UserRepository is an in-memory repository.UserRepositoryInterface
type UserRepository struct {
	mu     sync.Mutex
	users  map[uint]*models.User
	nextID uint
	// Registrations backs event scoped candidate lookups when set
	Registrations *EventRepository
	// CandidateCalls counts ListCandidates invocations
	CandidateCalls int
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[uint]*models.User), nextID: 1}
}

func (r *UserRepository) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == 0 {
		user.ID = r.nextID
	}
	if user.ID >= r.nextID {
		r.nextID = user.ID + 1
	}
	user.CreatedAt = time.Now().Unix()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *UserRepository) ListCandidates(ctx context.Context, eventID *uint) ([]recognition.Candidate, error) {
	r.mu.Lock()
	r.CandidateCalls++
	users := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	r.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	var out []recognition.Candidate
	for _, u := range users {
		emb := u.Embedding()
		if len(emb) == 0 {
			continue
		}
		if eventID != nil {
			if r.Registrations == nil {
				continue
			}
			if ok, _ := r.Registrations.IsRegistered(u.ID, *eventID); !ok {
				continue
			}
		}
		out = append(out, recognition.Candidate{IdentityID: u.ID, Embedding: emb})
	}
	return out, nil
}

func (r *UserRepository) UpdateSelfie(userID uint, selfiePath string, embedding []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	path := selfiePath
	u.SelfiePath = &path
	u.SetEmbedding(embedding)
	return nil
}

func (r *UserRepository) ClearSelfie(userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.SelfiePath = nil
	return nil
}

// EventRepository is an in-memory repository.EventRepositoryInterface
type EventRepository struct {
	mu            sync.Mutex
	events        map[uint]*models.Event
	registrations map[[2]uint]string
	nextID        uint
}

func NewEventRepository() *EventRepository {
	return &EventRepository{
		events:        make(map[uint]*models.Event),
		registrations: make(map[[2]uint]string),
		nextID:        1,
	}
}

func (r *EventRepository) Create(event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ID == 0 {
		event.ID = r.nextID
	}
	if event.ID >= r.nextID {
		r.nextID = event.ID + 1
	}
	event.EventCode = models.NormalizeEventCode(event.EventCode)
	cp := *event
	r.events[event.ID] = &cp
	return nil
}

func (r *EventRepository) GetByID(id uint) (*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *EventRepository) GetByCode(code string) (*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code = models.NormalizeEventCode(code)
	for _, e := range r.events {
		if e.EventCode == code {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *EventRepository) IsRegistered(userID, eventID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.registrations[[2]uint{userID, eventID}]
	return ok, nil
}

func (r *EventRepository) Register(userID, eventID uint, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role == "" {
		role = repository.DefaultRegistrationRole
	}
	if _, ok := r.registrations[[2]uint{userID, eventID}]; !ok {
		r.registrations[[2]uint{userID, eventID}] = role
	}
	return nil
}

// PhotoRepository is an in-memory repository.PhotoRepositoryInterface.
// Face records are unique per (photo, face index) like the database.
type PhotoRepository struct {
	mu     sync.Mutex
	photos map[uint]*models.Photo
	faces  map[uint]map[int]models.PhotoFace
	nextID uint
	faceID uint
}

func NewPhotoRepository() *PhotoRepository {
	return &PhotoRepository{
		photos: make(map[uint]*models.Photo),
		faces:  make(map[uint]map[int]models.PhotoFace),
		nextID: 1,
	}
}

func (r *PhotoRepository) Create(photo *models.Photo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if photo.ID == 0 {
		photo.ID = r.nextID
	}
	if photo.ID >= r.nextID {
		r.nextID = photo.ID + 1
	}
	cp := *photo
	r.photos[photo.ID] = &cp
	return nil
}

func (r *PhotoRepository) GetByID(id uint) (*models.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.photos[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *PhotoRepository) ListByEvent(eventID uint) ([]models.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Photo
	for _, p := range r.photos {
		if p.EventID != eventID {
			continue
		}
		cp := *p
		cp.Faces = r.sortedFaces(p.ID)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *PhotoRepository) ListIDsByEvent(eventID uint, untaggedOnly bool) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint
	for _, p := range r.photos {
		if p.EventID != eventID {
			continue
		}
		if untaggedOnly && len(r.faces[p.ID]) > 0 {
			continue
		}
		ids = append(ids, p.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *PhotoRepository) HasFaceRecord(photoID uint, faceIndex int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.faces[photoID][faceIndex]
	return ok, nil
}

func (r *PhotoRepository) CreateFaceRecord(face *models.PhotoFace) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byIndex, ok := r.faces[face.PhotoID]
	if !ok {
		byIndex = make(map[int]models.PhotoFace)
		r.faces[face.PhotoID] = byIndex
	}
	if _, exists := byIndex[face.FaceIndex]; exists {
		return false, nil
	}
	r.faceID++
	face.ID = r.faceID
	face.CreatedAt = time.Now().Unix()
	byIndex[face.FaceIndex] = *face
	return true, nil
}

func (r *PhotoRepository) ListFacesByPhoto(photoID uint) ([]models.PhotoFace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedFaces(photoID), nil
}

func (r *PhotoRepository) sortedFaces(photoID uint) []models.PhotoFace {
	var out []models.PhotoFace
	for _, f := range r.faces[photoID] {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FaceIndex < out[j].FaceIndex })
	return out
}

var (
	_ repository.UserRepositoryInterface  = (*UserRepository)(nil)
	_ repository.EventRepositoryInterface = (*EventRepository)(nil)
	_ repository.PhotoRepositoryInterface = (*PhotoRepository)(nil)
)
