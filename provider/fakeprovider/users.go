package fakeprovider

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

var ErrUserNotFound = errors.New("user not found")

// User is an account known to the fake identity provider.
type User struct {
	ID               string
	Username         string
	PasswordHash     string
	DisplayName      string
	Language         string
	Roles            []string // issued as the "roles" claim and profile field; empty leaves role inference to the client
	SessionTimeoutMs *int64
	Blocked          bool
	LastLogin        *time.Time
}

// copy is taken under the repo lock so handlers never share a mutable User.
func (u *User) copy() *User {
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	return &c
}

// HashPassword uses the minimum bcrypt cost; this provider only backs tests and demos.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UserRepo is an in-memory user table keyed by id, with a username index.
type UserRepo struct {
	users       map[string]*User
	usernameIDs map[string]string
	lock        sync.RWMutex
}

func NewUserRepo() *UserRepo {
	return &UserRepo{
		users:       make(map[string]*User),
		usernameIDs: make(map[string]string),
	}
}

func (ur *UserRepo) Upsert(user *User) error {
	if user == nil || strings.TrimSpace(user.Username) == "" {
		return errors.New("[UserRepo.Upsert] username is required")
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	ur.users[user.ID] = user.copy()
	ur.usernameIDs[strings.ToLower(user.Username)] = user.ID
	return nil
}

func (ur *UserRepo) GetByUsername(username string) (*User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.usernameIDs[strings.ToLower(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return ur.users[id].copy(), nil
}

func (ur *UserRepo) GetByID(id string) (*User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user.copy(), nil
}

func (ur *UserRepo) SetBlocked(username string, blocked bool) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	id, ok := ur.usernameIDs[strings.ToLower(username)]
	if !ok {
		return ErrUserNotFound
	}
	ur.users[id].Blocked = blocked
	return nil
}

func (ur *UserRepo) SetLastLogin(id string, at time.Time) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user, ok := ur.users[id]; ok {
		user.LastLogin = &at
	}
}

// List returns users ordered by username.
func (ur *UserRepo) List() []*User {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	list := make([]*User, 0, len(ur.users))
	for _, u := range ur.users {
		list = append(list, u.copy())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Username < list[j].Username })
	return list
}
