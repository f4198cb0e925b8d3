package devserver

import (
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/productinfo/stitch-js-sdk/internal/util"
	"github.com/productinfo/stitch-js-sdk/internal/uuid"
	"github.com/productinfo/stitch-js-sdk/session"
)

var (
	errAccountExists   = errors.New("account already exists")
	errIdentityInUse   = errors.New("identity is linked to another user")
	errUnknownAccount  = errors.New("account not found")
	errSessionNotFound = errors.New("session not found")
)

type user struct {
	id         string
	userType   session.UserType
	identities []session.Identity
	data       map[string]string
}

func (u *user) profile() profileResponse {
	return profileResponse{
		UserID:     u.id,
		Type:       u.userType,
		Identities: slices.Clone(u.identities),
		Data:       maps.Clone(u.data),
	}
}

type account struct {
	username string
	salt     []byte
	key      []byte
}

type serverSession struct {
	id       string
	userID   string
	deviceID string
}

// directory is the dev server's in-memory user database.
type directory struct {
	mu         sync.RWMutex
	users      map[string]*user
	identities map[string]string // provider type + identity id -> user id
	accounts   map[string]*account
	sessions   map[string]*serverSession // refresh token -> session
	sessionIDs map[string]string         // session id -> refresh token
}

func newDirectory() *directory {
	return &directory{
		users:      make(map[string]*user),
		identities: make(map[string]string),
		accounts:   make(map[string]*account),
		sessions:   make(map[string]*serverSession),
		sessionIDs: make(map[string]string),
	}
}

func identityKey(id session.Identity) string {
	return id.ProviderType + "/" + id.ID
}

// resolve returns the user owning id, creating one of userType if none does.
func (d *directory) resolve(id session.Identity, userType session.UserType, data map[string]string) (*user, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if uid, ok := d.identities[identityKey(id)]; ok {
		return d.users[uid], false
	}
	u := &user{
		id:         uuid.New(),
		userType:   userType,
		identities: []session.Identity{id},
		data:       maps.Clone(data),
	}
	d.users[u.id] = u
	d.identities[identityKey(id)] = u.id
	return u, true
}

// link binds id to userID. Linking an identity the user already has is a
// no-op; linking one owned by somebody else fails.
func (d *directory) link(userID string, id session.Identity) (*user, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[userID]
	if !ok {
		return nil, errUnknownAccount
	}
	if owner, ok := d.identities[identityKey(id)]; ok {
		if owner != userID {
			return nil, errIdentityInUse
		}
		return u, nil
	}
	d.identities[identityKey(id)] = userID
	u.identities = append(u.identities, id)
	if id.ProviderType != providerAnonymous && u.userType == session.UserTypeAnonymous {
		u.userType = session.UserTypeNormal
	}
	return u, nil
}

func (d *directory) user(userID string) (profileResponse, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return profileResponse{}, false
	}
	return u.profile(), true
}

func (d *directory) register(username string, params util.Argon2idParams, password string) error {
	salt, err := util.RandomBytes(16)
	if err != nil {
		return err
	}
	key, err := util.DeriveArgon2idKey(password, salt, params)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.accounts[username]; ok {
		return errAccountExists
	}
	d.accounts[username] = &account{username: username, salt: salt, key: key}
	return nil
}

func (d *directory) verify(username, password string, params util.Argon2idParams) (bool, error) {
	d.mu.RLock()
	acct, ok := d.accounts[username]
	d.mu.RUnlock()
	if !ok {
		return false, errUnknownAccount
	}
	return util.CompareArgon2idKey(password, acct.salt, params, acct.key)
}

func (d *directory) openSession(userID, deviceID string) (*serverSession, string, error) {
	refresh, err := util.RandomToken(32)
	if err != nil {
		return nil, "", err
	}
	if deviceID == "" {
		deviceID = uuid.New()
	}
	s := &serverSession{id: uuid.New(), userID: userID, deviceID: deviceID}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[refresh] = s
	d.sessionIDs[s.id] = refresh
	return s, refresh, nil
}

func (d *directory) session(refreshToken string) (*serverSession, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[refreshToken]
	if !ok {
		return nil, errSessionNotFound
	}
	return s, nil
}

func (d *directory) sessionActive(sessionID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.sessionIDs[sessionID]
	return ok
}

func (d *directory) closeSession(refreshToken string) (*serverSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[refreshToken]
	if !ok {
		return nil, errSessionNotFound
	}
	delete(d.sessions, refreshToken)
	delete(d.sessionIDs, s.id)
	return s, nil
}
