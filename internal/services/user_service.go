package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"expenses/internal/auth"
	"expenses/internal/core"

	"github.com/google/uuid"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong
// password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	MsgEmailInvalid     = "Please provide a valid email"
	MsgPasswordShort    = "Password must be at least 6 characters long"
	MsgPasswordLong     = "Password must be at most 72 bytes long"
	MsgPasswordRequired = "Password is required"
	MsgNameEmpty        = "Name cannot be empty if provided"
)

const minPasswordLength = 6

type (
	// Registration is the input of a sign up.
	Registration struct {
		Email    string
		Password string
		Name     *string
	}

	// Credentials is the input of a login.
	Credentials struct {
		Email    string
		Password string
	}

	// Session is an authenticated user with a fresh access token.
	Session struct {
		User  core.User
		Token string
	}
)

// normalizeEmail lower-cases an address and rejects anything that is not
// a bare addr-spec.
func normalizeEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || !strings.Contains(addr.Address, "@") {
		return "", false
	}
	return strings.ToLower(addr.Address), true
}

func (r *Registration) validate() error {
	ve := &core.ValidationError{}
	if email, ok := normalizeEmail(r.Email); ok {
		r.Email = email
	} else {
		ve.Add("email", MsgEmailInvalid)
	}
	switch {
	case len([]rune(r.Password)) < minPasswordLength:
		ve.Add("password", MsgPasswordShort)
	case len(r.Password) > auth.MaxPasswordBytes:
		ve.Add("password", MsgPasswordLong)
	}
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			ve.Add("name", MsgNameEmpty)
		}
		r.Name = &name
	}
	return ve.Err()
}

func (c *Credentials) validate() error {
	ve := &core.ValidationError{}
	if email, ok := normalizeEmail(c.Email); ok {
		c.Email = email
	} else {
		ve.Add("email", MsgEmailInvalid)
	}
	if c.Password == "" {
		ve.Add("password", MsgPasswordRequired)
	}
	return ve.Err()
}

// UserService registers and logs in users.
type UserService struct {
	store  UserStore
	hasher PasswordHasher
	tokens TokenIssuer
	now    func() time.Time

	// dummyHash is compared against when the email is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash string
}

func NewUserService(store UserStore, hasher PasswordHasher, tokens TokenIssuer) (*UserService, error) {
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare user service: %w", err)
	}
	return &UserService{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// Register creates a user and signs them in. A taken email yields
// core.ErrConflict.
func (s *UserService) Register(ctx context.Context, in Registration) (Session, error) {
	if err := in.validate(); err != nil {
		return Session{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, err
	}

	u := core.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		CreatedAt:    s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return Session{}, fmt.Errorf("register user: %w", err)
	}

	return s.session(u)
}

// Login checks credentials and issues a token.
func (s *UserService) Login(ctx context.Context, in Credentials) (Session, error) {
	if err := in.validate(); err != nil {
		return Session{}, err
	}

	u, err := s.store.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			_ = s.hasher.Compare(s.dummyHash, in.Password)
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("login: %w", err)
	}

	if err := s.hasher.Compare(u.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("login: %w", err)
	}

	return s.session(u)
}

func (s *UserService) session(u core.User) (Session, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Token: token}, nil
}
