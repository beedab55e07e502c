package memory

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// Mail kinds recorded in the outbox.
const (
	MailVerification  = "verification"
	MailPasswordReset = "password_reset"
)

// Mail is a message the directory would have sent.
type Mail struct {
	To   string
	Kind string
}

type account struct {
	uid      string
	email    string
	hash     []byte
	verified bool
}

// Directory is an in-process identity service shared by every session.
// Passwords are stored as bcrypt hashes.
type Directory struct {
	mu       sync.RWMutex
	accounts map[string]*account // by lower-cased email
	outbox   []Mail
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{accounts: make(map[string]*account)}
}

// Register creates an account directly, bypassing sign-up. Used to
// provision operators and in tests.
func (d *Directory) Register(email, password string, verified bool) (*domain.Principal, error) {
	acc, err := d.create(email, password)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	acc.verified = verified
	d.mu.Unlock()
	return &domain.Principal{UID: acc.uid, Email: acc.email, EmailVerified: verified}, nil
}

// MarkVerified flips the verified flag, as following the e-mail link would.
func (d *Directory) MarkVerified(email string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	acc, ok := d.accounts[strings.ToLower(email)]
	if ok {
		acc.verified = true
	}
	return ok
}

// Outbox returns a copy of every mail sent so far.
func (d *Directory) Outbox() []Mail {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Mail, len(d.outbox))
	copy(out, d.outbox)
	return out
}

// NewSession opens a provider session bound to this directory.
func (d *Directory) NewSession() port.IdentityProvider {
	return &Session{dir: d, listeners: make(map[int]func(*domain.Principal))}
}

// Factory adapts NewSession to port.IdentityProviderFactory.
func (d *Directory) Factory() port.IdentityProviderFactory {
	return d.NewSession
}

func (d *Directory) create(email, password string) (*account, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &domain.ErrIdentity{Code: domain.IdentityInvalidEmail, Err: err}
	}
	if len(password) < minPasswordLength {
		return nil, &domain.ErrIdentity{Code: domain.IdentityWeakPassword}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, &domain.ErrIdentity{Code: domain.IdentityUnavailable, Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := d.accounts[key]; exists {
		return nil, &domain.ErrIdentity{Code: domain.IdentityEmailInUse}
	}
	acc := &account{uid: uuid.NewString(), email: email, hash: hash}
	d.accounts[key] = acc
	return acc, nil
}

func (d *Directory) authenticate(email, password string) (*domain.Principal, error) {
	d.mu.RLock()
	acc, ok := d.accounts[strings.ToLower(strings.TrimSpace(email))]
	d.mu.RUnlock()
	if !ok {
		return nil, &domain.ErrIdentity{Code: domain.IdentityInvalidCredentials}
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, &domain.ErrIdentity{Code: domain.IdentityInvalidCredentials}
		}
		return nil, &domain.ErrIdentity{Code: domain.IdentityUnavailable, Err: err}
	}
	return d.principal(acc), nil
}

func (d *Directory) lookup(uid string) *domain.Principal {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, acc := range d.accounts {
		if acc.uid == uid {
			return &domain.Principal{UID: acc.uid, Email: acc.email, EmailVerified: acc.verified}
		}
	}
	return nil
}

func (d *Directory) principal(acc *account) *domain.Principal {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &domain.Principal{UID: acc.uid, Email: acc.email, EmailVerified: acc.verified}
}

func (d *Directory) send(to, kind string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if kind == MailPasswordReset {
		if _, ok := d.accounts[strings.ToLower(strings.TrimSpace(to))]; !ok {
			return &domain.ErrIdentity{Code: domain.IdentityUserNotFound}
		}
	}
	d.outbox = append(d.outbox, Mail{To: to, Kind: kind})
	return nil
}

// Session is one browser session against a Directory.
type Session struct {
	dir *Directory

	mu        sync.Mutex
	current   *domain.Principal
	listeners map[int]func(*domain.Principal)
	nextID    int
}

func (s *Session) Subscribe(fn func(*domain.Principal)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) Current() *domain.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	p := *s.current
	return &p
}

func (s *Session) SignUp(_ context.Context, creds domain.Credentials) (*domain.Principal, error) {
	acc, err := s.dir.create(creds.Email, creds.Password)
	if err != nil {
		return nil, err
	}
	p := s.dir.principal(acc)
	s.setCurrent(p)
	return p, nil
}

func (s *Session) SignIn(_ context.Context, creds domain.Credentials) (*domain.Principal, error) {
	p, err := s.dir.authenticate(creds.Email, creds.Password)
	if err != nil {
		return nil, err
	}
	s.setCurrent(p)
	return p, nil
}

func (s *Session) SignOut(context.Context) error {
	s.setCurrent(nil)
	return nil
}

func (s *Session) SendVerificationEmail(context.Context) error {
	p := s.Current()
	if p == nil {
		return &domain.ErrIdentity{Code: domain.IdentityUserNotFound}
	}
	return s.dir.send(p.Email, MailVerification)
}

func (s *Session) SendPasswordReset(_ context.Context, email string) error {
	return s.dir.send(email, MailPasswordReset)
}

func (s *Session) Reload(context.Context) (*domain.Principal, error) {
	cur := s.Current()
	if cur == nil {
		return nil, nil
	}
	fresh := s.dir.lookup(cur.UID)
	if fresh == nil {
		return nil, &domain.ErrIdentity{Code: domain.IdentityUserNotFound}
	}

	s.mu.Lock()
	if s.current != nil && s.current.UID == fresh.UID {
		s.current = fresh
	}
	s.mu.Unlock()

	p := *fresh
	return &p, nil
}

// setCurrent swaps the principal and notifies listeners outside the lock.
func (s *Session) setCurrent(p *domain.Principal) {
	s.mu.Lock()
	s.current = p
	fns := make([]func(*domain.Principal), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		if p == nil {
			fn(nil)
			continue
		}
		cp := *p
		fn(&cp)
	}
}
