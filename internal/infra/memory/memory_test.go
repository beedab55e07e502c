package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/memory"
)

func TestStore_AddGetList(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	id, err := s.Add(ctx, "acme", "events", map[string]any{"title": "Post"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id == "" {
		t.Fatal("expected allocated id")
	}

	doc, err := s.Get(ctx, "acme", "events", id)
	if err != nil || doc == nil {
		t.Fatalf("expected document, got %v %v", doc, err)
	}
	if doc.Fields["title"] != "Post" {
		t.Errorf("expected title 'Post', got %v", doc.Fields["title"])
	}

	other, _ := s.ListAll(ctx, "globex", "events")
	if len(other) != 0 {
		t.Errorf("expected tenant isolation, got %d docs", len(other))
	}
}

func TestStore_GetMissingReturnsNil(t *testing.T) {
	doc, err := memory.NewStore().Get(context.Background(), "", "usuarios", "nobody")
	if err != nil || doc != nil {
		t.Fatalf("expected nil, nil; got %v %v", doc, err)
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	err := memory.NewStore().Update(context.Background(), "acme", "Agenciaapk", "x", map[string]any{"titulo": "a"})

	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_MergeKeepsOtherFields(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	_ = s.Set(ctx, "", "usuarios", "u1", map[string]any{"email": "a@x.com", "role": "cliente", "empresaId": "acme"})
	_ = s.Merge(ctx, "", "usuarios", "u1", map[string]any{"role": "agencia", "empresaId": nil})

	doc, _ := s.Get(ctx, "", "usuarios", "u1")
	if doc.Fields["email"] != "a@x.com" {
		t.Errorf("expected email preserved, got %v", doc.Fields["email"])
	}
	if doc.Fields["role"] != "agencia" || doc.Fields["empresaId"] != nil {
		t.Errorf("expected merged fields, got %v", doc.Fields)
	}

	_ = s.Merge(ctx, "", "usuarios", "u2", map[string]any{"role": "agencia"})
	created, _ := s.Get(ctx, "", "usuarios", "u2")
	if created == nil || len(created.Fields) != 1 {
		t.Errorf("expected merge to create a document with only the given fields, got %v", created)
	}
}

func TestStore_ReturnedFieldsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	_ = s.Set(ctx, "acme", "tasks", "t1", map[string]any{"completed": false})

	doc, _ := s.Get(ctx, "acme", "tasks", "t1")
	doc.Fields["completed"] = true

	again, _ := s.Get(ctx, "acme", "tasks", "t1")
	if again.Fields["completed"] != false {
		t.Error("expected stored document to be unaffected by caller mutation")
	}
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	if err := memory.NewStore().Delete(context.Background(), "acme", "events", "ghost"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestDirectory_SignUpSignInAndVerify(t *testing.T) {
	ctx := context.Background()
	dir := memory.NewDirectory()
	sess := dir.NewSession()

	var seen []*domain.Principal
	unsub := sess.Subscribe(func(p *domain.Principal) { seen = append(seen, p) })
	defer unsub()

	p, err := sess.SignUp(ctx, domain.Credentials{Email: "ana@acme.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("expected sign up, got %v", err)
	}
	if p.EmailVerified {
		t.Error("expected new account unverified")
	}
	if len(seen) != 1 || seen[0].UID != p.UID {
		t.Fatalf("expected one notification for the new principal, got %v", seen)
	}

	dir.MarkVerified("ANA@acme.com")
	fresh, err := sess.Reload(ctx)
	if err != nil {
		t.Fatalf("expected reload, got %v", err)
	}
	if !fresh.EmailVerified {
		t.Error("expected reload to observe verification")
	}

	if err := sess.SignOut(ctx); err != nil {
		t.Fatalf("expected sign out, got %v", err)
	}
	if sess.Current() != nil {
		t.Error("expected no principal after sign out")
	}
	if len(seen) != 2 || seen[1] != nil {
		t.Errorf("expected nil notification on sign out, got %v", seen)
	}
}

func TestDirectory_ErrorCodes(t *testing.T) {
	ctx := context.Background()
	dir := memory.NewDirectory()
	if _, err := dir.Register("ops@agency.example", "secret1", true); err != nil {
		t.Fatalf("expected register, got %v", err)
	}

	tests := []struct {
		name string
		run  func() error
		code string
	}{
		{"weak password", func() error {
			_, err := dir.NewSession().SignUp(ctx, domain.Credentials{Email: "x@y.com", Password: "123"})
			return err
		}, domain.IdentityWeakPassword},
		{"invalid email", func() error {
			_, err := dir.NewSession().SignUp(ctx, domain.Credentials{Email: "not-an-email", Password: "secret1"})
			return err
		}, domain.IdentityInvalidEmail},
		{"email in use", func() error {
			_, err := dir.NewSession().SignUp(ctx, domain.Credentials{Email: "ops@agency.example", Password: "secret1"})
			return err
		}, domain.IdentityEmailInUse},
		{"wrong password", func() error {
			_, err := dir.NewSession().SignIn(ctx, domain.Credentials{Email: "ops@agency.example", Password: "nope"})
			return err
		}, domain.IdentityInvalidCredentials},
		{"reset unknown", func() error {
			return dir.NewSession().SendPasswordReset(ctx, "ghost@acme.com")
		}, domain.IdentityUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var idErr *domain.ErrIdentity
			if err := tt.run(); !errors.As(err, &idErr) {
				t.Fatalf("expected ErrIdentity, got %v", err)
			}
			if idErr.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, idErr.Code)
			}
		})
	}
}

func TestDirectory_Outbox(t *testing.T) {
	ctx := context.Background()
	dir := memory.NewDirectory()
	sess := dir.NewSession()
	_, _ = sess.SignUp(ctx, domain.Credentials{Email: "ana@acme.com", Password: "secret1"})

	_ = sess.SendVerificationEmail(ctx)
	_ = sess.SendPasswordReset(ctx, "ana@acme.com")

	out := dir.Outbox()
	if len(out) != 2 {
		t.Fatalf("expected 2 mails, got %d", len(out))
	}
	if out[0].Kind != memory.MailVerification || out[1].Kind != memory.MailPasswordReset {
		t.Errorf("unexpected outbox: %+v", out)
	}
}

func TestSession_UnsubscribeStopsNotifications(t *testing.T) {
	ctx := context.Background()
	dir := memory.NewDirectory()
	_, _ = dir.Register("ana@acme.com", "secret1", true)
	sess := dir.NewSession()

	calls := 0
	unsub := sess.Subscribe(func(*domain.Principal) { calls++ })
	unsub()
	unsub()

	_, _ = sess.SignIn(ctx, domain.Credentials{Email: "ana@acme.com", Password: "secret1"})
	if calls != 0 {
		t.Errorf("expected no calls after unsubscribe, got %d", calls)
	}
}
