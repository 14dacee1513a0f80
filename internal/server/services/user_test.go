package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

func newUserService(t *testing.T, repo *fakeUsersRepo) *UserService {
	t.Helper()
	db := newTestDB(t)
	cfg := testConfig()
	rm := &fakeRepoManager{users: repo}
	as := NewAuthService(db, rm, cfg)
	cs := NewCloudService(cfg)
	return NewUserService(db, rm, as, cs, cfg)
}

// stubObjectStore replaces the S3 seams with in-memory recorders.
func stubObjectStore(t *testing.T) (uploaded *[]string, deleted *[]string) {
	t.Helper()

	var up, del []string

	origPut, origDel, origPresign := putObject, deleteObject, presignGetObject
	t.Cleanup(func() {
		putObject, deleteObject, presignGetObject = origPut, origDel, origPresign
	})

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		up = append(up, *in.Key)
		return &s3.PutObjectOutput{}, nil
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
		del = append(del, *in.Key)
		return &s3.DeleteObjectOutput{}, nil
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + *in.Key}, nil
	}

	return &up, &del
}

func TestRegister_Success(t *testing.T) {
	repo := &fakeUsersRepo{}
	svc := newUserService(t, repo)

	res, err := svc.Register(context.Background(), " Bob@Example.com ", "Str0ng#pass", "Bob", "")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if res.User.Email != "bob@example.com" {
		t.Fatalf("email not normalized: %q", res.User.Email)
	}
	if res.User.Role != models.RoleUser {
		t.Fatalf("new accounts must get role user, got %q", res.User.Role)
	}
	if res.User.PasswordHash != "" {
		t.Fatalf("password hash must not leave the service")
	}
	if res.AccessToken == "" {
		t.Fatalf("registration must issue a session token")
	}

	claims, err := auth.ParseToken(res.AccessToken, []byte("k"))
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if claims.Subject != res.User.ID {
		t.Fatalf("token subject %q != user id %q", claims.Subject, res.User.ID)
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	svc := newUserService(t, &fakeUsersRepo{})

	for _, pw := range []string{"", "short1!", "alllowercase1!", "NoDigits!!", "NoSpecial123", strings.Repeat("Aa1!", 9)} {
		_, err := svc.Register(context.Background(), "bob@example.com", pw, "Bob", "")
		if !errors.Is(err, common.ErrValidation) {
			t.Fatalf("password %q: expected common.ErrValidation, got %v", pw, err)
		}
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	svc := newUserService(t, &fakeUsersRepo{})

	_, err := svc.Register(context.Background(), "not-an-email", "Str0ng#pass", "Bob", "")
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected common.ErrValidation, got %v", err)
	}
}

func TestUpdate_ReissuesTokenForUpdatedIdentity(t *testing.T) {
	u := storedUser(t, "Sup3r#secret")
	repo := &fakeUsersRepo{byID: map[string]*models.User{u.ID: u}}
	svc := newUserService(t, repo)

	role := models.RoleAdmin
	res, err := svc.Update(context.Background(), u.ID, &UserPatch{Role: &role})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}

	claims, err := auth.ParseToken(res.AccessToken, []byte("k"))
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if claims.Role != models.RoleAdmin {
		t.Fatalf("re-issued token must carry the updated role, got %q", claims.Role)
	}
}

func TestUpdate_RejectsUnknownRole(t *testing.T) {
	u := storedUser(t, "Sup3r#secret")
	repo := &fakeUsersRepo{byID: map[string]*models.User{u.ID: u}}
	svc := newUserService(t, repo)

	role := models.Role("superuser")
	_, err := svc.Update(context.Background(), u.ID, &UserPatch{Role: &role})
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected common.ErrValidation, got %v", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc := newUserService(t, &fakeUsersRepo{})

	name := "New Name"
	_, err := svc.Update(context.Background(), "missing", &UserPatch{Name: &name})
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected common.ErrorNotFound, got %v", err)
	}
}

func TestDelete_RemovesDocumentFirst(t *testing.T) {
	u := storedUser(t, "Sup3r#secret")
	u.DocumentKey = "documents/u-1/doc.pdf"
	repo := &fakeUsersRepo{byID: map[string]*models.User{u.ID: u}}
	svc := newUserService(t, repo)

	_, deleted := stubObjectStore(t)

	if err := svc.Delete(context.Background(), u.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if len(*deleted) != 1 || (*deleted)[0] != "documents/u-1/doc.pdf" {
		t.Fatalf("expected document delete, got %v", *deleted)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != u.ID {
		t.Fatalf("expected row delete, got %v", repo.deleted)
	}
}

func TestAttachDocument_Success(t *testing.T) {
	u := storedUser(t, "Sup3r#secret")
	repo := &fakeUsersRepo{byID: map[string]*models.User{u.ID: u}}
	svc := newUserService(t, repo)

	uploaded, _ := stubObjectStore(t)

	access, err := svc.AttachDocument(context.Background(), u.ID, "permit.pdf", []byte("%PDF-"), "application/pdf")
	if err != nil {
		t.Fatalf("AttachDocument error: %v", err)
	}
	if len(*uploaded) != 1 {
		t.Fatalf("expected one upload, got %v", *uploaded)
	}
	key := (*uploaded)[0]
	if !strings.HasPrefix(key, "documents/u-1/") || !strings.HasSuffix(key, ".pdf") {
		t.Fatalf("unexpected storage key: %q", key)
	}
	if len(repo.setDocCalls) != 1 || repo.setDocCalls[0] != key {
		t.Fatalf("document key not recorded: %v", repo.setDocCalls)
	}
	if access.URL == "" {
		t.Fatalf("expected a signed preview URL")
	}
}

func TestAttachDocument_ReplacesPreviousObject(t *testing.T) {
	u := storedUser(t, "Sup3r#secret")
	u.DocumentKey = "documents/u-1/old.pdf"
	repo := &fakeUsersRepo{byID: map[string]*models.User{u.ID: u}}
	svc := newUserService(t, repo)

	_, deleted := stubObjectStore(t)

	if _, err := svc.AttachDocument(context.Background(), u.ID, "new.pdf", []byte("%PDF-"), "application/pdf"); err != nil {
		t.Fatalf("AttachDocument error: %v", err)
	}
	if len(*deleted) != 1 || (*deleted)[0] != "documents/u-1/old.pdf" {
		t.Fatalf("expected previous object delete, got %v", *deleted)
	}
}

func TestAttachDocument_RejectsContentType(t *testing.T) {
	u := storedUser(t, "Sup3r#secret")
	repo := &fakeUsersRepo{byID: map[string]*models.User{u.ID: u}}
	svc := newUserService(t, repo)

	var calls int
	countingConfigLoader(t, &calls)

	_, err := svc.AttachDocument(context.Background(), u.ID, "script.sh", []byte("#!/bin/sh"), "text/x-shellscript")
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected common.ErrValidation, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("rejected upload must not touch the object store")
	}
}

func TestRemoveDocument_NoneAttached(t *testing.T) {
	u := storedUser(t, "Sup3r#secret")
	repo := &fakeUsersRepo{byID: map[string]*models.User{u.ID: u}}
	svc := newUserService(t, repo)

	err := svc.RemoveDocument(context.Background(), u.ID)
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected common.ErrValidation, got %v", err)
	}
}

func TestDocumentURL_NoneAttached(t *testing.T) {
	u := storedUser(t, "Sup3r#secret")
	repo := &fakeUsersRepo{byID: map[string]*models.User{u.ID: u}}
	svc := newUserService(t, repo)

	_, err := svc.DocumentURL(context.Background(), u.ID, time.Minute)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected common.ErrorNotFound, got %v", err)
	}
}

func TestGet_StripsPasswordHash(t *testing.T) {
	u := storedUser(t, "Sup3r#secret")
	repo := &fakeUsersRepo{byID: map[string]*models.User{u.ID: u}}
	svc := newUserService(t, repo)

	got, err := svc.Get(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.PasswordHash != "" {
		t.Fatalf("password hash must not leave the service")
	}
}
