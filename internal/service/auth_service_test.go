package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Chikiak/HospitalPro/internal/models"
	appErrors "github.com/Chikiak/HospitalPro/pkg/errors"
)

type mockUserRepo struct {
	users         map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	auditLogs     []models.AuditLog
	lastLogin     map[string]time.Time
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		users:         make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
		lastLogin:     make(map[string]time.Time),
	}
}

func (m *mockUserRepo) FindByDNI(ctx context.Context, dni string) (*models.User, error) {
	for _, u := range m.users {
		if u.DNI == dni {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "user-" + user.DNI
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLogin[id] = ts
	return nil
}

func (m *mockUserRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	cp := *token
	m.refreshTokens[token.Token] = &cp
	return nil
}

func (m *mockUserRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[token]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range m.refreshTokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, t := range m.refreshTokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, *log)
	return nil
}

type mockWhitelistRepo struct {
	allowed    map[string]bool
	registered []string
}

func (m *mockWhitelistRepo) IsDNIAllowed(ctx context.Context, dni string) (bool, error) {
	return m.allowed[dni], nil
}

func (m *mockWhitelistRepo) MarkRegistered(ctx context.Context, dni string) error {
	m.registered = append(m.registered, dni)
	return nil
}

type mockRecordCreator struct {
	records []models.MedicalRecord
}

func (m *mockRecordCreator) Create(ctx context.Context, record *models.MedicalRecord) error {
	if record.ID == "" {
		record.ID = "record-" + record.PatientID
	}
	m.records = append(m.records, *record)
	return nil
}

type mockLimiter struct {
	counts map[string]int64
}

func (m *mockLimiter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	if m.counts == nil {
		m.counts = make(map[string]int64)
	}
	m.counts[key]++
	return m.counts[key], nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "hospitalpro-test",
	}
}

func newAuthService(users *mockUserRepo, whitelist *mockWhitelistRepo, records *mockRecordCreator, limiter loginLimiter, cfg AuthConfig) *AuthService {
	return NewAuthService(users, whitelist, records, limiter, validator.New(), zap.NewNop(), cfg)
}

func seedUser(t *testing.T, users *mockUserRepo, dni, password string, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		DNI:          dni,
		PasswordHash: string(hash),
		FullName:     "Seeded User",
		Role:         models.RolePatient,
		Active:       active,
	}
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestAuthServiceRegister(t *testing.T) {
	users := newMockUserRepo()
	whitelist := &mockWhitelistRepo{allowed: map[string]bool{"12345678": true}}
	records := &mockRecordCreator{}
	svc := newAuthService(users, whitelist, records, nil, testAuthConfig())

	info, err := svc.Register(context.Background(), models.RegisterRequest{
		DNI:      "12345678",
		Password: "secret123",
		FullName: "Jane Doe",
		RegistrationSurvey: map[string]interface{}{
			"blood_type": "O+",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RolePatient, info.Role)
	assert.Len(t, users.users, 1)
	require.Len(t, records.records, 1)
	assert.Equal(t, info.ID, records.records[0].PatientID)
	assert.Contains(t, whitelist.registered, "12345678")
}

func TestAuthServiceRegisterNotWhitelisted(t *testing.T) {
	svc := newAuthService(newMockUserRepo(), &mockWhitelistRepo{allowed: map[string]bool{}}, &mockRecordCreator{}, nil, testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		DNI:      "99999999",
		Password: "secret123",
		FullName: "Jane Doe",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRegisterDuplicate(t *testing.T) {
	users := newMockUserRepo()
	seedUser(t, users, "12345678", "secret123", true)
	svc := newAuthService(users, &mockWhitelistRepo{allowed: map[string]bool{"12345678": true}}, &mockRecordCreator{}, nil, testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		DNI:      "12345678",
		Password: "secret123",
		FullName: "Jane Doe",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogin(t *testing.T) {
	users := newMockUserRepo()
	user := seedUser(t, users, "12345678", "secret123", true)
	svc := newAuthService(users, &mockWhitelistRepo{}, &mockRecordCreator{}, nil, testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{DNI: "12345678", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, user.ID, res.User.ID)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RolePatient, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	users := newMockUserRepo()
	seedUser(t, users, "12345678", "secret123", true)
	svc := newAuthService(users, &mockWhitelistRepo{}, &mockRecordCreator{}, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{DNI: "12345678", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	users := newMockUserRepo()
	seedUser(t, users, "12345678", "secret123", false)
	svc := newAuthService(users, &mockWhitelistRepo{}, &mockRecordCreator{}, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{DNI: "12345678", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginRateLimited(t *testing.T) {
	users := newMockUserRepo()
	seedUser(t, users, "12345678", "secret123", true)

	cfg := testAuthConfig()
	cfg.RateLimitEnabled = true
	cfg.RateLimitMax = 2
	cfg.RateLimitWindow = time.Minute
	svc := newAuthService(users, &mockWhitelistRepo{}, &mockRecordCreator{}, &mockLimiter{}, cfg)

	req := models.LoginRequest{DNI: "12345678", Password: "wrong", IP: "10.0.0.1"}
	for i := 0; i < 2; i++ {
		_, err := svc.Login(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	}

	_, err := svc.Login(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRateLimited.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotation(t *testing.T) {
	users := newMockUserRepo()
	seedUser(t, users, "12345678", "secret123", true)
	svc := newAuthService(users, &mockWhitelistRepo{}, &mockRecordCreator{}, nil, testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{DNI: "12345678", Password: "secret123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The consumed token is gone.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogoutAllRevokesEverySession(t *testing.T) {
	users := newMockUserRepo()
	user := seedUser(t, users, "12345678", "secret123", true)
	svc := newAuthService(users, &mockWhitelistRepo{}, &mockRecordCreator{}, nil, testAuthConfig())

	first, err := svc.Login(context.Background(), models.LoginRequest{DNI: "12345678", Password: "secret123"})
	require.NoError(t, err)
	second, err := svc.Login(context.Background(), models.LoginRequest{DNI: "12345678", Password: "secret123"})
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	require.NoError(t, svc.LogoutAll(context.Background(), user.ID))

	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: token})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	}
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc := newAuthService(newMockUserRepo(), &mockWhitelistRepo{}, &mockRecordCreator{}, nil, testAuthConfig())

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
