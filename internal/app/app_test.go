package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadmarket-backend/internal/config"
	"leadmarket-backend/internal/jobs"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
server:
  port: 8080
database:
  driver: memory
jwt:
  secret: "0123456789abcdef0123456789abcdef"
admin:
  email: admin@example.com
  password: admin-password
`))
	require.NoError(t, err)
	return cfg
}

func TestNew_MemoryDriver(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.BootstrapAdmin(ctx))
	require.NoError(t, a.BootstrapAdmin(ctx))

	account, token, err := a.Services.Accounts.Authenticate(ctx, "admin@example.com", "admin-password")
	require.NoError(t, err)
	assert.True(t, account.IsAdmin())

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/admin/reconcile", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NoError(t, a.Jobs.Run(jobs.JobAll))
}

func TestBootstrapAdmin_Disabled(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Admin = config.AdminConfig{}
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, a.BootstrapAdmin(context.Background()))
	assert.NoError(t, a.Close())
}

const seedYAML = `
accounts:
  - email: buyer@example.com
    name: Buyer
    password: buyer-password
    role: client
    deposits:
      - amount: "200.00"
        method: pix
        external_ref: seed-pix-1
leads:
  - name: Acme Solar
    category: solar
    region: south
    quality_score: 70
    price: "75.50"
    expires_in_hours: 48
`

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t))
	require.NoError(t, err)
	defer a.Close()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	seed, err := LoadSeed(path)
	require.NoError(t, err)

	res, err := a.Seed(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{AccountsCreated: 1, DepositsApplied: 1, LeadsCreated: 1}, res)

	res, err = a.Seed(ctx, &SeedData{Accounts: seed.Accounts})
	require.NoError(t, err)
	assert.Equal(t, SeedResult{}, res)

	account, _, err := a.Services.Accounts.Authenticate(ctx, "buyer@example.com", "buyer-password")
	require.NoError(t, err)
	balance, err := a.Services.Ledger.GetBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", balance.StringFixed(2))
}
