package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/JakeFAU/gpsjus-scraper/internal/auth"
	"github.com/JakeFAU/gpsjus-scraper/internal/config"
	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
	"github.com/JakeFAU/gpsjus-scraper/internal/hash/sha256"
	"github.com/JakeFAU/gpsjus-scraper/internal/notify"
	"github.com/JakeFAU/gpsjus-scraper/internal/scraper"
	"github.com/JakeFAU/gpsjus-scraper/internal/storage"
)

type fakeRunner struct {
	data     dataset.Dataset
	err      error
	maxUnits int
}

func (r *fakeRunner) Run(_ context.Context, maxUnits int) (dataset.Dataset, error) {
	r.maxUnits = maxUnits
	return r.data, r.err
}

type fixedIDs string

func (f fixedIDs) NewID() (string, error) { return string(f), nil }

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

type countingStore struct {
	storage.Store
	saves int
}

func (s *countingStore) Save(ctx context.Context, d dataset.Dataset) error {
	s.saves++
	return s.Store.Save(ctx, d)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("topic not found")
}

var savedAt = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func twoUnits() dataset.Dataset {
	return dataset.Dataset{
		{ID: 1, Name: "1ª Vara Cível", TotalBacklog: "2.345"},
		{ID: 2, Name: "2ª Vara Cível", TotalBacklog: dataset.BacklogUnavailable},
	}
}

func newFileStore(t *testing.T) (*storage.FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dados_tjrn.json")
	store, err := storage.NewFileStore(path)
	require.NoError(t, err)
	return store, path
}

func TestScrapeJobSavesAndPublishes(t *testing.T) {
	t.Parallel()

	store, path := newFileStore(t)
	pub := notify.NewMemory()
	runner := &fakeRunner{data: twoUnits()}
	job := scrapeJob{
		runner:    runner,
		store:     store,
		publisher: pub,
		topic:     "datasets",
		backend:   storage.BackendFile,
		maxUnits:  2,
		ids:       fixedIDs("run-1"),
		hasher:    sha256.New(),
		clock:     fixedClock(savedAt),
		logger:    zap.NewNop(),
	}

	got, err := job.run(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, runner.maxUnits)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := dataset.Marshal(twoUnits())
	require.NoError(t, err)
	assert.Equal(t, string(want), string(raw))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "datasets", msgs[0].Topic)
	assert.Equal(t, notify.DatasetSaved{
		RunID:   "run-1",
		Units:   2,
		Backend: "file",
		SHA256:  sha256.New().Bytes(raw),
		SavedAt: savedAt,
	}, msgs[0].Payload)
}

func TestScrapeJobFatalRunSavesNothing(t *testing.T) {
	t.Parallel()

	fs, path := newFileStore(t)
	store := &countingStore{Store: fs}
	pub := notify.NewMemory()
	job := scrapeJob{
		runner:    &fakeRunner{err: scraper.ErrBaseUnavailable},
		store:     store,
		publisher: pub,
		topic:     "datasets",
		ids:       fixedIDs("run-2"),
		hasher:    sha256.New(),
		clock:     fixedClock(savedAt),
		logger:    zap.NewNop(),
	}

	_, err := job.run(context.Background())
	require.ErrorIs(t, err, scraper.ErrBaseUnavailable)
	assert.Zero(t, store.saves)
	assert.Empty(t, pub.Messages())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestScrapeJobRejectsInvalidDataset(t *testing.T) {
	t.Parallel()

	fs, _ := newFileStore(t)
	store := &countingStore{Store: fs}
	dup := dataset.Dataset{{ID: 2, Name: "a"}, {ID: 2, Name: "b"}}
	job := scrapeJob{
		runner: &fakeRunner{data: dup},
		store:  store,
		ids:    fixedIDs("run-3"),
		hasher: sha256.New(),
		clock:  fixedClock(savedAt),
		logger: zap.NewNop(),
	}

	_, err := job.run(context.Background())
	require.ErrorContains(t, err, "validate dataset")
	assert.Zero(t, store.saves)
}

func TestScrapeJobPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	store, _ := newFileStore(t)
	job := scrapeJob{
		runner:    &fakeRunner{data: twoUnits()},
		store:     store,
		publisher: failingPublisher{},
		topic:     "datasets",
		ids:       fixedIDs("run-4"),
		hasher:    sha256.New(),
		clock:     fixedClock(savedAt),
		logger:    zap.NewNop(),
	}

	_, err := job.run(context.Background())
	require.NoError(t, err)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(twoUnits(), loaded, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("stored dataset mismatch (-want +got):\n%s", diff)
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.FilePath = filepath.Join(t.TempDir(), "dados_tjrn.json")
	return cfg
}

func withApp(cfg config.Config) context.Context {
	return context.WithValue(context.Background(), appKey, &App{Config: cfg, Logger: zap.NewNop()})
}

func TestHashPasswordCmd(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name  string
		args  []string
		stdin string
	}{
		{name: "argument", args: []string{"s3cret"}},
		{name: "stdin", stdin: "s3cret\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cmd := newHashPasswordCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetIn(strings.NewReader(tc.stdin))
			cmd.SetArgs(tc.args)
			require.NoError(t, cmd.Execute())

			hash := strings.TrimSpace(out.String())
			require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
		})
	}

	cmd := newHashPasswordCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("\n"))
	cmd.SetArgs(nil)
	require.ErrorContains(t, cmd.Execute(), "must not be empty")
}

func TestShowCmd(t *testing.T) {
	cfg := testConfig(t)

	cmd := newShowCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.ExecuteContext(withApp(cfg)))
	assert.Equal(t, "no data\n", out.String())

	store, err := storage.NewFileStore(cfg.Storage.FilePath)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), twoUnits()))

	out.Reset()
	cmd = newShowCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.ExecuteContext(withApp(cfg)))
	assert.Contains(t, out.String(), "1ª Vara Cível")
	assert.Contains(t, out.String(), "2.345")
	assert.Contains(t, out.String(), "N/A")
}

const savedPage = `<html><body>
<select id="unidade"><option>Selecione</option><option selected>Vara Única</option></select>
<h3>Acervo</h3>
<div class="box-rounded"><a><div class="big">987</div></a></div>
<div class="table-data"><div>Controle de Prisões</div>
<table>
<tr><th>Tipo</th><th>Qtd</th></tr>
<tr><td>Preventiva</td><td>4</td></tr>
</table></div>
</body></html>`

func TestExtractCmd(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(savedPage), 0o600))

	cmd := newExtractCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--id", "7", "--name", "Vara Única", path})
	require.NoError(t, cmd.ExecuteContext(withApp(cfg)))

	d, err := dataset.Decode(&out)
	require.NoError(t, err)
	require.Len(t, d, 1)
	assert.Equal(t, 7, d[0].ID)
	assert.Equal(t, "Vara Única", d[0].Name)
	assert.Equal(t, "987", d[0].TotalBacklog)
	assert.Empty(t, d[0].PendingCasesByCategory)
}

func TestBuildAPI(t *testing.T) {
	cfg := testConfig(t)
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	cfg.Auth.JWTSecret = "0123456789abcdef0123"
	cfg.Auth.DBPath = filepath.Join(t.TempDir(), "db", "users.db")
	cfg.Auth.Users = []auth.UserSeed{{Username: "analista", PasswordHash: hash}}

	store, err := storage.NewFileStore(cfg.Storage.FilePath)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), twoUnits()))

	handler, closeAll, err := buildAPI(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(closeAll)

	form := url.Values{"username": {"analista"}, "password": {"s3cret"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tok auth.Token
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/units", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1ª Vara Cível")
}

func TestBuildAPIRequiresSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "short"
	_, _, err := buildAPI(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "auth.jwt_secret")
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run-scraper", "serve", "extract", "show", "hash-password"})

	run, _, err := root.Find([]string{"run-scraper"})
	require.NoError(t, err)
	for _, flag := range []string{"headless", "max-units", "output"} {
		assert.NotNil(t, run.Flags().Lookup(flag), flag)
	}
}
