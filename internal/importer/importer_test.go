package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prasenjit/proxyboy/internal/mockerr"
	"github.com/prasenjit/proxyboy/internal/models"
	"github.com/prasenjit/proxyboy/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMethods(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"GET", []string{"GET"}, false},
		{"get", []string{"GET"}, false},
		{"GET,POST", []string{"GET", "POST"}, false},
		{" get , post ,Put", []string{"GET", "POST", "PUT"}, false},
		{"*", []string{"*"}, false},
		{" * ", []string{"*"}, false},
		{"GET,", nil, true},
		{",", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SplitMethods(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDocument_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed json", `{"router_list": [`},
		{"missing router list", `{"mode": "x"}`},
		{"missing method", `{"router_list": [{"url": "/a", "file": "/a.json"}]}`},
		{"missing url", `{"router_list": [{"method": "GET", "file": "/a.json"}]}`},
		{"missing file", `{"router_list": [{"method": "GET", "url": "/a"}]}`},
		{"wrong type", `{"router_list": [{"method": "GET", "url": "/a", "file": "/a.json", "delay": "slow"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, mockerr.ConfigParse, mockerr.KindOf(err))
		})
	}
}

func TestParseDocument_NamesMissingField(t *testing.T) {
	_, err := ParseDocument([]byte(`{"router_list": [
		{"method": "GET", "url": "/a", "file": "/a.json"},
		{"method": "GET", "file": "/b.json"}
	]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RouterList[1].URL")
}

func TestExpand_MultiMethodProducesOneRulePerMethod(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"router_list": [{"method": "GET,POST", "url": "/a", "file": "/a.json"}]}`))
	require.NoError(t, err)

	rules, warnings, err := doc.Expand()
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, rules, 2)

	assert.Equal(t, "GET", rules[0].Method)
	assert.Equal(t, "POST", rules[1].Method)
	for _, r := range rules {
		assert.Equal(t, "/a", r.URL)
		assert.Equal(t, "/a.json", r.File)
		assert.True(t, r.Enabled)
		assert.Equal(t, 200, r.StatusCode)
		assert.Equal(t, 0, r.Delay)
		assert.Equal(t, "application/json", r.ContentType)
		assert.Equal(t, "", r.Name)
	}
}

func TestExpand_ExplicitValuesAndCoercion(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"router_list": [
		{"name": "users", "enable": false, "method": "delete", "url": "/users", "file": "/u.json",
		 "status_code": 204, "delay": 150, "content_type": "text/plain"},
		{"method": "*", "url": "/any", "file": "/any.json", "status_code": 42, "delay": -5, "content_type": ""}
	]}`))
	require.NoError(t, err)

	rules, warnings, err := doc.Expand()
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Len(t, warnings, 2)

	assert.Equal(t, &models.Rule{
		Name: "users", Enabled: false, Method: "DELETE", URL: "/users", File: "/u.json",
		StatusCode: 204, Delay: 150, ContentType: "text/plain",
	}, rules[0])

	assert.Equal(t, "*", rules[1].Method)
	assert.Equal(t, 200, rules[1].StatusCode)
	assert.Equal(t, 0, rules[1].Delay)
	assert.Equal(t, "application/json", rules[1].ContentType)
}

func TestExpand_ClampsLongDelay(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"router_list": [
		{"method": "GET", "url": "/slow", "file": "/slow.json", "delay": 9300000000000}
	]}`))
	require.NoError(t, err)

	rules, warnings, err := doc.Expand()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, models.MaxDelay, rules[0].Delay)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "exceeds")
}

func TestExpand_EmptyMethodToken(t *testing.T) {
	doc := &Document{RouterList: []Route{{Method: "GET,,POST", URL: "/a", File: "/a.json"}}}
	_, _, err := doc.Expand()
	require.Error(t, err)
	assert.Equal(t, mockerr.ConfigParse, mockerr.KindOf(err))
}

func TestImport_PreservesDeclarationThenMethodOrder(t *testing.T) {
	store := storage.NewMemoryStorage()
	imp := New(store, nil)

	var progressed []string
	res, err := imp.ImportBytes(context.Background(), []byte(`{
		"router_list": [
			{"method": "POST,GET", "url": "/first", "file": "/1.json"},
			{"method": "PUT", "url": "/second", "file": "/2.json"}
		],
		"store_path": "fixtures",
		"mode": "error"
	}`), func(r *models.Rule) {
		progressed = append(progressed, r.Method+" "+r.URL)
	})
	require.NoError(t, err)

	want := []string{"POST /first", "GET /first", "PUT /second"}
	assert.Equal(t, want, progressed)
	assert.Equal(t, Settings{StorePath: "fixtures", Mode: "error"}, res.Settings)

	stored, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, r := range stored {
		assert.Equal(t, want[i], r.Method+" "+r.URL)
		assert.NotEmpty(t, r.ID)
	}
}

func TestImport_ReplacesPreviousRules(t *testing.T) {
	store := storage.NewMemoryStorage()
	imp := New(store, nil)
	ctx := context.Background()

	_, err := imp.ImportBytes(ctx, []byte(`{"router_list": [{"method": "GET", "url": "/old", "file": "/old.json"}]}`), nil)
	require.NoError(t, err)
	_, err = imp.ImportBytes(ctx, []byte(`{"router_list": [{"method": "GET", "url": "/new", "file": "/new.json"}]}`), nil)
	require.NoError(t, err)

	stored, _ := store.ListAll(ctx)
	require.Len(t, stored, 1)
	assert.Equal(t, "/new", stored[0].URL)
}

type failingStore struct {
	storage.RuleStore
}

func (failingStore) ReplaceAll(ctx context.Context, rules []*models.Rule) error {
	return errors.New("disk full")
}

func TestImport_StoreFailureIsImportFailure(t *testing.T) {
	imp := New(failingStore{RuleStore: storage.NewMemoryStorage()}, nil)

	called := false
	_, err := imp.ImportBytes(context.Background(),
		[]byte(`{"router_list": [{"method": "GET", "url": "/a", "file": "/a.json"}]}`),
		func(*models.Rule) { called = true })

	require.Error(t, err)
	assert.Equal(t, mockerr.ImportFailure, mockerr.KindOf(err))
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, called, "progress must not be reported for a failed import")
}

func TestImport_ParseFailureLeavesStoreUntouched(t *testing.T) {
	store := storage.NewMemoryStorage()
	imp := New(store, nil)
	ctx := context.Background()

	_, err := imp.ImportBytes(ctx, []byte(`{"router_list": [{"method": "GET", "url": "/keep", "file": "/k.json"}]}`), nil)
	require.NoError(t, err)

	_, err = imp.ImportBytes(ctx, []byte(`{"router_list": [{"method": "GET", "url": "/a", "file": "/a.json"}, {"method": "", "url": "/b", "file": "/b.json"}]}`), nil)
	require.Error(t, err)

	stored, _ := store.ListAll(ctx)
	require.Len(t, stored, 1)
	assert.Equal(t, "/keep", stored[0].URL)
}

func TestImportFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"router_list": [{"method": "*", "url": "/ping", "file": "/ping.json"}]}`), 0644))

	store := storage.NewMemoryStorage()
	res, err := New(store, nil).ImportFile(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Len(t, res.Rules, 1)

	_, err = New(store, nil).ImportFile(context.Background(), filepath.Join(dir, "missing.json"), nil)
	require.Error(t, err)
	assert.Equal(t, mockerr.ConfigRead, mockerr.KindOf(err))
}

func TestReadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"router_list": [], "store_path": "fx", "mode": "error"}`), 0644))

	s, err := ReadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, Settings{StorePath: "fx", Mode: "error"}, s)

	_, err = ReadSettings(filepath.Join(dir, "missing.json"))
	assert.Equal(t, mockerr.ConfigRead, mockerr.KindOf(err))
}
